package storetest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// runPacketOpsTests runs all packet persistence conformance tests.
func runPacketOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("InsertPacket", func(t *testing.T) { testInsertPacket(t, factory) })
	t.Run("DuplicateSequence", func(t *testing.T) { testDuplicateSequence(t, factory) })
	t.Run("DuplicateKeepsTransactionUsable", func(t *testing.T) { testDuplicateKeepsTransactionUsable(t, factory) })
	t.Run("OrderedScan", func(t *testing.T) { testOrderedScan(t, factory) })
	t.Run("StagedPacketsVisibleInTx", func(t *testing.T) { testStagedPacketsVisibleInTx(t, factory) })
	t.Run("PacketsScopedToCall", func(t *testing.T) { testPacketsScopedToCall(t, factory) })
}

// testInsertPacket verifies that an inserted packet round-trips with the call
// ID and arrival time stamped by the store.
func testInsertPacket(t *testing.T, factory StoreFactory) {
	s := factory(t)

	insertPacket(t, s, "call-insert", 0, "chunk-0")

	packets, err := s.ListPacketsOrdered(t.Context(), "call-insert")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	p := packets[0]
	if p.CallID != "call-insert" {
		t.Errorf("CallID = %q, want %q", p.CallID, "call-insert")
	}
	if p.Sequence != 0 {
		t.Errorf("Sequence = %d, want 0", p.Sequence)
	}
	if p.Data != "chunk-0" {
		t.Errorf("Data = %q, want %q", p.Data, "chunk-0")
	}
	if p.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be stamped on insert")
	}

	c, err := s.Get(t.Context(), "call-insert")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if c.ReceivedCount != 1 {
		t.Errorf("ReceivedCount = %d, want 1", c.ReceivedCount)
	}
}

// testDuplicateSequence verifies that re-inserting a committed (call_id,
// sequence) pair reports ErrDuplicatePacket.
func testDuplicateSequence(t *testing.T, factory StoreFactory) {
	s := factory(t)

	insertPacket(t, s, "call-dup", 0, "first")

	err := s.Update(t.Context(), "call-dup", func(tx store.Tx) error {
		return tx.InsertPacket(&call.Packet{Sequence: 0, Data: "second", Timestamp: 0})
	})
	if !errors.Is(err, call.ErrDuplicatePacket) {
		t.Fatalf("Update() error = %v, want ErrDuplicatePacket", err)
	}

	// The original packet is untouched.
	packets, err := s.ListPacketsOrdered(t.Context(), "call-dup")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() failed: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if packets[0].Data != "first" {
		t.Errorf("Data = %q, want %q (duplicate must not overwrite)", packets[0].Data, "first")
	}
}

// testDuplicateKeepsTransactionUsable verifies that a duplicate insert can be
// handled inside the callback without aborting the surrounding transaction.
// This is the behavior the engine relies on to classify duplicates while
// still committing counter updates.
func testDuplicateKeepsTransactionUsable(t *testing.T, factory StoreFactory) {
	s := factory(t)

	insertPacket(t, s, "call-dup-tx", 0, "first")

	mustUpdate(t, s, "call-dup-tx", func(tx store.Tx) error {
		err := tx.InsertPacket(&call.Packet{Sequence: 0, Data: "again", Timestamp: 0})
		if !errors.Is(err, call.ErrDuplicatePacket) {
			return fmt.Errorf("InsertPacket(duplicate) error = %v, want ErrDuplicatePacket", err)
		}

		// The same transaction keeps working after the duplicate.
		if err := tx.InsertPacket(&call.Packet{Sequence: 1, Data: "second", Timestamp: 1}); err != nil {
			return err
		}
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}
		c.ReceivedCount = 2
		return tx.Save(c)
	})

	packets, err := s.ListPacketsOrdered(t.Context(), "call-dup-tx")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() failed: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	c, err := s.Get(t.Context(), "call-dup-tx")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if c.ReceivedCount != 2 {
		t.Errorf("ReceivedCount = %d, want 2", c.ReceivedCount)
	}
}

// testOrderedScan verifies that packets come back ascending by sequence no
// matter the insertion order.
func testOrderedScan(t *testing.T, factory StoreFactory) {
	s := factory(t)

	for _, seq := range []int64{5, 1, 3, 2, 4, 0} {
		insertPacket(t, s, "call-order", seq, fmt.Sprintf("chunk-%d", seq))
	}

	packets, err := s.ListPacketsOrdered(t.Context(), "call-order")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() failed: %v", err)
	}
	if len(packets) != 6 {
		t.Fatalf("got %d packets, want 6", len(packets))
	}
	for i, p := range packets {
		if p.Sequence != int64(i) {
			t.Errorf("packets[%d].Sequence = %d, want %d", i, p.Sequence, i)
		}
		if want := fmt.Sprintf("chunk-%d", i); p.Data != want {
			t.Errorf("packets[%d].Data = %q, want %q", i, p.Data, want)
		}
	}
}

// testStagedPacketsVisibleInTx verifies that Tx.ListPacketsOrdered sees
// inserts staged earlier in the same transaction.
func testStagedPacketsVisibleInTx(t *testing.T, factory StoreFactory) {
	s := factory(t)

	mustUpdate(t, s, "call-staged", func(tx store.Tx) error {
		if _, err := tx.CreateIfAbsent(); err != nil {
			return err
		}
		for _, seq := range []int64{2, 0, 1} {
			if err := tx.InsertPacket(&call.Packet{Sequence: seq, Data: "chunk", Timestamp: float64(seq)}); err != nil {
				return err
			}
		}

		packets, err := tx.ListPacketsOrdered()
		if err != nil {
			return err
		}
		if len(packets) != 3 {
			return fmt.Errorf("in-tx scan returned %d packets, want 3", len(packets))
		}
		for i, p := range packets {
			if p.Sequence != int64(i) {
				return fmt.Errorf("in-tx packets[%d].Sequence = %d, want %d", i, p.Sequence, i)
			}
		}
		return nil
	})
}

// testPacketsScopedToCall verifies that packet scans never bleed across call
// IDs, including IDs that prefix each other or contain the key separator.
func testPacketsScopedToCall(t *testing.T, factory StoreFactory) {
	s := factory(t)

	// "sip:1" is a strict prefix of "sip:100" and both contain ':'.
	insertPacket(t, s, "sip:1", 0, "short-0")
	insertPacket(t, s, "sip:1", 1, "short-1")
	insertPacket(t, s, "sip:100", 0, "long-0")
	insertPacket(t, s, "sip:100", 1, "long-1")
	insertPacket(t, s, "sip:100", 2, "long-2")

	short, err := s.ListPacketsOrdered(t.Context(), "sip:1")
	if err != nil {
		t.Fatalf("ListPacketsOrdered(sip:1) failed: %v", err)
	}
	if len(short) != 2 {
		t.Fatalf("got %d packets for sip:1, want 2", len(short))
	}
	for _, p := range short {
		if p.CallID != "sip:1" {
			t.Errorf("packet for call %q leaked into sip:1 scan", p.CallID)
		}
	}

	long, err := s.ListPacketsOrdered(t.Context(), "sip:100")
	if err != nil {
		t.Fatalf("ListPacketsOrdered(sip:100) failed: %v", err)
	}
	if len(long) != 3 {
		t.Fatalf("got %d packets for sip:100, want 3", len(long))
	}
}
