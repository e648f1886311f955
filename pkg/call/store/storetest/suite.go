package storetest

import (
	"testing"

	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// StoreFactory creates a fresh Store instance for each test. The factory
// receives *testing.T so it can use t.TempDir() for stores that need
// filesystem paths and t.Cleanup() for teardown.
type StoreFactory func(t *testing.T) store.Store

// RunConformanceSuite runs the full conformance test suite against the
// provided store factory. Each test gets a fresh store instance to ensure
// isolation.
//
// The suite covers four categories:
//   - CallOps: create, idempotent re-create, field persistence, listing, rollback
//   - PacketOps: inserts, duplicate detection, ordered scans, per-call scoping
//   - Events: post-commit delivery, rollback discard, delivery order
//   - Concurrency: per-call mutual exclusion under contention
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("CallOps", func(t *testing.T) {
		runCallOpsTests(t, factory)
	})

	t.Run("PacketOps", func(t *testing.T) {
		runPacketOpsTests(t, factory)
	})

	t.Run("Events", func(t *testing.T) {
		runEventTests(t, factory)
	})

	t.Run("Concurrency", func(t *testing.T) {
		runConcurrencyTests(t, factory)
	})
}

// mustUpdate runs fn inside Store.Update and fails the test on error.
func mustUpdate(t *testing.T, s store.Store, callID string, fn func(tx store.Tx) error) {
	t.Helper()

	if err := s.Update(t.Context(), callID, fn); err != nil {
		t.Fatalf("Update(%q) failed: %v", callID, err)
	}
}

// createCall creates callID in its initial state and returns the stored
// snapshot.
func createCall(t *testing.T, s store.Store, callID string) *call.Call {
	t.Helper()

	mustUpdate(t, s, callID, func(tx store.Tx) error {
		_, err := tx.CreateIfAbsent()
		return err
	})

	c, err := s.Get(t.Context(), callID)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", callID, err)
	}
	return c
}

// insertPacket inserts one packet and bumps the received counter, the way the
// call engine does.
func insertPacket(t *testing.T, s store.Store, callID string, sequence int64, data string) {
	t.Helper()

	mustUpdate(t, s, callID, func(tx store.Tx) error {
		c, err := tx.CreateIfAbsent()
		if err != nil {
			return err
		}
		p := &call.Packet{
			Sequence:  sequence,
			Data:      data,
			Timestamp: float64(sequence),
		}
		if err := tx.InsertPacket(p); err != nil {
			return err
		}
		c.ReceivedCount++
		return tx.Save(c)
	})
}
