package storetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// runConcurrencyTests runs the per-call mutual exclusion conformance tests.
func runConcurrencyTests(t *testing.T, factory StoreFactory) {
	t.Run("SerializedCounter", func(t *testing.T) { testSerializedCounter(t, factory) })
	t.Run("LinearizedEventOrder", func(t *testing.T) { testLinearizedEventOrder(t, factory) })
	t.Run("ConcurrentDistinctSequences", func(t *testing.T) { testConcurrentDistinctSequences(t, factory) })
	t.Run("ConcurrentDistinctCalls", func(t *testing.T) { testConcurrentDistinctCalls(t, factory) })
}

// testSerializedCounter verifies that concurrent Updates on one call never
// lose a read-modify-write increment.
func testSerializedCounter(t *testing.T, factory StoreFactory) {
	s := factory(t)

	const (
		workers    = 8
		increments = 5
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				err := s.Update(t.Context(), "call-counter", func(tx store.Tx) error {
					c, err := tx.CreateIfAbsent()
					if err != nil {
						return err
					}
					c.ReceivedCount++
					return tx.Save(c)
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Update() failed: %v", err)
	}

	c, err := s.Get(t.Context(), "call-counter")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if want := int64(workers * increments); c.ReceivedCount != want {
		t.Errorf("ReceivedCount = %d, want %d (lost update)", c.ReceivedCount, want)
	}
}

// testLinearizedEventOrder verifies that events for one call reach the sink
// in the same order their transactions committed. Delivery happens while the
// per-call lock is still held, so the observed counter values must be
// strictly increasing.
func testLinearizedEventOrder(t *testing.T, factory StoreFactory) {
	s := factory(t)

	const workers = 8

	var (
		mu   sync.Mutex
		seen []int64
	)
	s.SetEventSink(func(events []call.Event) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if pr, ok := e.(call.PacketReceivedEvent); ok {
				seen = append(seen, pr.TotalReceived)
			}
		}
	})

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(t.Context(), "call-linear", func(tx store.Tx) error {
				c, err := tx.CreateIfAbsent()
				if err != nil {
					return err
				}
				c.ReceivedCount++
				if err := tx.Save(c); err != nil {
					return err
				}
				tx.Queue(call.PacketReceivedEvent{CallID: "call-linear", TotalReceived: c.ReceivedCount})
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Update() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != workers {
		t.Fatalf("sink saw %d events, want %d", len(seen), workers)
	}
	for i, v := range seen {
		if want := int64(i + 1); v != want {
			t.Fatalf("seen[%d] = %d, want %d (events out of commit order: %v)", i, v, want, seen)
		}
	}
}

// testConcurrentDistinctSequences verifies that concurrent inserts of
// distinct sequences on one call all land exactly once.
func testConcurrentDistinctSequences(t *testing.T, factory StoreFactory) {
	s := factory(t)

	const (
		workers       = 4
		perWorkerSeqs = 10
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := int64(w * perWorkerSeqs)
			for i := range int64(perWorkerSeqs) {
				seq := base + i
				err := s.Update(t.Context(), "call-seqs", func(tx store.Tx) error {
					c, err := tx.CreateIfAbsent()
					if err != nil {
						return err
					}
					if err := tx.InsertPacket(&call.Packet{Sequence: seq, Data: "chunk", Timestamp: float64(seq)}); err != nil {
						return err
					}
					c.ReceivedCount++
					return tx.Save(c)
				})
				if err != nil {
					errs <- fmt.Errorf("sequence %d: %w", seq, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Update() failed: %v", err)
	}

	packets, err := s.ListPacketsOrdered(t.Context(), "call-seqs")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() failed: %v", err)
	}
	if want := workers * perWorkerSeqs; len(packets) != want {
		t.Fatalf("got %d packets, want %d", len(packets), want)
	}
	for i, p := range packets {
		if p.Sequence != int64(i) {
			t.Errorf("packets[%d].Sequence = %d, want %d", i, p.Sequence, i)
		}
	}

	c, err := s.Get(t.Context(), "call-seqs")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if want := int64(workers * perWorkerSeqs); c.ReceivedCount != want {
		t.Errorf("ReceivedCount = %d, want %d", c.ReceivedCount, want)
	}
}

// testConcurrentDistinctCalls verifies that updates on different calls do not
// interfere with each other.
func testConcurrentDistinctCalls(t *testing.T, factory StoreFactory) {
	s := factory(t)

	const (
		calls   = 4
		packets = 5
	)

	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for w := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callID := fmt.Sprintf("call-multi-%d", w)
			for seq := range int64(packets) {
				err := s.Update(t.Context(), callID, func(tx store.Tx) error {
					c, err := tx.CreateIfAbsent()
					if err != nil {
						return err
					}
					if err := tx.InsertPacket(&call.Packet{Sequence: seq, Data: "chunk", Timestamp: float64(seq)}); err != nil {
						return err
					}
					c.ReceivedCount++
					return tx.Save(c)
				})
				if err != nil {
					errs <- fmt.Errorf("%s sequence %d: %w", callID, seq, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Update() failed: %v", err)
	}

	for w := range calls {
		callID := fmt.Sprintf("call-multi-%d", w)
		c, err := s.Get(t.Context(), callID)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", callID, err)
		}
		if c.ReceivedCount != packets {
			t.Errorf("%s: ReceivedCount = %d, want %d", callID, c.ReceivedCount, packets)
		}
		got, err := s.ListPacketsOrdered(t.Context(), callID)
		if err != nil {
			t.Fatalf("ListPacketsOrdered(%q) failed: %v", callID, err)
		}
		if len(got) != packets {
			t.Errorf("%s: got %d packets, want %d", callID, len(got), packets)
		}
	}
}
