package storetest

import (
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// runEventTests runs all post-commit event delivery conformance tests.
func runEventTests(t *testing.T, factory StoreFactory) {
	t.Run("DeliveredAfterCommit", func(t *testing.T) { testEventsDeliveredAfterCommit(t, factory) })
	t.Run("DiscardedOnRollback", func(t *testing.T) { testEventsDiscardedOnRollback(t, factory) })
	t.Run("NoSinkIsSafe", func(t *testing.T) { testNoSinkIsSafe(t, factory) })
}

// eventRecorder collects delivered events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []call.Event
}

func (r *eventRecorder) sink() store.EventSink {
	return func(events []call.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, events...)
	}
}

func (r *eventRecorder) recorded() []call.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call.Event(nil), r.events...)
}

// testEventsDeliveredAfterCommit verifies that queued events reach the sink
// once the transaction commits, in queue order.
func testEventsDeliveredAfterCommit(t *testing.T, factory StoreFactory) {
	s := factory(t)

	rec := &eventRecorder{}
	s.SetEventSink(rec.sink())

	mustUpdate(t, s, "call-events", func(tx store.Tx) error {
		if _, err := tx.CreateIfAbsent(); err != nil {
			return err
		}
		tx.Queue(call.PacketReceivedEvent{CallID: "call-events", Sequence: 0, TotalReceived: 1})
		tx.Queue(call.StateChangedEvent{CallID: "call-events", From: call.StateInProgress, To: call.StateCompleted})
		return nil
	})

	events := rec.recorded()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind() != call.KindPacketReceived {
		t.Errorf("events[0].Kind() = %q, want %q", events[0].Kind(), call.KindPacketReceived)
	}
	if events[1].Kind() != call.KindStateChanged {
		t.Errorf("events[1].Kind() = %q, want %q", events[1].Kind(), call.KindStateChanged)
	}
}

// testEventsDiscardedOnRollback verifies that events queued in a failed
// transaction never reach the sink.
func testEventsDiscardedOnRollback(t *testing.T, factory StoreFactory) {
	s := factory(t)

	rec := &eventRecorder{}
	s.SetEventSink(rec.sink())

	sentinel := errors.New("abort")
	err := s.Update(t.Context(), "call-rollback-events", func(tx store.Tx) error {
		if _, err := tx.CreateIfAbsent(); err != nil {
			return err
		}
		tx.Queue(call.PacketReceivedEvent{CallID: "call-rollback-events", Sequence: 0, TotalReceived: 1})
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update() error = %v, want the callback error", err)
	}

	if events := rec.recorded(); len(events) != 0 {
		t.Errorf("got %d events after rollback, want 0", len(events))
	}
}

// testNoSinkIsSafe verifies that queueing events without an installed sink is
// a no-op rather than a panic.
func testNoSinkIsSafe(t *testing.T, factory StoreFactory) {
	s := factory(t)

	mustUpdate(t, s, "call-no-sink", func(tx store.Tx) error {
		if _, err := tx.CreateIfAbsent(); err != nil {
			return err
		}
		tx.Queue(call.PacketReceivedEvent{CallID: "call-no-sink", Sequence: 0, TotalReceived: 1})
		return nil
	})
}
