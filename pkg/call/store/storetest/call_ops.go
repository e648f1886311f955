package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
)

// runCallOpsTests runs all call lifecycle conformance tests.
func runCallOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("CreateCall", func(t *testing.T) { testCreateCall(t, factory) })
	t.Run("CreateIsIdempotent", func(t *testing.T) { testCreateIsIdempotent(t, factory) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, factory) })
	t.Run("LoadForUpdateNotFound", func(t *testing.T) { testLoadForUpdateNotFound(t, factory) })
	t.Run("SavePersistsFields", func(t *testing.T) { testSavePersistsFields(t, factory) })
	t.Run("GetReturnsSnapshot", func(t *testing.T) { testGetReturnsSnapshot(t, factory) })
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollbackDiscardsWrites(t, factory) })
	t.Run("List", func(t *testing.T) { testList(t, factory) })
	t.Run("ClosedStore", func(t *testing.T) { testClosedStore(t, factory) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceledContext(t, factory) })
}

// testCreateCall verifies that CreateIfAbsent produces a retrievable call in
// its initial state.
func testCreateCall(t *testing.T, factory StoreFactory) {
	s := factory(t)

	c := createCall(t, s, "call-create")

	if c.ID != "call-create" {
		t.Errorf("ID = %q, want %q", c.ID, "call-create")
	}
	if c.State != call.StateInProgress {
		t.Errorf("State = %q, want %q", c.State, call.StateInProgress)
	}
	if c.ReceivedCount != 0 {
		t.Errorf("ReceivedCount = %d, want 0", c.ReceivedCount)
	}
	if c.ExpectedNext != 0 {
		t.Errorf("ExpectedNext = %d, want 0", c.ExpectedNext)
	}
	if got := c.MissingSequences(); len(got) != 0 {
		t.Errorf("MissingSequences() = %v, want empty", got)
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on creation")
	}
}

// testCreateIsIdempotent verifies that CreateIfAbsent on an existing call
// returns the stored row without resetting any field.
func testCreateIsIdempotent(t *testing.T, factory StoreFactory) {
	s := factory(t)

	createCall(t, s, "call-idem")

	mustUpdate(t, s, "call-idem", func(tx store.Tx) error {
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}
		c.ReceivedCount = 5
		c.ExpectedNext = 5
		return tx.Save(c)
	})

	var reloaded *call.Call
	mustUpdate(t, s, "call-idem", func(tx store.Tx) error {
		c, err := tx.CreateIfAbsent()
		if err != nil {
			return err
		}
		reloaded = c
		return nil
	})

	if reloaded.ReceivedCount != 5 {
		t.Errorf("ReceivedCount = %d, want 5 (creation must not reset an existing call)", reloaded.ReceivedCount)
	}
	if reloaded.ExpectedNext != 5 {
		t.Errorf("ExpectedNext = %d, want 5", reloaded.ExpectedNext)
	}
}

// testGetNotFound verifies the sentinel error for unknown call IDs.
func testGetNotFound(t *testing.T, factory StoreFactory) {
	s := factory(t)

	_, err := s.Get(t.Context(), "no-such-call")
	if !errors.Is(err, call.ErrCallNotFound) {
		t.Errorf("Get() error = %v, want ErrCallNotFound", err)
	}
}

// testLoadForUpdateNotFound verifies that LoadForUpdate inside a transaction
// surfaces the same sentinel through Update.
func testLoadForUpdateNotFound(t *testing.T, factory StoreFactory) {
	s := factory(t)

	err := s.Update(t.Context(), "no-such-call", func(tx store.Tx) error {
		_, err := tx.LoadForUpdate()
		return err
	})
	if !errors.Is(err, call.ErrCallNotFound) {
		t.Errorf("Update() error = %v, want ErrCallNotFound", err)
	}
}

// testSavePersistsFields verifies that every mutable call field survives a
// save/load round trip.
func testSavePersistsFields(t *testing.T, factory StoreFactory) {
	s := factory(t)

	createCall(t, s, "call-fields")

	total := int64(10)
	transcription := "hello world"
	sentiment := "positive"

	mustUpdate(t, s, "call-fields", func(tx store.Tx) error {
		c, err := tx.LoadForUpdate()
		if err != nil {
			return err
		}
		if err := c.Transition(call.StateCompleted); err != nil {
			return err
		}
		c.ReceivedCount = 8
		c.ExpectedTotal = &total
		c.ExpectedNext = 10
		c.Missing = []int64{3, 5}
		c.Transcription = &transcription
		c.Sentiment = &sentiment
		return tx.Save(c)
	})

	c, err := s.Get(t.Context(), "call-fields")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if c.State != call.StateCompleted {
		t.Errorf("State = %q, want %q", c.State, call.StateCompleted)
	}
	if c.ReceivedCount != 8 {
		t.Errorf("ReceivedCount = %d, want 8", c.ReceivedCount)
	}
	if c.ExpectedTotal == nil || *c.ExpectedTotal != 10 {
		t.Errorf("ExpectedTotal = %v, want 10", c.ExpectedTotal)
	}
	if c.ExpectedNext != 10 {
		t.Errorf("ExpectedNext = %d, want 10", c.ExpectedNext)
	}
	if got := c.MissingSequences(); len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("MissingSequences() = %v, want [3 5]", got)
	}
	if c.Transcription == nil || *c.Transcription != "hello world" {
		t.Errorf("Transcription = %v, want %q", c.Transcription, "hello world")
	}
	if c.Sentiment == nil || *c.Sentiment != "positive" {
		t.Errorf("Sentiment = %v, want %q", c.Sentiment, "positive")
	}
	if !c.UpdatedAt.After(c.CreatedAt) && !c.UpdatedAt.Equal(c.CreatedAt) {
		t.Errorf("UpdatedAt = %v should not precede CreatedAt = %v", c.UpdatedAt, c.CreatedAt)
	}
}

// testGetReturnsSnapshot verifies that mutating a returned call does not leak
// into the store.
func testGetReturnsSnapshot(t *testing.T, factory StoreFactory) {
	s := factory(t)

	createCall(t, s, "call-snapshot")

	c, err := s.Get(t.Context(), "call-snapshot")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	c.State = call.StateFailed
	c.ReceivedCount = 99
	c.Missing = append(c.Missing, 7)

	fresh, err := s.Get(t.Context(), "call-snapshot")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if fresh.State != call.StateInProgress {
		t.Errorf("State = %q after mutating a snapshot, want %q", fresh.State, call.StateInProgress)
	}
	if fresh.ReceivedCount != 0 {
		t.Errorf("ReceivedCount = %d after mutating a snapshot, want 0", fresh.ReceivedCount)
	}
	if got := fresh.MissingSequences(); len(got) != 0 {
		t.Errorf("MissingSequences() = %v after mutating a snapshot, want empty", got)
	}
}

// testRollbackDiscardsWrites verifies that a callback error rolls back every
// staged write.
func testRollbackDiscardsWrites(t *testing.T, factory StoreFactory) {
	s := factory(t)

	sentinel := errors.New("abort")
	err := s.Update(t.Context(), "call-rollback", func(tx store.Tx) error {
		if _, err := tx.CreateIfAbsent(); err != nil {
			return err
		}
		p := &call.Packet{Sequence: 0, Data: "chunk", Timestamp: 1.5}
		if err := tx.InsertPacket(p); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update() error = %v, want the callback error", err)
	}

	if _, err := s.Get(t.Context(), "call-rollback"); !errors.Is(err, call.ErrCallNotFound) {
		t.Errorf("Get() error = %v after rollback, want ErrCallNotFound", err)
	}
	packets, err := s.ListPacketsOrdered(t.Context(), "call-rollback")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() failed: %v", err)
	}
	if len(packets) != 0 {
		t.Errorf("got %d packets after rollback, want 0", len(packets))
	}
}

// testList verifies newest-first ordering and offset/limit pagination.
func testList(t *testing.T, factory StoreFactory) {
	s := factory(t)

	for _, id := range []string{"call-a", "call-b", "call-c"} {
		createCall(t, s, id)
		// Keep creation timestamps strictly ordered even on backends that
		// truncate below nanosecond precision.
		time.Sleep(10 * time.Millisecond)
	}

	calls, err := s.List(t.Context(), store.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(calls))
	}
	for i, want := range []string{"call-c", "call-b", "call-a"} {
		if calls[i].ID != want {
			t.Errorf("calls[%d].ID = %q, want %q", i, calls[i].ID, want)
		}
	}

	page, err := s.List(t.Context(), store.ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "call-b" {
		t.Errorf("List(limit=1, offset=1) = %v, want [call-b]", callIDs(page))
	}

	empty, err := s.List(t.Context(), store.ListOptions{Offset: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List(offset=10) returned %d calls, want 0", len(empty))
	}
}

// testClosedStore verifies that operations after Close report ErrStoreClosed
// and that Close is idempotent.
func testClosedStore(t *testing.T, factory StoreFactory) {
	s := factory(t)

	createCall(t, s, "call-closed")

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	err := s.Update(t.Context(), "call-closed", func(tx store.Tx) error { return nil })
	if !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Update() error = %v after Close, want ErrStoreClosed", err)
	}
	if _, err := s.Get(t.Context(), "call-closed"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Get() error = %v after Close, want ErrStoreClosed", err)
	}
	if err := s.Healthcheck(t.Context()); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Healthcheck() error = %v after Close, want ErrStoreClosed", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

// testCanceledContext verifies that Update refuses to run under a canceled
// context.
func testCanceledContext(t *testing.T, factory StoreFactory) {
	s := factory(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := s.Update(ctx, "call-ctx", func(tx store.Tx) error {
		_, err := tx.CreateIfAbsent()
		return err
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Update() error = %v, want context.Canceled", err)
	}
}

func callIDs(calls []*call.Call) []string {
	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
	}
	return ids
}
