//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/call/store/storetest"
)

// Shared PostgreSQL DSN for this package (container started once per test
// run). No t.Cleanup is registered for the container: the Ryuk reaper
// terminates it automatically when the test process exits, and an early
// cleanup would tear it down under later tests.
var sharedDSN string

// connString returns the DSN of a test PostgreSQL server, preferring an
// externally provided one, otherwise starting a disposable container.
func connString(t *testing.T) string {
	t.Helper()

	if sharedDSN != "" {
		return sharedDSN
	}
	if dsn := os.Getenv("VOICEGATE_TEST_POSTGRES_DSN"); dsn != "" {
		sharedDSN = dsn
		return sharedDSN
	}

	ctx := context.Background()

	// PostgreSQL logs "database system is ready" twice during startup (once
	// during bootstrap, once when fully ready), so wait for 2 occurrences.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("voicegate_test"),
		postgres.WithUsername("voicegate_test"),
		postgres.WithPassword("voicegate_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	sharedDSN = dsn
	return sharedDSN
}

// openStore opens a PostgreSQL-backed store on the shared server and empties
// its tables so every test starts from a known state.
func openStore(t *testing.T) *store.GORMStore {
	t.Helper()

	s, err := store.NewGORM(store.Config{
		Backend:    store.BackendPostgres,
		Connection: connString(t),
	})
	if err != nil {
		t.Fatalf("NewGORM() failed: %v", err)
	}
	if err := s.DB().Exec("TRUNCATE TABLE packets, calls").Error; err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		s := openStore(t)
		t.Cleanup(func() {
			s.Close()
		})
		return s
	})
}

// TestPersistenceAcrossReopen verifies that committed data survives closing
// and reopening the store, and that re-running migrations on an up-to-date
// schema is a no-op.
func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()

	s1 := openStore(t)
	err := s1.Update(ctx, "call-reopen", func(tx store.Tx) error {
		c, err := tx.CreateIfAbsent()
		if err != nil {
			return err
		}
		for seq := range int64(3) {
			p := &call.Packet{Sequence: seq, Data: "chunk", Timestamp: float64(seq)}
			if err := tx.InsertPacket(p); err != nil {
				return err
			}
		}
		c.ReceivedCount = 3
		c.ExpectedNext = 3
		return tx.Save(c)
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2, err := store.NewGORM(store.Config{
		Backend:    store.BackendPostgres,
		Connection: connString(t),
	})
	if err != nil {
		t.Fatalf("NewGORM() after reopen failed: %v", err)
	}
	defer s2.Close()

	c, err := s2.Get(ctx, "call-reopen")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if c.ReceivedCount != 3 {
		t.Errorf("ReceivedCount = %d, want 3", c.ReceivedCount)
	}
	if c.State != call.StateInProgress {
		t.Errorf("State = %q, want %q", c.State, call.StateInProgress)
	}

	packets, err := s2.ListPacketsOrdered(ctx, "call-reopen")
	if err != nil {
		t.Fatalf("ListPacketsOrdered() after reopen failed: %v", err)
	}
	if len(packets) != 3 {
		t.Errorf("got %d packets after reopen, want 3", len(packets))
	}

	// The old handle stays closed.
	if _, err := s1.Get(ctx, "call-reopen"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Get() on closed store error = %v, want ErrStoreClosed", err)
	}
}
