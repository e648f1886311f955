//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/voicegate/internal/api"
	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/ai"
	"github.com/marmos91/voicegate/pkg/apiclient"
	"github.com/marmos91/voicegate/pkg/archive"
	"github.com/marmos91/voicegate/pkg/bus"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/engine"
)

// testServer assembles the complete service (store, bus, engine, HTTP
// surface) on an ephemeral listener and speaks to it through the public
// API client, the same way a PBX and an operator would.
type testServer struct {
	http     *httptest.Server
	store    store.Store
	bus      *bus.Bus
	engine   *engine.Engine
	exported *recordCapture

	// Client talks to the server over real HTTP.
	Client *apiclient.Client
}

// quietAI returns a mock AI client that always succeeds without simulated
// latency, so tests only wait on the grace period.
func quietAI() *ai.MockClient {
	client := ai.NewMockClientWithSeed(1)
	client.FailureRate = 0
	client.MinLatency = 0
	client.MaxLatency = 0
	return client
}

// brokenAI returns a mock AI client that fails every analysis.
func brokenAI() *ai.MockClient {
	client := ai.NewMockClientWithSeed(1)
	client.FailureRate = 1.0
	client.MinLatency = 0
	client.MaxLatency = 0
	return client
}

// fastPolicy compresses the retry schedule so failure tests finish quickly.
func fastPolicy() ai.Policy {
	return ai.Policy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      time.Second,
		AttemptTimeout:  time.Second,
	}
}

// newTestServer boots the full stack against an in-memory store. Shutdown is
// registered as a test cleanup and follows the production order: drain the
// engine, close the bus, stop HTTP, close the store.
func newTestServer(t *testing.T, client ai.Client) *testServer {
	t.Helper()

	st, err := store.Open(store.Config{Backend: store.BackendMemory})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	eventBus := bus.New(nil)
	st.SetEventSink(func(events []call.Event) {
		for _, ev := range events {
			eventBus.Publish(ev)
		}
	})

	exported := &recordCapture{}
	eng := engine.New(engine.Config{
		GracePeriod: 250 * time.Millisecond,
		RetryPolicy: fastPolicy(),
	}, st, client, exported, nil)

	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Engine: eng,
		Store:  st,
		Bus:    eventBus,
	}))

	ts := &testServer{
		http:     srv,
		store:    st,
		bus:      eventBus,
		engine:   eng,
		exported: exported,
		Client:   apiclient.New(srv.URL),
	}
	t.Cleanup(ts.shutdown)
	return ts
}

func (ts *testServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = ts.engine.Shutdown(ctx)
	ts.bus.Close()
	ts.http.Close()
	_ = ts.store.Close()
}

// ingest submits one packet and fails the test on transport or server errors.
func (ts *testServer) ingest(t *testing.T, callID string, seq int64) *apiclient.PacketAck {
	t.Helper()

	ack, err := ts.Client.IngestPacket(callID, &apiclient.IngestPacketRequest{
		Sequence:  seq,
		Data:      fmt.Sprintf("packet-%d", seq),
		Timestamp: float64(seq) * 0.02,
	})
	if err != nil {
		t.Fatalf("IngestPacket(%s, %d) failed: %v", callID, seq, err)
	}
	return ack
}

// waitForState polls the call snapshot until it reaches the wanted state.
// A terminal state other than the wanted one fails immediately instead of
// burning the whole timeout.
func (ts *testServer) waitForState(t *testing.T, callID, want string, timeout time.Duration) *apiclient.Call {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var last *apiclient.Call
	for time.Now().Before(deadline) {
		c, err := ts.Client.GetCall(callID)
		if err == nil {
			last = c
			if c.State == want {
				return c
			}
			if call.State(c.State).IsTerminal() {
				t.Fatalf("call %s reached terminal state %s, want %s", callID, c.State, want)
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	if last == nil {
		t.Fatalf("call %s never became readable within %v", callID, timeout)
	}
	t.Fatalf("call %s state = %s after %v, want %s", callID, last.State, timeout, want)
	return nil
}

// waitForReceived polls until the committed packet count reaches want.
// Ingest acknowledgments may outrun the async commit, so count assertions go
// through this instead of reading the snapshot directly.
func (ts *testServer) waitForReceived(t *testing.T, callID string, want int64, timeout time.Duration) *apiclient.Call {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var last *apiclient.Call
	for time.Now().Before(deadline) {
		c, err := ts.Client.GetCall(callID)
		if err == nil {
			last = c
			if c.ReceivedCount >= want {
				return c
			}
		}
		time.Sleep(5 * time.Millisecond)
	}

	if last == nil {
		t.Fatalf("call %s never became readable within %v", callID, timeout)
	}
	t.Fatalf("call %s received_count = %d after %v, want %d", callID, last.ReceivedCount, timeout, want)
	return nil
}

// recordCapture is an archive.Exporter that keeps every exported record in
// memory for assertions.
type recordCapture struct {
	mu   sync.Mutex
	recs []archive.Record
}

// Export implements archive.Exporter.
func (c *recordCapture) Export(_ context.Context, rec archive.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

// Records returns a copy of everything exported so far.
func (c *recordCapture) Records() []archive.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]archive.Record, len(c.recs))
	copy(out, c.recs)
	return out
}

var _ archive.Exporter = (*recordCapture)(nil)

// quiet logging for the whole package run
func initLogging() {
	logger.InitWithWriter(io.Discard, "ERROR", "text", false)
}
