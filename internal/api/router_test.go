package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marmos91/voicegate/pkg/ai"
	"github.com/marmos91/voicegate/pkg/bus"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/engine"
)

// newTestDeps wires the full service graph over a memory store: engine,
// bus, and the store-to-bus event sink, exactly as the daemon does.
func newTestDeps(t *testing.T, grace time.Duration) Deps {
	t.Helper()

	st := store.NewMemory()
	b := bus.New(nil)
	st.SetEventSink(func(events []call.Event) {
		for _, ev := range events {
			b.Publish(ev)
		}
	})

	client := ai.NewMockClientWithSeed(1)
	client.FailureRate = 0
	client.MinLatency = 0
	client.MaxLatency = 0

	cfg := engine.DefaultConfig()
	cfg.GracePeriod = grace
	eng := engine.New(cfg, st, client, nil, nil)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
		b.Close()
		_ = st.Close()
	})

	return Deps{Engine: eng, Store: st, Bus: b}
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		t.Fatalf("Failed to decode response from %s: %v", url, err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response from %s: %v", url, err)
	}
	return resp
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestRouter_CallLifecycleOverHTTP(t *testing.T) {
	deps := newTestDeps(t, 20*time.Millisecond)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	base := srv.URL + "/api/v1/calls/e2e-call"

	for seq := range 3 {
		resp, ack := postJSON(t, base+"/packets",
			fmt.Sprintf(`{"sequence": %d, "data": "pkt%d", "timestamp": %d.5}`, seq, seq, seq+1))
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("Ingest %d: expected status %d, got %d", seq, http.StatusAccepted, resp.StatusCode)
		}
		if ack["status"] != "accepted" {
			t.Fatalf("Ingest %d: expected status 'accepted', got '%v'", seq, ack["status"])
		}
	}

	resp, body := postJSON(t, base+"/complete", `{"total_packets": 3}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Complete: expected status %d, got %d", http.StatusAccepted, resp.StatusCode)
	}
	if body["status"] != "accepted" {
		t.Fatalf("Complete: expected status 'accepted', got '%v'", body["status"])
	}
	if body["expected_total_packets"].(float64) != 3 {
		t.Errorf("Expected expected_total_packets 3, got %v", body["expected_total_packets"])
	}

	var snapshot map[string]any
	waitFor(t, func() bool {
		getJSON(t, base, &snapshot)
		return snapshot["state"] == string(call.StateArchived)
	}, "call to reach ARCHIVED")

	if snapshot["received_count"].(float64) != 3 {
		t.Errorf("Expected received_count 3, got %v", snapshot["received_count"])
	}
	if snapshot["transcription"] == nil || snapshot["transcription"] == "" {
		t.Error("Expected transcription after AI processing")
	}
	if snapshot["sentiment"] == nil || snapshot["sentiment"] == "" {
		t.Error("Expected sentiment after AI processing")
	}

	var calls []map[string]any
	listResp := getJSON(t, srv.URL+"/api/v1/calls", &calls)
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("List: expected status %d, got %d", http.StatusOK, listResp.StatusCode)
	}
	if len(calls) != 1 || calls[0]["call_id"] != "e2e-call" {
		t.Errorf("Expected listing [e2e-call], got %v", calls)
	}
}

func TestRouter_EventStreamDeliversLifecycle(t *testing.T) {
	deps := newTestDeps(t, 20*time.Millisecond)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("Expected status %d, got %d", http.StatusSwitchingProtocols, resp.StatusCode)
	}

	// The subscriber must be on the bus before the first mutation commits.
	waitFor(t, func() bool { return deps.Bus.SubscriberCount() == 1 }, "subscriber registration")

	base := srv.URL + "/api/v1/calls/ws-call"
	postJSON(t, base+"/packets", `{"sequence": 0, "data": "pkt0", "timestamp": 1.0}`)
	postJSON(t, base+"/complete", `{"total_packets": 1}`)

	readEvent := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read event: %v", err)
		}
		var ev map[string]any
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("Failed to decode event %s: %v", payload, err)
		}
		return ev
	}

	first := readEvent()
	if first["event"] != "packet_received" {
		t.Fatalf("Expected first event 'packet_received', got '%v'", first["event"])
	}
	if first["call_id"] != "ws-call" {
		t.Errorf("Expected call_id 'ws-call', got '%v'", first["call_id"])
	}
	if first["total_received"].(float64) != 1 {
		t.Errorf("Expected total_received 1, got %v", first["total_received"])
	}

	wantKinds := []string{"state_changed", "state_changed", "ai_completed", "state_changed"}
	for i, want := range wantKinds {
		ev := readEvent()
		if ev["event"] != want {
			t.Fatalf("Event %d: expected '%s', got '%v' (%v)", i+1, want, ev["event"], ev)
		}
		if i == len(wantKinds)-1 && ev["to_state"] != string(call.StateArchived) {
			t.Errorf("Expected final transition to ARCHIVED, got '%v'", ev["to_state"])
		}
	}
}

func TestRouter_ProblemResponses(t *testing.T) {
	deps := newTestDeps(t, time.Hour)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/calls/call-1/packets", "application/json",
		strings.NewReader(`{"sequence": -4, "data": "x", "timestamp": 1.0}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected status %d, got %d", http.StatusUnprocessableEntity, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Expected problem+json content type, got %s", ct)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/calls/ghost")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, getResp.StatusCode)
	}

	// Routes outside the API fall through to chi's default 404.
	missResp, err := http.Get(srv.URL + "/api/v1/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	missResp.Body.Close()
	if missResp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, missResp.StatusCode)
	}
}

func TestRouter_HealthEndpoints(t *testing.T) {
	deps := newTestDeps(t, time.Hour)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Liveness: expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET /health/ready failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Readiness: expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	noRedirect := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rootResp, err := noRedirect.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	rootResp.Body.Close()
	if rootResp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("Root: expected status %d, got %d", http.StatusTemporaryRedirect, rootResp.StatusCode)
	}
	if loc := rootResp.Header.Get("Location"); loc != "/health" {
		t.Errorf("Root: expected redirect to /health, got %s", loc)
	}
}
