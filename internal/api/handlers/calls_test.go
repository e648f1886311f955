package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/voicegate/pkg/ai"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/engine"
)

// ============================================================================
// Test helpers
// ============================================================================

type stubAI struct{}

func (stubAI) Analyze(ctx context.Context, payload string) (*ai.Result, error) {
	return &ai.Result{Transcription: "stub", Sentiment: "neutral", Confidence: 0.9}, nil
}

// newTestHandler wires a CallHandler over a memory store and a real engine.
// grace controls how long completed calls linger before AI processing; tests
// that must observe the COMPLETED state pass a long grace.
func newTestHandler(t *testing.T, grace time.Duration) (*CallHandler, store.Store) {
	t.Helper()

	st := store.NewMemory()
	cfg := engine.DefaultConfig()
	cfg.GracePeriod = grace
	eng := engine.New(cfg, st, stubAI{}, nil, nil)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
		_ = st.Close()
	})

	return NewCallHandler(eng, st), st
}

// newRequest builds a request with chi URL params injected, so handler
// methods can be exercised without mounting the router.
func newRequest(method, target, body string, params map[string]string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// ============================================================================
// Ingest endpoint
// ============================================================================

func TestIngestPacket_AcknowledgesWithTrackingSnapshot(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	req := newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 0, "data": "hello", "timestamp": 1.5}`,
		map[string]string{"callID": "call-1"})
	w := httptest.NewRecorder()

	handler.IngestPacket(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	var ack PacketAck
	decodeBody(t, w, &ack)

	if ack.Status != "accepted" {
		t.Errorf("Expected status 'accepted', got '%s'", ack.Status)
	}
	if ack.CallID != "call-1" {
		t.Errorf("Expected call_id 'call-1', got '%s'", ack.CallID)
	}
	if ack.Sequence != 0 {
		t.Errorf("Expected sequence 0, got %d", ack.Sequence)
	}
	if ack.TotalReceived != 1 {
		t.Errorf("Expected total_received 1, got %d", ack.TotalReceived)
	}
	if ack.Duplicate {
		t.Error("Expected duplicate=false for a first packet")
	}
	if ack.MissingSequences == nil || len(ack.MissingSequences) != 0 {
		t.Errorf("Expected empty missing_sequences, got %v", ack.MissingSequences)
	}
}

func TestIngestPacket_DuplicateIsAcknowledged(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)
	params := map[string]string{"callID": "call-1"}

	w := httptest.NewRecorder()
	handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 0, "data": "hello", "timestamp": 1.0}`, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("First ingest: expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	w = httptest.NewRecorder()
	handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 0, "data": "hello again", "timestamp": 2.0}`, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Duplicate ingest: expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	var ack PacketAck
	decodeBody(t, w, &ack)

	if ack.Status != "duplicate" {
		t.Errorf("Expected status 'duplicate', got '%s'", ack.Status)
	}
	if !ack.Duplicate {
		t.Error("Expected duplicate=true")
	}
	if ack.TotalReceived != 1 {
		t.Errorf("Expected total_received unchanged at 1, got %d", ack.TotalReceived)
	}
}

func TestIngestPacket_GapReportedInAck(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)
	params := map[string]string{"callID": "call-1"}

	w := httptest.NewRecorder()
	handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 0, "data": "p0", "timestamp": 1.0}`, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	w = httptest.NewRecorder()
	handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 3, "data": "p3", "timestamp": 2.0}`, params))

	var ack PacketAck
	decodeBody(t, w, &ack)

	if ack.TotalReceived != 2 {
		t.Errorf("Expected total_received 2, got %d", ack.TotalReceived)
	}
	if len(ack.MissingSequences) != 2 || ack.MissingSequences[0] != 1 || ack.MissingSequences[1] != 2 {
		t.Errorf("Expected missing_sequences [1 2], got %v", ack.MissingSequences)
	}
}

func TestIngestPacket_ValidationErrors(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"sequence": `},
		{"missing sequence", `{"data": "x", "timestamp": 1.0}`},
		{"missing timestamp", `{"sequence": 0, "data": "x"}`},
		{"negative sequence", `{"sequence": -1, "data": "x", "timestamp": 1.0}`},
		{"empty data", `{"sequence": 0, "data": "", "timestamp": 1.0}`},
		{"zero timestamp", `{"sequence": 0, "data": "x", "timestamp": 0}`},
		{"wrong sequence type", `{"sequence": "zero", "data": "x", "timestamp": 1.0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest("POST", "/api/v1/calls/call-1/packets", tt.body,
				map[string]string{"callID": "call-1"})
			w := httptest.NewRecorder()

			handler.IngestPacket(w, req)

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("Expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != ContentTypeProblemJSON {
				t.Errorf("Expected Content-Type %s, got %s", ContentTypeProblemJSON, ct)
			}

			var problem Problem
			decodeBody(t, w, &problem)
			if problem.Status != http.StatusUnprocessableEntity {
				t.Errorf("Expected problem status 422, got %d", problem.Status)
			}
		})
	}
}

// ============================================================================
// Completion endpoint
// ============================================================================

func TestCompleteCall_Accepted(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)
	params := map[string]string{"callID": "call-1"}

	w := httptest.NewRecorder()
	handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 0, "data": "p0", "timestamp": 1.0}`, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Ingest: expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	w = httptest.NewRecorder()
	handler.Complete(w, newRequest("POST", "/api/v1/calls/call-1/complete",
		`{"total_packets": 1}`, params))

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	var resp CompleteCallResponse
	decodeBody(t, w, &resp)

	if resp.Status != "accepted" {
		t.Errorf("Expected status 'accepted', got '%s'", resp.Status)
	}
	if resp.CallID != "call-1" {
		t.Errorf("Expected call_id 'call-1', got '%s'", resp.CallID)
	}
	if resp.ExpectedTotalPackets != 1 {
		t.Errorf("Expected expected_total_packets 1, got %d", resp.ExpectedTotalPackets)
	}
}

func TestCompleteCall_RepeatedSignalReportsAlreadyCompleted(t *testing.T) {
	// The hour-long grace keeps the call in COMPLETED for the second signal.
	handler, _ := newTestHandler(t, time.Hour)
	params := map[string]string{"callID": "call-1"}

	w := httptest.NewRecorder()
	handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets",
		`{"sequence": 0, "data": "p0", "timestamp": 1.0}`, params))

	w = httptest.NewRecorder()
	handler.Complete(w, newRequest("POST", "/api/v1/calls/call-1/complete",
		`{"total_packets": 1}`, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("First complete: expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	w = httptest.NewRecorder()
	handler.Complete(w, newRequest("POST", "/api/v1/calls/call-1/complete",
		`{"total_packets": 1}`, params))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Second complete: expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	var resp CompleteCallResponse
	decodeBody(t, w, &resp)
	if resp.Status != "already_completed" {
		t.Errorf("Expected status 'already_completed', got '%s'", resp.Status)
	}
}

func TestCompleteCall_UnknownCallReturns404(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	req := newRequest("POST", "/api/v1/calls/ghost/complete",
		`{"total_packets": 5}`, map[string]string{"callID": "ghost"})
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var problem Problem
	decodeBody(t, w, &problem)
	if problem.Detail != "Call not found" {
		t.Errorf("Expected detail 'Call not found', got '%s'", problem.Detail)
	}
}

func TestCompleteCall_ValidationErrors(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"total_packets"`},
		{"missing total_packets", `{}`},
		{"zero total_packets", `{"total_packets": 0}`},
		{"negative total_packets", `{"total_packets": -2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest("POST", "/api/v1/calls/call-1/complete", tt.body,
				map[string]string{"callID": "call-1"})
			w := httptest.NewRecorder()

			handler.Complete(w, req)

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("Expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
			}
		})
	}
}

// ============================================================================
// Snapshot endpoints
// ============================================================================

func TestGetCall_ReturnsSnapshot(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)
	params := map[string]string{"callID": "call-1"}

	for _, body := range []string{
		`{"sequence": 0, "data": "p0", "timestamp": 1.0}`,
		`{"sequence": 2, "data": "p2", "timestamp": 2.0}`,
	} {
		w := httptest.NewRecorder()
		handler.IngestPacket(w, newRequest("POST", "/api/v1/calls/call-1/packets", body, params))
		if w.Code != http.StatusAccepted {
			t.Fatalf("Ingest: expected status %d, got %d", http.StatusAccepted, w.Code)
		}
	}

	req := newRequest("GET", "/api/v1/calls/call-1", "", params)
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var snapshot map[string]any
	decodeBody(t, w, &snapshot)

	if snapshot["call_id"] != "call-1" {
		t.Errorf("Expected call_id 'call-1', got '%v'", snapshot["call_id"])
	}
	if snapshot["state"] != string(call.StateInProgress) {
		t.Errorf("Expected state IN_PROGRESS, got '%v'", snapshot["state"])
	}
	if snapshot["received_count"].(float64) != 2 {
		t.Errorf("Expected received_count 2, got %v", snapshot["received_count"])
	}
	missing, ok := snapshot["missing_sequences"].([]any)
	if !ok {
		t.Fatalf("Expected missing_sequences to be an array, got %T", snapshot["missing_sequences"])
	}
	if len(missing) != 1 || missing[0].(float64) != 1 {
		t.Errorf("Expected missing_sequences [1], got %v", missing)
	}
	if _, present := snapshot["transcription"]; present {
		t.Error("Expected transcription to be omitted before AI processing")
	}
}

func TestGetCall_UnknownReturns404(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	req := newRequest("GET", "/api/v1/calls/ghost", "", map[string]string{"callID": "ghost"})
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != ContentTypeProblemJSON {
		t.Errorf("Expected Content-Type %s, got %s", ContentTypeProblemJSON, ct)
	}
}

func TestListCalls_PaginatesNewestFirst(t *testing.T) {
	handler, st := newTestHandler(t, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"call-a", "call-b", "call-c"} {
		err := st.Update(ctx, id, func(tx store.Tx) error {
			_, err := tx.CreateIfAbsent()
			return err
		})
		if err != nil {
			t.Fatalf("Failed to seed call %s: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	req := newRequest("GET", "/api/v1/calls?limit=2", "", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var calls []map[string]any
	decodeBody(t, w, &calls)

	if len(calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(calls))
	}
	if calls[0]["call_id"] != "call-c" || calls[1]["call_id"] != "call-b" {
		t.Errorf("Expected newest-first [call-c call-b], got [%v %v]",
			calls[0]["call_id"], calls[1]["call_id"])
	}

	req = newRequest("GET", "/api/v1/calls?limit=1&offset=2", "", nil)
	w = httptest.NewRecorder()
	handler.List(w, req)

	decodeBody(t, w, &calls)
	if len(calls) != 1 || calls[0]["call_id"] != "call-a" {
		t.Errorf("Expected offset page [call-a], got %v", calls)
	}
}

func TestListCalls_EmptyStoreReturnsEmptyArray(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	req := newRequest("GET", "/api/v1/calls", "", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty array body, got %s", body)
	}
}

func TestListCalls_InvalidPaginationReturns422(t *testing.T) {
	handler, _ := newTestHandler(t, time.Hour)

	for _, target := range []string{
		"/api/v1/calls?limit=abc",
		"/api/v1/calls?offset=-1",
	} {
		req := newRequest("GET", target, "", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected status %d, got %d",
				target, http.StatusUnprocessableEntity, w.Code)
		}
	}
}
