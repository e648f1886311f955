package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/engine"
)

// ackWait bounds how long the ingest handler waits for the committed
// outcome. When the mutation commits within the budget the PBX receives the
// rich acknowledgment with the tracking snapshot; under per-call contention
// the handler falls back to the minimal acknowledgment instead of stalling
// the trunk. Callers must tolerate both shapes.
const ackWait = 45 * time.Millisecond

// CallHandler handles the call ingest and query endpoints.
type CallHandler struct {
	engine *engine.Engine
	store  store.Store
}

// NewCallHandler creates a new CallHandler.
func NewCallHandler(engine *engine.Engine, store store.Store) *CallHandler {
	return &CallHandler{engine: engine, store: store}
}

// IngestPacketRequest is the request body for
// POST /api/v1/calls/{callID}/packets.
//
// Sequence and Timestamp are pointers so a missing field is rejected
// instead of silently decoding to zero (sequence 0 is a valid value).
type IngestPacketRequest struct {
	Sequence  *int64   `json:"sequence"`
	Data      string   `json:"data"`
	Timestamp *float64 `json:"timestamp"`
}

// PacketAck is the rich acknowledgment returned when the packet mutation
// commits within the ack budget.
type PacketAck struct {
	Status           string  `json:"status"`
	CallID           string  `json:"call_id"`
	Sequence         int64   `json:"sequence"`
	TotalReceived    int64   `json:"total_received"`
	MissingSequences []int64 `json:"missing_sequences"`
	Duplicate        bool    `json:"duplicate"`
}

// PacketAckPending is the minimal acknowledgment returned when the commit
// outlasts the ack budget. The packet is applied asynchronously.
type PacketAckPending struct {
	Status   string `json:"status"`
	CallID   string `json:"call_id"`
	Sequence int64  `json:"sequence"`
}

// CompleteCallRequest is the request body for
// POST /api/v1/calls/{callID}/complete.
type CompleteCallRequest struct {
	TotalPackets *int64 `json:"total_packets"`
}

// CompleteCallResponse is the response body for the completion endpoint.
type CompleteCallResponse struct {
	Status               string `json:"status"`
	CallID               string `json:"call_id"`
	ExpectedTotalPackets int64  `json:"expected_total_packets"`
}

// IngestPacket handles POST /api/v1/calls/{callID}/packets.
//
// The PBX streams one request per audio packet. Validation happens inline;
// the store mutation runs asynchronously so the acknowledgment path never
// blocks on store I/O longer than the ack budget.
func (h *CallHandler) IngestPacket(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		UnprocessableEntity(w, "call_id is required")
		return
	}

	var req IngestPacketRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Sequence == nil {
		UnprocessableEntity(w, "sequence is required")
		return
	}
	if req.Timestamp == nil {
		UnprocessableEntity(w, "timestamp is required")
		return
	}

	ctx := withCallID(r.Context(), callID)

	outcome, err := h.engine.Ingest(ctx, engine.IngestRequest{
		CallID:    callID,
		Sequence:  *req.Sequence,
		Data:      req.Data,
		Timestamp: *req.Timestamp,
	})
	if err != nil {
		writeIngestError(w, err)
		return
	}

	select {
	case out := <-outcome:
		if out.Err != nil {
			InternalServerError(w, "Failed to store packet")
			return
		}
		status := "accepted"
		if out.Duplicate {
			status = "duplicate"
		}
		WriteJSONAccepted(w, PacketAck{
			Status:           status,
			CallID:           out.CallID,
			Sequence:         out.Sequence,
			TotalReceived:    out.TotalReceived,
			MissingSequences: out.Missing,
			Duplicate:        out.Duplicate,
		})
	case <-time.After(ackWait):
		// The mutation is still queued behind the per-call lock. Acknowledge
		// without the tracking snapshot; the packet_received event carries it
		// once the commit lands.
		WriteJSONAccepted(w, PacketAckPending{
			Status:   "accepted",
			CallID:   callID,
			Sequence: *req.Sequence,
		})
	}
}

// Complete handles POST /api/v1/calls/{callID}/complete.
//
// Signals that the PBX finished the call. Repeated signals are idempotent:
// the response status reports already_completed or already_terminal instead
// of an error.
func (h *CallHandler) Complete(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		UnprocessableEntity(w, "call_id is required")
		return
	}

	var req CompleteCallRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.TotalPackets == nil {
		UnprocessableEntity(w, "total_packets is required")
		return
	}

	ctx := withCallID(r.Context(), callID)

	result, err := h.engine.Complete(ctx, callID, *req.TotalPackets)
	if err != nil {
		switch {
		case errors.Is(err, call.ErrCallNotFound):
			NotFound(w, "Call not found")
		case errors.Is(err, engine.ErrInvalidInput):
			UnprocessableEntity(w, err.Error())
		case errors.Is(err, engine.ErrShutdown):
			ServiceUnavailable(w, "Server is shutting down")
		default:
			InternalServerError(w, "Failed to complete call")
		}
		return
	}

	WriteJSONAccepted(w, CompleteCallResponse{
		Status:               string(result),
		CallID:               callID,
		ExpectedTotalPackets: *req.TotalPackets,
	})
}

// Get handles GET /api/v1/calls/{callID}.
// Returns the call snapshot: state, counts, missing sequences, AI outputs.
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		UnprocessableEntity(w, "call_id is required")
		return
	}

	c, err := h.store.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, call.ErrCallNotFound) {
			NotFound(w, "Call not found")
			return
		}
		InternalServerError(w, "Failed to get call")
		return
	}

	WriteJSONOK(w, c)
}

// List handles GET /api/v1/calls.
// Lists call snapshots newest first, paginated with limit and offset.
func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	calls, err := h.store.List(r.Context(), store.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		InternalServerError(w, "Failed to list calls")
		return
	}
	if calls == nil {
		calls = []*call.Call{}
	}

	WriteJSONOK(w, calls)
}

// withCallID stamps the call identifier onto the request-scoped log context
// so the engine's asynchronous logs carry it.
func withCallID(ctx context.Context, callID string) context.Context {
	if lc := logger.FromContext(ctx); lc != nil {
		return logger.WithContext(ctx, lc.WithCallID(callID))
	}
	return ctx
}

// writeIngestError maps engine ingest errors onto problem responses without
// leaking internal state.
func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		UnprocessableEntity(w, err.Error())
	case errors.Is(err, engine.ErrShutdown):
		ServiceUnavailable(w, "Server is shutting down")
	default:
		InternalServerError(w, "Failed to accept packet")
	}
}
