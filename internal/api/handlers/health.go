package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/engine"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the service take PBX traffic right now?
type HealthHandler struct {
	engine    *engine.Engine
	store     store.Store
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
//
// Either parameter may be nil (e.g., in tests), in which case the readiness
// probe reports unhealthy.
func NewHealthHandler(engine *engine.Engine, store store.Store) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		store:     store,
		startedAt: time.Now(),
	}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is designed
// for Kubernetes liveness probes and should always succeed as long as the
// HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "voicegate",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the service can take traffic. This checks:
//   - The store answers a healthcheck
//   - The engine is accepting new work (not shutting down)
//
// Returns 503 Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Healthcheck(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store unavailable: "+err.Error()))
		return
	}

	if h.engine == nil || !h.engine.Accepting() {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("engine not accepting work"))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"store":  "healthy",
		"engine": "accepting",
	}))
}
