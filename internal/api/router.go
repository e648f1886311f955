package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/voicegate/internal/api/handlers"
	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/metrics"
)

// requestTimeout bounds the REST routes. The event stream is exempt: a
// WebSocket connection outlives any sane request deadline.
const requestTimeout = 60 * time.Second

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Request-scoped log context feeding the internal logger
//   - HTTP metrics (when enabled)
//   - Panic recovery to prevent server crashes
//
// Routes:
//   - POST /api/v1/calls/{callID}/packets - Packet ingest
//   - POST /api/v1/calls/{callID}/complete - Completion signal
//   - GET /api/v1/calls/{callID} - Call snapshot
//   - GET /api/v1/calls - Call listing
//   - GET /api/v1/events - WebSocket event stream
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(httpMetrics(deps.Metrics))
	r.Use(middleware.Recoverer)

	callHandler := handlers.NewCallHandler(deps.Engine, deps.Store)
	eventsHandler := handlers.NewEventsHandler(deps.Bus)
	healthHandler := handlers.NewHealthHandler(deps.Engine, deps.Store)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", callHandler.List)
				r.Route("/{callID}", func(r chi.Router) {
					r.Get("/", callHandler.Get)
					r.Post("/packets", callHandler.IngestPacket)
					r.Post("/complete", callHandler.Complete)
				})
			})
		})

		r.Get("/events", eventsHandler.Subscribe)
	})

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger builds the request-scoped log context and logs requests
// through the internal logger.
//
// It logs:
//   - Request start (DEBUG level)
//   - Request completion (INFO level): status, bytes, duration
//
// The log context travels with the request so handler and engine logs carry
// the request_id, method, path, and client IP without re-plumbing them.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext(clientIP(r.RemoteAddr)).
			WithRequest(middleware.GetReqID(r.Context()), r.Method, r.URL.Path)
		ctx := logger.WithContext(r.Context(), lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "API request started")

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.InfoCtx(ctx, "API request completed",
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", lc.DurationMs(),
		)
	})
}

// httpMetrics records request counts, latency, and the in-flight gauge. The
// route label is resolved after routing so it carries the chi pattern
// (e.g. /api/v1/calls/{callID}/packets) instead of the raw path.
func httpMetrics(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RecordRequestStart()
			defer m.RecordRequestEnd()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.RecordRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}

// clientIP strips the port from a remote address. The RealIP middleware
// already substituted proxy headers when present.
func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
