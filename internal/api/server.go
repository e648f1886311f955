// Package api provides the HTTP/WebSocket surface of the voicegate service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/pkg/bus"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/engine"
	"github.com/marmos91/voicegate/pkg/metrics"
)

// Config configures the API HTTP server.
type Config struct {
	// Host is the listen address.
	// Default: 0.0.0.0
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ShutdownTimeout bounds graceful shutdown once the serve context is
	// cancelled.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Deps carries the services the handlers are built around.
type Deps struct {
	// Engine applies packet and completion mutations.
	Engine *engine.Engine

	// Store answers call snapshot queries and the readiness healthcheck.
	Store store.Store

	// Bus feeds the WebSocket event stream.
	Bus *bus.Bus

	// Metrics instruments the HTTP surface. May be nil to disable.
	Metrics metrics.HTTPMetrics
}

// Server provides the HTTP server for the PBX ingest API, the operator
// query API, and the WebSocket event stream.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
//
// Defaults are applied here to ensure the server works correctly even when
// created directly (e.g., in tests). This is idempotent with the defaults
// applied during config loading.
func NewServer(config Config, deps Deps) *Server {
	config.applyDefaults()

	router := NewRouter(deps)

	// No global read or write timeouts: the event stream keeps connections
	// open indefinitely. The REST routes are bounded by the router's timeout
	// middleware instead.
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the API HTTP server and blocks until the context is cancelled
// or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns its outcome.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.server.Addr)
		logger.Debug("API endpoints available",
			"calls", fmt.Sprintf("http://localhost:%d/api/v1/calls", s.config.Port),
			"events", fmt.Sprintf("ws://localhost:%d/api/v1/events", s.config.Port),
			"health", fmt.Sprintf("http://localhost:%d/health", s.config.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// Don't use the cancelled ctx as it would abort shutdown immediately
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
