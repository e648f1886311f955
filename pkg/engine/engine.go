// Package engine coordinates packet ingest, call completion, and the AI
// processing pipeline.
//
// The engine owns every call mutation. HTTP handlers validate transport
// concerns and hand off; the engine serializes per-call updates through the
// store, which delivers queued events to the bus after each commit. A
// completion signal starts one asynchronous pipeline per call: a grace
// period for late packets, the PROCESSING_AI transition, AI analysis with
// retries, and the terminal ARCHIVED or FAILED transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/voicegate/pkg/ai"
	"github.com/marmos91/voicegate/pkg/archive"
	"github.com/marmos91/voicegate/pkg/call/store"
)

var (
	// ErrInvalidInput reports a request that failed validation before
	// reaching the store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrShutdown is returned for requests arriving after Shutdown started.
	ErrShutdown = errors.New("engine shutting down")
)

// Config holds the engine tuning knobs.
type Config struct {
	// GracePeriod is how long a COMPLETED call keeps accepting late packets
	// before AI processing starts.
	GracePeriod time.Duration

	// RetryPolicy bounds AI analysis retries.
	RetryPolicy ai.Policy
}

// DefaultConfig returns the production defaults: a 3 second grace period
// and the default AI retry policy.
func DefaultConfig() Config {
	return Config{
		GracePeriod: 3 * time.Second,
		RetryPolicy: ai.DefaultPolicy(),
	}
}

// Engine coordinates all call mutations against the store.
type Engine struct {
	cfg      Config
	store    store.Store
	retrier  *ai.Retrier
	exporter archive.Exporter
	metrics  EngineMetrics

	mu     sync.Mutex
	closed bool

	// tasks tracks in-flight ingest mutations; Shutdown waits for them so
	// accepted packets always commit.
	tasks sync.WaitGroup

	// pipelines tracks completion pipelines. Shutdown cancels pipeCtx and
	// waits for them to unwind; a canceled pipeline abandons its call in
	// COMPLETED or PROCESSING_AI for re-driving after restart.
	pipelines  sync.WaitGroup
	pipeCtx    context.Context
	pipeCancel context.CancelFunc
}

// New creates an engine on top of st using client for AI analysis.
// exporter and metrics may be nil; a nil exporter skips archival and a nil
// metrics sink skips instrumentation.
func New(cfg Config, st store.Store, client ai.Client, exporter archive.Exporter, metrics EngineMetrics) *Engine {
	if metrics != nil {
		client = instrumentedClient{inner: client, metrics: metrics}
	}

	pipeCtx, pipeCancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		store:      st,
		retrier:    ai.NewRetrier(client, cfg.RetryPolicy),
		exporter:   exporter,
		metrics:    metrics,
		pipeCtx:    pipeCtx,
		pipeCancel: pipeCancel,
	}
}

// Accepting reports whether the engine takes new requests. The readiness
// probe uses this next to the store healthcheck.
func (e *Engine) Accepting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Shutdown stops accepting new work, cancels in-flight AI pipelines, and
// waits for running tasks until ctx expires.
//
// Ingest mutations already started always run to completion; pipelines are
// canceled and leave their call in COMPLETED or PROCESSING_AI, never in a
// wrong terminal state. Shutdown is idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.pipeCancel()

	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		e.pipelines.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

// instrumentedClient wraps an ai.Client to record per-attempt metrics.
type instrumentedClient struct {
	inner   ai.Client
	metrics EngineMetrics
}

func (c instrumentedClient) Analyze(ctx context.Context, payload string) (*ai.Result, error) {
	start := time.Now()
	res, err := c.inner.Analyze(ctx, payload)

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "failure"
	}
	c.metrics.RecordAIAttempt(outcome, time.Since(start))

	return res, err
}
