package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/voicegate/internal/logger"
)

// Policy controls retry pacing. The zero value is not useful; start from
// DefaultPolicy and override fields in tests that need compressed schedules.
type Policy struct {
	// MaxAttempts is the total number of Analyze calls, first try included.
	MaxAttempts int
	// InitialInterval is the delay after the first failure. Each subsequent
	// delay doubles, capped at MaxInterval. No jitter.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	// MaxElapsed is the cumulative budget for the whole operation, sleeps
	// included. A sleep that would cross it abandons the retry.
	MaxElapsed time.Duration
	// AttemptTimeout bounds every individual Analyze call.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the production policy: 5 attempts backing off
// 1s, 2s, 4s, 8s inside a 60s budget, 30s per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
		MaxElapsed:      60 * time.Second,
		AttemptTimeout:  30 * time.Second,
	}
}

// Retrier wraps a Client with the engine's retry policy. A Retrier is
// stateless and safe for concurrent use.
type Retrier struct {
	client Client
	policy Policy
}

// NewRetrier wraps client with policy. MaxAttempts below one is treated
// as a single attempt.
func NewRetrier(client Client, policy Policy) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{client: client, policy: policy}
}

// Analyze calls the wrapped client until it succeeds, the attempt or time
// budget runs out, or ctx is canceled. Exhaustion returns ErrUnavailable;
// caller cancellation propagates ctx.Err() instead.
func (r *Retrier) Analyze(ctx context.Context, payload string) (*Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = r.policy.MaxInterval
	// The budget is enforced against the deadline below; letting the backoff
	// source stop early would misreport exhaustion as backoff.Stop.
	bo.MaxElapsedTime = 0
	bo.Reset()

	deadline := time.Now().Add(r.policy.MaxElapsed)

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := r.analyzeOnce(ctx, payload)
		if err == nil {
			if attempt > 1 {
				logger.InfoCtx(ctx, "ai analysis succeeded after retry", "attempt", attempt)
			}
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt == r.policy.MaxAttempts {
			logger.ErrorCtx(ctx, "ai analysis failed on final attempt",
				"attempt", attempt,
				"max_retries", r.policy.MaxAttempts,
				"error", err)
			break
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop || time.Now().Add(wait).After(deadline) {
			logger.ErrorCtx(ctx, "ai retry budget exhausted",
				"attempt", attempt,
				"budget", r.policy.MaxElapsed,
				"error", err)
			break
		}

		logger.WarnCtx(ctx, "ai attempt failed, backing off",
			"attempt", attempt,
			"backoff", wait,
			"error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("analysis abandoned (last error: %v): %w", lastErr, ErrUnavailable)
}

// analyzeOnce runs a single attempt under the per-attempt timeout.
func (r *Retrier) analyzeOnce(ctx context.Context, payload string) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
	defer cancel()
	return r.client.Analyze(attemptCtx, payload)
}
