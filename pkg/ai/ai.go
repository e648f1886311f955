// Package ai defines the client contract for the speech analytics backend,
// the mock client used outside production, and the retry policy the engine
// wraps around any client.
package ai

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by the Retrier when every attempt failed or the
// retry budget ran out before a success.
var ErrUnavailable = errors.New("ai service unavailable")

// Result is the outcome of a successful analysis.
type Result struct {
	Transcription string  `json:"transcription"`
	Sentiment     string  `json:"sentiment"`
	Confidence    float64 `json:"confidence"`
}

// Client analyzes a call's reassembled audio payload.
//
// Implementations must honor ctx cancellation and deadlines: the engine runs
// every attempt under a per-attempt timeout.
type Client interface {
	Analyze(ctx context.Context, payload string) (*Result, error)
}
