package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/marmos91/voicegate/internal/logger"
)

// errSimulatedOutage is the failure the mock fabricates, mirroring the 503
// the real backend returns when overloaded.
var errSimulatedOutage = errors.New("ai service unavailable (503)")

var sentiments = [...]string{"positive", "negative", "neutral"}

// MockClient simulates the upstream speech analytics service: roughly a
// quarter of calls fail outright and the rest take one to three seconds.
// Tests tune FailureRate and the latency bounds to get deterministic, fast
// behavior.
type MockClient struct {
	// FailureRate is the probability in [0, 1] that a call fails.
	FailureRate float64
	// MinLatency and MaxLatency bound the simulated processing time.
	MinLatency time.Duration
	MaxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockClient returns a mock with the production simulation defaults:
// 25% failure rate and 1-3s uniform latency.
func NewMockClient() *MockClient {
	return NewMockClientWithSeed(time.Now().UnixNano())
}

// NewMockClientWithSeed is NewMockClient with a fixed seed so tests can pin
// the failure/latency sequence.
func NewMockClientWithSeed(seed int64) *MockClient {
	return &MockClient{
		FailureRate: 0.25,
		MinLatency:  time.Second,
		MaxLatency:  3 * time.Second,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Analyze implements Client. Failures are decided before the latency sleep,
// like the upstream simulator, so an outage responds immediately.
func (c *MockClient) Analyze(ctx context.Context, payload string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	fail := c.rng.Float64() < c.FailureRate
	latency := c.MinLatency
	if span := c.MaxLatency - c.MinLatency; span > 0 {
		latency += time.Duration(c.rng.Int63n(int64(span)))
	}
	sentiment := sentiments[c.rng.Intn(len(sentiments))]
	confidence := 0.7 + c.rng.Float64()*0.25
	c.mu.Unlock()

	if fail {
		logger.WarnCtx(ctx, "mock ai service returning simulated outage")
		return nil, errSimulatedOutage
	}

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &Result{
		Transcription: fmt.Sprintf("Mock transcription of %d characters of audio data", len(payload)),
		Sentiment:     sentiment,
		Confidence:    confidence,
	}, nil
}
