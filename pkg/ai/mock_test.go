package ai_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/voicegate/pkg/ai"
)

// ============================================================================
// MockClient Tests
// ============================================================================

func TestMockClient_SuccessShape(t *testing.T) {
	client := ai.NewMockClientWithSeed(1)
	client.FailureRate = 0
	client.MinLatency = 0
	client.MaxLatency = 0

	payload := "hello world from a pbx"
	res, err := client.Analyze(context.Background(), payload)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t,
		fmt.Sprintf("Mock transcription of %d characters of audio data", len(payload)),
		res.Transcription)
	assert.Contains(t, []string{"positive", "negative", "neutral"}, res.Sentiment)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	assert.Less(t, res.Confidence, 0.95)
}

func TestMockClient_SimulatedOutage(t *testing.T) {
	client := ai.NewMockClientWithSeed(1)
	client.FailureRate = 1
	client.MinLatency = 0
	client.MaxLatency = 0

	res, err := client.Analyze(context.Background(), "payload")
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestMockClient_ContextCancelsLatency(t *testing.T) {
	client := ai.NewMockClientWithSeed(1)
	client.FailureRate = 0
	client.MinLatency = 5 * time.Second
	client.MaxLatency = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Analyze(ctx, "payload")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMockClient_DeterministicWithSeed(t *testing.T) {
	mk := func() *ai.MockClient {
		c := ai.NewMockClientWithSeed(42)
		c.MinLatency = 0
		c.MaxLatency = 0
		return c
	}
	a, b := mk(), mk()

	for i := range 20 {
		resA, errA := a.Analyze(context.Background(), "payload")
		resB, errB := b.Analyze(context.Background(), "payload")

		if (errA == nil) != (errB == nil) {
			t.Fatalf("call %d diverged: %v vs %v", i, errA, errB)
		}
		if errA == nil {
			assert.Equal(t, resA.Sentiment, resB.Sentiment, "call %d", i)
			assert.Equal(t, resA.Confidence, resB.Confidence, "call %d", i)
		}
	}
}
