package engine

import "time"

// EngineMetrics provides observability for call engine operations.
//
// Implementations can track packet ingest outcomes, lifecycle transitions,
// and AI pipeline behavior. This is optional - if not provided, metrics
// collection is skipped.
//
// Example implementations:
//   - Prometheus metrics
//   - In-memory counters for testing
type EngineMetrics interface {
	// RecordPacket records an accepted packet by classification result
	// ("in_order", "gap", "late_fill", "duplicate")
	RecordPacket(result string)

	// RecordPacketPolicy records how an ingest was handled given the call's
	// state ("tracked", "best_effort", "rejected")
	RecordPacketPolicy(policy string)

	// RecordStateTransition records a committed lifecycle transition
	RecordStateTransition(from string, to string)

	// RecordAIAttempt records one AI processing attempt with its outcome
	// ("success", "failure", "timeout") and duration
	RecordAIAttempt(outcome string, duration time.Duration)

	// RecordPipeline records a finished completion pipeline with its terminal
	// outcome ("archived", "failed") and total duration
	RecordPipeline(outcome string, duration time.Duration)
}
