package bus

// BusMetrics provides observability for event bus activity.
//
// Implementations can track subscriber churn and back-pressure drops. This
// is optional - if not provided, metrics collection is skipped.
//
// Example implementations:
//   - Prometheus metrics
//   - In-memory counters for testing
type BusMetrics interface {
	// SetSubscriberCount records the current number of live subscribers
	SetSubscriberCount(count int)

	// RecordPublish records an event published to the bus by kind
	RecordPublish(kind string)

	// RecordDrop records a subscriber dropped for falling behind
	RecordDrop()
}
