package archive

import "time"

// ExporterMetrics provides observability for archive export operations.
//
// Implementations can track export outcomes, upload latency, and record
// sizes. This is optional - if not provided, metrics collection is skipped.
//
// Example implementations:
//   - Prometheus metrics
//   - In-memory counters for testing
type ExporterMetrics interface {
	// RecordExport records one export attempt with its outcome
	// ("success", "error") and duration
	RecordExport(status string, duration time.Duration)

	// RecordExportBytes records the serialized size of an uploaded record
	RecordExportBytes(bytes int64)
}
