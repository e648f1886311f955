package metrics

import (
	"github.com/marmos91/voicegate/pkg/archive"
)

// NewArchiveMetrics creates a new Prometheus-backed ExporterMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should leave the exporter's Metrics field
// unset, which results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	exporter := archive.NewS3Exporter(client, archive.S3Config{
//		Bucket:  "voicegate-archive",
//		Metrics: metrics.NewArchiveMetrics(),
//	})
//
//	// Without metrics (zero overhead)
//	exporter := archive.NewS3Exporter(client, archive.S3Config{Bucket: "voicegate-archive"})
func NewArchiveMetrics() archive.ExporterMetrics {
	if !IsEnabled() || newPrometheusArchiveMetrics == nil {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusArchiveMetrics()
}

// newPrometheusArchiveMetrics is implemented in pkg/metrics/prometheus/archive.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusArchiveMetrics func() archive.ExporterMetrics

// RegisterArchiveMetricsConstructor registers the Prometheus archive metrics
// constructor. Called by pkg/metrics/prometheus/archive.go during package
// initialization.
func RegisterArchiveMetricsConstructor(constructor func() archive.ExporterMetrics) {
	newPrometheusArchiveMetrics = constructor
}
