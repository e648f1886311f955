package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/voicegate/pkg/archive"
	"github.com/marmos91/voicegate/pkg/metrics"
)

func init() {
	metrics.RegisterArchiveMetricsConstructor(NewArchiveMetrics)
}

// archiveMetrics is the Prometheus implementation of archive.ExporterMetrics.
type archiveMetrics struct {
	exportsTotal   *prometheus.CounterVec
	exportDuration prometheus.Histogram
	exportBytes    prometheus.Histogram
}

// NewArchiveMetrics creates a new Prometheus-backed ExporterMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewArchiveMetrics() archive.ExporterMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &archiveMetrics{
		exportsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_archive_exports_total",
				Help: "Total number of archive export attempts by status",
			},
			[]string{"status"}, // "success", "error"
		),
		exportDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "voicegate_archive_export_duration_milliseconds",
				Help: "Duration of archive record uploads in milliseconds",
				Buckets: []float64{
					10,    // 10ms - local object stores
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					10000, // 10s - degraded remote stores
				},
			},
		),
		exportBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "voicegate_archive_export_bytes",
				Help: "Distribution of serialized archive record sizes",
				Buckets: []float64{
					256,    // minimal records
					1024,   // 1KB
					4096,   // 4KB - typical transcription
					16384,  // 16KB
					65536,  // 64KB - long calls
					262144, // 256KB
				},
			},
		),
	}
}

func (m *archiveMetrics) RecordExport(status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.exportsTotal.WithLabelValues(status).Inc()
	m.exportDuration.Observe(duration.Seconds() * 1000)
}

func (m *archiveMetrics) RecordExportBytes(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}

	m.exportBytes.Observe(float64(bytes))
}
