package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/voicegate/pkg/metrics"
)

func init() {
	metrics.RegisterHTTPMetricsConstructor(NewHTTPMetrics)
}

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "voicegate_http_request_duration_milliseconds",
				Help: "Duration of HTTP requests in milliseconds",
				Buckets: []float64{
					1,    // 1ms - fast acks
					5,    // 5ms
					10,   // 10ms
					25,   // 25ms
					50,   // 50ms - ingest ack window upper edge
					100,  // 100ms
					250,  // 250ms
					500,  // 500ms
					1000, // 1s
				},
			},
			[]string{"method", "route"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "voicegate_http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds() * 1000)
}

func (m *httpMetrics) RecordRequestStart() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *httpMetrics) RecordRequestEnd() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
