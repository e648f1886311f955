package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/voicegate/pkg/bus"
	"github.com/marmos91/voicegate/pkg/metrics"
)

func init() {
	metrics.RegisterBusMetricsConstructor(NewBusMetrics)
}

// busMetrics is the Prometheus implementation of bus.BusMetrics.
type busMetrics struct {
	subscribers     prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	dropped         prometheus.Counter
}

// NewBusMetrics creates a new Prometheus-backed BusMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBusMetrics() bus.BusMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &busMetrics{
		subscribers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "voicegate_bus_subscribers",
				Help: "Current number of live event bus subscribers",
			},
		),
		eventsPublished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_bus_events_published_total",
				Help: "Total number of events published to the bus by kind",
			},
			[]string{"event"}, // "packet_received", "state_changed", "ai_completed", "ai_failed"
		),
		dropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "voicegate_bus_subscribers_dropped_total",
				Help: "Total number of subscribers dropped for falling behind",
			},
		),
	}
}

func (m *busMetrics) SetSubscriberCount(count int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(count))
}

func (m *busMetrics) RecordPublish(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *busMetrics) RecordDrop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
