// Package prometheus contains the Prometheus implementations of the metrics
// interfaces consumed by the engine, bus, and HTTP layers. Importing this
// package (usually blank, from a main package) registers the constructors
// with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/voicegate/pkg/engine"
	"github.com/marmos91/voicegate/pkg/metrics"
)

func init() {
	metrics.RegisterEngineMetricsConstructor(NewEngineMetrics)
}

// engineMetrics is the Prometheus implementation of engine.EngineMetrics.
type engineMetrics struct {
	packetsIngested   *prometheus.CounterVec
	packetsByPolicy   *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	aiAttempts        *prometheus.CounterVec
	aiAttemptDuration *prometheus.HistogramVec
	pipelineDuration  *prometheus.HistogramVec
}

// NewEngineMetrics creates a new Prometheus-backed EngineMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewEngineMetrics() engine.EngineMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &engineMetrics{
		packetsIngested: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_packets_ingested_total",
				Help: "Total number of accepted packets by classification result",
			},
			[]string{"result"}, // "in_order", "gap", "late_fill", "duplicate"
		),
		packetsByPolicy: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_packets_by_state_policy_total",
				Help: "Total number of ingest requests by call-state handling policy",
			},
			[]string{"policy"}, // "tracked", "best_effort", "rejected"
		),
		stateTransitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_state_transitions_total",
				Help: "Total number of committed call lifecycle transitions",
			},
			[]string{"from_state", "to_state"},
		),
		aiAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicegate_ai_attempts_total",
				Help: "Total number of AI processing attempts by outcome",
			},
			[]string{"outcome"}, // "success", "failure", "timeout"
		),
		aiAttemptDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "voicegate_ai_attempt_duration_milliseconds",
				Help: "Duration of individual AI processing attempts in milliseconds",
				Buckets: []float64{
					100,   // fast mock responses
					500,   // 500ms
					1000,  // 1s - lower bound of simulated latency
					2000,  // 2s
					3000,  // 3s - upper bound of simulated latency
					5000,  // 5s
					10000, // 10s
					30000, // 30s - per-attempt timeout
				},
			},
			[]string{"outcome"},
		),
		pipelineDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "voicegate_pipeline_duration_milliseconds",
				Help: "Duration of the completion pipeline from COMPLETED to a terminal state in milliseconds",
				Buckets: []float64{
					3000,   // grace period alone
					5000,   // grace + one fast attempt
					10000,  // 10s
					30000,  // 30s
					60000,  // 60s - retry budget
					90000,  // 90s
					120000, // 2m
				},
			},
			[]string{"outcome"}, // "archived", "failed"
		),
	}
}

func (m *engineMetrics) RecordPacket(result string) {
	if m == nil {
		return
	}
	m.packetsIngested.WithLabelValues(result).Inc()
}

func (m *engineMetrics) RecordPacketPolicy(policy string) {
	if m == nil {
		return
	}
	m.packetsByPolicy.WithLabelValues(policy).Inc()
}

func (m *engineMetrics) RecordStateTransition(from string, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(from, to).Inc()
}

func (m *engineMetrics) RecordAIAttempt(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.aiAttempts.WithLabelValues(outcome).Inc()
	m.aiAttemptDuration.WithLabelValues(outcome).Observe(duration.Seconds() * 1000)
}

func (m *engineMetrics) RecordPipeline(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(outcome).Observe(duration.Seconds() * 1000)
}
