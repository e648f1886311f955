package metrics

import (
	"github.com/marmos91/voicegate/pkg/engine"
)

// NewEngineMetrics creates a new Prometheus-backed EngineMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the engine, which
// results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	engineMetrics := metrics.NewEngineMetrics()
//	eng := engine.New(cfg, store, bus, engineMetrics)
//
//	// Without metrics (zero overhead)
//	eng := engine.New(cfg, store, bus, nil)
func NewEngineMetrics() engine.EngineMetrics {
	if !IsEnabled() || newPrometheusEngineMetrics == nil {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusEngineMetrics()
}

// newPrometheusEngineMetrics is implemented in pkg/metrics/prometheus/engine.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusEngineMetrics func() engine.EngineMetrics

// RegisterEngineMetricsConstructor registers the Prometheus engine metrics
// constructor. Called by pkg/metrics/prometheus/engine.go during package
// initialization.
func RegisterEngineMetricsConstructor(constructor func() engine.EngineMetrics) {
	newPrometheusEngineMetrics = constructor
}
