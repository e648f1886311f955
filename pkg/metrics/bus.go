package metrics

import (
	"github.com/marmos91/voicegate/pkg/bus"
)

// NewBusMetrics creates a new Prometheus-backed BusMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to bus.New, which results
// in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	eventBus := bus.New(metrics.NewBusMetrics())
//
//	// Without metrics (zero overhead)
//	eventBus := bus.New(nil)
func NewBusMetrics() bus.BusMetrics {
	if !IsEnabled() || newPrometheusBusMetrics == nil {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusBusMetrics()
}

// newPrometheusBusMetrics is implemented in pkg/metrics/prometheus/bus.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusBusMetrics func() bus.BusMetrics

// RegisterBusMetricsConstructor registers the Prometheus bus metrics
// constructor. Called by pkg/metrics/prometheus/bus.go during package
// initialization.
func RegisterBusMetricsConstructor(constructor func() bus.BusMetrics) {
	newPrometheusBusMetrics = constructor
}
