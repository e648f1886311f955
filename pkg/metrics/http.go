package metrics

import (
	"time"
)

// HTTPMetrics provides observability for the HTTP API surface.
//
// Implementations can collect request rates, latency, and in-flight counts
// per route. This interface is optional - pass nil to disable metrics
// collection with zero overhead.
type HTTPMetrics interface {
	// RecordRequest records a completed HTTP request.
	//
	// Parameters:
	//   - method: HTTP method (e.g., "POST")
	//   - route: matched route pattern (e.g., "/api/v1/calls/{callID}/complete")
	//   - status: response status code
	//   - duration: time taken to serve the request
	RecordRequest(method string, route string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge. The route
	// is not known until routing completes, so the gauge is unlabeled.
	RecordRequestStart()

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd()
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the API server, which
// results in zero overhead.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() || newPrometheusHTTPMetrics == nil {
		return nil
	}

	// Import prometheus package to access implementation
	// This breaks the import cycle by using interface return type
	return newPrometheusHTTPMetrics()
}

// newPrometheusHTTPMetrics is implemented in pkg/metrics/prometheus/http.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusHTTPMetrics func() HTTPMetrics

// RegisterHTTPMetricsConstructor registers the Prometheus HTTP metrics
// constructor. Called by pkg/metrics/prometheus/http.go during package
// initialization.
func RegisterHTTPMetricsConstructor(constructor func() HTTPMetrics) {
	newPrometheusHTTPMetrics = constructor
}
