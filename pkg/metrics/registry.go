// Package metrics gates optional Prometheus instrumentation behind a
// process-wide registry. Components accept small metrics interfaces and the
// constructors here return nil until InitRegistry is called, so a deployment
// that leaves metrics off pays nothing.
//
// The Prometheus implementations live in pkg/metrics/prometheus and register
// themselves through the Register*Constructor hooks; binaries that want
// metrics blank-import that package.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process registry and attaches the standard Go and
// process collectors. Calling it again is a no-op. Metrics constructors
// return nil until this has been called.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// Handler returns the HTTP handler serving the /metrics endpoint. When
// metrics are disabled it serves 404 so the route can be mounted
// unconditionally.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
