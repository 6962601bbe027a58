// Package metrics provides a private prometheus registry so only the metrics
// registered by the node are exposed, without the default process and go
// runtime collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry *prometheus.Registry
var auto promauto.Factory

func init() {
	registry = prometheus.NewRegistry()
	auto = promauto.With(registry)
}

// Auto returns the factory used to construct and register metrics.
func Auto() promauto.Factory {
	return auto
}

// Registry returns the registry to be served by the debug endpoint.
func Registry() *prometheus.Registry {
	return registry
}
