package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Mutations counts committed override mutations by change type
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_override_mutations_total", Help: "Committed override mutations by change type."},
		[]string{"change_type"},
	)
	// CacheReloads counts route cache reloads by outcome
	CacheReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_cache_reloads_total", Help: "Route cache reloads by outcome."},
		[]string{"status"},
	)
	// CacheEntries tracks the override row count in the current snapshot
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "route_cache_entries", Help: "Override rows in the current cache snapshot."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Mutations)
		Registry.MustRegister(CacheReloads)
		Registry.MustRegister(CacheEntries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
