// Package metrics exposes Prometheus collectors for routed requests and
// container lookups.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/router"
)

// Collector holds the runtime's metrics on its own registry, so that
// several applications (or tests) never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Lookups  *prometheus.CounterVec
}

// NewCollector creates collectors under namespace, plus the Go runtime and
// process collectors.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled, by method, action and status.",
			},
			[]string{"method", "action", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request handling time, by method and action.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "action"},
		),
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "container_lookups_total",
				Help:      "Container lookups, by specifier type and outcome.",
			},
			[]string{"type", "outcome"},
		),
	}
	registry.MustRegister(
		c.Requests,
		c.Duration,
		c.Lookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRequest records a routed request.
func (c *Collector) ObserveRequest(method, action string, status int, elapsed time.Duration) {
	if action == "" {
		action = "unmatched"
	}
	c.Requests.WithLabelValues(method, action, strconv.Itoa(status)).Inc()
	c.Duration.WithLabelValues(method, action).Observe(elapsed.Seconds())
}

// ObserveLookup records a container lookup.
func (c *Collector) ObserveLookup(t container.Type, outcome container.LookupOutcome) {
	c.Lookups.WithLabelValues(string(t), string(outcome)).Inc()
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var (
	_ container.LookupObserver = (*Collector)(nil)
	_ router.RequestObserver   = (*Collector)(nil)
)
