// Package metrics exposes gateway counters and latencies in Prometheus
// format on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "completions_gateway"

type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec
	conformance     *prometheus.CounterVec
}

// NewCollector registers the gateway metrics on registry, or on a fresh
// registry when nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Chat completion requests by model and outcome.",
			},
			[]string{"model", "status"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Backend call latency.",
				// LLM calls run from sub-second to minutes.
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Backend failures by kind.",
			},
			[]string{"backend", "kind"},
		),
		conformance: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conformance_total",
				Help:      "Structured output payloads by the strategy that produced them.",
			},
			[]string{"strategy"},
		),
	}

	registry.MustRegister(c.requests, c.backendDuration, c.backendErrors, c.conformance)
	return c
}

func (c *Collector) RecordRequest(model, status string) {
	c.requests.WithLabelValues(model, status).Inc()
}

func (c *Collector) RecordBackendCall(backend string, d time.Duration) {
	c.backendDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (c *Collector) RecordBackendError(backend, kind string) {
	c.backendErrors.WithLabelValues(backend, kind).Inc()
}

func (c *Collector) RecordConformance(strategy string) {
	c.conformance.WithLabelValues(strategy).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
