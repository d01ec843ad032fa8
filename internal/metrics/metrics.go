// Package metrics defines the Prometheus collectors of the trace service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query results recorded by TraceQueries.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics holds the collectors, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	MapsDecoded    prometheus.Counter
	DecodeDuration prometheus.Histogram
	MapsLoaded     prometheus.Gauge
	TraceQueries   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MapsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtrace_maps_decoded_total",
			Help: "Source maps decoded or loaded from the cache.",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smtrace_decode_duration_seconds",
			Help:    "Time spent loading and decoding one source map.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		MapsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smtrace_maps_loaded",
			Help: "Source maps currently held in memory.",
		}),
		TraceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtrace_trace_queries_total",
			Help: "Point queries by result (found, not_found, error).",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtrace_http_requests_total",
			Help: "HTTP requests by path and status code.",
		}, []string{"path", "status"}),
	}
	m.Registry.MustRegister(
		m.MapsDecoded,
		m.DecodeDuration,
		m.MapsLoaded,
		m.TraceQueries,
		m.HTTPRequests,
	)
	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
