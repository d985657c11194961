// Package metrics defines the Prometheus metric collectors used by the
// symbol search service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SymbolQueriesTotal   *prometheus.CounterVec
	SymbolQueryLatency   *prometheus.HistogramVec
	SymbolResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexEntries         prometheus.Gauge
	IndexTargets         prometheus.Gauge
	IndexGeneration      prometheus.Gauge
	IndexReloadsTotal    *prometheus.CounterVec
	IndexLoadDuration    prometheus.Histogram
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SymbolQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symbol_queries_total",
				Help: "Total symbol queries by mode and result type (hit, zero_result, error).",
			},
			[]string{"mode", "result_type"},
		),
		SymbolQueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "symbol_query_latency_seconds",
				Help:    "Symbol query latency in seconds.",
				Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"mode", "cache_status"},
		),
		SymbolResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "symbol_results_count",
				Help:    "Number of entries returned per symbol query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
			},
			[]string{"mode"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		IndexEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "symbol_index_entries",
				Help: "Number of entries in the active symbol index.",
			},
		),
		IndexTargets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "symbol_index_targets",
				Help: "Number of targets across all entries in the active symbol index.",
			},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "symbol_index_generation",
				Help: "Generation number of the active symbol index.",
			},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symbol_index_reloads_total",
				Help: "Total index reload attempts by trigger and status.",
			},
			[]string{"trigger", "status"},
		),
		IndexLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "symbol_index_load_duration_seconds",
				Help:    "Time to load and build a symbol index.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SymbolQueriesTotal,
		m.SymbolQueryLatency,
		m.SymbolResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexEntries,
		m.IndexTargets,
		m.IndexGeneration,
		m.IndexReloadsTotal,
		m.IndexLoadDuration,
		m.CircuitBreakerState,
	)

	return m
}
