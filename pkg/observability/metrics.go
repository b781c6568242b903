package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a database instance. They
// are registered against an explicit registerer so tests and embedders
// can keep registries isolated.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	VectorsInserted prometheus.Counter
	VectorsRemoved  prometheus.Counter
	SearchesTotal   prometheus.Counter

	SearchLatency    prometheus.Histogram
	SearchResultSize prometheus.Histogram
	BatchInsertSize  prometheus.Histogram

	IndexSize        prometheus.Gauge
	IndexMemoryBytes prometheus.Gauge

	OptimizeRuns    prometheus.Counter
	OptimizeAborts  prometheus.Counter
	OptimizeSeconds prometheus.Histogram
}

// NewMetrics creates and registers all collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lynx_requests_total",
				Help: "Total number of API requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lynx_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		RequestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lynx_request_errors_total",
				Help: "Total number of request errors by method and error code",
			},
			[]string{"method", "code"},
		),
		VectorsInserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lynx_vectors_inserted_total",
				Help: "Total number of vectors inserted",
			},
		),
		VectorsRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lynx_vectors_removed_total",
				Help: "Total number of vectors removed",
			},
		),
		SearchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lynx_searches_total",
				Help: "Total number of search operations",
			},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lynx_search_latency_seconds",
				Help:    "Search latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		SearchResultSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lynx_search_result_size",
				Help:    "Number of items returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200},
			},
		),
		BatchInsertSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lynx_batch_insert_size",
				Help:    "Number of records per batch insert",
				Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
			},
		),
		IndexSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lynx_index_size",
				Help: "Number of vectors in the index",
			},
		),
		IndexMemoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lynx_index_memory_bytes",
				Help: "Estimated index memory usage in bytes",
			},
		),
		OptimizeRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lynx_optimize_runs_total",
				Help: "Total number of completed index optimizations",
			},
		),
		OptimizeAborts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lynx_optimize_aborts_total",
				Help: "Total number of optimizations aborted under write pressure",
			},
		),
		OptimizeSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lynx_optimize_duration_seconds",
				Help:    "Index optimization duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestErrors,
		m.VectorsInserted,
		m.VectorsRemoved,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchResultSize,
		m.BatchInsertSize,
		m.IndexSize,
		m.IndexMemoryBytes,
		m.OptimizeRuns,
		m.OptimizeAborts,
		m.OptimizeSeconds,
	)
	return m
}
