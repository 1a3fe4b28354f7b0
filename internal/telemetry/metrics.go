// Package telemetry holds the Prometheus collectors and the in-process
// query log. Nothing is reported externally; /metrics is pull-only.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Index operation labels.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	indexOps        *prometheus.CounterVec
	indexFailures   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	searchDuration  prometheus.Histogram
	searchResults   prometheus.Histogram
	searchFiltered  prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	vectorInitTotal *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		indexOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasksearch_index_operations_total",
				Help: "Vector index writes by operation and result",
			},
			[]string{"op", "result"},
		),
		indexFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasksearch_index_failures_total",
				Help: "Indexing failures tolerated under the best_effort policy",
			},
			[]string{"op"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tasksearch_index_queue_depth",
				Help: "Indexing jobs committed to the store but not yet applied to the index",
			},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tasksearch_search_duration_seconds",
				Help:    "Semantic search latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
		),
		searchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tasksearch_search_results",
				Help:    "Tasks returned per search",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),
		searchFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tasksearch_search_hits_filtered_total",
				Help: "Nearest-neighbor hits dropped by the distance threshold",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasksearch_http_requests_total",
				Help: "HTTP requests by method, route pattern and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasksearch_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		vectorInitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasksearch_vector_index_init_total",
				Help: "Vector index initializations by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.indexOps, m.indexFailures, m.queueDepth,
		m.searchDuration, m.searchResults, m.searchFiltered,
		m.httpRequests, m.httpDuration, m.vectorInitTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IndexOp counts one index write.
func (m *Metrics) IndexOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.indexOps.WithLabelValues(op, result).Inc()
}

// IndexFailureTolerated counts a failure that did not fail the request.
func (m *Metrics) IndexFailureTolerated(op string) {
	if m == nil {
		return
	}
	m.indexFailures.WithLabelValues(op).Inc()
}

// SetQueueDepth reports the async indexing backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(d time.Duration, results, filtered int) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(d.Seconds())
	m.searchResults.Observe(float64(results))
	m.searchFiltered.Add(float64(filtered))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// VectorIndexInit counts a vector index open attempt.
func (m *Metrics) VectorIndexInit(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.vectorInitTotal.WithLabelValues(result).Inc()
}
