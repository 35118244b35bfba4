package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the analytics engine: HTTP traffic,
// per-operation analytics latency, cache effectiveness, and storage backend
// calls.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	cacheRequestsTotal *prometheus.CounterVec

	storageQueriesTotal  *prometheus.CounterVec
	storageQueryDuration *prometheus.HistogramVec
}

// Config controls metric naming.
type Config struct {
	Namespace string `json:"namespace" yaml:"namespace"`
}

// New creates and registers all engine metrics on a private registry.
func New(config Config) *Metrics {
	namespace := config.Namespace
	if namespace == "" {
		namespace = "tsengine"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_operations_total",
			Help:      "Total number of analytics operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_operation_duration_seconds",
			Help:      "Analytics operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"operation"},
	)

	m.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups partitioned by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	m.storageQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_queries_total",
			Help:      "Total number of storage backend queries",
		},
		[]string{"backend", "status"},
	)

	m.storageQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_query_duration_seconds",
			Help:      "Storage backend query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.operationsTotal,
		m.operationDuration,
		m.cacheRequestsTotal,
		m.storageQueriesTotal,
		m.storageQueryDuration,
	)

	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records one analytics operation.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheHit records a cache lookup that was served from the store.
func (m *Metrics) RecordCacheHit(namespace string) {
	m.cacheRequestsTotal.WithLabelValues(namespace, "hit").Inc()
}

// RecordCacheMiss records a cache lookup that required computation.
func (m *Metrics) RecordCacheMiss(namespace string) {
	m.cacheRequestsTotal.WithLabelValues(namespace, "miss").Inc()
}

// RecordStorageQuery records one backend fetch.
func (m *Metrics) RecordStorageQuery(backend, status string, duration time.Duration) {
	m.storageQueriesTotal.WithLabelValues(backend, status).Inc()
	m.storageQueryDuration.WithLabelValues(backend).Observe(duration.Seconds())
}
