package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/amanrag/internal/search"
)

const namespace = "amanrag"

// Metrics holds the engine's Prometheus collectors and implements
// search.Recorder. Each Metrics owns its registry so tests and multiple
// engines never collide on registration.
type Metrics struct {
	registry *prometheus.Registry
	queries  *QueryLog

	searchRequests  *prometheus.CounterVec
	searchLatency   *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	denseFailures   prometheus.Counter
	variantFailures prometheus.Counter
	cacheRequests   *prometheus.CounterVec
	indexDocuments  prometheus.Gauge
	indexRebuilds   *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors. queries may be nil.
func NewMetrics(queries *QueryLog) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries:  queries,
		searchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_requests_total",
				Help:      "Answered searches by retrieval method",
			},
			[]string{"method"},
		),
		searchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_latency_seconds",
				Help:      "Search latency by retrieval method",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_fallbacks_total",
				Help:      "Searches answered by a degraded path, by reason",
			},
			[]string{"reason"},
		),
		denseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dense_failures_total",
			Help:      "Dense retrieval calls that failed",
		}),
		variantFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_failures_total",
			Help:      "Expanded query variants dropped after a failure",
		}),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Result cache lookups by outcome",
			},
			[]string{"result"},
		),
		indexDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents in the live snapshot",
		}),
		indexRebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_rebuilds_total",
				Help:      "Index rebuilds by status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.searchRequests,
		m.searchLatency,
		m.fallbacks,
		m.denseFailures,
		m.variantFailures,
		m.cacheRequests,
		m.indexDocuments,
		m.indexRebuilds,
	)
	return m
}

// SearchCompleted implements search.Recorder.
func (m *Metrics) SearchCompleted(ev search.SearchEvent) {
	method := string(ev.Method)
	m.searchRequests.WithLabelValues(method).Inc()
	m.searchLatency.WithLabelValues(method).Observe(ev.Latency.Seconds())
	if m.queries != nil {
		m.queries.Record(ev)
	}
}

// Fallback implements search.Recorder.
func (m *Metrics) Fallback(reason string) {
	m.fallbacks.WithLabelValues(reason).Inc()
}

// DenseFailure implements search.Recorder.
func (m *Metrics) DenseFailure() {
	m.denseFailures.Inc()
}

// VariantFailure implements search.Recorder.
func (m *Metrics) VariantFailure() {
	m.variantFailures.Inc()
}

// CacheLookup implements search.Recorder.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// IndexRebuilt implements search.Recorder. The document gauge only moves on
// success since a failed rebuild leaves the old snapshot live.
func (m *Metrics) IndexRebuilt(documents int, err error) {
	if err != nil {
		m.indexRebuilds.WithLabelValues("failure").Inc()
		return
	}
	m.indexRebuilds.WithLabelValues("success").Inc()
	m.indexDocuments.Set(float64(documents))
}

// Queries returns the query log, or nil.
func (m *Metrics) Queries() *QueryLog {
	return m.queries
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NewServer returns an HTTP server exposing /metrics on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

var _ search.Recorder = (*Metrics)(nil)
