package memory

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics is the Manager's MetricsRecorder backed by a dedicated
// registry, exported over its own Handler for the /metrics endpoint.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	extractionLatency *prometheus.HistogramVec
	extractionTotal   *prometheus.CounterVec
	retrievalLatency  *prometheus.HistogramVec
	sessionsStarted   prometheus.Counter
	sessionsEnded     *prometheus.CounterVec
	forgetEpisodes    prometheus.Counter
	forgetFacts       prometheus.Counter
}

var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics builds and registers the memory store's metrics on
// a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}

	m := &PrometheusMetrics{
		registry: registry,
		extractionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memchr",
			Subsystem: "extraction",
			Name:      "latency_seconds",
			Help:      "Extraction call latency by variant",
			Buckets:   buckets,
		}, []string{"variant"}),
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memchr",
			Subsystem: "extraction",
			Name:      "total",
			Help:      "Extraction calls by variant and outcome",
		}, []string{"variant", "status"}),
		retrievalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memchr",
			Subsystem: "retrieval",
			Name:      "latency_seconds",
			Help:      "Retrieve call latency by mode",
			Buckets:   buckets,
		}, []string{"mode"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memchr",
			Subsystem: "sessions",
			Name:      "started_total",
			Help:      "Sessions started",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memchr",
			Subsystem: "sessions",
			Name:      "ended_total",
			Help:      "Sessions ended, split by whether extraction ran",
		}, []string{"extracted"}),
		forgetEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memchr",
			Subsystem: "forget",
			Name:      "episodes_deleted_total",
			Help:      "Episodes deleted by the forgetting sweep",
		}),
		forgetFacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memchr",
			Subsystem: "forget",
			Name:      "facts_deleted_total",
			Help:      "Facts deleted by the forgetting sweep",
		}),
	}

	registry.MustRegister(
		m.extractionLatency, m.extractionTotal, m.retrievalLatency,
		m.sessionsStarted, m.sessionsEnded, m.forgetEpisodes, m.forgetFacts,
	)
	return m
}

func (m *PrometheusMetrics) ObserveExtraction(variant string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.extractionTotal.WithLabelValues(variant, status).Inc()
	m.extractionLatency.WithLabelValues(variant).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ObserveRetrieval(duration time.Duration, mode string) {
	m.retrievalLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) IncSessionsStarted() {
	m.sessionsStarted.Inc()
}

func (m *PrometheusMetrics) IncSessionsEnded(extracted bool) {
	label := "false"
	if extracted {
		label = "true"
	}
	m.sessionsEnded.WithLabelValues(label).Inc()
}

func (m *PrometheusMetrics) IncForgetSweep(episodesDeleted, factsDeleted int) {
	m.forgetEpisodes.Add(float64(episodesDeleted))
	m.forgetFacts.Add(float64(factsDeleted))
}

// Handler exposes the registry for the /metrics endpoint.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
