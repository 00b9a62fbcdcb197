// Package observability provides Prometheus metrics for the fetch pipeline.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Upstream metrics
	UpstreamRequests    *prometheus.CounterVec
	UpstreamRetries     *prometheus.CounterVec
	RateLimitExhausted  *prometheus.CounterVec
	TransactionsFetched *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Streaming metrics
	ActiveStreams prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "awakenfetch"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream HTTP requests by host and status code",
		}, []string{"host", "status"}),
		UpstreamRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Upstream retries by host and reason",
		}, []string{"host", "reason"}),
		RateLimitExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "rate_limit_exhausted_total",
			Help:      "Requests that gave up after the rate-limit retry budget",
		}, []string{"host"}),
		TransactionsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "transactions_fetched_total",
			Help:      "Classified transactions returned per chain",
		}, []string{"chain"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Transaction cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Transaction cache misses",
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "NDJSON streams currently open",
		}),
	}
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(host string, status int) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(host, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveRetry(host, reason string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(host, reason).Inc()
}

func (m *Metrics) ObserveRateLimitExhausted(host string) {
	if m == nil {
		return
	}
	m.RateLimitExhausted.WithLabelValues(host).Inc()
}

func (m *Metrics) ObserveFetched(chain string, n int) {
	if m == nil {
		return
	}
	m.TransactionsFetched.WithLabelValues(chain).Add(float64(n))
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}
