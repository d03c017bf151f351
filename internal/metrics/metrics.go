// Package metrics provides Prometheus metrics for the notes-go client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for request and refresh counters.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeTransport = "transport"
	OutcomeAuth      = "auth_failed"
)

// Metrics holds every collector the client exports. A nil *Metrics is
// valid and records nothing, so library users that don't care about
// metrics can pass nil everywhere.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authRetries     prometheus.Counter
	refreshTotal    *prometheus.CounterVec
	cacheNodes      prometheus.Gauge
	cacheTags       prometheus.Gauge
	cacheHits       prometheus.Counter
	feedClients     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notes_api_requests_total",
				Help: "Total number of API requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notes_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		authRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notes_api_auth_retries_total",
				Help: "Requests re-issued after a credential refresh",
			},
		),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notes_auth_refresh_total",
				Help: "Credential refresh network calls by result",
			},
			[]string{"result"},
		),
		cacheNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notes_cache_nodes",
				Help: "Number of nodes in the local cache",
			},
		),
		cacheTags: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notes_cache_tags",
				Help: "Number of unique tags in the tag index",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notes_cache_hits_total",
				Help: "Single-node lookups served without a network call",
			},
		),
		feedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notes_feed_clients",
				Help: "Connected change-feed websocket clients",
			},
		),
	}

	reg.MustRegister(
		m.requestsTotal, m.requestDuration, m.authRetries, m.refreshTotal,
		m.cacheNodes, m.cacheTags, m.cacheHits, m.feedClients,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// RecordRequest counts one pipeline call.
func (m *Metrics) RecordRequest(method, outcome string, seconds float64) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordAuthRetry counts a request re-issued after refresh.
func (m *Metrics) RecordAuthRetry() {
	if m == nil {
		return
	}

	m.authRetries.Inc()
}

// RecordRefresh counts one refresh network call.
func (m *Metrics) RecordRefresh(ok bool) {
	if m == nil {
		return
	}

	result := OutcomeSuccess
	if !ok {
		result = OutcomeError
	}

	m.refreshTotal.WithLabelValues(result).Inc()
}

// SetCacheSize records the node and tag counts after a cache mutation.
func (m *Metrics) SetCacheSize(nodes, tags int) {
	if m == nil {
		return
	}

	m.cacheNodes.Set(float64(nodes))
	m.cacheTags.Set(float64(tags))
}

// RecordCacheHit counts a single-node lookup served from cache.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}

	m.cacheHits.Inc()
}

// SetFeedClients records the number of change-feed subscribers.
func (m *Metrics) SetFeedClients(n int) {
	if m == nil {
		return
	}

	m.feedClients.Set(float64(n))
}
