// Package metrics exposes Prometheus instrumentation for the gateway.
// A nil *Metrics is a valid no-op receiver so callers never branch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      prometheus.Counter
	providerRequests *prometheus.CounterVec
	fallbacks        prometheus.Counter
	streamTokens     prometheus.Counter
	requestDuration  prometheus.Histogram
}

// New builds the collectors and registers them with reg when non-nil.
// Passing a nil registerer yields working but unregistered collectors,
// which keeps library embedders free of global registry collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutorgate_cache_hits_total",
			Help: "Answer cache hits by tier.",
		}, []string{"tier"}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tutorgate_cache_misses_total",
			Help: "Answer cache misses across all tiers.",
		}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutorgate_provider_requests_total",
			Help: "Provider attempts by outcome.",
		}, []string{"provider", "outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tutorgate_fallback_advances_total",
			Help: "Times the fallback chain advanced past a failed provider.",
		}),
		streamTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tutorgate_stream_tokens_total",
			Help: "Token events delivered to callers.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tutorgate_request_duration_seconds",
			Help:    "End-to-end SendMessage latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.cacheHits, m.cacheMisses, m.providerRequests,
			m.fallbacks, m.streamTokens, m.requestDuration,
		)
	}
	return m
}

// CacheHit records a hit on the named tier ("fast" or "durable").
func (m *Metrics) CacheHit(tier string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(tier).Inc()
}

// CacheMiss records a full cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// ProviderRequest records one provider attempt outcome ("success" or an
// error code).
func (m *Metrics) ProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// Fallback records an advance along the fallback chain.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// StreamToken records one delivered token event.
func (m *Metrics) StreamToken() {
	if m == nil {
		return
	}
	m.streamTokens.Inc()
}

// ObserveDuration records an end-to-end request latency.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.Observe(d.Seconds())
}
