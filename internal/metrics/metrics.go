// Package metrics registers the gateway's Prometheus instruments:
// cache hit/miss counters, the search latency histogram, and breaker
// state gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every instrument the search pipeline touches.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	SearchLatency   prometheus.Histogram
	FacetLatency    prometheus.Histogram
	BreakerState    *prometheus.GaugeVec
	BreakerFailures *prometheus.CounterVec
	SuggestionsUsed prometheus.Counter
}

// New creates and registers every instrument against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_search_cache_hits_total",
			Help: "Response cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_search_cache_misses_total",
			Help: "Response cache misses.",
		}),
		SearchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_search_latency_seconds",
			Help:    "End-to-end /search latency.",
			Buckets: prometheus.DefBuckets,
		}),
		FacetLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_facets_latency_seconds",
			Help:    "End-to-end /search/facets latency.",
			Buckets: prometheus.DefBuckets,
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_search_breaker_state",
			Help: "0=closed 1=open 2=half-open, per breaker name.",
		}, []string{"breaker"}),
		BreakerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_search_breaker_failures_total",
			Help: "Times each breaker has tripped open.",
		}, []string{"breaker"}),
		SuggestionsUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_search_suggestions_served_total",
			Help: "Zero-result searches that returned suggestions.",
		}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.SearchLatency,
		m.FacetLatency,
		m.BreakerState,
		m.BreakerFailures,
		m.SuggestionsUsed,
	)
	return m
}
