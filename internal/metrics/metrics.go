package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the service exports. All methods are safe
// on a nil *Registry so components can run without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderSkipped  *prometheus.CounterVec
	CacheRequests    *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	CacheEntries     *prometheus.GaugeVec
	SearchDuration   *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	providerRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventscout_provider_requests_total",
		Help: "Provider adapter invocations by outcome (ok, empty, failed).",
	}, []string{"provider", "outcome"})
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventscout_provider_duration_seconds",
		Help:    "Wall time of one provider adapter search.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	providerSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventscout_provider_skipped_total",
		Help: "Providers left out of a fan-out (rate_limited, not_configured).",
	}, []string{"provider", "reason"})
	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventscout_cache_requests_total",
		Help: "Cache lookups by result (hit, miss).",
	}, []string{"cache", "result"})
	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventscout_cache_evictions_total",
		Help: "Entries evicted to make room.",
	}, []string{"cache"})
	cacheEntries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eventscout_cache_entries",
		Help: "Entries currently held.",
	}, []string{"cache"})
	searchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventscout_search_duration_seconds",
		Help:    "End-to-end federated search latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"cached"})

	r.MustRegister(providerRequests, providerDuration, providerSkipped,
		cacheRequests, cacheEvictions, cacheEntries, searchDuration)

	return &Registry{
		reg:              r,
		ProviderRequests: providerRequests,
		ProviderDuration: providerDuration,
		ProviderSkipped:  providerSkipped,
		CacheRequests:    cacheRequests,
		CacheEvictions:   cacheEvictions,
		CacheEntries:     cacheEntries,
		SearchDuration:   searchDuration,
	}
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) ObserveProvider(provider, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	r.ProviderDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (r *Registry) ProviderSkip(provider, reason string) {
	if r == nil {
		return
	}
	r.ProviderSkipped.WithLabelValues(provider, reason).Inc()
}

func (r *Registry) CacheLookup(cache string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheRequests.WithLabelValues(cache, result).Inc()
}

func (r *Registry) CacheEvicted(cache string) {
	if r == nil {
		return
	}
	r.CacheEvictions.WithLabelValues(cache).Inc()
}

func (r *Registry) CacheSize(cache string, n int) {
	if r == nil {
		return
	}
	r.CacheEntries.WithLabelValues(cache).Set(float64(n))
}

func (r *Registry) ObserveSearch(cached bool, took time.Duration) {
	if r == nil {
		return
	}
	r.SearchDuration.WithLabelValues(strconv.FormatBool(cached)).Observe(took.Seconds())
}
