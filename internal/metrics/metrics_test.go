package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountsAndServes(t *testing.T) {
	r := NewRegistry()
	r.ObserveProvider("ticketmaster", "ok", 120*time.Millisecond)
	r.ObserveProvider("ticketmaster", "failed", time.Second)
	r.ProviderSkip("eventbrite", "rate_limited")
	r.CacheLookup("search", true)
	r.CacheLookup("search", false)
	r.CacheLookup("search", false)
	r.CacheEvicted("search")
	r.CacheSize("search", 7)
	r.ObserveSearch(false, 300*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ProviderRequests.WithLabelValues("ticketmaster", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheRequests.WithLabelValues("search", "miss")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.CacheEntries.WithLabelValues("search")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "eventscout_provider_skipped_total"))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveProvider("x", "ok", time.Second)
	r.CacheLookup("x", true)
	r.CacheEvicted("x")
	r.CacheSize("x", 1)
	r.ProviderSkip("x", "y")
	r.ObserveSearch(true, time.Second)
	assert.NotNil(t, r.Handler())
	assert.NotNil(t, r.Gatherer())
}
