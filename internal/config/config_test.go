package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventscout/internal/cache"
	"eventscout/internal/provider"
	"eventscout/internal/ratelimit"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.True(t, cfg.Providers.Ticketmaster.Enabled)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), again)
}

func TestLoadPartialFileKeepsValuesAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
search:
  result_ttl: 2m
  max_size: 50
  default_size: 80
cache:
  backend: Pebble
  pebble_dir: /data/cache
  sweep: "@every 30s"
providers:
  ticketmaster:
    enabled: true
    api_key: file-key
    rate_limit:
      limit: 5
      window: 1s
ics:
  - id: parks
    url: https://calendar.example.org/parks.ics
`), 0o600))

	cfg, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 2*time.Minute, cfg.Search.ResultTTL)
	assert.Equal(t, 50, cfg.Search.MaxSize)
	assert.Equal(t, 20, cfg.Search.DefaultSize, "default larger than max is reset")
	assert.Equal(t, cache.BackendPebble, cfg.Cache.Backend)
	assert.Equal(t, "/data/cache", cfg.Cache.PebbleDir)
	assert.Equal(t, "@every 30s", cfg.Cache.Sweep)
	assert.Equal(t, "file-key", cfg.Providers.Ticketmaster.APIKey)
	assert.Equal(t, ratelimit.Limit{Requests: 5, Window: time.Second}, cfg.Providers.Ticketmaster.RateLimit)
	assert.False(t, cfg.Providers.Eventbrite.Enabled)
	assert.Equal(t, ratelimit.Limit{Requests: 1000, Window: time.Hour}, cfg.Providers.Eventbrite.RateLimit)
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "parks", cfg.ICS[0].Name)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))
	_, err := Load(path)
	require.Error(t, err)

	_, err = Load("")
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Eventbrite.APIKey = "from-file"
	env := map[string]string{
		EnvTicketmasterKey: "tm-key",
		EnvRapidAPIKey:     " rapid-key ",
		EnvRapidAPIHost:    "events.p.rapidapi.com",
		EnvPredictHQToken:  "phq",
		EnvRedisAddr:       "redis:6379",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "tm-key", cfg.Providers.Ticketmaster.APIKey)
	assert.Equal(t, "from-file", cfg.Providers.Eventbrite.APIKey)
	assert.Equal(t, "rapid-key", cfg.Providers.RapidAPI.APIKey)
	assert.Equal(t, "events.p.rapidapi.com", cfg.Providers.RapidAPI.Host)
	assert.Equal(t, "phq", cfg.Providers.PredictHQ.APIKey)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.Search.FeaturedLocation = "Austin, TX"
	require.NoError(t, cfg.Save(path))

	got, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestDerivedSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.PredictHQ.APIKey = "phq"

	limits := cfg.RateLimits()
	assert.Len(t, limits, 5)
	assert.Equal(t, ratelimit.Limit{Requests: 200, Window: time.Minute}, limits[provider.NameTicketmaster])
	assert.Equal(t, ratelimit.Limit{Requests: 60, Window: time.Minute}, limits[provider.NameICS])

	s := cfg.ProviderSettings(nil)
	assert.Equal(t, "phq", s.PredictHQ.APIKey)
	assert.Equal(t, defaultICSCacheDir, s.ICSCacheDir)

	opts := cfg.AggregateOptions()
	assert.Equal(t, cfg.Search.ResultTTL, opts.ResultTTL)
	assert.Equal(t, cfg.Search.MaxRadius, opts.MaxRadius)
}
