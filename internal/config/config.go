package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventscout/internal/aggregate"
	"eventscout/internal/cache"
	"eventscout/internal/httpx"
	"eventscout/internal/ics"
	appLog "eventscout/internal/log"
	"eventscout/internal/provider"
	"eventscout/internal/ratelimit"
)

// Environment variables that override credentials from the file.
const (
	EnvTicketmasterKey = "TICKETMASTER_API_KEY"
	EnvEventbriteToken = "EVENTBRITE_TOKEN"
	EnvRapidAPIKey     = "RAPIDAPI_KEY"
	EnvRapidAPIHost    = "RAPIDAPI_HOST"
	EnvPredictHQToken  = "PREDICTHQ_TOKEN"
	EnvRedisAddr       = "EVENTSCOUT_REDIS_ADDR"
)

const (
	defaultListen          = "127.0.0.1:8080"
	defaultSweep           = "@every 1m"
	defaultFeaturedRefresh = "@every 10m"
	defaultPebbleDir       = "./var/cache"
	defaultICSCacheDir     = "./var/ics-cache"
	defaultRedisNamespace  = "eventscout"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SearchConfig tunes the aggregator.
type SearchConfig struct {
	DefaultSize int     `yaml:"default_size"`
	MaxSize     int     `yaml:"max_size"`
	MaxRadius   float64 `yaml:"max_radius"`

	ResultTTL       time.Duration `yaml:"result_ttl"`
	DetailsTTL      time.Duration `yaml:"details_ttl"`
	FeaturedTTL     time.Duration `yaml:"featured_ttl"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// FeaturedRefresh is a cron spec for the featured warmer, "-" to disable.
	FeaturedRefresh  string `yaml:"featured_refresh"`
	FeaturedLocation string `yaml:"featured_location,omitempty"`
}

// CacheConfig is the backend selection plus the sweep schedule.
type CacheConfig struct {
	cache.Config `yaml:",inline"`
	// Sweep is a cron spec for dropping expired entries.
	Sweep        string `yaml:"sweep"`
}

// ProviderConfig is one upstream plus its request ceiling.
type ProviderConfig struct {
	provider.Config `yaml:",inline"`
	RateLimit       ratelimit.Limit `yaml:"rate_limit"`
}

type ProvidersConfig struct {
	Ticketmaster ProviderConfig `yaml:"ticketmaster"`
	Eventbrite   ProviderConfig `yaml:"eventbrite"`
	RapidAPI     ProviderConfig `yaml:"rapidapi"`
	PredictHQ    ProviderConfig `yaml:"predicthq"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`

	Log       appLog.Config   `yaml:"log"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Providers ProvidersConfig `yaml:"providers"`

	// ICS lists public calendar feeds searched as one more provider.
	ICS          []ics.Feed      `yaml:"ics"`
	ICSCacheDir  string          `yaml:"ics_cache_dir"`
	ICSRateLimit ratelimit.Limit `yaml:"ics_rate_limit"`
}

// DefaultConfig returns an in-memory default configuration. Every provider
// is enabled but stays inactive until it has credentials.
func DefaultConfig() *Config {
	c := &Config{
		Providers: ProvidersConfig{
			Ticketmaster: ProviderConfig{Config: provider.Config{Enabled: true}},
			Eventbrite:   ProviderConfig{Config: provider.Config{Enabled: true}},
			RapidAPI:     ProviderConfig{Config: provider.Config{Enabled: true}},
			PredictHQ:    ProviderConfig{Config: provider.Config{Enabled: true}},
		},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}

	s := &c.Search
	if s.MaxSize <= 0 {
		s.MaxSize = aggregate.MaxPageSize
	}
	if s.DefaultSize <= 0 || s.DefaultSize > s.MaxSize {
		s.DefaultSize = min(aggregate.DefaultPageSize, s.MaxSize)
	}
	if s.MaxRadius <= 0 {
		s.MaxRadius = aggregate.DefaultMaxRadius
	}
	if s.ResultTTL <= 0 {
		s.ResultTTL = aggregate.DefaultResultTTL
	}
	if s.DetailsTTL <= 0 {
		s.DetailsTTL = aggregate.DefaultDetailsTTL
	}
	if s.FeaturedTTL <= 0 {
		s.FeaturedTTL = aggregate.DefaultFeaturedTTL
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = aggregate.DefaultProviderTimeout
	}
	if s.FeaturedRefresh == "" {
		s.FeaturedRefresh = defaultFeaturedRefresh
	}

	cc := &c.Cache
	cc.Backend = strings.ToLower(strings.TrimSpace(cc.Backend))
	if cc.Backend == "" {
		cc.Backend = cache.BackendMemory
	}
	if cc.MaxSize <= 0 {
		cc.MaxSize = 1000
	}
	if cc.Sweep == "" {
		cc.Sweep = defaultSweep
	}
	if cc.PebbleDir == "" {
		cc.PebbleDir = defaultPebbleDir
	}
	if cc.Redis.Namespace == "" {
		cc.Redis.Namespace = defaultRedisNamespace
	}

	// Ceilings follow the upstream plans' published quotas.
	defaultLimit(&c.Providers.Ticketmaster.RateLimit, 200, time.Minute)
	defaultLimit(&c.Providers.Eventbrite.RateLimit, 1000, time.Hour)
	defaultLimit(&c.Providers.RapidAPI.RateLimit, 500, time.Hour)
	defaultLimit(&c.Providers.PredictHQ.RateLimit, 1000, time.Hour)
	defaultLimit(&c.ICSRateLimit, 60, time.Minute)

	if c.ICS == nil {
		c.ICS = []ics.Feed{}
	}
	for i := range c.ICS {
		if c.ICS[i].Name == "" {
			c.ICS[i].Name = c.ICS[i].ID
		}
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = defaultICSCacheDir
	}
}

func defaultLimit(l *ratelimit.Limit, n int, window time.Duration) {
	if l.Requests <= 0 || l.Window <= 0 {
		*l = ratelimit.Limit{Requests: n, Window: window}
	}
}

// ApplyEnv overrides credentials with non-empty environment values.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Providers.Ticketmaster.APIKey, EnvTicketmasterKey)
	set(&c.Providers.Eventbrite.APIKey, EnvEventbriteToken)
	set(&c.Providers.RapidAPI.APIKey, EnvRapidAPIKey)
	set(&c.Providers.RapidAPI.Host, EnvRapidAPIHost)
	set(&c.Providers.PredictHQ.APIKey, EnvPredictHQToken)
	set(&c.Cache.Redis.Addr, EnvRedisAddr)
}

// RateLimits is the per-provider ceiling table for the rate limiter.
func (c *Config) RateLimits() map[string]ratelimit.Limit {
	return map[string]ratelimit.Limit{
		provider.NameTicketmaster: c.Providers.Ticketmaster.RateLimit,
		provider.NameEventbrite:   c.Providers.Eventbrite.RateLimit,
		provider.NameRapidAPI:     c.Providers.RapidAPI.RateLimit,
		provider.NamePredictHQ:    c.Providers.PredictHQ.RateLimit,
		provider.NameICS:          c.ICSRateLimit,
	}
}

// ProviderSettings is the adapter construction input. rec is told about
// every outbound request.
func (c *Config) ProviderSettings(rec httpx.Recorder) provider.Settings {
	return provider.Settings{
		Ticketmaster: c.Providers.Ticketmaster.Config,
		Eventbrite:   c.Providers.Eventbrite.Config,
		RapidAPI:     c.Providers.RapidAPI.Config,
		PredictHQ:    c.Providers.PredictHQ.Config,
		Feeds:        c.ICS,
		ICSCacheDir:  c.ICSCacheDir,
		Recorder:     rec,
	}
}

// AggregateOptions maps the search section onto aggregator options.
func (c *Config) AggregateOptions() aggregate.Options {
	s := c.Search
	return aggregate.Options{
		ResultTTL:        s.ResultTTL,
		DetailsTTL:       s.DetailsTTL,
		FeaturedTTL:      s.FeaturedTTL,
		ProviderTimeout:  s.ProviderTimeout,
		DefaultSize:      s.DefaultSize,
		MaxSize:          s.MaxSize,
		MaxRadius:        s.MaxRadius,
		FeaturedLocation: s.FeaturedLocation,
	}
}

// Load loads configuration from the given YAML path, then applies
// environment overrides.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if cfg != nil {
		cfg.ApplyEnv(os.Getenv)
	}
	return cfg, err
}

func load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename, creating
// the parent directory (0700) and leaving the file at 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventscout-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
