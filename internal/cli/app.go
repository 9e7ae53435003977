package cli

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"eventscout/internal/aggregate"
	"eventscout/internal/cache"
	"eventscout/internal/config"
	appLog "eventscout/internal/log"
	"eventscout/internal/metrics"
	"eventscout/internal/provider"
	"eventscout/internal/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app is everything a subcommand needs, built from the config file.
type app struct {
	cfg     *config.Config
	metrics *metrics.Registry
	limiter *ratelimit.Limiter
	caches  *cache.Manager
	svc     *aggregate.Service
}

// newApp loads the config and builds the service. One-shot commands use an
// in-memory cache so they never contend with a running server for the
// pebble lock.
func newApp(ctx context.Context, g *GlobalFlags, oneShot bool) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", g.Config, err)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := appLog.Init(cfg.Log); err != nil {
		return nil, err
	}

	cacheCfg := cfg.Cache.Config
	if oneShot {
		cacheCfg.Backend = cache.BackendMemory
	}

	reg := metrics.NewRegistry()
	caches, err := cache.NewManager(ctx, cacheCfg, reg)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimits())
	adapters := provider.NewAll(cfg.ProviderSettings(limiter))

	opts := cfg.AggregateOptions()
	opts.Limiter = limiter
	opts.Caches = caches
	opts.Metrics = reg

	a := &app{
		cfg:     cfg,
		metrics: reg,
		limiter: limiter,
		caches:  caches,
		svc:     aggregate.New(adapters, opts),
	}
	var enabled []string
	for _, ad := range adapters {
		if ad.Enabled() {
			enabled = append(enabled, ad.Name())
		}
	}
	appLog.Info("eventscout ready", "providers", enabled, "cache", cacheCfg.Backend, "ics_feeds", len(cfg.ICS))
	return a, nil
}

func (a *app) Close() {
	if err := a.caches.Close(); err != nil {
		appLog.Error("cache close failed", err)
	}
	appLog.Sync()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
