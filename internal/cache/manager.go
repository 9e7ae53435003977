package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/redis/go-redis/v9"

	appLog "eventscout/internal/log"
	"eventscout/internal/metrics"
	"eventscout/internal/model"
)

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// Config selects and sizes the cache backend.
type Config struct {
	Backend       string      `yaml:"backend"`
	MaxSize       int         `yaml:"max_size"`
	SampleSize    int         `yaml:"sample_size"`
	ScanThreshold int         `yaml:"scan_threshold"`
	PebbleDir     string      `yaml:"pebble_dir"`
	QuotaBytes    int64       `yaml:"quota_bytes"`
	Redis         RedisConfig `yaml:"redis"`
}

// Manager owns the named caches the search service uses, all on one
// backend.
type Manager struct {
	Search   *Cache[model.SearchResult]
	Details  *Cache[model.CanonicalEvent]
	Refs     *Cache[model.EventRef]
	Featured *Cache[[]model.CanonicalEvent]

	closer func() error
}

type backend struct {
	kind  string
	db    *pebble.DB
	redis *redis.Client
	cfg   Config
}

func openStore[T any](b backend, namespace string) (Store[T], error) {
	switch b.kind {
	case BackendPebble:
		return NewPebbleStoreFromDB[T](b.db, namespace, b.cfg.QuotaBytes)
	case BackendRedis:
		ns := namespace
		if b.cfg.Redis.Namespace != "" {
			ns = b.cfg.Redis.Namespace + ":" + namespace
		}
		return NewRedisStore[T](b.redis, ns, b.cfg.Redis.SessionTTL), nil
	default:
		return NewMemoryStore[T](), nil
	}
}

// NewManager opens the configured backend and the caches on top of it.
func NewManager(ctx context.Context, cfg Config, reg *metrics.Registry) (*Manager, error) {
	b := backend{kind: cfg.Backend, cfg: cfg}
	closer := func() error { return nil }

	switch cfg.Backend {
	case "", BackendMemory:
		b.kind = BackendMemory
	case BackendPebble:
		if cfg.PebbleDir == "" {
			return nil, errors.New("cache: pebble backend needs pebble_dir")
		}
		db, err := OpenPebble(cfg.PebbleDir)
		if err != nil {
			return nil, err
		}
		b.db, closer = db, db.Close
	case BackendRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.redis, closer = client, client.Close
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}

	opts := func(name string) Options {
		return Options{
			Name:          name,
			MaxSize:       cfg.MaxSize,
			SampleSize:    cfg.SampleSize,
			ScanThreshold: cfg.ScanThreshold,
			Metrics:       reg,
		}
	}

	m := &Manager{closer: closer}
	fail := func(e error) (*Manager, error) {
		_ = closer()
		return nil, e
	}

	search, err := openStore[model.SearchResult](b, "search")
	if err != nil {
		return fail(err)
	}
	details, err := openStore[model.CanonicalEvent](b, "details")
	if err != nil {
		return fail(err)
	}
	refs, err := openStore[model.EventRef](b, "refs")
	if err != nil {
		return fail(err)
	}
	featured, err := openStore[[]model.CanonicalEvent](b, "featured")
	if err != nil {
		return fail(err)
	}

	m.Search = New(search, opts("search"))
	m.Details = New(details, opts("details"))
	m.Refs = New(refs, opts("refs"))
	m.Featured = New(featured, opts("featured"))
	appLog.Info("cache ready", "backend", b.kind, "max_size", cfg.MaxSize)
	return m, nil
}

// NewMemoryManager is an in-process manager, mostly for tests.
func NewMemoryManager(opts Options) *Manager {
	named := func(name string) Options {
		o := opts
		o.Name = name
		return o
	}
	return &Manager{
		Search:   New[model.SearchResult](nil, named("search")),
		Details:  New[model.CanonicalEvent](nil, named("details")),
		Refs:     New[model.EventRef](nil, named("refs")),
		Featured: New[[]model.CanonicalEvent](nil, named("featured")),
		closer:   func() error { return nil },
	}
}

// Sweep drops expired entries from every cache.
func (m *Manager) Sweep() int {
	start := time.Now()
	n := m.Search.Sweep() + m.Details.Sweep() + m.Refs.Sweep() + m.Featured.Sweep()
	appLog.Debug("cache sweep finished", "removed", n, "duration_ms", time.Since(start).Milliseconds())
	return n
}

// Stats reports every cache by name.
func (m *Manager) Stats() map[string]Stats {
	return map[string]Stats{
		m.Search.Name():   m.Search.Stats(),
		m.Details.Name():  m.Details.Stats(),
		m.Refs.Name():     m.Refs.Stats(),
		m.Featured.Name(): m.Featured.Stats(),
	}
}

// Clear empties every cache.
func (m *Manager) Clear() {
	m.Search.Clear()
	m.Details.Clear()
	m.Refs.Clear()
	m.Featured.Clear()
}

// Close releases the caches and then the shared backend.
func (m *Manager) Close() error {
	return errors.Join(
		m.Search.Close(),
		m.Details.Close(),
		m.Refs.Close(),
		m.Featured.Close(),
		m.closer(),
	)
}
