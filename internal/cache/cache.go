package cache

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	appLog "eventscout/internal/log"
	"eventscout/internal/metrics"
)

const (
	defaultMaxSize       = 1000
	defaultTTL           = 5 * time.Minute
	defaultSampleSize    = 20
	defaultScanThreshold = 100
)

// Options configures a Cache. Zero values pick sensible defaults.
type Options struct {
	// Name labels log lines and metrics ("search", "details", ...).
	Name       string
	MaxSize    int
	DefaultTTL time.Duration
	// SampleSize is how many random entries are compared when evicting
	// from a cache larger than ScanThreshold.
	SampleSize    int
	ScanThreshold int
	Metrics       *metrics.Registry
	// Now and Rand are injectable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hitRate"`
}

// Cache is a TTL cache with approximate least-frequently-used eviction in
// front of a pluggable Store. Expired entries are never returned; they are
// dropped lazily on read or by Sweep.
//
// Per-entry hit counts accumulate in memory and reach the store only on
// Sweep and Close, so a read never writes to a persistent backend.
type Cache[T any] struct {
	mu      sync.Mutex
	store   Store[T]
	opts    Options
	hits    int64
	misses  int64
	pending map[string]int64
	group   singleflight.Group
}

func New[T any](store Store[T], opts Options) *Cache[T] {
	if opts.Name == "" {
		opts.Name = "cache"
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultTTL
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = defaultSampleSize
	}
	if opts.ScanThreshold <= 0 {
		opts.ScanThreshold = defaultScanThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if store == nil {
		store = NewMemoryStore[T]()
	}
	return &Cache[T]{store: store, opts: opts, pending: make(map[string]int64)}
}

// Name is the label given in Options.
func (c *Cache[T]) Name() string { return c.opts.Name }

// Get returns the value for key if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		c.misses++
		c.opts.Metrics.CacheLookup(c.opts.Name, false)
		var zero T
		return zero, false
	}
	c.hits++
	c.opts.Metrics.CacheLookup(c.opts.Name, true)

	c.pending[key]++
	return e.Data, true
}

// lookup loads key and evicts it when expired. Caller holds c.mu.
func (c *Cache[T]) lookup(key string) (Entry[T], bool) {
	e, ok, err := c.store.Load(key)
	if err != nil {
		appLog.Warn("cache read failed", "cache", c.opts.Name, "key", key, "err", err)
		return Entry[T]{}, false
	}
	if !ok {
		return Entry[T]{}, false
	}
	if e.Expired(c.opts.Now()) {
		c.remove(key)
		return Entry[T]{}, false
	}
	return e, true
}

// Set stores value under key. ttl <= 0 uses the default TTL. Storage
// failures (quota, I/O) are logged and the write is dropped.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists, err := c.store.Load(key)
	if err != nil {
		// Treat it as present: an unreadable entry is overwritten below, and
		// evicting a neighbour for it would be wasted.
		appLog.Warn("cache read failed", "cache", c.opts.Name, "key", key, "err", err)
		exists = true
	}
	if !exists && c.store.Len() >= c.opts.MaxSize {
		c.evictOne()
	}

	e := Entry[T]{
		Data:      value,
		Timestamp: c.opts.Now(),
		TTL:       ttl,
		Key:       key,
	}
	if err := c.store.Save(e); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			appLog.Warn("cache quota exceeded, skipping write", "cache", c.opts.Name, "key", key)
		} else {
			appLog.Error("cache write failed", err, "cache", c.opts.Name, "key", key)
		}
		return
	}
	delete(c.pending, key)
	c.opts.Metrics.CacheSize(c.opts.Name, c.store.Len())
}

// Delete removes key if present.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
}

func (c *Cache[T]) remove(key string) {
	delete(c.pending, key)
	if err := c.store.Remove(key); err != nil {
		appLog.Warn("cache delete failed", "cache", c.opts.Name, "key", key, "err", err)
	}
	c.opts.Metrics.CacheSize(c.opts.Name, c.store.Len())
}

// Clear drops every entry and resets the counters.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Clear(); err != nil {
		appLog.Error("cache clear failed", err, "cache", c.opts.Name)
	}
	c.hits, c.misses = 0, 0
	c.pending = make(map[string]int64)
	c.opts.Metrics.CacheSize(c.opts.Name, 0)
}

// GetOrSet returns the cached value or calls factory once per key, even
// under concurrent callers, and caches its result. Factory errors are
// returned and nothing is cached.
func (c *Cache[T]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		e, ok := c.lookup(key)
		c.mu.Unlock()
		if ok {
			return e.Data, nil
		}
		val, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, val, ttl)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Keys lists managed keys, expired ones included until swept.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := c.store.Keys()
	if err != nil {
		appLog.Warn("cache key listing failed", "cache", c.opts.Name, "err", err)
		return nil
	}
	return keys
}

func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Hits: c.hits, Misses: c.misses, Size: c.store.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Sweep removes every expired entry, persists accumulated hit counts of the
// survivors and returns how many went.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.store.Keys()
	if err != nil {
		appLog.Warn("cache sweep failed", "cache", c.opts.Name, "err", err)
		return 0
	}
	now := c.opts.Now()
	removed := 0
	for _, k := range keys {
		e, ok, err := c.store.Load(k)
		if err != nil || !ok || e.Expired(now) {
			c.remove(k)
			removed++
			continue
		}
		c.persistHits(e)
	}
	if removed > 0 {
		appLog.Debug("cache sweep", "cache", c.opts.Name, "removed", removed, "size", c.store.Len())
	}
	return removed
}

// Close persists pending hit counts and releases the backing store.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.pending {
		if e, ok, err := c.store.Load(k); err == nil && ok {
			c.persistHits(e)
		}
	}
	return c.store.Close()
}

// persistHits folds the in-memory hit count of e into the store. Caller
// holds c.mu.
func (c *Cache[T]) persistHits(e Entry[T]) {
	n := c.pending[e.Key]
	if n == 0 {
		return
	}
	e.Hits += n
	if err := c.store.Save(e); err != nil {
		appLog.Warn("cache hit count not persisted", "cache", c.opts.Name, "key", e.Key, "err", err)
		return
	}
	delete(c.pending, e.Key)
}

// hitCount is the stored count plus hits not yet persisted. Caller holds c.mu.
func (c *Cache[T]) hitCount(e Entry[T]) int64 {
	return e.Hits + c.pending[e.Key]
}

// evictOne removes the entry with the fewest hits, oldest first on ties.
// Small caches are scanned fully; large ones only compare a random sample.
// Caller holds c.mu.
func (c *Cache[T]) evictOne() {
	keys, err := c.store.Keys()
	if err != nil || len(keys) == 0 {
		return
	}
	candidates := keys
	if len(keys) > c.opts.ScanThreshold {
		candidates = sample(c.opts.Rand, keys, c.opts.SampleSize)
	}

	now := c.opts.Now()
	var (
		victim   string
		best     Entry[T]
		bestHits int64
		found    bool
	)
	for _, k := range candidates {
		e, ok, err := c.store.Load(k)
		if err != nil || !ok || e.Expired(now) {
			// Dead entries are the cheapest victims.
			victim, found = k, true
			break
		}
		h := c.hitCount(e)
		if !found || h < bestHits || (h == bestHits && e.Timestamp.Before(best.Timestamp)) {
			victim, best, bestHits, found = k, e, h, true
		}
	}
	if !found {
		return
	}
	c.remove(victim)
	c.opts.Metrics.CacheEvicted(c.opts.Name)
	appLog.Debug("cache evicted", "cache", c.opts.Name, "key", victim)
}

// sample picks n distinct keys with a partial Fisher-Yates shuffle.
func sample(r *rand.Rand, keys []string, n int) []string {
	if n >= len(keys) {
		return keys
	}
	cp := append([]string(nil), keys...)
	for i := range n {
		j := i + r.Intn(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:n]
}
