package ratelimit

import (
	"sync"
	"time"
)

// Limit is a request ceiling over a rolling window.
type Limit struct {
	Requests int           `yaml:"limit" json:"limit"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// Limiter keeps one sliding window of request timestamps per provider.
// Check never blocks: a provider over its ceiling is simply not called.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string][]time.Time
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(limits map[string]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		limits:  make(map[string]Limit, len(limits)),
		windows: make(map[string][]time.Time, len(limits)),
		now:     time.Now,
	}
	for name, lim := range limits {
		l.limits[name] = lim
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// SetLimit installs or replaces the ceiling for provider.
func (l *Limiter) SetLimit(provider string, lim Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[provider] = lim
}

// Check prunes timestamps that left the window and reports whether one more
// request fits. Providers without a configured limit are always allowed.
func (l *Limiter) Check(provider string) bool {
	return l.CheckN(provider, 1)
}

// CheckN is Check for a call that will issue n requests, such as a search
// fanned out over several queries of the same provider.
func (l *Limiter) CheckN(provider string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[provider]
	if !ok || lim.Requests <= 0 || lim.Window <= 0 {
		return true
	}
	return len(l.prune(provider, lim))+max(n, 1) <= lim.Requests
}

// Record notes one outbound request. Call it exactly once per real call.
func (l *Limiter) Record(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows[provider] = append(l.windows[provider], l.now())
}

// Remaining reports how many requests the provider has left in its window,
// or -1 when it is unlimited.
func (l *Limiter) Remaining(provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[provider]
	if !ok || lim.Requests <= 0 || lim.Window <= 0 {
		return -1
	}
	return max(0, lim.Requests-len(l.prune(provider, lim)))
}

// prune drops timestamps at or before now-window. Timestamps are appended in
// order, so the survivors are a suffix. Caller holds l.mu.
func (l *Limiter) prune(provider string, lim Limit) []time.Time {
	ts := l.windows[provider]
	cutoff := l.now().Add(-lim.Window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		ts = append(ts[:0:0], ts[i:]...)
		l.windows[provider] = ts
	}
	return ts
}
