// Package aggregate fans a search out to every provider adapter, merges
// what comes back, and filters, sorts and pages the result. Results are
// cached; a provider failure degrades the result instead of failing it.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"eventscout/internal/cache"
	"eventscout/internal/httpx"
	appLog "eventscout/internal/log"
	"eventscout/internal/metrics"
	"eventscout/internal/model"
	"eventscout/internal/provider"
	"eventscout/internal/ratelimit"
)

const (
	DefaultResultTTL       = 5 * time.Minute
	DefaultDetailsTTL      = 30 * time.Minute
	DefaultRefTTL          = 24 * time.Hour
	DefaultFeaturedTTL     = 15 * time.Minute
	DefaultProviderTimeout = 30 * time.Second
	DefaultPageSize        = 20
	MaxPageSize            = 100
	DefaultMaxRadius       = 100 // miles
)

const (
	msgNoSources  = "No events available: no event sources are configured or all are at their rate limit."
	msgAllFailed  = "No events available: every event source failed"
	msgNoEvents   = "No events available for this search."
	msgNoMatches  = "No events matched your filters."
	msgSearchFail = "Search failed. Please try again."
	msgPartial    = "Some event sources are unavailable: "
)

// Options wires a Service. Zero durations and sizes take the defaults above.
type Options struct {
	// Limiter gates the fan-out. Nil means no provider is ever skipped.
	Limiter *ratelimit.Limiter
	// Caches holds the result, details, ref and featured caches. Nil gives
	// a fresh in-memory set.
	Caches  *cache.Manager
	Metrics *metrics.Registry

	ResultTTL       time.Duration
	DetailsTTL      time.Duration
	RefTTL          time.Duration
	FeaturedTTL     time.Duration
	ProviderTimeout time.Duration

	DefaultSize int
	MaxSize     int
	MaxRadius   float64

	// FeaturedLocation scopes the featured strategies, empty for none.
	FeaturedLocation string

	Now func() time.Time
}

// Service is the search aggregator. It is safe for concurrent use.
type Service struct {
	adapters []provider.Adapter
	byName   map[string]provider.Adapter
	opts     Options
}

func New(adapters []provider.Adapter, opts Options) *Service {
	if opts.Caches == nil {
		opts.Caches = cache.NewMemoryManager(cache.Options{Metrics: opts.Metrics})
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if opts.DetailsTTL <= 0 {
		opts.DetailsTTL = DefaultDetailsTTL
	}
	if opts.RefTTL <= 0 {
		opts.RefTTL = DefaultRefTTL
	}
	if opts.FeaturedTTL <= 0 {
		opts.FeaturedTTL = DefaultFeaturedTTL
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.DefaultSize <= 0 {
		opts.DefaultSize = DefaultPageSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = MaxPageSize
	}
	if opts.DefaultSize > opts.MaxSize {
		opts.DefaultSize = opts.MaxSize
	}
	if opts.MaxRadius <= 0 {
		opts.MaxRadius = DefaultMaxRadius
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{adapters: adapters, byName: make(map[string]provider.Adapter, len(adapters)), opts: opts}
	for _, a := range adapters {
		s.byName[a.Name()] = a
	}
	return s
}

// Caches exposes the cache set, for stats and maintenance.
func (s *Service) Caches() *cache.Manager { return s.opts.Caches }

// Providers lists the adapter names in fan-out order.
func (s *Service) Providers() []string {
	names := make([]string, len(s.adapters))
	for i, a := range s.adapters {
		names[i] = a.Name()
	}
	return names
}

// SearchEvents is Search for callers that only render results: an invalid
// query becomes an empty result with a generic message instead of an error.
func (s *Service) SearchEvents(ctx context.Context, p model.SearchParams) model.SearchResult {
	start := s.opts.Now()
	res, err := s.Search(ctx, p)
	if err == nil {
		return res
	}
	appLog.Warn("search rejected", "err", err)
	msg := msgSearchFail
	if errors.Is(err, ErrInvalidParams) {
		msg = err.Error()
	}
	return model.SearchResult{
		Events:       []model.CanonicalEvent{},
		Page:         p.Page,
		Sources:      []string{},
		Error:        msg,
		ResponseTime: s.opts.Now().Sub(start).Milliseconds(),
	}
}

// Search runs one federated search. Only invalid parameters produce an
// error; provider trouble is reported in SearchResult.Error.
func (s *Service) Search(ctx context.Context, p model.SearchParams) (model.SearchResult, error) {
	start := s.opts.Now()
	p, err := s.normalize(p)
	if err != nil {
		return model.SearchResult{}, err
	}
	key, err := cacheKey(p)
	if err != nil {
		return model.SearchResult{}, err
	}

	if res, ok := s.opts.Caches.Search.Get(key); ok {
		res = res.Clone()
		res.Cached = true
		took := s.opts.Now().Sub(start)
		res.ResponseTime = took.Milliseconds()
		s.opts.Metrics.ObserveSearch(true, took)
		return res, nil
	}

	outcomes := s.fanOut(ctx, p)

	var (
		merged   []model.CanonicalEvent
		sources  = []string{}
		failures []string
		ok       int
	)
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, fmt.Sprintf("%s (%s)", o.name, reason(o.err)))
			continue
		}
		ok++
		if len(o.events) > 0 {
			sources = append(sources, o.name)
			merged = append(merged, o.events...)
		}
	}

	unique := Dedup(merged)
	filtered := Filter(unique, p)
	Sort(filtered, p.Sort, p.Point())
	page, pages := Paginate(filtered, p.Page, p.Size)

	res := model.SearchResult{
		Events:     page,
		TotalCount: len(filtered),
		Page:       p.Page,
		TotalPages: pages,
		Sources:    sources,
	}
	switch {
	case len(outcomes) == 0:
		res.Error = msgNoSources
	case ok == 0:
		res.Error = msgAllFailed + ": " + strings.Join(failures, ", ")
	case len(failures) > 0:
		res.Error = msgPartial + strings.Join(failures, ", ")
	}
	if len(merged) == 0 && res.Error == "" {
		res.Error = msgNoEvents
	} else if len(filtered) == 0 && len(merged) > 0 && res.Error == "" {
		res.Error = msgNoMatches
	}

	if res.TotalCount > 0 {
		s.opts.Caches.Search.Set(key, res.Clone(), s.opts.ResultTTL)
		s.remember(filtered)
	}

	took := s.opts.Now().Sub(start)
	res.ResponseTime = took.Milliseconds()
	s.opts.Metrics.ObserveSearch(false, took)
	appLog.Info("search",
		"keyword", p.Keyword,
		"location", p.Location,
		"raw", len(merged),
		"unique", len(unique),
		"matched", len(filtered),
		"sources", sources,
		"failed", len(failures),
		"took", took,
	)
	return res, nil
}

// remember feeds the details caches so any listed event can be opened.
func (s *Service) remember(events []model.CanonicalEvent) {
	for _, e := range events {
		s.opts.Caches.Details.Set(eventKey(e.ID), e.Clone(), s.opts.DetailsTTL)
		if e.Source != "" && e.SourceID != "" {
			s.opts.Caches.Refs.Set(refKey(e.ID), model.EventRef{Provider: e.Source, NativeID: e.SourceID}, s.opts.RefTTL)
		}
	}
}

type outcome struct {
	name   string
	events []model.CanonicalEvent
	err    error
}

// fanOut calls every eligible adapter concurrently and waits for all of
// them. Disabled and rate-limited adapters are skipped without a call.
// Calls are detached from ctx so an abandoned search still fills the cache;
// each is bounded by ProviderTimeout.
func (s *Service) fanOut(ctx context.Context, p model.SearchParams) []outcome {
	var eligible []provider.Adapter
	for _, a := range s.adapters {
		switch {
		case !a.Enabled():
			appLog.Debug("provider skipped", "provider", a.Name(), "reason", "not configured")
			s.opts.Metrics.ProviderSkip(a.Name(), "not_configured")
		case s.opts.Limiter != nil && !s.opts.Limiter.CheckN(a.Name(), provider.RequestCost(a, p)):
			appLog.Warn("provider skipped", "provider", a.Name(), "reason", "rate limited")
			s.opts.Metrics.ProviderSkip(a.Name(), "rate_limited")
		default:
			eligible = append(eligible, a)
		}
	}

	out := make([]outcome, len(eligible))
	base := context.WithoutCancel(ctx)
	// Failures live in out; every Go func returns nil so Wait joins all.
	var g errgroup.Group
	for i, a := range eligible {
		g.Go(func() error {
			out[i] = s.call(base, a, p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) call(ctx context.Context, a provider.Adapter, p model.SearchParams) (o outcome) {
	o.name = a.Name()
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	defer cancel()

	start := s.opts.Now()
	defer func() {
		if r := recover(); r != nil {
			o.events, o.err = nil, fmt.Errorf("%s: panic: %v", o.name, r)
		}
		took := s.opts.Now().Sub(start)
		result := "ok"
		if o.err != nil {
			result = "error"
			appLog.Warn("provider failed", "provider", o.name, "took", took, "err", o.err)
		} else {
			appLog.Debug("provider returned", "provider", o.name, "events", len(o.events), "took", took)
		}
		s.opts.Metrics.ObserveProvider(o.name, result, took)
	}()

	o.events, o.err = a.Search(ctx, p)
	if o.err != nil {
		o.events = nil
	}
	return o
}

// reason turns a provider error into the short text shown to users.
func reason(err error) string {
	switch {
	case errors.Is(err, httpx.ErrUnauthorized), errors.Is(err, provider.ErrNotConfigured):
		return "authentication failed"
	case errors.Is(err, httpx.ErrRateLimited):
		return "rate limited"
	case errors.Is(err, httpx.ErrCircuitOpen):
		return "temporarily disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return "request failed"
}

func eventKey(id int64) string { return fmt.Sprintf("event:%d", id) }
func refKey(id int64) string   { return fmt.Sprintf("ref:%d", id) }
