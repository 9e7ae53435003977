package aggregate

import (
	"context"
	"fmt"

	"eventscout/internal/httpx"
	appLog "eventscout/internal/log"
	"eventscout/internal/model"
	"eventscout/internal/provider"
)

// GetEventDetails returns the event with the given canonical id. Events seen
// by a recent search come from cache; older ones are looked up again at the
// provider that listed them. Unknown ids give nil and no error.
func (s *Service) GetEventDetails(ctx context.Context, id int64) (*model.CanonicalEvent, error) {
	if e, ok := s.opts.Caches.Details.Get(eventKey(id)); ok {
		e = e.Clone()
		return &e, nil
	}
	ref, ok := s.opts.Caches.Refs.Get(refKey(id))
	if !ok {
		return nil, nil
	}
	a, ok := s.byName[ref.Provider]
	if !ok || !a.Enabled() {
		return nil, nil
	}
	d, ok := a.(provider.Detailer)
	if !ok {
		return nil, nil
	}
	if s.opts.Limiter != nil && !s.opts.Limiter.Check(ref.Provider) {
		s.opts.Metrics.ProviderSkip(ref.Provider, "rate_limited")
		return nil, fmt.Errorf("%s: %w", ref.Provider, httpx.ErrRateLimited)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ProviderTimeout)
	defer cancel()
	start := s.opts.Now()
	e, err := d.Details(ctx, ref.NativeID)
	took := s.opts.Now().Sub(start)
	if err != nil {
		s.opts.Metrics.ObserveProvider(ref.Provider, "error", took)
		appLog.Warn("event details failed", "provider", ref.Provider, "id", id, "err", err)
		return nil, fmt.Errorf("event %d: %w", id, err)
	}
	s.opts.Metrics.ObserveProvider(ref.Provider, "ok", took)
	if e == nil {
		return nil, nil
	}
	e.ID = id
	s.opts.Caches.Details.Set(eventKey(id), e.Clone(), s.opts.DetailsTTL)
	return e, nil
}
