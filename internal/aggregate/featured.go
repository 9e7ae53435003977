package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"eventscout/internal/extract"
	appLog "eventscout/internal/log"
	"eventscout/internal/model"
)

const (
	DefaultFeaturedLimit = 12
	MaxFeaturedLimit     = 50
)

// featuredCategories are the high-signal searches behind the featured list.
var featuredCategories = []string{
	extract.CategoryMusic,
	extract.CategorySports,
	extract.CategoryArts,
	extract.CategoryComedy,
	extract.CategoryFestival,
}

// GetFeaturedEvents returns the most popular upcoming events across a fixed
// set of category searches, most attended first. limit <= 0 means the
// default; it is capped at MaxFeaturedLimit.
func (s *Service) GetFeaturedEvents(ctx context.Context, limit int) ([]model.CanonicalEvent, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	limit = min(limit, MaxFeaturedLimit)

	key := fmt.Sprintf("featured:%d", limit)
	events, err := s.opts.Caches.Featured.GetOrSet(ctx, key, func(ctx context.Context) ([]model.CanonicalEvent, error) {
		events := s.collectFeatured(ctx, limit)
		if len(events) == 0 {
			return nil, errNothingFeatured
		}
		return events, nil
	}, s.opts.FeaturedTTL)
	if errors.Is(err, errNothingFeatured) {
		return []model.CanonicalEvent{}, nil
	}
	if err != nil {
		return nil, err
	}
	return model.CloneEvents(events), nil
}

// WarmFeatured recomputes the default featured list ahead of requests.
func (s *Service) WarmFeatured(ctx context.Context) {
	key := fmt.Sprintf("featured:%d", DefaultFeaturedLimit)
	events := s.collectFeatured(ctx, DefaultFeaturedLimit)
	if len(events) == 0 {
		appLog.Warn("featured warmup found nothing")
		return
	}
	s.opts.Caches.Featured.Set(key, events, s.opts.FeaturedTTL)
	appLog.Info("featured warmed", "events", len(events))
}

// errNothingFeatured keeps an empty featured list out of the cache.
var errNothingFeatured = errors.New("no featured events")

func (s *Service) collectFeatured(ctx context.Context, limit int) []model.CanonicalEvent {
	results := make([][]model.CanonicalEvent, len(featuredCategories))
	var g errgroup.Group
	for i, c := range featuredCategories {
		g.Go(func() error {
			res, err := s.Search(ctx, model.SearchParams{
				Location:   s.opts.FeaturedLocation,
				Categories: []string{c},
				Size:       limit,
				Sort:       model.SortPopularity,
			})
			if err != nil {
				appLog.Warn("featured strategy failed", "category", c, "err", err)
				return nil
			}
			results[i] = res.Events
			return nil
		})
	}
	_ = g.Wait()

	var merged []model.CanonicalEvent
	for _, r := range results {
		merged = append(merged, r...)
	}
	merged = Dedup(merged)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Attendees > merged[j].Attendees })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
