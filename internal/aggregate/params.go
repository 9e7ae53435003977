package aggregate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"eventscout/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = errors.New("invalid search parameters")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// normalize validates p and returns the canonical form used for both the
// provider calls and the cache key.
func (s *Service) normalize(p model.SearchParams) (model.SearchParams, error) {
	p.Keyword = strings.TrimSpace(p.Keyword)
	p.Location = strings.TrimSpace(p.Location)

	if p.Page < 0 {
		return p, invalid("page must not be negative")
	}
	if p.Size <= 0 {
		p.Size = s.opts.DefaultSize
	}
	if p.Size > s.opts.MaxSize {
		p.Size = s.opts.MaxSize
	}
	if !p.Sort.Valid() {
		return p, invalid("unknown sort %q", p.Sort)
	}
	if p.Sort == "" {
		p.Sort = model.SortRelevance
	}

	if p.Coordinates != nil {
		c := *p.Coordinates
		if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
			return p, invalid("coordinates out of range")
		}
		p.Coordinates = &c
	}
	if p.Radius < 0 || math.IsNaN(p.Radius) {
		return p, invalid("radius must not be negative")
	}
	if p.Radius > s.opts.MaxRadius {
		p.Radius = s.opts.MaxRadius
	}

	if pr := p.PriceRange; pr != nil {
		if pr.Min < 0 || pr.Max < pr.Min {
			return p, invalid("price range [%g, %g] is empty", pr.Min, pr.Max)
		}
		cp := *pr
		p.PriceRange = &cp
	}
	if dr := p.DateRange; dr != nil {
		if !dr.End.IsZero() && dr.End.Before(dr.Start) {
			return p, invalid("date range ends before it starts")
		}
		cp := *dr
		p.DateRange = &cp
	}
	if !p.StartDateTime.IsZero() && !p.EndDateTime.IsZero() && p.EndDateTime.Before(p.StartDateTime) {
		return p, invalid("endDateTime before startDateTime")
	}

	cats := make([]string, 0, len(p.Categories))
	seen := map[string]bool{}
	for _, c := range p.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[strings.ToLower(c)] {
			continue
		}
		seen[strings.ToLower(c)] = true
		cats = append(cats, c)
	}
	sort.Strings(cats)
	p.Categories = cats
	if len(p.Categories) == 0 {
		p.Categories = nil
	}
	return p, nil
}

// cacheKey hashes the normalized params. Struct fields always serialize in
// declaration order, so equal params give equal keys.
func cacheKey(p model.SearchParams) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	sum := sha256.Sum256(b)
	return "search:" + hex.EncodeToString(sum[:16]), nil
}
