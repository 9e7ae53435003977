// Package provider holds one adapter per upstream event source. Every
// adapter turns a SearchParams into the provider's own query, calls it
// through httpx, and maps the native records onto model.CanonicalEvent.
//
// Adapters report failure as an error value and never panic on bad
// upstream data; the aggregator logs the error and treats the provider as
// having returned nothing.
package provider

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eventscout/internal/extract"
	"eventscout/internal/model"
)

// ErrNotConfigured is returned by adapters whose credentials are missing.
var ErrNotConfigured = errors.New("provider not configured")

const (
	defaultRadiusMiles = 25
	defaultHorizon     = 6 // months
	maxFetch           = 100
	minFetch           = 20
)

// Adapter is one upstream event source.
type Adapter interface {
	Name() string
	// Enabled reports whether the adapter is switched on and has the
	// credentials it needs.
	Enabled() bool
	Search(ctx context.Context, params model.SearchParams) ([]model.CanonicalEvent, error)
}

// Detailer is implemented by adapters that can look up a single event by
// the provider's own id.
type Detailer interface {
	Details(ctx context.Context, nativeID string) (*model.CanonicalEvent, error)
}

// RequestCoster is implemented by adapters whose Search issues more than
// one upstream request, so the rate limit can be checked for all of them.
type RequestCoster interface {
	RequestCost(params model.SearchParams) int
}

// RequestCost is the number of requests a search against a will send.
func RequestCost(a Adapter, p model.SearchParams) int {
	if c, ok := a.(RequestCoster); ok {
		return max(1, c.RequestCost(p))
	}
	return 1
}

// Config is the per-provider section of the configuration file.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	// APIKey is the API key or private token, whichever the provider uses.
	APIKey string `yaml:"api_key"`
	// Host is the RapidAPI host header value.
	Host string `yaml:"host,omitempty"`
	// DefaultRadius in miles, used when a search has a point but no radius.
	DefaultRadius float64 `yaml:"default_radius"`
}

func (c Config) radius(p model.SearchParams) float64 {
	switch {
	case p.Radius > 0:
		return p.Radius
	case c.DefaultRadius > 0:
		return c.DefaultRadius
	}
	return defaultRadiusMiles
}

// Window returns the date range to request. It never starts before now;
// without an upper bound it ends six months after the start.
func Window(p model.SearchParams, now time.Time) (from, to time.Time) {
	from = now
	if p.DateRange != nil && p.DateRange.Start.After(from) {
		from = p.DateRange.Start
	}
	if p.StartDateTime.After(from) {
		from = p.StartDateTime
	}

	for _, end := range []time.Time{p.EndDateTime, dateRangeEnd(p)} {
		if !end.IsZero() && (to.IsZero() || end.Before(to)) {
			to = end
		}
	}
	if to.IsZero() {
		to = from.AddDate(0, defaultHorizon, 0)
	}
	if to.Before(from) {
		to = from
	}
	return from, to
}

func dateRangeEnd(p model.SearchParams) time.Time {
	if p.DateRange == nil {
		return time.Time{}
	}
	return p.DateRange.End
}

// fetchSize is how many upstream records to ask for so that the requested
// page can be filled after dedup and filtering.
func fetchSize(p model.SearchParams) int {
	n := (p.Page + 1) * p.Size
	if n < minFetch {
		n = minFetch
	}
	if n > maxFetch {
		n = maxFetch
	}
	return n
}

// city is the first comma-separated part of a free-text location.
func city(location string) string {
	c, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(c)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func endpoint(base, path string, q url.Values) string {
	u := strings.TrimRight(base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// coordinates validates a provider lat/lng pair. 0,0 is treated as missing.
func coordinates(lat, lng float64) *model.Coordinates {
	if math.IsNaN(lat) || math.IsNaN(lng) || (lat == 0 && lng == 0) ||
		lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}
	return &model.Coordinates{Lat: lat, Lng: lng}
}

// attendance fills in the attendee count, synthesizing one when the
// provider had none.
func attendance(e *model.CanonicalEvent, n int) {
	if n > 0 {
		e.Attendees = n
		return
	}
	e.Attendees = extract.EstimateAttendees(e.ID)
	e.AttendeesEstimated = true
}

// schedule sets the display date and time plus the parsed start.
func schedule(e *model.CanonicalEvent, start time.Time, dateOnly bool) {
	e.StartTime = start
	e.Date = extract.FormatDate(start)
	e.Time = extract.FormatTime(start, dateOnly)
}

// ticketLinks builds the booking links, skipping empty ones. Never nil.
func ticketLinks(source string, links ...string) []model.TicketLink {
	out := make([]model.TicketLink, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, model.TicketLink{Source: source, Link: l})
	}
	return out
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func formatMiles(r float64) string {
	return strconv.FormatFloat(math.Round(r), 'f', 0, 64)
}

// flexFloat decodes a JSON number or a numeric string; anything else is NaN.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = flexFloat(math.NaN())
		return nil
	}
	*f = flexFloat(v)
	return nil
}

func (f flexFloat) value() float64 { return float64(f) }
