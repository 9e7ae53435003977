package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"eventscout/internal/extract"
	"eventscout/internal/model"
)

const (
	earthRadiusKm = 6371.0
	kmPerMile     = 1.609344
	minDescLen    = 50
)

// boilerplate descriptions carry no information.
var boilerplate = map[string]bool{
	"tba":                           true,
	"tbd":                           true,
	"n/a":                           true,
	"to be announced":               true,
	"coming soon":                   true,
	"details coming soon":           true,
	"more details coming soon":      true,
	"description coming soon":       true,
	"more information coming soon":  true,
	"no description":                true,
	"no description available":      true,
	"no description provided":       true,
	"description not available":     true,
	"event description coming soon": true,
}

// IdentityKey is the cross-provider identity of an event: different
// providers give the same show unrelated ids, so ids are not compared.
func IdentityKey(e model.CanonicalEvent) string {
	return strings.ToLower(strings.TrimSpace(e.Title)) + "|" + strings.TrimSpace(e.Date) + "|" + strings.ToLower(strings.TrimSpace(e.Location))
}

// Dedup keeps the first event of every identity, preserving order.
func Dedup(events []model.CanonicalEvent) []model.CanonicalEvent {
	seen := make(map[string]bool, len(events))
	out := make([]model.CanonicalEvent, 0, len(events))
	for _, e := range events {
		k := IdentityKey(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// HasQualityContent reports whether e has both a real picture and a real
// description. Stub listings usually lack one of them.
func HasQualityContent(e model.CanonicalEvent) bool {
	return extract.IsRealImage(e.Image) && isRealDescription(e.Description)
}

func isRealDescription(d string) bool {
	d = strings.TrimSpace(d)
	if len(d) <= minDescLen {
		return false
	}
	norm := strings.ToLower(strings.TrimRight(d, ".!… "))
	return !boilerplate[norm]
}

// Distance is the great-circle distance in kilometres.
func Distance(a, b model.Coordinates) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// withinRadius allows a relative float tolerance so an event exactly on the
// boundary is kept.
func withinRadius(origin model.Coordinates, e model.CanonicalEvent, radiusMiles float64) bool {
	if e.Coordinates == nil {
		return false
	}
	limit := radiusMiles * kmPerMile
	return Distance(origin, *e.Coordinates) <= limit*(1+1e-9)+1e-9
}

// priceAllowed implements the price filter. Unparseable prices pass.
func priceAllowed(price string, r model.PriceRange) bool {
	if extract.IsFree(price) {
		return r.Min == 0
	}
	v, ok := extract.ParsePrice(price)
	if !ok {
		return true
	}
	return v >= r.Min && v <= r.Max
}

// eventStart is the parsed start, falling back to the display date.
func eventStart(e model.CanonicalEvent) (time.Time, bool) {
	if !e.StartTime.IsZero() {
		return e.StartTime, true
	}
	return extract.ParseTime(e.Date, time.UTC)
}

func inDateRange(e model.CanonicalEvent, r model.DateRange) bool {
	t, ok := eventStart(e)
	if !ok {
		return false
	}
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Filter applies the content, geographic, price and date filters of p.
func Filter(events []model.CanonicalEvent, p model.SearchParams) []model.CanonicalEvent {
	origin := p.Point()
	geo := origin != nil && p.Radius > 0

	out := make([]model.CanonicalEvent, 0, len(events))
	for _, e := range events {
		if !HasQualityContent(e) {
			continue
		}
		if geo && !withinRadius(*origin, e, p.Radius) {
			continue
		}
		if p.PriceRange != nil && !priceAllowed(e.Price, *p.PriceRange) {
			continue
		}
		if p.DateRange != nil && !inDateRange(e, *p.DateRange) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Sort orders events in place. Relevance keeps provider order.
func Sort(events []model.CanonicalEvent, order model.SortOrder, origin *model.Coordinates) {
	switch order {
	case model.SortDate:
		sort.SliceStable(events, func(i, j int) bool {
			ti, oki := eventStart(events[i])
			tj, okj := eventStart(events[j])
			if oki != okj {
				return oki
			}
			return ti.Before(tj)
		})
	case model.SortDistance:
		if origin == nil {
			return
		}
		dist := func(e model.CanonicalEvent) float64 {
			if e.Coordinates == nil {
				return math.Inf(1)
			}
			return Distance(*origin, *e.Coordinates)
		}
		sort.SliceStable(events, func(i, j int) bool { return dist(events[i]) < dist(events[j]) })
	case model.SortPopularity:
		sort.SliceStable(events, func(i, j int) bool { return events[i].Attendees > events[j].Attendees })
	case model.SortPrice:
		price := func(e model.CanonicalEvent) float64 {
			if v, ok := extract.ParsePrice(e.Price); ok {
				return v
			}
			return math.Inf(1)
		}
		sort.SliceStable(events, func(i, j int) bool { return price(events[i]) < price(events[j]) })
	case model.SortAlphabetical:
		sort.SliceStable(events, func(i, j int) bool {
			return strings.ToLower(events[i].Title) < strings.ToLower(events[j].Title)
		})
	}
}

// Paginate returns page (zero-based) of size and the page count.
func Paginate(events []model.CanonicalEvent, page, size int) ([]model.CanonicalEvent, int) {
	if size <= 0 {
		return []model.CanonicalEvent{}, 0
	}
	pages := (len(events) + size - 1) / size
	// Compare page numbers first so page*size cannot overflow.
	if page < 0 || page >= pages {
		return []model.CanonicalEvent{}, pages
	}
	start := page * size
	end := min(start+size, len(events))
	return append([]model.CanonicalEvent(nil), events[start:end]...), pages
}
