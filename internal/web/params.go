package web

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"eventscout/internal/model"
)

const dateOnly = "2006-01-02"

// ParseSearchParams reads a search from query parameters. Only syntax is
// checked here; ranges are validated by the aggregator.
func ParseSearchParams(q url.Values) (model.SearchParams, error) {
	p := model.SearchParams{
		Keyword:  strings.TrimSpace(q.Get("keyword")),
		Location: strings.TrimSpace(q.Get("location")),
		Sort:     model.SortOrder(strings.ToLower(strings.TrimSpace(q.Get("sort")))),
	}

	var err error
	if p.Page, err = intParam(q, "page"); err != nil {
		return p, err
	}
	if p.Size, err = intParam(q, "size"); err != nil {
		return p, err
	}
	if p.Radius, err = floatParam(q, "radius", 0); err != nil {
		return p, err
	}

	switch lat, lng := q.Get("lat"), q.Get("lng"); {
	case lat != "" && lng != "":
		c, ok := model.ParseCoordinates(lat + "," + lng)
		if !ok {
			return p, fmt.Errorf("invalid coordinates %q,%q", lat, lng)
		}
		p.Coordinates = &c
	case lat != "" || lng != "":
		return p, fmt.Errorf("lat and lng must be given together")
	}

	for _, c := range strings.Split(q.Get("categories"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			p.Categories = append(p.Categories, c)
		}
	}

	if p.StartDateTime, err = timeParam(q, "startDateTime", false); err != nil {
		return p, err
	}
	if p.EndDateTime, err = timeParam(q, "endDateTime", true); err != nil {
		return p, err
	}

	if q.Has("minPrice") || q.Has("maxPrice") {
		lo, err := floatParam(q, "minPrice", 0)
		if err != nil {
			return p, err
		}
		hi, err := floatParam(q, "maxPrice", math.MaxFloat64)
		if err != nil {
			return p, err
		}
		p.PriceRange = &model.PriceRange{Min: lo, Max: hi}
	}

	if q.Has("startDate") || q.Has("endDate") {
		start, err := timeParam(q, "startDate", false)
		if err != nil {
			return p, err
		}
		end, err := timeParam(q, "endDate", true)
		if err != nil {
			return p, err
		}
		p.DateRange = &model.DateRange{Start: start, End: end}
	}
	return p, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func floatParam(q url.Values, name string, def float64) (float64, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}

// timeParam accepts RFC 3339 or a plain date. A plain date used as an upper
// bound means the end of that day.
func timeParam(q url.Values, name string, endOfDay bool) (time.Time, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date (YYYY-MM-DD) or RFC 3339 time", name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
