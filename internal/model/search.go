package model

import (
	"slices"
	"time"
)

// SortOrder selects how search results are ordered.
type SortOrder string

const (
	SortDate         SortOrder = "date"
	SortDistance     SortOrder = "distance"
	SortPopularity   SortOrder = "popularity"
	SortPrice        SortOrder = "price"
	SortAlphabetical SortOrder = "alphabetical"
	SortRelevance    SortOrder = "relevance"
)

// Valid reports whether s is a known order. Empty means relevance.
func (s SortOrder) Valid() bool {
	switch s {
	case "", SortDate, SortDistance, SortPopularity, SortPrice, SortAlphabetical, SortRelevance:
		return true
	}
	return false
}

// PriceRange bounds the numeric price in dollars, inclusive.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DateRange bounds the event start, inclusive.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SearchParams is the input to a federated search. Field order is part of
// the cache key, so append new fields at the end.
type SearchParams struct {
	Keyword string `json:"keyword,omitempty"`
	// Location is free text ("Austin, TX") or "lat,lng".
	Location    string       `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	// Radius is in miles. Zero lets each provider pick its default.
	Radius float64 `json:"radius,omitempty"`

	StartDateTime time.Time `json:"startDateTime,omitempty"`
	EndDateTime   time.Time `json:"endDateTime,omitempty"`

	Categories []string `json:"categories,omitempty"`

	// Page is zero-based.
	Page int       `json:"page"`
	Size int       `json:"size"`
	Sort SortOrder `json:"sort,omitempty"`

	PriceRange *PriceRange `json:"priceRange,omitempty"`
	DateRange  *DateRange  `json:"dateRange,omitempty"`
}

// SearchResult is the response envelope of a federated search.
type SearchResult struct {
	Events     []CanonicalEvent `json:"events"`
	TotalCount int              `json:"totalCount"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	// Sources lists the providers that returned at least one raw event.
	Sources []string `json:"sources"`
	// Error is a warning when some providers failed, or the reason the
	// result is empty.
	Error        string `json:"error,omitempty"`
	Cached       bool   `json:"cached"`
	ResponseTime int64  `json:"responseTime"`
}

// Point is the query origin: explicit coordinates, else a "lat,lng"
// location string, else nil.
func (p SearchParams) Point() *Coordinates {
	if p.Coordinates != nil {
		c := *p.Coordinates
		return &c
	}
	if c, ok := ParseCoordinates(p.Location); ok {
		return &c
	}
	return nil
}

// Clone returns a copy whose Events and Sources can be changed without
// affecting r.
func (r SearchResult) Clone() SearchResult {
	r.Events = CloneEvents(r.Events)
	if r.Sources != nil {
		r.Sources = slices.Clone(r.Sources)
	}
	return r
}
