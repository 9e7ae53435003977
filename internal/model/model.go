package model

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Organizer is whoever runs the event, as far as the provider tells us.
type Organizer struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// TicketLink points at a page where the event can be booked.
type TicketLink struct {
	Source string `json:"source"`
	Link   string `json:"link"`
}

// CanonicalEvent is the provider-agnostic event record every adapter
// produces. Apart from IsFavorite it is never mutated after construction.
type CanonicalEvent struct {
	// ID is derived deterministically from the provider's native id.
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`

	// Date and Time are display strings ("Mon, Jul 1, 2024", "7:30 PM").
	Date string `json:"date"`
	Time string `json:"time"`

	// Location is the venue name.
	Location string `json:"location"`
	Address  string `json:"address"`

	// Price is always non-empty: "Free", "$25", "$25 - $50", "Price TBA".
	Price string `json:"price"`

	Image     string    `json:"image"`
	Organizer Organizer `json:"organizer"`

	Attendees int `json:"attendees"`
	// AttendeesEstimated is set when the provider gave no count and
	// Attendees was synthesized for display.
	AttendeesEstimated bool `json:"attendeesEstimated,omitempty"`

	IsFavorite  bool         `json:"isFavorite"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	TicketLinks []TicketLink `json:"ticketLinks"`

	// Source is the provider name, SourceID the provider's own identifier.
	Source   string `json:"source,omitempty"`
	SourceID string `json:"sourceId,omitempty"`

	// StartTime is the parsed start, zero when the provider gave none.
	StartTime time.Time `json:"startTime,omitempty"`
}

// HasCoordinates reports whether the provider geocoded the venue.
func (e CanonicalEvent) HasCoordinates() bool {
	return e.Coordinates != nil
}

// Clone returns a copy that shares no slices or pointers with e.
func (e CanonicalEvent) Clone() CanonicalEvent {
	if e.Coordinates != nil {
		c := *e.Coordinates
		e.Coordinates = &c
	}
	if e.TicketLinks != nil {
		e.TicketLinks = slices.Clone(e.TicketLinks)
	}
	return e
}

// CloneEvents deep-copies a list of events. nil stays nil.
func CloneEvents(events []CanonicalEvent) []CanonicalEvent {
	if events == nil {
		return nil
	}
	out := make([]CanonicalEvent, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// ParseCoordinates reads a "lat,lng" pair, as accepted in a location string.
func ParseCoordinates(s string) (Coordinates, bool) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return Coordinates{}, false
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil || la < -90 || la > 90 {
		return Coordinates{}, false
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil || ln < -180 || ln > 180 {
		return Coordinates{}, false
	}
	return Coordinates{Lat: la, Lng: ln}, true
}

// EventRef records where a canonical event came from, so its details can be
// fetched again from the same provider.
type EventRef struct {
	Provider string `json:"provider"`
	NativeID string `json:"nativeId"`
}
