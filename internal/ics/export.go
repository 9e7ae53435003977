package ics

import (
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventscout/internal/extract"
	"eventscout/internal/model"
)

// Export writes events as a PUBLISH calendar. Events without a parsed start
// time cannot be placed on a calendar and are left out.
func Export(w io.Writer, name string, events []model.CanonicalEvent, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventscout//search export//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := now.UTC()
	for _, e := range events {
		if e.StartTime.IsZero() {
			continue
		}
		ve := cal.AddEvent(strconv.FormatInt(e.ID, 10) + "@eventscout")
		ve.SetDtStampTime(stamp)
		if e.Time == extract.TBA {
			ve.SetAllDayStartAt(e.StartTime)
		} else {
			ve.SetStartAt(e.StartTime)
		}
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if loc := joinLocation(e.Location, e.Address); loc != "" {
			ve.SetLocation(loc)
		}
		if len(e.TicketLinks) > 0 && e.TicketLinks[0].Link != "" {
			ve.SetURL(e.TicketLinks[0].Link)
		}
		if e.Coordinates != nil {
			ical.SetGeo(ve, e.Coordinates.Lat, e.Coordinates.Lng)
		}
		if e.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, e.Category)
		}
	}
	return cal.SerializeTo(w)
}

func joinLocation(venue, address string) string {
	switch {
	case venue == "":
		return address
	case address == "" || address == venue:
		return venue
	default:
		return venue + ", " + address
	}
}
