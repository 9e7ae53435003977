package extract

import (
	"strings"
	"time"
)

const (
	DateLayout = "Mon, Jan 2, 2006"
	TimeLayout = "3:04 PM"
	TBA        = "TBA"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	DateLayout,
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"01/02/2006",
}

// ParseTime accepts the date and date-time shapes providers send. Values
// without a zone are read in loc (UTC when nil).
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t for display, "TBA" when zero.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return TBA
	}
	return t.Format(DateLayout)
}

// FormatTime renders the time of day, "TBA" when zero or when the provider
// only gave a date.
func FormatTime(t time.Time, dateOnly bool) string {
	if t.IsZero() || dateOnly {
		return TBA
	}
	return t.Format(TimeLayout)
}
