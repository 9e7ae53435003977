package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventscout/internal/log"
)

const defaultMaxOccurrences = 500

// Occurrence is one concrete instance of a possibly recurring VEvent.
type Occurrence struct {
	Event VEvent
	Start time.Time
	End   time.Time
}

// Expand turns events into the occurrences overlapping [from, to], applying
// RRULE, EXDATE and RECURRENCE-ID overrides. Each recurring event yields at
// most max occurrences (500 when max <= 0). Output is ordered by start.
func Expand(events []VEvent, from, to time.Time, max int) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, errors.New("ics: window end before start")
	}
	if max <= 0 {
		max = defaultMaxOccurrences
	}

	masters := make(map[string][]VEvent)
	overrides := make(map[string][]VEvent)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		masters[ev.UID] = append(masters[ev.UID], ev)
	}

	var out []Occurrence
	for uid, evs := range masters {
		for _, ev := range evs {
			if ev.RRule == "" {
				if overlaps(ev.Start, ev.End, from, to) {
					out = append(out, Occurrence{Event: ev, Start: ev.Start, End: ev.End})
				}
				continue
			}
			occ, truncated := expandRecurring(ev, overrides[uid], from, to, max)
			if truncated {
				appLog.Warn("ics recurrence truncated", "feed", ev.FeedID, "uid", uid, "max", max)
			}
			out = append(out, occ...)
		}
	}

	// An override whose master is missing from the feed is still an event.
	for uid, ovs := range overrides {
		if _, ok := masters[uid]; ok {
			continue
		}
		for _, ov := range ovs {
			if overlaps(ov.Start, ov.End, from, to) {
				out = append(out, Occurrence{Event: ov, Start: ov.Start, End: ov.End})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Event.UID < out[j].Event.UID
	})
	return out, nil
}

func expandRecurring(ev VEvent, overrides []VEvent, from, to time.Time, max int) ([]Occurrence, bool) {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Warn("ics rrule unparseable", "feed", ev.FeedID, "uid", ev.UID, "rrule", ev.RRule, "err", err)
		return nil, false
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	duration := ev.End.Sub(ev.Start)
	// Widen the lower bound so an occurrence already running at from is kept.
	starts := set.Between(from.Add(-duration).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	truncated := false
	if len(starts) > max {
		starts, truncated = starts[:max], true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		occ := Occurrence{Event: ev, Start: s, End: s.Add(duration)}
		if ov, ok := overrideFor(overrides, s); ok {
			occ = Occurrence{Event: ov, Start: ov.Start, End: ov.End}
		}
		if overlaps(occ.Start, occ.End, from, to) {
			out = append(out, occ)
		}
	}
	return out, truncated
}

func overrideFor(overrides []VEvent, start time.Time) (VEvent, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return VEvent{}, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
