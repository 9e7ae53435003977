package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventscout/internal/extract"
	"eventscout/internal/ics"
	appLog "eventscout/internal/log"
	"eventscout/internal/model"
)

const NameICS = "ics"

// ICS serves events from configured iCalendar feeds. Keyword and category
// matching happen locally since feeds cannot be queried.
type ICS struct {
	feeds   []ics.Feed
	fetcher *ics.Fetcher
	now     func() time.Time
}

func NewICS(feeds []ics.Feed, fetcher *ics.Fetcher) *ICS {
	return &ICS{feeds: feeds, fetcher: fetcher, now: time.Now}
}

func (c *ICS) Name() string { return NameICS }

func (c *ICS) Enabled() bool { return len(c.feeds) > 0 && c.fetcher != nil }

// RequestCost is at most one fetch per feed; cached feeds may need none.
func (c *ICS) RequestCost(model.SearchParams) int { return len(c.feeds) }

func (c *ICS) Search(ctx context.Context, p model.SearchParams) ([]model.CanonicalEvent, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	from, to := Window(p, c.now())

	var (
		out  []model.CanonicalEvent
		errs []error
	)
	for _, feed := range c.feeds {
		evs, err := c.searchFeed(ctx, feed, from, to)
		if err != nil {
			appLog.Warn("ics feed failed", "feed", feed.ID, "err", err)
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}
		for _, e := range evs {
			if matchesKeyword(e, p.Keyword) && matchesCategories(e, p.Categories) {
				out = append(out, e)
			}
		}
	}
	if len(errs) == len(c.feeds) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (c *ICS) searchFeed(ctx context.Context, feed ics.Feed, from, to time.Time) ([]model.CanonicalEvent, error) {
	fetched, err := c.fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	vevents, err := ics.Parse(feed.ID, fetched.Body)
	if err != nil {
		return nil, err
	}
	occ, err := ics.Expand(vevents, from, to, 0)
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEvent, 0, len(occ))
	for _, o := range occ {
		if o.Start.Before(from) {
			// Already running; we only list upcoming starts.
			continue
		}
		out = append(out, transformOccurrence(feed, o))
	}
	return out, nil
}

func matchesKeyword(e model.CanonicalEvent, keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return true
	}
	for _, f := range []string{e.Title, e.Description, e.Location, e.Address} {
		if strings.Contains(strings.ToLower(f), kw) {
			return true
		}
	}
	return false
}

func matchesCategories(e model.CanonicalEvent, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if strings.EqualFold(e.Category, c) || e.Category == extract.Category(c) {
			return true
		}
	}
	return false
}

func transformOccurrence(feed ics.Feed, o ics.Occurrence) model.CanonicalEvent {
	ev := o.Event
	sourceID := feed.ID + "|" + ev.UID + "|" + o.Start.UTC().Format(time.RFC3339)
	e := model.CanonicalEvent{
		ID:          extract.StringHash(sourceID),
		Title:       strings.TrimSpace(ev.Summary),
		Description: strings.TrimSpace(ev.Description),
		Source:      NameICS,
		SourceID:    sourceID,
		Coordinates: ev.Geo,
	}
	e.Category = extract.Category(append(append([]string{}, ev.Categories...), ev.Summary)...)

	venue, rest, _ := strings.Cut(ev.Location, ",")
	e.Location = extract.Or(venue, feed.Name, "Location TBA")
	e.Address = strings.TrimSpace(rest)

	schedule(&e, o.Start, ev.AllDay)
	e.Price = extract.Or(extract.PriceFromText(ev.Description), extract.PriceTBA)
	e.Image = extract.Or(extract.ImageFromHTML(ev.Description), extract.DefaultImage(e.Category))
	e.Organizer = model.Organizer{Name: extract.Or(feed.Name, feed.ID)}

	attendance(&e, 0)
	e.TicketLinks = ticketLinks(NameICS, ev.URL)
	return e
}
