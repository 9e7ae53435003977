package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"eventscout/internal/extract"
	"eventscout/internal/httpx"
	appLog "eventscout/internal/log"
	"eventscout/internal/model"
)

const (
	NameRapidAPI        = "rapidapi"
	rapidAPIDefaultHost = "real-time-events-search.p.rapidapi.com"
	rapidAPIParallel    = 4
)

// popularQueries back the category strategy when the search names none.
var popularQueries = []string{"concerts", "sports games", "comedy shows"}

// RapidAPI searches a generic real-time events search API. A single search
// is spread over several sub-queries whose results are merged.
type RapidAPI struct {
	cfg    Config
	client *httpx.Client
	now    func() time.Time
}

func NewRapidAPI(cfg Config, client *httpx.Client) *RapidAPI {
	if cfg.Host == "" {
		cfg.Host = rapidAPIDefaultHost
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Host
	}
	return &RapidAPI{cfg: cfg, client: client, now: time.Now}
}

func (r *RapidAPI) Name() string { return NameRapidAPI }

func (r *RapidAPI) Enabled() bool { return r.cfg.Enabled && r.cfg.APIKey != "" }

type rapidEvent struct {
	EventID       string   `json:"event_id"`
	Name          string   `json:"name"`
	Link          string   `json:"link"`
	Description   string   `json:"description"`
	StartTime     string   `json:"start_time"`
	StartTimeUTC  string   `json:"start_time_utc"`
	Thumbnail     string   `json:"thumbnail"`
	Publisher     string   `json:"publisher"`
	PublisherIcon string   `json:"publisher_favicon"`
	Tags          []string `json:"tags"`
	TicketLinks   []struct {
		Source string `json:"source"`
		Link   string `json:"link"`
	} `json:"ticket_links"`
	InfoLinks []struct {
		Source string `json:"source"`
		Link   string `json:"link"`
	} `json:"info_links"`
	Venue *struct {
		Name        string    `json:"name"`
		FullAddress string    `json:"full_address"`
		City        string    `json:"city"`
		State       string    `json:"state"`
		Subtype     string    `json:"subtype"`
		Timezone    string    `json:"timezone"`
		ReviewCount int       `json:"review_count"`
		Latitude    flexFloat `json:"latitude"`
		Longitude   flexFloat `json:"longitude"`
	} `json:"venue"`
}

type rapidResponse struct {
	Status string       `json:"status"`
	Data   []rapidEvent `json:"data"`
}

// strategy is one sub-query with its share of the total result budget.
type strategy struct {
	name     string
	query    string
	fraction float64
}

func (r *RapidAPI) strategies(p model.SearchParams) []strategy {
	place := ""
	if p.Point() == nil {
		place = strings.TrimSpace(p.Location)
	}
	in := func(q string) string {
		if place == "" {
			return q
		}
		return q + " in " + place
	}

	var out []strategy
	if p.Keyword != "" {
		out = append(out, strategy{name: "query", query: in(p.Keyword), fraction: 0.4})
	}
	cats := p.Categories
	if len(cats) == 0 {
		cats = popularQueries
	}
	for _, c := range cats {
		out = append(out, strategy{name: "category", query: in(c), fraction: 0.3 / float64(len(cats))})
	}
	out = append(out,
		strategy{name: "location", query: in("events"), fraction: 0.2},
		strategy{name: "trending", query: in("popular events this week"), fraction: 0.1},
	)
	return out
}

// RequestCost is one request per strategy.
func (r *RapidAPI) RequestCost(p model.SearchParams) int { return len(r.strategies(p)) }

// Search runs every strategy concurrently. A failed strategy only loses its
// own slice; Search fails only when all of them do.
func (r *RapidAPI) Search(ctx context.Context, p model.SearchParams) ([]model.CanonicalEvent, error) {
	if !r.Enabled() {
		return nil, ErrNotConfigured
	}
	from, to := Window(p, r.now())
	total := fetchSize(p)
	strats := r.strategies(p)

	results := make([][]model.CanonicalEvent, len(strats))
	errs := make([]error, len(strats))
	// No shared context: one failing strategy must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(rapidAPIParallel)
	for i, s := range strats {
		g.Go(func() error {
			limit := max(1, int(math.Ceil(float64(total)*s.fraction)))
			evs, err := r.query(ctx, s.query, dateFilter(from, to), limit)
			if err != nil {
				errs[i] = fmt.Errorf("%s strategy: %w", s.name, err)
				appLog.Debug("rapidapi strategy failed", "strategy", s.name, "err", err)
				return nil
			}
			results[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(strats) {
		return nil, errors.Join(errs...)
	}

	seenID := map[string]bool{}
	seenKey := map[string]bool{}
	var out []model.CanonicalEvent
	for _, evs := range results {
		for _, e := range evs {
			key := strings.ToLower(e.Title) + "|" + e.Date + "|" + strings.ToLower(e.Location)
			if seenID[e.SourceID] || seenKey[key] {
				continue
			}
			if !e.StartTime.IsZero() && (e.StartTime.Before(from) || e.StartTime.After(to)) {
				continue
			}
			seenID[e.SourceID], seenKey[key] = true, true
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *RapidAPI) query(ctx context.Context, query, date string, limit int) ([]model.CanonicalEvent, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("date", date)
	q.Set("is_virtual", "false")
	q.Set("start", "0")
	header := http.Header{
		"X-RapidAPI-Key":  {r.cfg.APIKey},
		"X-RapidAPI-Host": {r.cfg.Host},
	}

	var res rapidResponse
	if err := r.client.GetJSON(ctx, endpoint(r.cfg.BaseURL, "/search-events", q), header, &res); err != nil {
		return nil, err
	}
	if res.Status != "" && !strings.EqualFold(res.Status, "OK") {
		return nil, fmt.Errorf("rapidapi: status %q", res.Status)
	}
	out := make([]model.CanonicalEvent, 0, min(limit, len(res.Data)))
	for _, ev := range res.Data {
		if len(out) >= limit {
			break
		}
		if ev.EventID == "" || strings.TrimSpace(ev.Name) == "" {
			continue
		}
		out = append(out, transformRapidAPI(ev))
	}
	return out, nil
}

// dateFilter picks the coarse date bucket the upstream understands; results
// are then trimmed to the exact window.
func dateFilter(from, to time.Time) string {
	span := to.Sub(from)
	switch {
	case span <= 24*time.Hour:
		return "today"
	case span <= 7*24*time.Hour:
		return "week"
	case span <= 31*24*time.Hour:
		return "month"
	default:
		return "any"
	}
}

var rapidImages = []extract.Accessor[rapidEvent]{
	func(e rapidEvent) string { return e.Thumbnail },
	func(e rapidEvent) string { return extract.ImageFromHTML(e.Description) },
}

var rapidPrices = []extract.Accessor[rapidEvent]{
	func(e rapidEvent) string { return extract.PriceFromText(e.Description, e.Name) },
}

func transformRapidAPI(ev rapidEvent) model.CanonicalEvent {
	e := model.CanonicalEvent{
		ID:          extract.StringHash(ev.EventID),
		Title:       strings.TrimSpace(ev.Name),
		Description: strings.TrimSpace(ev.Description),
		Source:      NameRapidAPI,
		SourceID:    ev.EventID,
	}

	labels := append([]string{}, ev.Tags...)
	tz := ""
	if v := ev.Venue; v != nil {
		labels = append(labels, v.Subtype)
		e.Location = v.Name
		e.Address = extract.Or(v.FullAddress, joinNonEmpty(", ", v.City, v.State))
		e.Coordinates = coordinates(v.Latitude.value(), v.Longitude.value())
		tz = v.Timezone
	}
	e.Location = extract.Or(e.Location, "Venue TBA")
	e.Category = extract.Category(append(labels, e.Title)...)

	loc := loadLocation(tz)
	var when time.Time
	if ts, ok := extract.ParseTime(ev.StartTime, loc); ok {
		when = ts
	} else if ts, ok := extract.ParseTime(strings.TrimSuffix(ev.StartTimeUTC, " UTC"), time.UTC); ok {
		when = ts.In(loc)
	}
	schedule(&e, when, false)

	e.Price = extract.Price(ev, rapidPrices...)
	e.Image = extract.Image(ev, e.Category, rapidImages...)
	e.Organizer = model.Organizer{Name: extract.Or(ev.Publisher, "Event organizer")}
	if extract.IsImageURL(ev.PublisherIcon) {
		e.Organizer.Avatar = ev.PublisherIcon
	}

	attendance(&e, 0)
	links := make([]string, 0, len(ev.TicketLinks)+1)
	for _, l := range ev.TicketLinks {
		links = append(links, l.Link)
	}
	if len(links) == 0 {
		links = append(links, ev.Link)
	}
	e.TicketLinks = ticketLinks(NameRapidAPI, links...)
	return e
}
