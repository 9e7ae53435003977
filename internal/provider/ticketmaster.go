package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"eventscout/internal/extract"
	"eventscout/internal/httpx"
	"eventscout/internal/model"
)

const (
	NameTicketmaster       = "ticketmaster"
	ticketmasterDefaultURL = "https://app.ticketmaster.com"
	ticketmasterTimeLayout = "2006-01-02T15:04:05Z"
)

// Ticketmaster searches the Discovery API.
type Ticketmaster struct {
	cfg    Config
	client *httpx.Client
	now    func() time.Time
}

func NewTicketmaster(cfg Config, client *httpx.Client) *Ticketmaster {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ticketmasterDefaultURL
	}
	return &Ticketmaster{cfg: cfg, client: client, now: time.Now}
}

func (t *Ticketmaster) Name() string { return NameTicketmaster }

func (t *Ticketmaster) Enabled() bool { return t.cfg.Enabled && t.cfg.APIKey != "" }

type tmName struct {
	Name string `json:"name"`
}

type tmImage struct {
	URL      string `json:"url"`
	Ratio    string `json:"ratio"`
	Width    int    `json:"width"`
	Fallback bool   `json:"fallback"`
}

type tmVenue struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Address  struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	City  tmName `json:"city"`
	State struct {
		StateCode string `json:"stateCode"`
	} `json:"state"`
	Location struct {
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
	} `json:"location"`
}

type tmEvent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Info        string    `json:"info"`
	PleaseNote  string    `json:"pleaseNote"`
	Description string    `json:"description"`
	Images      []tmImage `json:"images"`
	Dates       struct {
		Start struct {
			LocalDate      string `json:"localDate"`
			LocalTime      string `json:"localTime"`
			DateTime       string `json:"dateTime"`
			DateTBD        bool   `json:"dateTBD"`
			TimeTBA        bool   `json:"timeTBA"`
			NoSpecificTime bool   `json:"noSpecificTime"`
		} `json:"start"`
		Timezone string `json:"timezone"`
	} `json:"dates"`
	Classifications []struct {
		Segment  tmName `json:"segment"`
		Genre    tmName `json:"genre"`
		SubGenre tmName `json:"subGenre"`
	} `json:"classifications"`
	PriceRanges []struct {
		Currency string  `json:"currency"`
		Min      float64 `json:"min"`
		Max      float64 `json:"max"`
	} `json:"priceRanges"`
	Promoter tmName `json:"promoter"`
	Embedded struct {
		Venues      []tmVenue `json:"venues"`
		Attractions []struct {
			Name   string    `json:"name"`
			Images []tmImage `json:"images"`
		} `json:"attractions"`
	} `json:"_embedded"`
}

type tmSearchResponse struct {
	Embedded struct {
		Events []tmEvent `json:"events"`
	} `json:"_embedded"`
}

func (t *Ticketmaster) Search(ctx context.Context, p model.SearchParams) ([]model.CanonicalEvent, error) {
	if !t.Enabled() {
		return nil, ErrNotConfigured
	}
	from, to := Window(p, t.now())

	q := url.Values{}
	q.Set("apikey", t.cfg.APIKey)
	q.Set("size", fmt.Sprint(fetchSize(p)))
	q.Set("startDateTime", from.UTC().Format(ticketmasterTimeLayout))
	q.Set("endDateTime", to.UTC().Format(ticketmasterTimeLayout))
	q.Set("sort", ticketmasterSort(p.Sort))
	if p.Keyword != "" {
		q.Set("keyword", p.Keyword)
	}
	if pt := p.Point(); pt != nil {
		q.Set("latlong", fmt.Sprintf("%.6f,%.6f", pt.Lat, pt.Lng))
		q.Set("radius", formatMiles(t.cfg.radius(p)))
		q.Set("unit", "miles")
	} else if c := city(p.Location); c != "" {
		q.Set("city", c)
	}
	if len(p.Categories) > 0 {
		q.Set("classificationName", strings.Join(p.Categories, ","))
	}

	var res tmSearchResponse
	if err := t.client.GetJSON(ctx, endpoint(t.cfg.BaseURL, "/discovery/v2/events.json", q), nil, &res); err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEvent, 0, len(res.Embedded.Events))
	for _, ev := range res.Embedded.Events {
		if ev.ID == "" || ev.Name == "" {
			continue
		}
		out = append(out, t.transform(ev))
	}
	return out, nil
}

func (t *Ticketmaster) Details(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	if !t.Enabled() {
		return nil, ErrNotConfigured
	}
	q := url.Values{"apikey": {t.cfg.APIKey}}
	var ev tmEvent
	err := t.client.GetJSON(ctx, endpoint(t.cfg.BaseURL, "/discovery/v2/events/"+url.PathEscape(id)+".json", q), nil, &ev)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if ev.ID == "" {
		return nil, nil
	}
	e := t.transform(ev)
	return &e, nil
}

func ticketmasterSort(s model.SortOrder) string {
	switch s {
	case model.SortAlphabetical:
		return "name,asc"
	case model.SortRelevance:
		return "relevance,desc"
	case model.SortDistance:
		return "distance,asc"
	default:
		return "date,asc"
	}
}

var tmImages = []extract.Accessor[tmEvent]{
	func(e tmEvent) string { return bestTMImage(e.Images, "16_9") },
	func(e tmEvent) string { return bestTMImage(e.Images, "") },
	func(e tmEvent) string {
		for _, a := range e.Embedded.Attractions {
			if img := bestTMImage(a.Images, ""); img != "" {
				return img
			}
		}
		return ""
	},
}

var tmPrices = []extract.Accessor[tmEvent]{
	func(e tmEvent) string {
		if len(e.PriceRanges) == 0 {
			return ""
		}
		pr := e.PriceRanges[0]
		return extract.FormatRange(pr.Min, pr.Max, pr.Currency)
	},
	func(e tmEvent) string { return extract.PriceFromText(e.Info, e.PleaseNote, e.Description) },
}

// bestTMImage picks the widest non-fallback image, optionally of one ratio.
func bestTMImage(images []tmImage, ratio string) string {
	cands := make([]tmImage, 0, len(images))
	for _, img := range images {
		if img.Fallback || (ratio != "" && img.Ratio != ratio) {
			continue
		}
		cands = append(cands, img)
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Width > cands[j].Width })
	for _, img := range cands {
		if extract.IsImageURL(img.URL) {
			return img.URL
		}
	}
	return ""
}

func (t *Ticketmaster) transform(ev tmEvent) model.CanonicalEvent {
	e := model.CanonicalEvent{
		ID:          extract.StringHash(ev.ID),
		Title:       strings.TrimSpace(ev.Name),
		Description: extract.Or(ev.Description, ev.Info, ev.PleaseNote),
		Source:      NameTicketmaster,
		SourceID:    ev.ID,
	}

	var labels []string
	for _, c := range ev.Classifications {
		for _, n := range []string{c.Segment.Name, c.Genre.Name, c.SubGenre.Name} {
			if n != "" && !strings.EqualFold(n, "Undefined") {
				labels = append(labels, n)
			}
		}
	}
	e.Category = extract.Category(append(labels, ev.Name)...)

	var venue tmVenue
	if len(ev.Embedded.Venues) > 0 {
		venue = ev.Embedded.Venues[0]
	}
	e.Location = extract.Or(venue.Name, "Venue TBA")
	e.Address = joinNonEmpty(", ", venue.Address.Line1, venue.City.Name, venue.State.StateCode)
	e.Coordinates = coordinates(venue.Location.Latitude.value(), venue.Location.Longitude.value())

	loc := loadLocation(extract.Or(ev.Dates.Timezone, venue.Timezone))
	start := ev.Dates.Start
	dateOnly := start.TimeTBA || start.NoSpecificTime || start.LocalTime == ""
	var when time.Time
	if ts, ok := extract.ParseTime(start.DateTime, time.UTC); ok {
		when = ts.In(loc)
	} else if ts, ok := extract.ParseTime(strings.TrimSpace(start.LocalDate+" "+start.LocalTime), loc); ok {
		when = ts
	} else if ts, ok := extract.ParseTime(start.LocalDate, loc); ok {
		when = ts
	}
	if start.DateTBD {
		when = time.Time{}
	}
	schedule(&e, when, dateOnly)

	e.Price = extract.Price(ev, tmPrices...)
	e.Image = extract.Image(ev, e.Category, tmImages...)

	organizer := ev.Promoter.Name
	var avatar string
	if len(ev.Embedded.Attractions) > 0 {
		a := ev.Embedded.Attractions[0]
		organizer = extract.Or(organizer, a.Name)
		avatar = bestTMImage(a.Images, "")
	}
	e.Organizer = model.Organizer{Name: extract.Or(organizer, "Ticketmaster"), Avatar: avatar}

	attendance(&e, 0)
	e.TicketLinks = ticketLinks(NameTicketmaster, ev.URL)
	return e
}
