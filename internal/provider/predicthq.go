package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventscout/internal/extract"
	"eventscout/internal/httpx"
	"eventscout/internal/model"
)

const (
	NamePredictHQ       = "predicthq"
	predictHQDefaultURL = "https://api.predicthq.com"
)

// predictHQCategories maps our categories onto PredictHQ's.
var predictHQCategories = map[string][]string{
	strings.ToLower(extract.CategoryMusic):     {"concerts"},
	strings.ToLower(extract.CategorySports):    {"sports"},
	strings.ToLower(extract.CategoryFestival):  {"festivals"},
	strings.ToLower(extract.CategoryArts):      {"performing-arts"},
	strings.ToLower(extract.CategoryComedy):    {"performing-arts"},
	strings.ToLower(extract.CategoryCommunity): {"community"},
	strings.ToLower(extract.CategoryBusiness):  {"conferences", "expos"},
	strings.ToLower(extract.CategoryTech):      {"conferences", "expos"},
	strings.ToLower(extract.CategoryEducation): {"conferences"},
}

// PredictHQ searches the PredictHQ events API with a bearer token.
type PredictHQ struct {
	cfg    Config
	client *httpx.Client
	now    func() time.Time
}

func NewPredictHQ(cfg Config, client *httpx.Client) *PredictHQ {
	if cfg.BaseURL == "" {
		cfg.BaseURL = predictHQDefaultURL
	}
	return &PredictHQ{cfg: cfg, client: client, now: time.Now}
}

func (p *PredictHQ) Name() string { return NamePredictHQ }

func (p *PredictHQ) Enabled() bool { return p.cfg.Enabled && p.cfg.APIKey != "" }

type phqEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Labels      []string    `json:"labels"`
	Start       string      `json:"start"`
	Timezone    string      `json:"timezone"`
	Location    []flexFloat `json:"location"`
	Attendance  int         `json:"phq_attendance"`
	Geo         struct {
		Address struct {
			Formatted string `json:"formatted_address"`
		} `json:"address"`
	} `json:"geo"`
	Entities []struct {
		Name             string `json:"name"`
		Type             string `json:"type"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"entities"`
}

type phqResponse struct {
	Count   int        `json:"count"`
	Results []phqEvent `json:"results"`
}

func (p *PredictHQ) auth() http.Header {
	return http.Header{"Authorization": {"Bearer " + p.cfg.APIKey}}
}

func (p *PredictHQ) Search(ctx context.Context, params model.SearchParams) ([]model.CanonicalEvent, error) {
	if !p.Enabled() {
		return nil, ErrNotConfigured
	}
	from, to := Window(params, p.now())

	q := url.Values{}
	q.Set("active.gte", from.UTC().Format(time.RFC3339))
	q.Set("active.lte", to.UTC().Format(time.RFC3339))
	q.Set("limit", fmt.Sprint(fetchSize(params)))
	q.Set("sort", predictHQSort(params.Sort))
	if params.Keyword != "" {
		q.Set("q", params.Keyword)
	}
	if pt := params.Point(); pt != nil {
		q.Set("within", fmt.Sprintf("%smi@%.6f,%.6f", formatMiles(p.cfg.radius(params)), pt.Lat, pt.Lng))
	}
	if cats := predictHQCategoryList(params.Categories); cats != "" {
		q.Set("category", cats)
	}

	var res phqResponse
	if err := p.client.GetJSON(ctx, endpoint(p.cfg.BaseURL, "/v1/events/", q), p.auth(), &res); err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEvent, 0, len(res.Results))
	for _, ev := range res.Results {
		if ev.ID == "" || ev.Title == "" {
			continue
		}
		out = append(out, transformPredictHQ(ev))
	}
	return out, nil
}

// Details looks an event up by id through the search endpoint, which is
// how PredictHQ exposes single events.
func (p *PredictHQ) Details(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	if !p.Enabled() {
		return nil, ErrNotConfigured
	}
	var res phqResponse
	if err := p.client.GetJSON(ctx, endpoint(p.cfg.BaseURL, "/v1/events/", url.Values{"id": {id}}), p.auth(), &res); err != nil {
		return nil, err
	}
	for _, ev := range res.Results {
		if ev.ID == id {
			e := transformPredictHQ(ev)
			return &e, nil
		}
	}
	return nil, nil
}

func predictHQSort(s model.SortOrder) string {
	switch s {
	case model.SortPopularity:
		return "-phq_attendance"
	case model.SortRelevance, "":
		return "relevance,start"
	default:
		return "start"
	}
}

func predictHQCategoryList(categories []string) string {
	seen := map[string]bool{}
	var out []string
	for _, c := range categories {
		for _, pc := range predictHQCategories[strings.ToLower(strings.TrimSpace(c))] {
			if !seen[pc] {
				seen[pc] = true
				out = append(out, pc)
			}
		}
	}
	return strings.Join(out, ",")
}

var phqPrices = []extract.Accessor[phqEvent]{
	func(e phqEvent) string { return extract.PriceFromText(e.Description) },
}

func transformPredictHQ(ev phqEvent) model.CanonicalEvent {
	e := model.CanonicalEvent{
		ID:          extract.StringHash(ev.ID),
		Title:       strings.TrimSpace(ev.Title),
		Description: strings.TrimSpace(ev.Description),
		Source:      NamePredictHQ,
		SourceID:    ev.ID,
	}
	e.Category = extract.Category(append([]string{ev.Category}, append(ev.Labels, ev.Title)...)...)

	for _, ent := range ev.Entities {
		if ent.Type == "venue" {
			e.Location = ent.Name
			e.Address = ent.FormattedAddress
			break
		}
	}
	e.Address = extract.Or(e.Address, ev.Geo.Address.Formatted)
	e.Location = extract.Or(e.Location, city(e.Address), "Location TBA")
	// PredictHQ locations are GeoJSON order: [lng, lat].
	if len(ev.Location) == 2 {
		e.Coordinates = coordinates(ev.Location[1].value(), ev.Location[0].value())
	}

	loc := loadLocation(ev.Timezone)
	var when time.Time
	if ts, ok := extract.ParseTime(ev.Start, time.UTC); ok {
		when = ts.In(loc)
	}
	schedule(&e, when, false)

	e.Price = extract.Price(ev, phqPrices...)
	// No images in PredictHQ payloads; the category default is all we have.
	e.Image = extract.DefaultImage(e.Category)
	e.Organizer = model.Organizer{Name: "PredictHQ"}

	attendance(&e, ev.Attendance)
	e.TicketLinks = ticketLinks(NamePredictHQ)
	return e
}
