package provider

import (
	"context"
	"errors"
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
	NameEventbrite       = "eventbrite"
	eventbriteDefaultURL = "https://www.eventbriteapi.com"
	eventbriteExpand     = "venue,organizer,logo,category,subcategory,ticket_availability"
	eventbritePageSize   = 50
)

// eventbriteCategories maps our categories onto Eventbrite category ids.
var eventbriteCategories = map[string]string{
	strings.ToLower(extract.CategoryBusiness):  "101",
	strings.ToLower(extract.CategoryTech):      "102",
	strings.ToLower(extract.CategoryMusic):     "103",
	strings.ToLower(extract.CategoryFilm):      "104",
	strings.ToLower(extract.CategoryArts):      "105",
	strings.ToLower(extract.CategoryHealth):    "107",
	strings.ToLower(extract.CategorySports):    "108",
	strings.ToLower(extract.CategoryFood):      "110",
	strings.ToLower(extract.CategoryCommunity): "113",
	strings.ToLower(extract.CategoryFamily):    "115",
	strings.ToLower(extract.CategoryEducation): "115",
}

// Eventbrite searches the Eventbrite v3 API with a private token.
type Eventbrite struct {
	cfg    Config
	client *httpx.Client
	now    func() time.Time
}

func NewEventbrite(cfg Config, client *httpx.Client) *Eventbrite {
	if cfg.BaseURL == "" {
		cfg.BaseURL = eventbriteDefaultURL
	}
	return &Eventbrite{cfg: cfg, client: client, now: time.Now}
}

func (e *Eventbrite) Name() string { return NameEventbrite }

func (e *Eventbrite) Enabled() bool { return e.cfg.Enabled && e.cfg.APIKey != "" }

type ebText struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

type ebTime struct {
	Timezone string `json:"timezone"`
	Local    string `json:"local"`
	UTC      string `json:"utc"`
}

type ebImage struct {
	URL      string `json:"url"`
	Original struct {
		URL string `json:"url"`
	} `json:"original"`
}

type ebTicketPrice struct {
	MajorValue string `json:"major_value"`
	Currency   string `json:"currency"`
	Display    string `json:"display"`
}

type ebEvent struct {
	ID          string   `json:"id"`
	Name        ebText   `json:"name"`
	Description ebText   `json:"description"`
	Summary     string   `json:"summary"`
	URL         string   `json:"url"`
	Start       ebTime   `json:"start"`
	IsFree      bool     `json:"is_free"`
	Capacity    int      `json:"capacity"`
	Logo        *ebImage `json:"logo"`
	Venue       *struct {
		Name    string `json:"name"`
		Address struct {
			Address1  string    `json:"address_1"`
			City      string    `json:"city"`
			Region    string    `json:"region"`
			Display   string    `json:"localized_address_display"`
			Latitude  flexFloat `json:"latitude"`
			Longitude flexFloat `json:"longitude"`
		} `json:"address"`
	} `json:"venue"`
	Organizer *struct {
		Name string   `json:"name"`
		Logo *ebImage `json:"logo"`
	} `json:"organizer"`
	Category *struct {
		Name      string `json:"name"`
		ShortName string `json:"short_name"`
	} `json:"category"`
	Subcategory *struct {
		Name string `json:"name"`
	} `json:"subcategory"`
	TicketAvailability *struct {
		IsFree  bool           `json:"is_free"`
		Minimum *ebTicketPrice `json:"minimum_ticket_price"`
		Maximum *ebTicketPrice `json:"maximum_ticket_price"`
	} `json:"ticket_availability"`
}

type ebSearchResponse struct {
	Events []ebEvent `json:"events"`
}

func (e *Eventbrite) auth() http.Header {
	return http.Header{"Authorization": {"Bearer " + e.cfg.APIKey}}
}

func (e *Eventbrite) Search(ctx context.Context, p model.SearchParams) ([]model.CanonicalEvent, error) {
	if !e.Enabled() {
		return nil, ErrNotConfigured
	}
	from, to := Window(p, e.now())

	q := url.Values{}
	q.Set("expand", eventbriteExpand)
	q.Set("start_date.range_start", from.UTC().Format(ticketmasterTimeLayout))
	q.Set("start_date.range_end", to.UTC().Format(ticketmasterTimeLayout))
	q.Set("page_size", fmt.Sprint(min(fetchSize(p), eventbritePageSize)))
	q.Set("page", "1")
	if p.Keyword != "" {
		q.Set("q", p.Keyword)
	}
	within := formatMiles(e.cfg.radius(p)) + "mi"
	if pt := p.Point(); pt != nil {
		q.Set("location.latitude", fmt.Sprintf("%.6f", pt.Lat))
		q.Set("location.longitude", fmt.Sprintf("%.6f", pt.Lng))
		q.Set("location.within", within)
	} else if p.Location != "" {
		q.Set("location.address", p.Location)
		q.Set("location.within", within)
	}
	if ids := eventbriteCategoryIDs(p.Categories); ids != "" {
		q.Set("categories", ids)
	}
	if p.Sort == model.SortDate {
		q.Set("sort_by", "date")
	}

	var res ebSearchResponse
	if err := e.client.GetJSON(ctx, endpoint(e.cfg.BaseURL, "/v3/events/search/", q), e.auth(), &res); err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEvent, 0, len(res.Events))
	for _, ev := range res.Events {
		if ev.ID == "" || strings.TrimSpace(ev.Name.Text) == "" {
			continue
		}
		out = append(out, transformEventbrite(ev))
	}
	return out, nil
}

func (e *Eventbrite) Details(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	if !e.Enabled() {
		return nil, ErrNotConfigured
	}
	q := url.Values{"expand": {eventbriteExpand}}
	var ev ebEvent
	if err := e.client.GetJSON(ctx, endpoint(e.cfg.BaseURL, "/v3/events/"+url.PathEscape(id)+"/", q), e.auth(), &ev); err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if ev.ID == "" {
		return nil, nil
	}
	out := transformEventbrite(ev)
	return &out, nil
}

func eventbriteCategoryIDs(categories []string) string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range categories {
		id, ok := eventbriteCategories[strings.ToLower(strings.TrimSpace(c))]
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return strings.Join(ids, ",")
}

var ebImages = []extract.Accessor[ebEvent]{
	func(e ebEvent) string {
		if e.Logo == nil {
			return ""
		}
		return e.Logo.Original.URL
	},
	func(e ebEvent) string {
		if e.Logo == nil {
			return ""
		}
		return e.Logo.URL
	},
	func(e ebEvent) string { return extract.ImageFromHTML(e.Description.HTML) },
}

var ebPrices = []extract.Accessor[ebEvent]{
	func(e ebEvent) string {
		if e.IsFree || (e.TicketAvailability != nil && e.TicketAvailability.IsFree) {
			return extract.PriceFree
		}
		return ""
	},
	func(e ebEvent) string {
		ta := e.TicketAvailability
		if ta == nil {
			return ""
		}
		lo, hi := ebAmount(ta.Minimum), ebAmount(ta.Maximum)
		currency := ""
		if ta.Minimum != nil {
			currency = ta.Minimum.Currency
		}
		return extract.FormatRange(lo, hi, currency)
	},
	func(e ebEvent) string {
		if ta := e.TicketAvailability; ta != nil && ta.Minimum != nil {
			return ta.Minimum.Display
		}
		return ""
	},
	func(e ebEvent) string { return extract.PriceFromText(e.Summary, e.Description.Text) },
}

func ebAmount(p *ebTicketPrice) float64 {
	if p == nil {
		return -1
	}
	var v float64
	if _, err := fmt.Sscanf(p.MajorValue, "%g", &v); err != nil {
		return -1
	}
	return v
}

func transformEventbrite(ev ebEvent) model.CanonicalEvent {
	e := model.CanonicalEvent{
		ID:          extract.StringHash(ev.ID),
		Title:       strings.TrimSpace(ev.Name.Text),
		Description: extract.Or(ev.Description.Text, ev.Summary),
		Source:      NameEventbrite,
		SourceID:    ev.ID,
	}

	var labels []string
	if ev.Category != nil {
		labels = append(labels, ev.Category.Name, ev.Category.ShortName)
	}
	if ev.Subcategory != nil {
		labels = append(labels, ev.Subcategory.Name)
	}
	e.Category = extract.Category(append(labels, e.Title)...)

	if v := ev.Venue; v != nil {
		e.Location = v.Name
		e.Address = extract.Or(v.Address.Display, joinNonEmpty(", ", v.Address.Address1, v.Address.City, v.Address.Region))
		e.Coordinates = coordinates(v.Address.Latitude.value(), v.Address.Longitude.value())
	}
	e.Location = extract.Or(e.Location, "Online or TBA")

	loc := loadLocation(ev.Start.Timezone)
	var when time.Time
	if ts, ok := extract.ParseTime(ev.Start.UTC, time.UTC); ok {
		when = ts.In(loc)
	} else if ts, ok := extract.ParseTime(ev.Start.Local, loc); ok {
		when = ts
	}
	schedule(&e, when, false)

	e.Price = extract.Price(ev, ebPrices...)
	e.Image = extract.Image(ev, e.Category, ebImages...)

	if o := ev.Organizer; o != nil {
		e.Organizer.Name = o.Name
		if o.Logo != nil && extract.IsImageURL(o.Logo.URL) {
			e.Organizer.Avatar = o.Logo.URL
		}
	}
	e.Organizer.Name = extract.Or(e.Organizer.Name, "Eventbrite organizer")

	attendance(&e, ev.Capacity)
	e.TicketLinks = ticketLinks(NameEventbrite, ev.URL)
	return e
}
