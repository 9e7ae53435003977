package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"eventscout/internal/aggregate"
	"eventscout/internal/model"
	"eventscout/internal/web"
)

// SearchCommand runs one search and prints the result.
type SearchCommand struct {
	Keyword  string   `long:"keyword" short:"k" description:"Search text (defaults to the positional arguments)"`
	Location string   `long:"location" short:"l" description:"City or address, or lat,lng"`
	Lat      string   `long:"lat" description:"Latitude of the search origin"`
	Lng      string   `long:"lng" description:"Longitude of the search origin"`
	Radius   string   `long:"radius" description:"Radius in miles"`
	Category []string `long:"category" description:"Category filter (repeatable)"`
	Sort     string   `long:"sort" description:"date | distance | popularity | price | alphabetical | relevance" default:"relevance"`
	Page     int      `long:"page" description:"Zero-based page" default:"0"`
	Size     int      `long:"size" description:"Page size" default:"20"`
	MinPrice string   `long:"min-price" description:"Lowest price in dollars"`
	MaxPrice string   `long:"max-price" description:"Highest price in dollars"`
	From     string   `long:"from" description:"Earliest start (YYYY-MM-DD or RFC 3339)"`
	To       string   `long:"to" description:"Latest start (YYYY-MM-DD or RFC 3339)"`

	globals *GlobalFlags
	out     io.Writer
}

func (c *SearchCommand) Execute(args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, c.globals, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.executeWithService(ctx, a.svc, args)
}

// executeWithService runs the search against a provided service (for testing).
func (c *SearchCommand) executeWithService(ctx context.Context, svc *aggregate.Service, args []string) error {
	params, err := c.params(args)
	if err != nil {
		return err
	}
	res, err := svc.Search(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(c.out, res)
}

// params maps the flags onto the same query syntax the HTTP API accepts.
func (c *SearchCommand) params(args []string) (model.SearchParams, error) {
	keyword := c.Keyword
	if keyword == "" {
		keyword = strings.Join(args, " ")
	}
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("keyword", keyword)
	set("location", c.Location)
	set("lat", c.Lat)
	set("lng", c.Lng)
	set("radius", c.Radius)
	set("categories", strings.Join(c.Category, ","))
	set("sort", c.Sort)
	set("page", strconv.Itoa(c.Page))
	set("size", strconv.Itoa(c.Size))
	set("minPrice", c.MinPrice)
	set("maxPrice", c.MaxPrice)
	set("startDate", c.From)
	set("endDate", c.To)
	return web.ParseSearchParams(q)
}

// FeaturedCommand prints the featured events.
type FeaturedCommand struct {
	Limit int `long:"limit" description:"How many events to print" default:"12"`

	globals *GlobalFlags
	out     io.Writer
}

func (c *FeaturedCommand) Execute(_ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, c.globals, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.executeWithService(ctx, a.svc)
}

func (c *FeaturedCommand) executeWithService(ctx context.Context, svc *aggregate.Service) error {
	events, err := svc.GetFeaturedEvents(ctx, c.Limit)
	if err != nil {
		return err
	}
	return printJSON(c.out, events)
}

// ErrEventNotFound is returned by the event command for unknown ids.
var ErrEventNotFound = errors.New("event not found")

// EventCommand prints one event. Details of an id are only known after a
// search listed it, or from a shared (pebble, redis) cache.
type EventCommand struct {
	ID int64 `long:"id" description:"Event id" required:"true"`

	globals *GlobalFlags
	out     io.Writer
}

func (c *EventCommand) Execute(_ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, c.globals, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return c.executeWithService(ctx, a.svc)
}

func (c *EventCommand) executeWithService(ctx context.Context, svc *aggregate.Service) error {
	e, err := svc.GetEventDetails(ctx, c.ID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: %d", ErrEventNotFound, c.ID)
	}
	return printJSON(c.out, e)
}
