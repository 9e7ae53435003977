package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventscout/internal/cache"
	"eventscout/internal/extract"
	"eventscout/internal/httpx"
	"eventscout/internal/model"
	"eventscout/internal/provider"
	"eventscout/internal/ratelimit"
)

const longDesc = "An evening of live music with local and touring artists, doors open an hour early."

type mockAdapter struct {
	name     string
	disabled bool
	events   []model.CanonicalEvent
	err      error
	panics   bool
	calls    atomic.Int32

	mu     sync.Mutex
	params []model.SearchParams
}

func (m *mockAdapter) Name() string  { return m.name }
func (m *mockAdapter) Enabled() bool { return !m.disabled }

func (m *mockAdapter) Search(_ context.Context, p model.SearchParams) ([]model.CanonicalEvent, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.params = append(m.params, p)
	m.mu.Unlock()
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.CanonicalEvent(nil), m.events...), nil
}

type detailAdapter struct {
	mockAdapter
	details map[string]*model.CanonicalEvent
	lookups atomic.Int32
}

func (d *detailAdapter) Details(_ context.Context, id string) (*model.CanonicalEvent, error) {
	d.lookups.Add(1)
	e, ok := d.details[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func ev(source, title, date, loc string) model.CanonicalEvent {
	nativeID := fmt.Sprintf("%s-%s", source, title)
	return model.CanonicalEvent{
		ID:          extract.StringHash(nativeID),
		Title:       title,
		Description: longDesc,
		Date:        date,
		Time:        "8:00 PM",
		Location:    loc,
		Price:       "$20",
		Image:       "https://img.example.com/events/" + source + ".jpg",
		TicketLinks: []model.TicketLink{},
		Source:      source,
		SourceID:    nativeID,
	}
}

func newService(adapters ...*mockAdapter) *Service {
	list := make([]provider.Adapter, len(adapters))
	for i, a := range adapters {
		list[i] = a
	}
	return New(list, Options{})
}

func titles(events []model.CanonicalEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}

func TestJazzNightScenario(t *testing.T) {
	a := &mockAdapter{name: "alpha", events: []model.CanonicalEvent{ev("alpha", "Jazz Night", "2024-07-01", "Club X")}}
	b := &mockAdapter{name: "beta", events: []model.CanonicalEvent{ev("beta", "jazz night", "2024-07-01", "club x")}}
	c := &mockAdapter{name: "gamma", err: errors.New("connection refused")}

	res, err := newService(a, b, c).Search(context.Background(), model.SearchParams{Keyword: "jazz"})
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "Jazz Night", res.Events[0].Title)
	assert.Equal(t, "alpha", res.Events[0].Source, "first occurrence wins")
	assert.Equal(t, 1, res.TotalCount)
	assert.Equal(t, []string{"alpha", "beta"}, res.Sources)
	assert.Contains(t, res.Error, "gamma")
	assert.False(t, res.Cached)
}

func TestPartialFailureKeepsOtherProviders(t *testing.T) {
	a := &mockAdapter{name: "alpha", events: []model.CanonicalEvent{ev("alpha", "A1", "2024-07-01", "X"), ev("alpha", "A2", "2024-07-02", "X")}}
	b := &mockAdapter{name: "beta", events: []model.CanonicalEvent{ev("beta", "B1", "2024-07-03", "Y")}}
	c := &mockAdapter{name: "flaky", err: fmt.Errorf("flaky: %w", httpx.ErrRateLimited)}

	res, err := newService(a, b, c).Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A1", "A2", "B1"}, titles(res.Events))
	assert.Equal(t, "Some event sources are unavailable: flaky (rate limited)", res.Error)
}

func TestPanickingProviderIsIsolated(t *testing.T) {
	a := &mockAdapter{name: "alpha", events: []model.CanonicalEvent{ev("alpha", "A1", "2024-07-01", "X")}}
	b := &mockAdapter{name: "broken", panics: true}

	res, err := newService(a, b).Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, titles(res.Events))
	assert.Contains(t, res.Error, "broken (request failed)")
}

func TestAllProvidersFailing(t *testing.T) {
	a := &mockAdapter{name: "alpha", err: fmt.Errorf("alpha: %w", httpx.ErrUnauthorized)}
	b := &mockAdapter{name: "beta", err: context.DeadlineExceeded}

	s := newService(a, b)
	res, err := s.Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.NotNil(t, res.Events)
	assert.Equal(t, 0, res.TotalCount)
	assert.Empty(t, res.Sources)
	assert.Contains(t, res.Error, "No events available")
	assert.Contains(t, res.Error, "alpha (authentication failed)")
	assert.Contains(t, res.Error, "beta (timed out)")

	// Empty results are not cached.
	_, err = s.Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, a.calls.Load())
}

func TestCacheHitSkipsProviders(t *testing.T) {
	a := &mockAdapter{name: "alpha", events: []model.CanonicalEvent{ev("alpha", "A1", "2024-07-01", "X")}}
	s := newService(a)
	p := model.SearchParams{Keyword: "jazz", Location: "Austin, TX"}

	first, err := s.Search(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// Same logical query, different spelling of the same parameters.
	p.Keyword = "  jazz "
	p.Sort = model.SortRelevance
	second, err := s.Search(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Events, second.Events)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestCachedResultsAreIsolatedFromCallers(t *testing.T) {
	a := &mockAdapter{name: "alpha", events: []model.CanonicalEvent{ev("alpha", "A1", "2024-07-01", "X")}}
	s := newService(a)
	ctx := context.Background()
	p := model.SearchParams{Keyword: "jazz"}

	first, err := s.Search(ctx, p)
	require.NoError(t, err)
	require.Len(t, first.Events, 1)
	first.Events[0].Title = "MUTATED"
	first.Events[0].IsFavorite = true
	first.Sources[0] = "nobody"

	second, err := s.Search(ctx, p)
	require.NoError(t, err)
	require.True(t, second.Cached)
	assert.Equal(t, "A1", second.Events[0].Title)
	assert.False(t, second.Events[0].IsFavorite)
	assert.Equal(t, []string{"alpha"}, second.Sources)

	second.Events[0].Title = "MUTATED AGAIN"
	third, err := s.Search(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "A1", third.Events[0].Title)

	d, err := s.GetEventDetails(ctx, third.Events[0].ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	d.Title = "MUTATED"
	d, err = s.GetEventDetails(ctx, third.Events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", d.Title)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestSkippedProvidersAreNotCalled(t *testing.T) {
	limited := &mockAdapter{name: "limited", events: []model.CanonicalEvent{ev("limited", "L", "2024-07-01", "X")}}
	off := &mockAdapter{name: "off", disabled: true}
	ok := &mockAdapter{name: "ok", events: []model.CanonicalEvent{ev("ok", "O", "2024-07-01", "Y")}}

	lim := ratelimit.New(map[string]ratelimit.Limit{"limited": {Requests: 1, Window: time.Hour}})
	lim.Record("limited")

	s := New([]provider.Adapter{limited, off, ok}, Options{Limiter: lim})
	res, err := s.Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)

	assert.Zero(t, limited.calls.Load())
	assert.Zero(t, off.calls.Load())
	assert.Equal(t, []string{"O"}, titles(res.Events))
	assert.Empty(t, res.Error)
}

type costlyAdapter struct {
	*mockAdapter
	cost int
}

func (c costlyAdapter) RequestCost(model.SearchParams) int { return c.cost }

func TestRateLimitCoversEveryRequestOfAProvider(t *testing.T) {
	fan := costlyAdapter{mockAdapter: &mockAdapter{name: "fan", events: []model.CanonicalEvent{ev("fan", "F", "2024-07-01", "X")}}, cost: 3}
	lim := ratelimit.New(map[string]ratelimit.Limit{"fan": {Requests: 3, Window: time.Hour}})

	s := New([]provider.Adapter{fan}, Options{Limiter: lim})
	_, err := s.Search(context.Background(), model.SearchParams{Keyword: "one"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, fan.calls.Load())

	lim.Record("fan")
	_, err = s.Search(context.Background(), model.SearchParams{Keyword: "two"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, fan.calls.Load(), "two requests left, three needed")
}

func TestNoProvidersAvailable(t *testing.T) {
	res, err := newService(&mockAdapter{name: "off", disabled: true}).Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, msgNoSources, res.Error)
}

func TestSourcesCountRawEvents(t *testing.T) {
	stub := ev("stub", "Stub", "2024-07-01", "X")
	stub.Description = "TBA"
	a := &mockAdapter{name: "stub", events: []model.CanonicalEvent{stub}}
	b := &mockAdapter{name: "good", events: []model.CanonicalEvent{ev("good", "Good", "2024-07-01", "Y")}}

	res, err := newService(a, b).Search(context.Background(), model.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Good"}, titles(res.Events))
	assert.Equal(t, []string{"stub", "good"}, res.Sources)
}

func TestSearchEventsTurnsErrorsIntoResults(t *testing.T) {
	a := &mockAdapter{name: "alpha"}
	res := newService(a).SearchEvents(context.Background(), model.SearchParams{Sort: "loudest"})
	assert.Equal(t, 0, res.TotalPages)
	assert.NotNil(t, res.Events)
	assert.Contains(t, res.Error, "unknown sort")
	assert.Zero(t, a.calls.Load())
}

func TestNormalizeRejectsBadParams(t *testing.T) {
	s := New(nil, Options{})
	bad := []model.SearchParams{
		{Page: -1},
		{Sort: "nope"},
		{Radius: -5},
		{Coordinates: &model.Coordinates{Lat: 91}},
		{PriceRange: &model.PriceRange{Min: 50, Max: 10}},
		{PriceRange: &model.PriceRange{Min: -1, Max: 10}},
		{DateRange: &model.DateRange{Start: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)}},
	}
	for i, p := range bad {
		_, err := s.Search(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidParams, "case %d", i)
	}

	p, err := s.normalize(model.SearchParams{Size: 1000, Radius: 9000, Categories: []string{"Music", " sports", "music", ""}})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, p.Size)
	assert.Equal(t, float64(DefaultMaxRadius), p.Radius)
	assert.Equal(t, model.SortRelevance, p.Sort)
	assert.Equal(t, []string{"Music", "sports"}, p.Categories)
}

func TestCacheKeyIsStable(t *testing.T) {
	s := New(nil, Options{})
	a, err := s.normalize(model.SearchParams{Keyword: "jazz", Categories: []string{"Music", "Comedy"}})
	require.NoError(t, err)
	b, err := s.normalize(model.SearchParams{Keyword: "jazz ", Categories: []string{"Comedy", "Music"}, Size: DefaultPageSize})
	require.NoError(t, err)

	ka, err := cacheKey(a)
	require.NoError(t, err)
	kb, err := cacheKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	c, err := s.normalize(model.SearchParams{Keyword: "jazz", Page: 1})
	require.NoError(t, err)
	kc, err := cacheKey(c)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kc)
}

func TestDedupIdempotent(t *testing.T) {
	list := []model.CanonicalEvent{
		ev("a", "Jazz Night", "2024-07-01", "Club X"),
		ev("a", "Blues Night", "2024-07-01", "Club X"),
		ev("b", "Jazz Night", "2024-07-02", "Club X"),
		ev("b", "JAZZ NIGHT", "2024-07-01", "club x"),
	}
	once := Dedup(list)
	twice := Dedup(append(append([]model.CanonicalEvent(nil), list...), list...))
	assert.Equal(t, once, twice)
	assert.Len(t, once, 3)
	assert.Equal(t, once, Dedup(once))
}

func TestQualityFilter(t *testing.T) {
	good := ev("a", "Good", "2024-07-01", "X")

	shortDesc := good
	shortDesc.Description = "Short."
	boiler := good
	boiler.Description = "Details coming soon"
	noImage := good
	noImage.Image = ""
	placeholder := good
	placeholder.Image = "https://img.example.com/placeholder.png"
	fallback := good
	fallback.Image = extract.DefaultImage(extract.CategoryMusic)

	assert.True(t, HasQualityContent(good))
	for _, e := range []model.CanonicalEvent{shortDesc, boiler, noImage, placeholder, fallback} {
		assert.False(t, HasQualityContent(e), "%q / %q", e.Image, e.Description)
	}
}

func TestGeoFilterBoundary(t *testing.T) {
	origin := model.Coordinates{Lat: 0, Lng: 0}
	const radius = 10.0 // miles
	edgeLat := radius * kmPerMile / earthRadiusKm * 180 / math.Pi

	onEdge := ev("a", "Edge", "2024-07-01", "X")
	onEdge.Coordinates = &model.Coordinates{Lat: edgeLat, Lng: 0}
	outside := ev("a", "Outside", "2024-07-01", "Y")
	outside.Coordinates = &model.Coordinates{Lat: edgeLat + 1e-4, Lng: 0}
	nowhere := ev("a", "Nowhere", "2024-07-01", "Z")

	got := Filter([]model.CanonicalEvent{onEdge, outside, nowhere}, model.SearchParams{Coordinates: &origin, Radius: radius})
	assert.Equal(t, []string{"Edge"}, titles(got))

	// Without a radius nothing is dropped for distance.
	got = Filter([]model.CanonicalEvent{onEdge, outside, nowhere}, model.SearchParams{Coordinates: &origin})
	assert.Len(t, got, 3)
}

func TestDistance(t *testing.T) {
	austin := model.Coordinates{Lat: 30.2672, Lng: -97.7431}
	dallas := model.Coordinates{Lat: 32.7767, Lng: -96.7970}
	assert.InDelta(t, 293, Distance(austin, dallas), 2)
	assert.Zero(t, Distance(austin, austin))
}

func TestPriceFilter(t *testing.T) {
	free := ev("a", "Free", "2024-07-01", "X")
	free.Price = extract.PriceFree
	cheap := ev("a", "Cheap", "2024-07-01", "X")
	cheap.Price = "$15"
	pricey := ev("a", "Pricey", "2024-07-01", "X")
	pricey.Price = "$120 - $200"
	tba := ev("a", "TBA", "2024-07-01", "X")
	tba.Price = extract.PriceTBA
	all := []model.CanonicalEvent{free, cheap, pricey, tba}

	got := Filter(all, model.SearchParams{PriceRange: &model.PriceRange{Min: 0, Max: 0}})
	assert.Equal(t, []string{"Free", "TBA"}, titles(got))

	got = Filter(all, model.SearchParams{PriceRange: &model.PriceRange{Min: 10, Max: 50}})
	assert.Equal(t, []string{"Cheap", "TBA"}, titles(got))

	got = Filter(all, model.SearchParams{PriceRange: &model.PriceRange{Min: 0, Max: 500}})
	assert.Equal(t, []string{"Free", "Cheap", "Pricey", "TBA"}, titles(got))
}

func TestDateRangeFilter(t *testing.T) {
	a := ev("a", "Before", "2024-06-30", "X")
	b := ev("a", "First day", "Mon, Jul 1, 2024", "X")
	c := ev("a", "Parsed", "ignored", "X")
	c.StartTime = time.Date(2024, 7, 5, 20, 0, 0, 0, time.UTC)
	d := ev("a", "After", "2024-07-09", "X")
	e := ev("a", "Unknown", extract.TBA, "X")

	r := &model.DateRange{
		Start: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 7, 8, 23, 59, 59, 0, time.UTC),
	}
	got := Filter([]model.CanonicalEvent{a, b, c, d, e}, model.SearchParams{DateRange: r})
	assert.Equal(t, []string{"First day", "Parsed"}, titles(got))
}

func TestSortOrders(t *testing.T) {
	origin := &model.Coordinates{Lat: 30, Lng: -97}
	mk := func(title, date, price string, attendees int, lat float64) model.CanonicalEvent {
		e := ev("a", title, date, "X")
		e.Price = price
		e.Attendees = attendees
		if lat != 0 {
			e.Coordinates = &model.Coordinates{Lat: lat, Lng: -97}
		}
		return e
	}
	base := []model.CanonicalEvent{
		mk("bravo", "2024-07-03", "$30", 10, 30.5),
		mk("Alpha", "2024-07-02", extract.PriceTBA, 300, 0),
		mk("charlie", "2024-07-01", extract.PriceFree, 50, 30.1),
	}
	cases := []struct {
		order model.SortOrder
		want  []string
	}{
		{model.SortDate, []string{"charlie", "Alpha", "bravo"}},
		{model.SortDistance, []string{"charlie", "bravo", "Alpha"}},
		{model.SortPopularity, []string{"Alpha", "charlie", "bravo"}},
		{model.SortPrice, []string{"charlie", "bravo", "Alpha"}},
		{model.SortAlphabetical, []string{"Alpha", "bravo", "charlie"}},
		{model.SortRelevance, []string{"bravo", "Alpha", "charlie"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.order), func(t *testing.T) {
			events := append([]model.CanonicalEvent(nil), base...)
			Sort(events, tc.order, origin)
			assert.Equal(t, tc.want, titles(events))
		})
	}
}

func TestPaginateLength(t *testing.T) {
	for total := 0; total <= 7; total++ {
		events := make([]model.CanonicalEvent, total)
		for size := 1; size <= 3; size++ {
			for page := 0; page <= 4; page++ {
				got, pages := Paginate(events, page, size)
				want := min(size, max(0, total-page*size))
				assert.Len(t, got, want, "total=%d size=%d page=%d", total, size, page)
				assert.Equal(t, (total+size-1)/size, pages)
			}
		}
	}
}

func TestPaginateHugePageIsEmpty(t *testing.T) {
	events := make([]model.CanonicalEvent, 2)
	for _, page := range []int{1 << 62, math.MaxInt / 4, math.MaxInt} {
		got, pages := Paginate(events, page, 4)
		assert.Empty(t, got, "page=%d", page)
		assert.Equal(t, 1, pages)
	}

	s := newService(&mockAdapter{name: "a", events: []model.CanonicalEvent{
		ev("a", "Only", "2024-07-01", "X"),
	}})
	res, err := s.Search(context.Background(), model.SearchParams{Page: 1 << 62, Size: 4})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.TotalCount)
}

func TestSearchPaginates(t *testing.T) {
	var events []model.CanonicalEvent
	for i := range 5 {
		events = append(events, ev("a", fmt.Sprintf("E%d", i), "2024-07-01", "X"))
	}
	s := newService(&mockAdapter{name: "a", events: events})

	res, err := s.Search(context.Background(), model.SearchParams{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"E4"}, titles(res.Events))
	assert.Equal(t, 5, res.TotalCount)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 2, res.Page)
}

func TestGetEventDetails(t *testing.T) {
	listed := ev("tm", "Jazz Night", "2024-07-01", "Club X")
	fresh := listed
	fresh.Description = longDesc + " Updated."

	d := &detailAdapter{
		mockAdapter: mockAdapter{name: "tm", events: []model.CanonicalEvent{listed}},
		details:     map[string]*model.CanonicalEvent{listed.SourceID: &fresh},
	}
	caches := cache.NewMemoryManager(cache.Options{})
	s := New([]provider.Adapter{d}, Options{Caches: caches})
	ctx := context.Background()

	_, err := s.Search(ctx, model.SearchParams{})
	require.NoError(t, err)

	got, err := s.GetEventDetails(ctx, listed.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, longDesc, got.Description)
	assert.Zero(t, d.lookups.Load(), "served from the details cache")

	caches.Details.Clear()
	got, err = s.GetEventDetails(ctx, listed.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fresh.Description, got.Description)
	assert.Equal(t, listed.ID, got.ID)
	assert.EqualValues(t, 1, d.lookups.Load())

	got, err = s.GetEventDetails(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetFeaturedEvents(t *testing.T) {
	var events []model.CanonicalEvent
	for i := range 20 {
		e := ev("a", fmt.Sprintf("Show %02d", i), "2024-07-01", "Arena")
		e.Attendees = i * 100
		events = append(events, e)
	}
	a := &mockAdapter{name: "a", events: events}
	s := newService(a)
	ctx := context.Background()

	got, err := s.GetFeaturedEvents(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Show 19", "Show 18", "Show 17", "Show 16", "Show 15"}, titles(got))

	var cats []string
	for _, p := range a.params {
		require.Len(t, p.Categories, 1)
		assert.Equal(t, model.SortPopularity, p.Sort)
		cats = append(cats, p.Categories[0])
	}
	sort.Strings(cats)
	want := append([]string(nil), featuredCategories...)
	sort.Strings(want)
	assert.Equal(t, want, cats)

	calls := a.calls.Load()
	got[0].Title = "MUTATED"
	again, err := s.GetFeaturedEvents(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, calls, a.calls.Load())
	assert.Equal(t, "Show 19", again[0].Title, "cached list is not shared with callers")

	got, err = s.GetFeaturedEvents(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestGetFeaturedEventsEmptyIsNotCached(t *testing.T) {
	a := &mockAdapter{name: "a"}
	s := newService(a)

	got, err := s.GetFeaturedEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	_, ok := s.Caches().Featured.Get(fmt.Sprintf("featured:%d", DefaultFeaturedLimit))
	assert.False(t, ok)
}
