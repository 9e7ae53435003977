package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type rawEvent struct {
	images []string
	price  string
	info   string
}

func TestFirstTakesEarliestValidCandidate(t *testing.T) {
	raw := rawEvent{images: []string{"not-a-url", "https://cdn.example.com/pic.png"}}
	got := First(raw, IsImageURL,
		func(r rawEvent) string { return "" },
		func(r rawEvent) string { return r.images[0] },
		func(r rawEvent) string { return r.images[1] },
		func(r rawEvent) string { return "https://other.example.com/x.jpg" },
	)
	assert.Equal(t, "https://cdn.example.com/pic.png", got)
}

func TestFirstSurvivesPanickingAccessor(t *testing.T) {
	raw := rawEvent{}
	got := First(raw, nil,
		func(r rawEvent) string { return r.images[3] },
		func(r rawEvent) string { return "ok" },
	)
	assert.Equal(t, "ok", got)
}

func TestIsImageURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/a/b/poster.JPG", true},
		{"http://example.com/pic.webp?x=1", true},
		{"https://s1.ticketm.net/dam/a/123/abc_RETINA_PORTRAIT_3_2.jpg", true},
		{"https://img.evbuc.com/https%3A%2F%2Fcdn.evbuc.com%2Fimages%2F1", true},
		{"https://example.com/images/12345", true},
		{"https://example.com/resource?id=9&format=png", true},
		{"https://example.com/event/123", false},
		{"ftp://example.com/pic.jpg", false},
		{"/relative/pic.jpg", false},
		{"https://example.com/placeholder.png", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsImageURL(c.url), c.url)
	}
}

func TestImageFallsBackToCategoryDefault(t *testing.T) {
	raw := rawEvent{images: []string{"https://example.com/page"}}
	img := Image(raw, CategoryMusic, func(r rawEvent) string { return r.images[0] })
	assert.Equal(t, DefaultImage(CategoryMusic), img)
	assert.True(t, IsFallbackImage(img))
	assert.False(t, IsRealImage(img))
	assert.Equal(t, DefaultImage(CategoryDefault), DefaultImage("Unknown"))
}

func TestIsRealImage(t *testing.T) {
	assert.True(t, IsRealImage("https://cdn.example.com/poster.jpg"))
	assert.False(t, IsRealImage("http://a.co/x.jpg"))
	assert.False(t, IsRealImage("data:image/png;base64,AAAAAAAAAAAAAAAAAA"))
	assert.False(t, IsRealImage("https://cdn.example.com/placeholder-event.jpg"))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, CategoryMusic, Category("Music"))
	assert.Equal(t, CategoryArts, Category("", "Arts & Theatre"))
	assert.Equal(t, CategoryArts, Category("Hamilton - The Musical"))
	assert.Equal(t, CategoryComedy, Category("Stand-Up Comedy Night"))
	assert.Equal(t, CategoryMusic, Category("concerts-and-sports"), "first matching category in priority order wins")
	assert.Equal(t, CategoryDefault, Category("My husband's birthday"))
	assert.Equal(t, CategoryDefault, Category())
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, PriceFree, FormatRange(0, 0, "USD"))
	assert.Equal(t, "$25", FormatRange(25, 25, "USD"))
	assert.Equal(t, "$25 - $50", FormatRange(25, 50, ""))
	assert.Equal(t, "$19.50 - $40", FormatRange(19.5, 40, "USD"))
	assert.Equal(t, "€10", FormatRange(10, 0, "EUR"))
	assert.Equal(t, "€20 - €40", FormatRange(20, 40, "EUR"))
	assert.Equal(t, "CHF 20 - CHF 40", FormatRange(20, 40, "chf"))

	for _, p := range []string{
		FormatRange(20, 40, "EUR"),
		FormatRange(7.5, 7.5, "GBP"),
		FormatRange(20, 40, "CHF"),
	} {
		_, ok := ParsePrice(p)
		assert.True(t, ok, "formatted price %q must read back", p)
	}
	assert.Equal(t, PriceTBA, FormatRange(-1, -1, "USD"))
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"Free", 0, true},
		{"FREE admission", 0, true},
		{"$25", 25, true},
		{"$25 - $50", 25, true},
		{"From $1,250.00", 1250, true},
		{"$ 9.99", 9.99, true},
		{"Price TBA", 0, false},
		{"€10", 10, true},
		{"€20 - €40", 20, true},
		{"£7.50", 7.5, true},
		{"CHF 20 - CHF 40", 20, true},
		{"JPY 3000", 3000, true},
		{"AGE 21 and over", 0, false},
		{"USD", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParsePrice(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.InDelta(t, c.want, got, 1e-9, c.in)
	}
}

func TestPriceFromTextAndPrice(t *testing.T) {
	assert.Equal(t, PriceFree, PriceFromText("Join us! Free admission for all."))
	assert.Equal(t, "$15", PriceFromText("Tickets $15 at the door"))
	assert.Equal(t, "$15 - $30", PriceFromText("GA $15, VIP $30"))
	assert.Equal(t, "", PriceFromText("no pricing here"))

	raw := rawEvent{price: "call box office", info: "Tickets from $20"}
	assert.Equal(t, "Tickets from $20", Price(raw,
		func(r rawEvent) string { return r.price },
		func(r rawEvent) string { return r.info },
	))
	assert.Equal(t, PriceTBA, Price(rawEvent{}, func(r rawEvent) string { return r.price }))

	assert.Equal(t, "€12 - €18", PriceFromText("Eintritt €12, ermäßigt €18"))
	assert.Equal(t, "€20 - €40", Price(rawEvent{price: FormatRange(20, 40, "EUR")},
		func(r rawEvent) string { return r.price },
	))
}

func TestStringHashIsStableAndNonNegative(t *testing.T) {
	assert.Equal(t, StringHash("vvG1iZ4JkNmA7X"), StringHash("vvG1iZ4JkNmA7X"))
	assert.NotEqual(t, StringHash("a"), StringHash("b"))
	assert.Equal(t, int64(0), StringHash(""))
	assert.Equal(t, int64(97), StringHash("a"))
	assert.Equal(t, int64(3105), StringHash("ab"))
	for _, s := range []string{"ticketmaster-Z7r9jZ1AdbP8F", "🎉 party", "x"} {
		assert.GreaterOrEqual(t, StringHash(s), int64(0))
	}
}

func TestEstimateAttendeesIsSynthesizedInRange(t *testing.T) {
	// Display filler only: deterministic per id, always within [50, 549].
	for _, id := range []int64{0, 1, 499, 500, 123456789, -42} {
		n := EstimateAttendees(id)
		assert.GreaterOrEqual(t, n, 50)
		assert.LessOrEqual(t, n, 549)
		assert.Equal(t, n, EstimateAttendees(id))
	}
}

func TestParseAndFormatTime(t *testing.T) {
	ts, ok := ParseTime("2024-07-01T19:30:00Z", nil)
	assert.True(t, ok)
	assert.Equal(t, "Mon, Jul 1, 2024", FormatDate(ts))
	assert.Equal(t, "7:30 PM", FormatTime(ts, false))
	assert.Equal(t, TBA, FormatTime(ts, true))

	d, ok := ParseTime("2024-07-01", nil)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), d)

	back, ok := ParseTime(FormatDate(ts), nil)
	assert.True(t, ok)
	assert.Equal(t, 1, back.Day())

	_, ok = ParseTime("someday", nil)
	assert.False(t, ok)
	assert.Equal(t, TBA, FormatDate(time.Time{}))
}

func TestImageFromHTML(t *testing.T) {
	html := `<p>Hello</p><img src="data:image/png;base64,AAAA"><img alt="x" src='https://cdn.example.com/banner.jpg'>`
	assert.Equal(t, "https://cdn.example.com/banner.jpg", ImageFromHTML(html))
	assert.Equal(t, "", ImageFromHTML("<p>no pictures</p>"))
}
