package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiterSlidingWindow(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	l := New(map[string]Limit{"ticketmaster": {Requests: 3, Window: time.Minute}}, WithClock(clk.now))

	for range 3 {
		assert.True(t, l.Check("ticketmaster"))
		l.Record("ticketmaster")
		clk.advance(10 * time.Second)
	}
	assert.False(t, l.Check("ticketmaster"))
	assert.Equal(t, 0, l.Remaining("ticketmaster"))

	// First request was at +0s; at +60s it has left the window.
	clk.advance(30 * time.Second)
	assert.True(t, l.Check("ticketmaster"))
	assert.Equal(t, 1, l.Remaining("ticketmaster"))
}

func TestLimiterIsPerProvider(t *testing.T) {
	l := New(map[string]Limit{
		"a": {Requests: 1, Window: time.Hour},
		"b": {Requests: 1, Window: time.Hour},
	})
	l.Record("a")
	assert.False(t, l.Check("a"))
	assert.True(t, l.Check("b"))
}

func TestLimiterCheckDoesNotRecord(t *testing.T) {
	l := New(map[string]Limit{"a": {Requests: 1, Window: time.Hour}})
	for range 5 {
		assert.True(t, l.Check("a"))
	}
	l.Record("a")
	assert.False(t, l.Check("a"))
}

func TestLimiterUnconfiguredProviderIsUnlimited(t *testing.T) {
	l := New(nil)
	for range 100 {
		l.Record("x")
	}
	assert.True(t, l.Check("x"))
	assert.Equal(t, -1, l.Remaining("x"))

	l.SetLimit("x", Limit{Requests: 10, Window: time.Hour})
	assert.False(t, l.Check("x"))
}

func TestLimiterCheckNReservesRoomForWholeCall(t *testing.T) {
	l := New(map[string]Limit{"rapidapi": {Requests: 6, Window: time.Hour}})
	assert.True(t, l.CheckN("rapidapi", 6))
	l.Record("rapidapi")
	assert.False(t, l.CheckN("rapidapi", 6), "five left, six needed")
	assert.True(t, l.CheckN("rapidapi", 5))
	assert.True(t, l.CheckN("rapidapi", 0), "zero counts as one request")
	assert.True(t, l.CheckN("unlimited", 1000))
}
