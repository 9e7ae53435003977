package provider

import (
	"time"

	"eventscout/internal/httpx"
	"eventscout/internal/ics"
)

// Settings is everything needed to construct the adapter set.
type Settings struct {
	Ticketmaster Config
	Eventbrite   Config
	RapidAPI     Config
	PredictHQ    Config

	Feeds       []ics.Feed
	ICSCacheDir string

	// Recorder is told about every outbound request, for rate limiting.
	Recorder httpx.Recorder
	// AttemptTimeout bounds one HTTP attempt; the aggregator bounds the
	// whole provider call.
	AttemptTimeout time.Duration
	MaxRetries     uint64
}

// NewAll builds every adapter, each with its own HTTP client and circuit
// breaker. Disabled adapters are included and report Enabled() == false.
func NewAll(s Settings) []Adapter {
	client := func(name string) *httpx.Client {
		return httpx.New(httpx.Options{
			Provider:   name,
			Timeout:    s.AttemptTimeout,
			MaxRetries: s.MaxRetries,
			Recorder:   s.Recorder,
		})
	}
	return []Adapter{
		NewTicketmaster(s.Ticketmaster, client(NameTicketmaster)),
		NewEventbrite(s.Eventbrite, client(NameEventbrite)),
		NewRapidAPI(s.RapidAPI, client(NameRapidAPI)),
		NewPredictHQ(s.PredictHQ, client(NamePredictHQ)),
		NewICS(s.Feeds, ics.NewFetcher(client(NameICS), s.ICSCacheDir)),
	}
}
