package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventscout/internal/model"
)

func TestNewManagerPebbleSharesOneDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Backend: BackendPebble, PebbleDir: dir, MaxSize: 10}

	m, err := NewManager(context.Background(), cfg, nil)
	require.NoError(t, err)
	m.Search.Set("q", model.SearchResult{TotalCount: 3}, time.Hour)
	m.Details.Set("event:1", model.CanonicalEvent{ID: 1, Title: "Jazz Night"}, time.Hour)
	m.Refs.Set("ref:1", model.EventRef{Provider: "ticketmaster", NativeID: "abc"}, time.Hour)
	require.NoError(t, m.Close())

	m, err = NewManager(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer m.Close()

	res, ok := m.Search.Get("q")
	require.True(t, ok)
	assert.Equal(t, 3, res.TotalCount)
	ev, ok := m.Details.Get("event:1")
	require.True(t, ok)
	assert.Equal(t, "Jazz Night", ev.Title)
	ref, ok := m.Refs.Get("ref:1")
	require.True(t, ok)
	assert.Equal(t, "abc", ref.NativeID)
	assert.Equal(t, 0, m.Featured.Size())
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	_, err := NewManager(context.Background(), Config{Backend: "tape"}, nil)
	require.Error(t, err)
	_, err = NewManager(context.Background(), Config{Backend: BackendPebble}, nil)
	require.Error(t, err)
}

func TestMemoryManagerSweepStatsClear(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryManager(Options{Now: func() time.Time { return now }})

	m.Search.Set("a", model.SearchResult{}, time.Minute)
	m.Details.Set("event:1", model.CanonicalEvent{ID: 1}, time.Second)
	m.Featured.Set("featured:12", []model.CanonicalEvent{{ID: 1}}, time.Hour)
	_, _ = m.Search.Get("a")
	_, _ = m.Search.Get("missing")

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, m.Sweep())

	stats := m.Stats()
	require.Contains(t, stats, "search")
	assert.Equal(t, int64(1), stats["search"].Hits)
	assert.Equal(t, int64(1), stats["search"].Misses)
	assert.InDelta(t, 0.5, stats["search"].HitRate, 1e-9)
	assert.Equal(t, 0, stats["details"].Size)
	assert.Equal(t, 1, stats["featured"].Size)

	m.Clear()
	assert.Equal(t, 0, m.Search.Size())
	assert.Equal(t, 0, m.Featured.Size())
	require.NoError(t, m.Close())
}
