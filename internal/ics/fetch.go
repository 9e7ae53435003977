// Package ics reads public iCalendar feeds (fetch with HTTP validators and a
// disk copy, parse VEVENTs, expand recurrences) and renders search results
// back out as an iCalendar document.
package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"eventscout/internal/httpx"
	appLog "eventscout/internal/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Feed is one configured calendar subscription.
type Feed struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Fetched is a feed body, fresh or reused from disk.
type Fetched struct {
	Feed      Feed
	Body      []byte
	FromCache bool
}

type feedMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional GET and keeps the last good body
// per URL under dir, so an unreachable feed still serves its previous copy.
type Fetcher struct {
	client *httpx.Client
	dir    string
}

func NewFetcher(client *httpx.Client, dir string) *Fetcher {
	if dir == "" {
		dir = "./var/ics-cache"
	}
	return &Fetcher{client: client, dir: dir}
}

// Fetch returns the current body of feed.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Fetched, error) {
	if feed.URL == "" {
		return Fetched{}, errors.New("ics: feed url is empty")
	}
	dir := f.pathFor(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Fetched{}, fmt.Errorf("ics: cache dir: %w", err)
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, http.NoBody)
	if err != nil {
		return Fetched{}, fmt.Errorf("ics: build request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	res, err := f.client.Fetch(ctx, req, http.StatusOK, http.StatusNotModified)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("ics feed unavailable, serving previous copy", "feed", feed.ID, "url", appLog.RedactURL(feed.URL), "err", err)
			return Fetched{Feed: feed, Body: cached, FromCache: true}, nil
		}
		return Fetched{}, err
	}

	if res.StatusCode == http.StatusNotModified {
		if len(cached) == 0 {
			return Fetched{}, errors.New("ics: 304 without a stored body")
		}
		appLog.Debug("ics feed not modified", "feed", feed.ID)
		return Fetched{Feed: feed, Body: cached, FromCache: true}, nil
	}

	m := feedMeta{
		URL:          feed.URL,
		ETag:         res.Header.Get("ETag"),
		LastModified: res.Header.Get("Last-Modified"),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := saveCopy(dir, m, res.Body); err != nil {
		appLog.Error("ics feed copy not saved", err, "feed", feed.ID, "url", appLog.RedactURL(feed.URL))
	}
	appLog.Debug("ics feed fetched", "feed", feed.ID, "bytes", len(res.Body))
	return Fetched{Feed: feed, Body: res.Body}, nil
}

func (f *Fetcher) pathFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (feedMeta, error) {
	var m feedMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

// saveCopy writes the body before the metadata so validators never point
// at a body we do not have.
func saveCopy(dir string, m feedMeta, body []byte) error {
	if err := writeAtomic(filepath.Join(dir, "body.ics"), body); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, "meta.json"), data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
