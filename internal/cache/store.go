package cache

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned by stores that distinguish a missing key from a
// failed read. Cache treats both as a miss.
var ErrNotFound = errors.New("cache: not found")

// Entry is one cached value plus its bookkeeping. It is logically expired
// once now > Timestamp+TTL, whatever its hit count.
type Entry[T any] struct {
	Data      T             `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Key       string        `json:"key"`
	Hits      int64         `json:"hits"`
}

func (e Entry[T]) Expired(now time.Time) bool {
	return now.After(e.Timestamp.Add(e.TTL))
}

// Store is a cache backend. Backends keep their own set of managed keys so
// Keys, Len and Clear never have to scan foreign data in shared storage.
// Implementations need not be safe for concurrent use; Cache serializes.
type Store[T any] interface {
	Load(key string) (Entry[T], bool, error)
	Save(e Entry[T]) error
	Remove(key string) error
	Keys() ([]string, error)
	Len() int
	Clear() error
	Close() error
}

// MemoryStore is a plain in-process map.
type MemoryStore[T any] struct {
	data map[string]Entry[T]
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{data: make(map[string]Entry[T])}
}

func (m *MemoryStore[T]) Load(key string) (Entry[T], bool, error) {
	e, ok := m.data[key]
	return e, ok, nil
}

func (m *MemoryStore[T]) Save(e Entry[T]) error {
	m.data[e.Key] = e
	return nil
}

func (m *MemoryStore[T]) Remove(key string) error {
	delete(m.data, key)
	return nil
}

func (m *MemoryStore[T]) Keys() ([]string, error) {
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryStore[T]) Len() int { return len(m.data) }

func (m *MemoryStore[T]) Clear() error {
	m.data = make(map[string]Entry[T])
	return nil
}

func (m *MemoryStore[T]) Close() error { return nil }

func encodeEntry[T any](e Entry[T]) ([]byte, error) { return json.Marshal(e) }

func decodeEntry[T any](b []byte) (Entry[T], error) {
	var e Entry[T]
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry[T]{}, err
	}
	return e, nil
}
