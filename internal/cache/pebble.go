package cache

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// ErrQuotaExceeded is returned by Save when a store's byte budget would be
// exceeded. Cache logs it and drops the write.
var ErrQuotaExceeded = errors.New("cache: storage quota exceeded")

// PebbleStore persists entries on local disk. Several namespaces can share
// one database; each tracks its managed keys (and their encoded sizes) in a
// single metadata record so Keys/Len/Clear never iterate the keyspace.
type PebbleStore[T any] struct {
	db        *pebble.DB
	ownsDB    bool
	namespace string
	quota     int64
	used      int64
	managed   map[string]int64
}

// OpenPebble opens (or creates) a database in dir.
func OpenPebble(dir string) (*pebble.DB, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return d, nil
}

// NewPebbleStore opens dir and returns a store that closes the database on
// Close. quota <= 0 means unlimited.
func NewPebbleStore[T any](dir, namespace string, quota int64) (*PebbleStore[T], error) {
	d, err := OpenPebble(dir)
	if err != nil {
		return nil, err
	}
	s, err := NewPebbleStoreFromDB[T](d, namespace, quota)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewPebbleStoreFromDB layers a namespace over an already open database.
func NewPebbleStoreFromDB[T any](d *pebble.DB, namespace string, quota int64) (*PebbleStore[T], error) {
	s := &PebbleStore[T]{
		db:        d,
		namespace: namespace,
		quota:     quota,
		managed:   make(map[string]int64),
	}
	if err := s.loadManaged(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PebbleStore[T]) entryKey(key string) []byte { return []byte("e/" + p.namespace + "/" + key) }
func (p *PebbleStore[T]) metaKey() []byte            { return []byte("m/" + p.namespace) }

func (p *PebbleStore[T]) loadManaged() error {
	v, closer, err := p.db.Get(p.metaKey())
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pebble load managed keys: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &p.managed); err != nil {
		// A corrupt index only costs us the old entries.
		p.managed = make(map[string]int64)
		return nil
	}
	for _, n := range p.managed {
		p.used += n
	}
	return nil
}

func (p *PebbleStore[T]) writeManaged(b *pebble.Batch) error {
	data, err := json.Marshal(p.managed)
	if err != nil {
		return err
	}
	return b.Set(p.metaKey(), data, nil)
}

func (p *PebbleStore[T]) Load(key string) (Entry[T], bool, error) {
	if _, ok := p.managed[key]; !ok {
		return Entry[T]{}, false, nil
	}
	v, closer, err := p.db.Get(p.entryKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry[T]{}, false, nil
	}
	if err != nil {
		return Entry[T]{}, false, err
	}
	defer closer.Close()
	e, err := decodeEntry[T](v)
	if err != nil {
		return Entry[T]{}, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return e, true, nil
}

func (p *PebbleStore[T]) Save(e Entry[T]) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	size := int64(len(data))
	old := p.managed[e.Key]
	if p.quota > 0 && p.used-old+size > p.quota {
		return ErrQuotaExceeded
	}

	p.managed[e.Key] = size
	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(p.entryKey(e.Key), data, nil); err != nil {
		p.rollback(e.Key, old)
		return err
	}
	if err := p.writeManaged(b); err != nil {
		p.rollback(e.Key, old)
		return err
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		p.rollback(e.Key, old)
		return fmt.Errorf("pebble commit: %w", err)
	}
	p.used += size - old
	return nil
}

func (p *PebbleStore[T]) rollback(key string, old int64) {
	if old == 0 {
		delete(p.managed, key)
		return
	}
	p.managed[key] = old
}

func (p *PebbleStore[T]) Remove(key string) error {
	size, ok := p.managed[key]
	if !ok {
		return nil
	}
	delete(p.managed, key)
	b := p.db.NewBatch()
	defer b.Close()
	_ = b.Delete(p.entryKey(key), nil)
	if err := p.writeManaged(b); err != nil {
		p.managed[key] = size
		return err
	}
	if err := b.Commit(pebble.NoSync); err != nil {
		p.managed[key] = size
		return fmt.Errorf("pebble commit: %w", err)
	}
	p.used -= size
	return nil
}

func (p *PebbleStore[T]) Keys() ([]string, error) {
	out := make([]string, 0, len(p.managed))
	for k := range p.managed {
		out = append(out, k)
	}
	return out, nil
}

func (p *PebbleStore[T]) Len() int { return len(p.managed) }

// Clear removes only this namespace's managed keys.
func (p *PebbleStore[T]) Clear() error {
	b := p.db.NewBatch()
	defer b.Close()
	for k := range p.managed {
		_ = b.Delete(p.entryKey(k), nil)
	}
	_ = b.Delete(p.metaKey(), nil)
	if err := b.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	p.managed = make(map[string]int64)
	p.used = 0
	return nil
}

// UsedBytes is the encoded size of all managed entries.
func (p *PebbleStore[T]) UsedBytes() int64 { return p.used }

func (p *PebbleStore[T]) Close() error {
	if !p.ownsDB {
		return nil
	}
	return p.db.Close()
}
