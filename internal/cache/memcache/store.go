// Package memcache implements an in-process cache.Store backed by a
// sync.Map: a single shared map guarded by the map's own internal
// synchronization rather than an external mutex.
package memcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Store is a memory-backed cache.Store. Zero value is not usable; use New.
type Store struct {
	entries sync.Map // string -> domain.CacheEntry
	now     func() time.Time
	mu      sync.Mutex // serializes Clear calls; Set and Delete do not take it
}

// New constructs an empty Store.
func New() *Store {
	return &Store{now: time.Now}
}

// NewWithClock builds a Store using a caller-supplied clock, for tests that
// need to exercise TTL expiry deterministically.
func NewWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(domain.CacheEntry)
	if entry.Expired(s.now()) {
		s.entries.Delete(key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := domain.CacheEntry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		CreatedAt: s.now(),
	}
	if ttl > 0 {
		expires := s.now().Add(ttl)
		entry.ExpiresAt = &expires
	}
	s.entries.Store(key, entry)
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *Store) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Range(func(key, _ any) bool {
		k := key.(string)
		if prefix == "" || strings.HasPrefix(k, prefix) {
			s.entries.Delete(k)
		}
		return true
	})
	return nil
}

func (s *Store) Close() error { return nil }
