// Package fscache implements a filesystem-backed cache.Store: one file per
// key under a root directory, using the same MkdirAll/WriteFile discipline
// as the other on-disk artifact writers in this module.
package fscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Store is a filesystem-backed cache.Store rooted at a directory.
type Store struct {
	root string
	now  func() time.Time
}

type record struct {
	Key       string     `json:"key"`
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Store{root: dir, now: time.Now}, nil
}

func (s *Store) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.root, hex.EncodeToString(sum[:])+".json")
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	rec, ok, err := s.readRecord(key)
	if err != nil || !ok {
		return nil, false, err
	}
	entry := domain.CacheEntry{ExpiresAt: rec.ExpiresAt}
	if entry.Expired(s.now()) {
		_ = os.Remove(s.path(key))
		return nil, false, nil
	}
	return rec.Value, true, nil
}

func (s *Store) readRecord(key string) (record, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return record{}, false, nil
		}
		return record{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if rec.Key != key {
		// Extremely unlikely hash collision; treat as a miss rather than
		// returning another key's value.
		return record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	rec := record{
		Key:       key,
		Value:     append([]byte(nil), value...),
		CreatedAt: s.now(),
	}
	if ttl > 0 {
		expires := s.now().Add(ttl)
		rec.ExpiresAt = &expires
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := os.WriteFile(s.path(key), raw, 0o600); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear removes all cache files. Because keys are content-addressed by hash
// on disk, prefix filtering requires reading each record's stored key.
func (s *Store) Clear(_ context.Context, prefix string) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(s.root, entry.Name())
		if prefix == "" {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove cache entry: %w", err)
			}
			continue
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if strings.HasPrefix(rec.Key, prefix) {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove cache entry: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }
