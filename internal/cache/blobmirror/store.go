// Package blobmirror decorates a cache.Store with an additional, best-effort
// mirror of every write to a blob backend, so cache entries survive the loss
// of local/ephemeral storage the primary backend depends on.
package blobmirror

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/cache"
)

// Blob is the subset of internal/blob/gcs.Store this package depends on.
type Blob interface {
	PutObject(ctx context.Context, path string, data []byte) (string, error)
	DeleteObject(ctx context.Context, path string) error
	Close() error
}

// Store wraps a primary cache.Store, mirroring Set/Delete calls to blob
// storage after the primary write succeeds. Mirror failures are logged, not
// propagated: the primary store remains the source of truth Get reads from,
// so a mirroring outage degrades durability, not correctness.
type Store struct {
	primary cache.Store
	blob    Blob
	logger  *zap.Logger
}

// New wraps primary with mirroring to blob.
func New(primary cache.Store, blob Blob, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{primary: primary, blob: blob, logger: logger}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.primary.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if _, err := s.blob.PutObject(ctx, key, value); err != nil {
		s.logger.Warn("blob mirror put failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	return s.primary.Has(ctx, key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.blob.DeleteObject(ctx, key); err != nil {
		s.logger.Warn("blob mirror delete failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, prefix string) error {
	return s.primary.Clear(ctx, prefix)
}

func (s *Store) Close() error {
	blobErr := s.blob.Close()
	if err := s.primary.Close(); err != nil {
		return err
	}
	return blobErr
}
