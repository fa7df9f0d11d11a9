// Package gcs stores the cache entries mirrored by internal/cache/blobmirror
// in a Google Cloud Storage bucket using a bucket-scoped client and the
// standard NewWriter/Write/Close upload shape.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the destination bucket.
type Config struct {
	Bucket string
}

// Store writes objects to a configured GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed Store. It does not verify the bucket exists;
// callers wanting fail-fast startup checks should call Attrs themselves.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs: storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// PutObject uploads data under path and returns the object's gs:// URI.
func (s *Store) PutObject(ctx context.Context, path string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("gcs: path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("gcs: write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("gcs: write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("gcs: close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// DeleteObject removes an object. Deleting a missing object is not an error.
func (s *Store) DeleteObject(ctx context.Context, path string) error {
	if err := s.client.Bucket(s.bucket).Object(path).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("gcs: delete object %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
