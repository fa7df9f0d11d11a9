// Package vectorstore declares the upsert/search contract over a collection
// of embedding records sharing a fixed vector dimension, and provides a
// Postgres/pgvector-backed implementation.
package vectorstore

import (
	"context"

	"github.com/blogwatch/ingestor/internal/domain"
)

// Filter narrows a Search call to records matching all non-zero fields.
type Filter struct {
	SourceName string
}

// Match pairs a stored record with its distance from the query vector.
// Smaller Distance means more similar; results are ordered ascending by
// Distance, ties broken by Record.ID ascending.
type Match struct {
	Record   domain.EmbeddingRecord
	Distance float64
}

// Store is a collection of EmbeddingRecord under a shared vector dimension.
type Store interface {
	// Upsert inserts or replaces a record by ID.
	Upsert(ctx context.Context, record domain.EmbeddingRecord) error
	// UpsertBatch inserts or replaces multiple records in one round trip.
	// All vectors in the batch must share the collection's dimension.
	UpsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error
	// Get returns the record stored under id, or ok=false if absent.
	Get(ctx context.Context, id string) (domain.EmbeddingRecord, bool, error)
	// Delete removes the record stored under id. Deleting an absent id is
	// not an error.
	Delete(ctx context.Context, id string) error
	// Search returns the k nearest records to query, ascending by distance.
	Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Match, error)
	// Count returns the number of records currently stored, optionally
	// narrowed to those matching filter.
	Count(ctx context.Context, filter *Filter) (int64, error)
	Close() error
}
