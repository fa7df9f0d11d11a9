// Package postgres implements vectorstore.Store against a pgvector-enabled
// Postgres table, one per collection, named posts_<collection>.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/vectorstore"
)

var validCollectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// querier is the subset of *pgxpool.Pool this store needs, so tests can
// substitute a pgxmock pool.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// Config controls the connection pool and collection identity.
type Config struct {
	DSN             string
	Collection      string
	Dimension       int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements vectorstore.Store over a posts_<collection> table.
type Store struct {
	pool      querier
	table     string
	dimension int
	pgp       *pgxpool.Pool
}

var _ vectorstore.Store = (*Store)(nil)

// New connects to Postgres and returns a Store bound to cfg.Collection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vectorstore: dsn is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vectorstore: collection is required")
	}
	table := "posts_" + cfg.Collection
	if !validCollectionName.MatchString(table) {
		return nil, fmt.Errorf("vectorstore: invalid collection name %q", cfg.Collection)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect: %w", err)
	}
	return &Store{pool: pool, table: table, dimension: cfg.Dimension, pgp: pool}, nil
}

// NewWithPool builds a Store from an existing pool, primarily for tests.
func NewWithPool(pool querier, collection string, dimension int) (*Store, error) {
	table := "posts_" + collection
	if !validCollectionName.MatchString(table) {
		return nil, fmt.Errorf("vectorstore: invalid collection name %q", collection)
	}
	return &Store{pool: pool, table: table, dimension: dimension}, nil
}

// Schema returns the DDL for the collection's table and HNSW index.
func (s *Store) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	id text PRIMARY KEY,
	url text NOT NULL,
	title text NOT NULL,
	source text NOT NULL,
	author text,
	published_at timestamptz,
	summary text,
	vector vector(%[2]d) NOT NULL,
	metadata jsonb NOT NULL DEFAULT '{}',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_vector_hnsw ON %[1]s USING hnsw (vector vector_cosine_ops);`, s.table, s.dimension)
}

func encodeVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decodeVector(raw string) ([]float32, error) {
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, nil
	}
	fields := strings.Split(raw, ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("decode vector component %d: %w", i, err)
		}
		out[i] = float32(val)
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, record domain.EmbeddingRecord) error {
	return s.UpsertBatch(ctx, []domain.EmbeddingRecord{record})
}

// UpsertBatch writes all records in a single multi-row INSERT ... ON
// CONFLICT (id) DO UPDATE, never emulating upsert with a read-then-write
// round trip.
func (s *Store) UpsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	const cols = 10
	values := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*cols)
	for i, r := range records {
		metaJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal metadata for %s: %w", r.ID, err)
		}
		base := i * cols
		values = append(values, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d::vector,$%d::jsonb,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			r.ID, r.URL, r.Title, r.SourceName, r.Author,
			r.PublishedAt, r.Summary, encodeVector(r.Vector), metaJSON, r.UpdatedAt,
		)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, url, title, source, author, published_at, summary, vector, metadata, updated_at)
VALUES %s
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	source = EXCLUDED.source,
	author = EXCLUDED.author,
	published_at = EXCLUDED.published_at,
	summary = EXCLUDED.summary,
	vector = EXCLUDED.vector,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at`, s.table, strings.Join(values, ","))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("vectorstore: upsert batch: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.EmbeddingRecord, bool, error) {
	query := fmt.Sprintf(`
SELECT id, url, title, source, author, published_at, summary, vector::text, metadata, created_at, updated_at
FROM %s WHERE id = $1`, s.table)

	var rec domain.EmbeddingRecord
	var vectorText string
	var metaJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.URL, &rec.Title, &rec.SourceName, &rec.Author,
		&rec.PublishedAt, &rec.Summary, &vectorText, &metaJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EmbeddingRecord{}, false, nil
		}
		return domain.EmbeddingRecord{}, false, fmt.Errorf("vectorstore: get: %w", err)
	}
	rec.Vector, err = decodeVector(vectorText)
	if err != nil {
		return domain.EmbeddingRecord{}, false, fmt.Errorf("vectorstore: get: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return domain.EmbeddingRecord{}, false, fmt.Errorf("vectorstore: decode metadata: %w", err)
		}
	}
	return rec, true, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

// Search returns the k nearest records to query, ascending by cosine
// distance (pgvector's <=> operator), ties broken by id ascending.
func (s *Store) Search(ctx context.Context, query []float32, k int, filter *vectorstore.Filter) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	args := []any{encodeVector(query)}
	where := ""
	if filter != nil && filter.SourceName != "" {
		args = append(args, filter.SourceName)
		where = fmt.Sprintf("WHERE source = $%d", len(args))
	}
	args = append(args, k)
	sqlQuery := fmt.Sprintf(`
SELECT id, url, title, source, author, published_at, summary, vector::text, metadata, created_at, updated_at,
	vector <=> $1::vector AS distance
FROM %s
%s
ORDER BY distance ASC, id ASC
LIMIT $%d`, s.table, where, len(args))

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var matches []vectorstore.Match
	for rows.Next() {
		var rec domain.EmbeddingRecord
		var vectorText string
		var metaJSON []byte
		var distance float64
		if err := rows.Scan(
			&rec.ID, &rec.URL, &rec.Title, &rec.SourceName, &rec.Author,
			&rec.PublishedAt, &rec.Summary, &vectorText, &metaJSON, &rec.CreatedAt, &rec.UpdatedAt,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("vectorstore: scan search row: %w", err)
		}
		rec.Vector, err = decodeVector(vectorText)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: search: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("vectorstore: decode metadata: %w", err)
			}
		}
		matches = append(matches, vectorstore.Match{Record: rec, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: search rows: %w", err)
	}
	return matches, nil
}

// Count returns the number of records in the collection, or the number
// matching filter.SourceName when it is set, mirroring Search's filter
// handling.
func (s *Store) Count(ctx context.Context, filter *vectorstore.Filter) (int64, error) {
	args := []any{}
	where := ""
	if filter != nil && filter.SourceName != "" {
		args = append(args, filter.SourceName)
		where = "WHERE source = $1"
	}
	query := fmt.Sprintf(`SELECT count(*) FROM %s %s`, s.table, where)
	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error {
	if s.pgp != nil {
		s.pgp.Close()
	}
	return nil
}
