// Package pgcache implements a Postgres-backed cache.Store using an
// UPSERT (INSERT ... ON CONFLICT DO UPDATE) instead of a read-then-write
// emulation, which under concurrent writers would race and silently lose an
// update.
package pgcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTable = "cache_entries"

// querier is the subset of *pgxpool.Pool this store needs, so tests can
// substitute a pgxmock pool without depending on the concrete type.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// Config controls the connection pool backing a Store.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store is a Postgres-backed cache.Store over a table with columns
// (key text primary key, value bytea, expires_at timestamptz, created_at
// timestamptz).
type Store struct {
	pool  querier
	table string
	pgp   *pgxpool.Pool // non-nil only when Store owns the pool
	now   func() time.Time
}

// New connects to Postgres and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgcache: dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgcache: parse dsn: %w", err)
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
		return nil, fmt.Errorf("pgcache: connect: %w", err)
	}
	return &Store{pool: pool, table: table, pgp: pool, now: time.Now}, nil
}

// NewWithPool builds a Store from an existing pool, primarily for tests.
func NewWithPool(pool querier, table string) *Store {
	if table == "" {
		table = defaultTable
	}
	return &Store{pool: pool, table: table, now: time.Now}
}

// Schema returns the DDL for the cache table, for migration tooling.
func (s *Store) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key text PRIMARY KEY,
	value bytea NOT NULL,
	expires_at timestamptz,
	created_at timestamptz NOT NULL
)`, s.table)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = $1`, s.table)
	var value []byte
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, query, key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pgcache: get: %w", err)
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := fmt.Sprintf(`
INSERT INTO %s (key, value, expires_at, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`, s.table)

	var expiresAt *time.Time
	now := s.now()
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}
	if _, err := s.pool.Exec(ctx, query, key, value, expiresAt, now); err != nil {
		return fmt.Errorf("pgcache: set: %w", err)
	}
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, key, s.now()).Scan(&exists); err != nil {
		return false, fmt.Errorf("pgcache: has: %w", err)
	}
	return exists, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("pgcache: delete: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, prefix string) error {
	var query string
	var args []any
	if prefix == "" {
		query = fmt.Sprintf(`DELETE FROM %s`, s.table)
	} else {
		query = fmt.Sprintf(`DELETE FROM %s WHERE key LIKE $1`, s.table)
		args = append(args, strings.ReplaceAll(prefix, "%", `\%`)+"%")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("pgcache: clear: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pgp != nil {
		s.pgp.Close()
	}
	return nil
}
