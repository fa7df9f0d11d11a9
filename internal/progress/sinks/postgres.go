package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blogwatch/ingestor/internal/progress"
)

const defaultTable = "ingest_events"

// querier is the subset of *pgxpool.Pool this sink needs, so tests can
// substitute a pgxmock pool without depending on the concrete type.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// PostgresConfig controls the connection pool backing a PostgresSink.
type PostgresConfig struct {
	DSN   string
	Table string
}

// PostgresSink persists progress events into a Postgres table, one row per
// event, in a single multi-row INSERT per batch.
type PostgresSink struct {
	pool  querier
	table string
	pgp   *pgxpool.Pool // non-nil only when the sink owns the pool
}

// NewPostgresSink connects to Postgres and returns a PostgresSink.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("progress: postgres dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("progress: connect: %w", err)
	}
	return &PostgresSink{pool: pool, table: table, pgp: pool}, nil
}

// NewPostgresSinkWithPool builds a PostgresSink from an existing pool,
// primarily for tests.
func NewPostgresSinkWithPool(pool querier, table string) *PostgresSink {
	if table == "" {
		table = defaultTable
	}
	return &PostgresSink{pool: pool, table: table}
}

// Schema returns the DDL for the event log table.
func (s *PostgresSink) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id bigserial PRIMARY KEY,
	ts timestamptz NOT NULL,
	stage text NOT NULL,
	source text NOT NULL,
	url text,
	kind text,
	attempt int NOT NULL DEFAULT 0,
	duration_ms bigint NOT NULL DEFAULT 0,
	note text
);`, s.table)
}

// Consume inserts the batch as a single multi-row INSERT, never emulating a
// batch write with one round trip per row.
func (s *PostgresSink) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	const cols = 8
	values := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*cols)
	for i, evt := range batch {
		base := i * cols
		values = append(values, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			evt.TS, string(evt.Stage), evt.Source, evt.URL, evt.Kind,
			evt.Attempt, evt.Dur.Milliseconds(), evt.Note,
		)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (ts, stage, source, url, kind, attempt, duration_ms, note)
VALUES %s`, s.table, strings.Join(values, ","))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("progress: insert batch: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool, if this sink owns one.
func (s *PostgresSink) Close(context.Context) error {
	if s.pgp != nil {
		s.pgp.Close()
	}
	return nil
}
