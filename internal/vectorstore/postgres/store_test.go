package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/vectorstore"
)

func TestStore_UpsertBatchSingleStatement(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "blog", 3)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	records := []domain.EmbeddingRecord{
		{ID: "a", URL: "https://x/a", Title: "A", SourceName: "blog", Vector: []float32{1, 2, 3}, Metadata: map[string]any{}, UpdatedAt: now},
		{ID: "b", URL: "https://x/b", Title: "B", SourceName: "blog", Vector: []float32{4, 5, 6}, Metadata: map[string]any{}, UpdatedAt: now},
	}

	anyArgs := make([]interface{}, 20)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO posts_blog").
		WithArgs(anyArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err = store.UpsertBatch(context.Background(), records)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetMissReturnsFalse(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "blog", 3)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM posts_blog WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	t.Parallel()

	v := []float32{0.5, -1.25, 3}
	encoded := encodeVector(v)
	require.Equal(t, "[0.5,-1.25,3]", encoded)

	decoded, err := decodeVector(encoded)
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}

func TestStore_InvalidCollectionNameRejected(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;name", 3)
	require.Error(t, err)
}

func TestStore_SearchAppliesSourceFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "blog", 3)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "url", "title", "source", "author", "published_at", "summary",
		"vector", "metadata", "created_at", "updated_at", "distance",
	}).AddRow("a", "https://x/a", "A", "blog", "", (*time.Time)(nil), "", "[1,2,3]", []byte(`{}`), now, now, 0.01)

	mock.ExpectQuery("SELECT .* FROM posts_blog").
		WithArgs("[9,9,9]", "blog", 5).
		WillReturnRows(rows)

	matches, err := store.Search(context.Background(), []float32{9, 9, 9}, 5, &vectorstore.Filter{SourceName: "blog"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "a", matches[0].Record.ID)
	require.InDelta(t, 0.01, matches[0].Distance, 1e-9)
}

func TestStore_CountWithoutFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "blog", 3)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"count"}).AddRow(int64(42))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM posts_blog").
		WillReturnRows(rows)

	count, err := store.Count(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(42), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountAppliesSourceFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "blog", 3)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"count"}).AddRow(int64(7))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM posts_blog WHERE source = \\$1").
		WithArgs("blog").
		WillReturnRows(rows)

	count, err := store.Count(context.Background(), &vectorstore.Filter{SourceName: "blog"})
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
