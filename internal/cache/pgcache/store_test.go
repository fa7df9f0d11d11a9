package pgcache

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestStore_SetUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store := NewWithPool(mock, "cache_entries")
	store.now = func() time.Time { return now }

	expires := now.Add(time.Minute)
	mock.ExpectExec("INSERT INTO cache_entries").
		WithArgs("k", []byte("v"), &expires, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Set(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetMissReturnsFalse(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "cache_entries")

	mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetExpiredDeletesAndMisses(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store := NewWithPool(mock, "cache_entries")
	store.now = func() time.Time { return now }

	expired := now.Add(-time.Minute)
	rows := pgxmock.NewRows([]string{"value", "expires_at"}).
		AddRow([]byte("v"), &expired)
	mock.ExpectQuery("SELECT value, expires_at FROM cache_entries").
		WithArgs("k").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM cache_entries").
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ClearWithPrefixEscapesWildcards(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock, "cache_entries")

	mock.ExpectExec("DELETE FROM cache_entries WHERE key LIKE").
		WithArgs(`100\%off:`+"%").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	err = store.Clear(context.Background(), "100%off:")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
