package memcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_SetGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	current := time.Unix(1000, 0)
	s := NewWithClock(func() time.Time { return current })

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 5*time.Second))
	current = current.Add(5 * time.Second)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "get at exactly ttl boundary must be a miss")
}

func TestStore_HasAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, s.Delete(ctx, "k"))
	has, err = s.Has(ctx, "k")
	require.NoError(t, err)
	require.False(t, has)
}

func TestStore_ClearByPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "fp:a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "fp:b", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "tick:x", []byte("1"), 0))

	require.NoError(t, s.Clear(ctx, "fp:"))

	has, _ := s.Has(ctx, "fp:a")
	require.False(t, has)
	has, _ = s.Has(ctx, "tick:x")
	require.True(t, has)
}
