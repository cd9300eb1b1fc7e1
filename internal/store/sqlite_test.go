package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "order_lifecycle/pkg/errors"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	require.NoError(t, s.Set(ctx, "k", []byte("v2")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestSQLiteSetIfAbsent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	won, err := s.SetIfAbsent(ctx, "claim", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.SetIfAbsent(ctx, "claim", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := s.Get(ctx, "claim")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestSQLiteExpiredKeyIsReclaimable(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	won, err := s.SetIfAbsent(ctx, "claim", []byte("a"), 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, won)

	time.Sleep(40 * time.Millisecond)

	_, err = s.Get(ctx, "claim")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)

	won, err = s.SetIfAbsent(ctx, "claim", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestSQLitePushList(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "l", []byte("a")))
	require.NoError(t, s.Push(ctx, "l", []byte("b")))

	items, err := s.List(ctx, "l")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("a"), items[0])
	assert.Equal(t, []byte("b"), items[1])
}

func TestSQLiteSetMembership(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.AddToSet(ctx, "s", "m1"))
	require.NoError(t, s.AddToSet(ctx, "s", "m1"))

	ok, err := s.IsMember(ctx, "s", "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsMember(ctx, "s", "m2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteDelete(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}
