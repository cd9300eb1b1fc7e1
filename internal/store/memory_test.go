package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "order_lifecycle/pkg/errors"
)

func TestMemoryGetMissingKey(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemorySetIfAbsentClaims(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	won, err := s.SetIfAbsent(ctx, "claim", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.SetIfAbsent(ctx, "claim", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	// the loser never overwrites the holder's value
	got, err := s.Get(ctx, "claim")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestMemorySetIfAbsentConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	wins := make([]bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := s.SetIfAbsent(ctx, "claim", []byte("x"), time.Minute)
			require.NoError(t, err)
			wins[i] = won
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMemoryTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v"), 20*time.Millisecond))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)

	// expired keys are claimable again
	won, err := s.SetIfAbsent(ctx, "k", []byte("fresh"), time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemoryDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestMemoryPushListPreservesOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "l", []byte("a")))
	require.NoError(t, s.Push(ctx, "l", []byte("b")))
	require.NoError(t, s.Push(ctx, "l", []byte("c")))

	items, err := s.List(ctx, "l")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []byte("a"), items[0])
	assert.Equal(t, []byte("c"), items[2])
}

func TestMemoryListMissingKeyIsEmpty(t *testing.T) {
	s := NewMemoryStore()
	items, err := s.List(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemorySetMembership(t *testing.T) {
	s := NewMemoryStore()
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
