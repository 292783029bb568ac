package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = Key{Scope: ScopeUserSending, SubjectID: "user-1", Kind: WindowHourly}

func TestMemoryStore_SequentialBound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		res, err := store.TryIncrement(ctx, testKey, 3, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, i, res.CountAfter)
	}

	res, err := store.TryIncrement(ctx, testKey, 3, now)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.CountAfter, "denied attempt must not consume quota")

	count, err := store.Peek(ctx, testKey, now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryStore_NoLostUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)

	const bound = 50
	const attempts = 200

	var allowed, denied int64
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.TryIncrement(ctx, testKey, bound, now)
			assert.NoError(t, err)
			if res.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&denied, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(bound), allowed, "exactly bound successes")
	assert.Equal(t, int64(attempts-bound), denied)

	count, err := store.Peek(ctx, testKey, now)
	require.NoError(t, err)
	assert.Equal(t, bound, count, "final count must equal the bound")
}

func TestMemoryStore_DistinctKeysIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)

	other := Key{Scope: ScopeUserSending, SubjectID: "user-2", Kind: WindowHourly}

	res, err := store.TryIncrement(ctx, testKey, 1, now)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.TryIncrement(ctx, other, 1, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a full counter on one key must not affect another")
}

func TestMemoryStore_LazyReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("stale hourly window reads as fresh", func(t *testing.T) {
		earlier := time.Date(2025, 3, 9, 13, 59, 0, 0, time.UTC)
		later := time.Date(2025, 3, 9, 14, 0, 1, 0, time.UTC)

		for i := 0; i < 2; i++ {
			res, err := store.TryIncrement(ctx, testKey, 2, earlier)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}
		res, err := store.TryIncrement(ctx, testKey, 2, earlier)
		require.NoError(t, err)
		require.False(t, res.Allowed)

		res, err = store.TryIncrement(ctx, testKey, 2, later)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.CountAfter, "counter restarts in the new window")
	})

	t.Run("arbitrarily old window behaves identically", func(t *testing.T) {
		key := Key{Scope: ScopeSignupIP, SubjectID: "10.0.0.1", Kind: WindowDaily}
		ancient := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
		now := time.Date(2025, 3, 9, 14, 0, 0, 0, time.UTC)

		_, err := store.TryIncrement(ctx, key, 5, ancient)
		require.NoError(t, err)

		count, err := store.Peek(ctx, key, now)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		res, err := store.TryIncrement(ctx, key, 5, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.CountAfter)
	})
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.TryIncrement(ctx, testKey, 3, now)
		require.NoError(t, err)
	}

	require.NoError(t, store.Reset(ctx, testKey, now))

	count, err := store.Peek(ctx, testKey, now)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	res, err := store.TryIncrement(ctx, testKey, 3, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.CountAfter)
}

func TestMemoryStore_ZeroBoundAlwaysDenies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)

	res, err := store.TryIncrement(ctx, testKey, 0, now)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.CountAfter)
}

func TestNewStore_Factory(t *testing.T) {
	store, err := NewStore("memory", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore("postgres", nil, nil)
	assert.Error(t, err)

	_, err = NewStore("bogus", nil, nil)
	assert.Error(t, err)
}
