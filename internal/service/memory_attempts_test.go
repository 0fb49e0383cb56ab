package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAttemptStoreCountsPerChannel(t *testing.T) {
	store := NewMemoryAttemptStore(time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, err := store.Increment(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	count, err := store.Count(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	other, err := store.Count(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, 0, other)
}

func TestMemoryAttemptStoreReset(t *testing.T) {
	store := NewMemoryAttemptStore(time.Minute)
	ctx := context.Background()

	_, err := store.Increment(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "10.0.0.1"))

	count, err := store.Count(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryAttemptStoreDecay(t *testing.T) {
	store := NewMemoryAttemptStore(time.Minute)
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	_, err := store.Increment(ctx, "10.0.0.1")
	require.NoError(t, err)
	_, err = store.Increment(ctx, "10.0.0.1")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	count, err := store.Count(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// A failure after decay starts a fresh count instead of resuming.
	count, err = store.Increment(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryAttemptStoreConcurrentIncrements(t *testing.T) {
	store := NewMemoryAttemptStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "10.0.0.1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := store.Count(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 50, count)
}
