package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterWindowExhaustion(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	const maxAttempts = 3

	for i := 0; i < maxAttempts; i++ {
		allowed, err := store.TryAcquire(ctx, "k", maxAttempts, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be admitted", i+1)
	}

	// Everything past the quota inside the window is denied, but the count
	// keeps growing.
	for i := 0; i < 5; i++ {
		allowed, err := store.TryAcquire(ctx, "k", maxAttempts, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	}

	attempts, err := store.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, maxAttempts+5, attempts)

	remaining, err := store.Remaining(ctx, "k", maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestMemoryCounterWindowReset(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		allowed, err := store.TryAcquire(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i == 0, allowed)
	}

	// Once the decay window elapses the bucket resets and the count restarts
	// at 1.
	now = now.Add(time.Minute + time.Second)

	allowed, err := store.TryAcquire(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	attempts, err := store.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestMemoryCounterAvailableIn(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	availableIn, err := store.AvailableIn(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), availableIn)

	_, err = store.TryAcquire(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	availableIn, err = store.AvailableIn(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, availableIn)

	// The TTL is pinned at creation; later attempts never extend it.
	now = now.Add(20 * time.Second)
	_, err = store.TryAcquire(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	availableIn, err = store.AvailableIn(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, availableIn)
}

func TestMemoryCounterConcurrentAcquire(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	const maxAttempts = 50

	var admitted int64
	var wg sync.WaitGroup

	for i := 0; i < 2*maxAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := store.TryAcquire(ctx, "k", maxAttempts, time.Hour)
			assert.NoError(t, err)
			if allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	// No double-admits under contention: exactly maxAttempts succeed.
	assert.Equal(t, int64(maxAttempts), admitted)
}

func TestMemoryCounterIndependentKeys(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	allowed, err := store.TryAcquire(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = store.TryAcquire(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "buckets must not interfere")
}

func TestMemoryCounterCleanup(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.TryAcquire(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	store.Cleanup()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.entries)
}
