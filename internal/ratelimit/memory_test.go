package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rate float64, burst, maxKeys int) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newMemoryLimiter(rate, burst, maxKeys, clock.Now), clock
}

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	m, _ := newTestLimiter(1, 3, 10)
	ctx := context.Background()

	for i := range 3 {
		res, err := m.Allow(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d within burst", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := m.Allow(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
}

func TestMemoryLimiter_Refill(t *testing.T) {
	m, clock := newTestLimiter(2, 1, 10) // one token every 500ms
	ctx := context.Background()

	res, _ := m.Allow(ctx, "k1")
	require.True(t, res.Allowed)
	res, _ = m.Allow(ctx, "k1")
	require.False(t, res.Allowed)
	assert.Equal(t, 500*time.Millisecond, res.RetryAfter)

	clock.Advance(250 * time.Millisecond)
	res, _ = m.Allow(ctx, "k1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)

	clock.Advance(250 * time.Millisecond)
	res, _ = m.Allow(ctx, "k1")
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_RefillCapsAtBurst(t *testing.T) {
	m, clock := newTestLimiter(100, 2, 10)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "k1")
	clock.Advance(time.Hour)

	allowed := 0
	for range 5 {
		if res, _ := m.Allow(ctx, "k1"); res.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	m, _ := newTestLimiter(1, 1, 10)
	ctx := context.Background()

	res, _ := m.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	res, _ = m.Allow(ctx, "a")
	assert.False(t, res.Allowed)
	res, _ = m.Allow(ctx, "b")
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_MaxKeys(t *testing.T) {
	m, clock := newTestLimiter(1, 1, 2)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "a")
	_, _ = m.Allow(ctx, "b")
	res, _ := m.Allow(ctx, "c")
	assert.False(t, res.Allowed, "new keys rejected at capacity")

	clock.Advance(staleThreshold + time.Second)
	m.evictStale()
	assert.Equal(t, 0, m.Len())

	res, _ = m.Allow(ctx, "c")
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	m, _ := newTestLimiter(0, 50, 10)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, _ := m.Allow(ctx, "shared"); res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiter(t *testing.T) {
	var l Limiter = NoopLimiter{}
	for range 100 {
		res, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
}
