package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultMaxKeys bounds the number of tracked keys.
const DefaultMaxKeys = 100_000

const staleThreshold = 10 * time.Minute

type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// MemoryLimiter implements Limiter using an in-memory token bucket per key.
//
// Each key refills at rate tokens per second up to burst. A background
// goroutine evicts keys idle for 10 minutes. New keys beyond maxKeys are
// rejected until eviction makes room.
type MemoryLimiter struct {
	rate    float64
	burst   float64
	maxKeys int
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter with a sustained rate
// (requests per second per key) and burst capacity. Call Close to stop
// the eviction goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := newMemoryLimiter(rate, burst, DefaultMaxKeys, time.Now)
	go m.cleanup()
	return m
}

func newMemoryLimiter(rate float64, burst, maxKeys int, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		rate:    rate,
		burst:   float64(max(burst, 1)),
		maxKeys: maxKeys,
		now:     now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
}

// Allow consumes one token from key's bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			return Result{RetryAfter: m.wait(0)}, nil
		}
		b = &bucket{tokens: m.burst, lastAccess: now}
		m.buckets[key] = b
	} else {
		b.tokens = math.Min(m.burst, b.tokens+now.Sub(b.lastAccess).Seconds()*m.rate)
		b.lastAccess = now
	}

	if b.tokens < 1 {
		return Result{RetryAfter: m.wait(b.tokens)}, nil
	}
	b.tokens--
	return Result{Allowed: true, Remaining: int(b.tokens)}, nil
}

// wait is the time until tokens reaches 1.
func (m *MemoryLimiter) wait(tokens float64) time.Duration {
	if m.rate <= 0 {
		return time.Minute
	}
	return time.Duration((1 - tokens) / m.rate * float64(time.Second))
}

// Len reports the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
