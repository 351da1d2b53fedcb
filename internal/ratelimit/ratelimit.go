// Package ratelimit throttles the expensive endpoints: planning and execution
// each make several LLM calls, so one client can exhaust a shared upstream quota.
//
// The Limiter interface is the contract; MemoryLimiter is an in-process
// token bucket, which suffices because session advancement is already
// single-instance (see workflow.Guard).
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until a token is available. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes a token for key. The key is opaque; callers construct it
	// (e.g. "client:<id>"). An error signals a limiter malfunction and callers
	// fail open.
	Allow(ctx context.Context, key string) (Result, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always allows.
func (NoopLimiter) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
