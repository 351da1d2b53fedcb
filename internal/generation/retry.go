package generation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kenkyu/internal/telemetry"
)

// Retrying retries transient failures of the wrapped generator with
// jittered exponential backoff.
type Retrying struct {
	next       Generator
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger

	duration metric.Float64Histogram
}

// WithRetry wraps next. maxRetries is the number of extra attempts after the
// first; zero disables retrying but keeps the latency metric.
func WithRetry(next Generator, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Retrying {
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	dur, _ := telemetry.Meter("kenkyu/generation").Float64Histogram("kenkyu.generation.duration",
		metric.WithDescription("Time for one generation call including retries (ms)"),
		metric.WithUnit("ms"),
	)
	return &Retrying{
		next:       next,
		maxRetries: max(maxRetries, 0),
		baseDelay:  baseDelay,
		logger:     logger,
		duration:   dur,
	}
}

// Generate calls the wrapped generator until it succeeds, returns a
// non-retryable error, or runs out of attempts.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := r.generate(ctx, prompt)
	r.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Bool("error", err != nil)))
	return out, err
}

func (r *Retrying) generate(ctx context.Context, prompt string) (string, error) {
	delay := r.baseDelay
	for attempt := 0; ; attempt++ {
		out, err := r.next.Generate(ctx, prompt)
		if err == nil || !Retryable(err) || attempt == r.maxRetries {
			return out, err
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		r.logger.Warn("generation: retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}
