// Package workflow implements the resumable research workflow engine.
//
// The engine sequences Plan, an optional pause for approval, Research,
// Draft, and Revise. Each completed stage is persisted to the SessionStore
// before the next begins, so a failed or interrupted call can be resumed by
// calling the engine again with the same session ID.
//
// Callers must serialize calls per session ID. The engine does not arbitrate
// concurrent advances of the same session.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/telemetry"
)

// Retriever returns passages relevant to a query, best match first.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]model.Passage, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionStore persists session snapshots keyed by session ID.
// Get returns model.ErrSessionNotFound for unknown IDs.
type SessionStore interface {
	Put(ctx context.Context, s model.Session) error
	Get(ctx context.Context, id string) (model.Session, error)
}

// DefaultRetrievalLimit is the number of passages requested per sub-query.
const DefaultRetrievalLimit = 7

// Engine drives sessions through the stage graph.
type Engine struct {
	retriever Retriever
	generator Generator
	store     SessionStore
	logger    *slog.Logger

	retrievalLimit      int
	researchConcurrency int
	now                 func() time.Time
	newID               func() string

	tracer            trace.Tracer
	stageDuration     metric.Float64Histogram
	retrievalDuration metric.Float64Histogram
	retrievalFailures metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetrievalLimit sets how many passages are requested per sub-query.
func WithRetrievalLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.retrievalLimit = n
		}
	}
}

// WithResearchConcurrency bounds how many sub-queries are retrieved at once.
// The default of 1 retrieves strictly in plan order. Findings are always
// reported in plan order regardless of this setting.
func WithResearchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.researchConcurrency = n
		}
	}
}

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how engine-generated session IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an Engine. The retriever, generator, and store are required.
func New(retriever Retriever, generator Generator, store SessionStore, logger *slog.Logger, opts ...Option) *Engine {
	meter := telemetry.Meter("kenkyu/workflow")
	stageDur, _ := meter.Float64Histogram("kenkyu.stage.duration",
		metric.WithDescription("Time to run a workflow stage (ms)"),
		metric.WithUnit("ms"),
	)
	retDur, _ := meter.Float64Histogram("kenkyu.retrieval.duration",
		metric.WithDescription("Time to retrieve passages for one sub-query (ms)"),
		metric.WithUnit("ms"),
	)
	retFail, _ := meter.Int64Counter("kenkyu.retrieval.failures",
		metric.WithDescription("Sub-query retrievals that returned an error"),
	)

	e := &Engine{
		retriever:           retriever,
		generator:           generator,
		store:               store,
		logger:              logger,
		retrievalLimit:      DefaultRetrievalLimit,
		researchConcurrency: 1,
		now:                 func() time.Time { return time.Now().UTC() },
		newID:               func() string { return uuid.NewString() },
		tracer:              telemetry.Tracer("kenkyu/workflow"),
		stageDuration:       stageDur,
		retrievalDuration:   retDur,
		retrievalFailures:   retFail,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
