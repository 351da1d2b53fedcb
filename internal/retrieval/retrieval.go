// Package retrieval answers sub-queries with passages from a vector index.
//
// A Retriever embeds the query text, asks an Index for its nearest chunks,
// and returns their passages best match first. Two indexes are provided:
// QdrantIndex here and the pgvector-backed storage.DB.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/service/embedding"
	"github.com/ashita-ai/kenkyu/internal/telemetry"
)

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("retrieval: empty query")

// Index stores embedded chunks and answers nearest-neighbor queries.
// Implementations must be safe for concurrent use.
type Index interface {
	// Query returns up to limit passages nearest to vector, best first.
	Query(ctx context.Context, vector []float32, limit int) ([]model.Passage, error)
	// Upsert inserts or replaces chunks by ID.
	Upsert(ctx context.Context, chunks []model.Chunk) error
	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// Retriever is the embedding-backed passage retriever.
type Retriever struct {
	embedder embedding.Provider
	index    Index
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Retriever over index using embedder for query vectors.
func New(embedder embedding.Provider, index Index, logger *slog.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
		tracer:   telemetry.Tracer("kenkyu/retrieval"),
	}
}

// Search embeds query and returns up to limit passages, best match first.
// Passages come back normalized: an empty source is "unknown" and a
// negative page is 0.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]model.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, nil
	}

	ctx, span := r.tracer.Start(ctx, "retrieval.search", trace.WithAttributes(
		attribute.Int("kenkyu.retrieval.limit", limit),
	))
	defer span.End()

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed")
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	passages, err := r.index.Query(ctx, vec.Slice(), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query")
		return nil, fmt.Errorf("retrieval: query index: %w", err)
	}
	for i := range passages {
		passages[i] = passages[i].Normalize()
	}
	span.SetAttributes(attribute.Int("kenkyu.retrieval.hits", len(passages)))
	r.logger.Debug("retrieval: search", "hits", len(passages), "duration_ms", time.Since(start).Milliseconds())
	return passages, nil
}

// Healthy reports the index's health.
func (r *Retriever) Healthy(ctx context.Context) error {
	return r.index.Healthy(ctx)
}
