package kenkyu

import (
	"context"
	"net/http"
)

// Generator produces text from a prompt.
// When provided via WithGenerator, replaces the configured Ollama/OpenAI-compatible
// chat backend. Retries and latency metrics still wrap it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever returns passages relevant to a query, best match first.
// When provided via WithRetriever, replaces the configured embedding + vector
// index pipeline. The retrieval cache still applies when enabled.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]Passage, error)
}

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the configured provider.
// Uses []float32 (not pgvector.Vector) to avoid forcing the pgvector dependency on
// external consumers.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Routes share the mux, auth chain, and OTEL instrumentation with built-in routes.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
