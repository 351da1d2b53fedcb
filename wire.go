package kenkyu

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/kenkyu/internal/config"
	"github.com/ashita-ai/kenkyu/internal/generation"
	"github.com/ashita-ai/kenkyu/internal/retrieval"
	"github.com/ashita-ai/kenkyu/internal/server"
	"github.com/ashita-ai/kenkyu/internal/service/embedding"
	"github.com/ashita-ai/kenkyu/internal/storage"
	"github.com/ashita-ai/kenkyu/internal/storage/memory"
	"github.com/ashita-ai/kenkyu/internal/storage/natskv"
	"github.com/ashita-ai/kenkyu/internal/storage/sqlite"
	"github.com/ashita-ai/kenkyu/internal/workflow"
	"github.com/ashita-ai/kenkyu/migrations"
)

const generationRetryDelay = 500 * time.Millisecond

// sessionStore is what the engine persists to and what /health pings.
type sessionStore interface {
	workflow.SessionStore
	server.Pinger
}

// backends constructs the configured store and retrieval implementations and
// remembers how to close them.
type backends struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *storage.DB // Shared by the postgres session store and the pgvector index.
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// postgres connects once and runs the embedded migrations.
func (b *backends) postgres(ctx context.Context) (*storage.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := storage.New(ctx, b.cfg.DatabaseURL, b.logger, storage.WithDimensions(b.cfg.EmbeddingDimensions))
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, db.Close)
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	b.db = db
	return db, nil
}

func (b *backends) sessionStore(ctx context.Context) (sessionStore, error) {
	switch b.cfg.SessionStore {
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, b.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = s.Close() })
		b.logger.Info("session store: sqlite", "path", b.cfg.SQLitePath)
		return s, nil

	case config.StorePostgres:
		db, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		b.logger.Info("session store: postgres")
		return db, nil

	case config.StoreNATS:
		s, err := natskv.Connect(ctx, b.cfg.NATSURL, b.cfg.NATSBucket)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = s.Close() })
		b.logger.Info("session store: nats", "url", b.cfg.NATSURL, "bucket", b.cfg.NATSBucket)
		return s, nil

	default:
		b.logger.Info("session store: memory (sessions are lost on restart)")
		return memory.New(), nil
	}
}

// retriever builds the retrieval pipeline: embedder, vector index, and the
// optional result cache in front. A caller-supplied Retriever replaces the
// first two. The returned HealthChecker is nil when health is unknown.
func (b *backends) retriever(ctx context.Context, override Retriever, embedder embedding.Provider) (workflow.Retriever, server.HealthChecker, error) {
	var (
		ret    retrieval.Searcher
		health server.HealthChecker
	)
	if override != nil {
		ret = &retrieverAdapter{r: override}
		b.logger.Info("retrieval: external retriever")
	} else {
		if embedder == nil {
			embedder = newEmbeddingProvider(b.cfg, b.logger)
		}
		if embedder.Dimensions() != b.cfg.EmbeddingDimensions {
			return nil, nil, fmt.Errorf("embedding provider has %d dimensions, index expects %d",
				embedder.Dimensions(), b.cfg.EmbeddingDimensions)
		}
		index, err := b.index(ctx)
		if err != nil {
			return nil, nil, err
		}
		ret = retrieval.New(embedder, index, b.logger)
		health = index
	}

	if b.cfg.RetrievalCacheBytes <= 0 {
		return ret, health, nil
	}
	cached, err := retrieval.NewCachedRetriever(ret, b.cfg.RetrievalCacheBytes, b.cfg.RetrievalCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	b.closers = append(b.closers, cached.Close)
	b.logger.Info("retrieval: cache enabled", "max_bytes", b.cfg.RetrievalCacheBytes, "ttl", b.cfg.RetrievalCacheTTL)
	return cached, health, nil
}

// index opens the configured vector index. ingest writes to the same one.
func (b *backends) index(ctx context.Context) (retrieval.Index, error) {
	if b.cfg.RetrievalBackend == config.RetrievalPgvector {
		db, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		b.logger.Info("retrieval: pgvector")
		return db, nil
	}

	q, err := retrieval.NewQdrantIndex(retrieval.QdrantConfig{
		URL:        b.cfg.QdrantURL,
		APIKey:     b.cfg.QdrantAPIKey,
		Collection: b.cfg.QdrantCollection,
		Dims:       uint64(b.cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	b.closers = append(b.closers, func() { _ = q.Close() })
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("qdrant ensure collection: %w", err)
	}
	b.logger.Info("retrieval: qdrant", "collection", b.cfg.QdrantCollection)
	return q, nil
}

func (b *backends) generator() (workflow.Generator, error) {
	switch b.cfg.GenerationProvider {
	case config.ProviderOllama:
		b.logger.Info("generation: ollama", "url", b.cfg.OllamaURL, "model", b.cfg.GenerationModel)
		return generation.NewOllamaChat(b.cfg.OllamaURL, b.cfg.GenerationModel, b.cfg.GenerationTemperature), nil
	case config.ProviderOpenAI:
		if b.cfg.GenerationAPIKey == "" {
			b.logger.Warn("generation: no API key set (GROQ_API_KEY or OPENAI_API_KEY); requests may be rejected upstream")
		}
		b.logger.Info("generation: openai-compatible", "base_url", b.cfg.GenerationBaseURL, "model", b.cfg.GenerationModel)
		return generation.NewOpenAIChat(generation.OpenAIConfig{
			BaseURL:     b.cfg.GenerationBaseURL,
			APIKey:      b.cfg.GenerationAPIKey,
			Model:       b.cfg.GenerationModel,
			Temperature: b.cfg.GenerationTemperature,
			MaxTokens:   b.cfg.GenerationMaxTokens,
			Timeout:     b.cfg.GenerationTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", b.cfg.GenerationProvider)
	}
}

func (b *backends) withRetry(gen workflow.Generator) workflow.Generator {
	return generation.WithRetry(gen, b.cfg.GenerationRetries, generationRetryDelay, b.logger)
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama" (default), "openai", or "noop".
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.EmbeddingBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)

	case config.ProviderNoop:
		logger.Warn("embedding provider: noop (every query returns the same neighbors)")
		return embedding.NewNoopProvider(dims)

	default:
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaEmbedModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbedModel, dims)
	}
}
