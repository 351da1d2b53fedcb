package kenkyu

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/ashita-ai/kenkyu/internal/config"
	"github.com/ashita-ai/kenkyu/internal/ingest"
	"github.com/ashita-ai/kenkyu/internal/service/embedding"
)

// IngestStats counts what one ingest run indexed.
type IngestStats struct {
	Documents int
	Pages     int
	Chunks    int
}

// Ingest chunks, embeds, and writes every .txt and .md file under root in
// fsys to the configured vector index, the same one the server retrieves
// from. With replace, a document's previous chunks are dropped first.
// Only WithConfigFile, WithLogger, and WithEmbeddingProvider apply.
func Ingest(ctx context.Context, fsys fs.FS, root string, replace bool, opts ...Option) (IngestStats, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		cfg config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return IngestStats{}, fmt.Errorf("load config: %w", err)
	}

	splitter, err := ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return IngestStats{}, err
	}

	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}
	if embedder.Dimensions() != cfg.EmbeddingDimensions {
		return IngestStats{}, fmt.Errorf("embedding provider has %d dimensions, index expects %d",
			embedder.Dimensions(), cfg.EmbeddingDimensions)
	}

	b := &backends{cfg: cfg, logger: logger}
	defer b.close()
	index, err := b.index(ctx)
	if err != nil {
		return IngestStats{}, err
	}

	ix := ingest.NewIndexer(splitter, embedder, index, logger, ingest.WithReplace(replace))
	stats, err := ix.IngestFS(ctx, fsys, root)
	out := IngestStats{Documents: stats.Documents, Pages: stats.Pages, Chunks: stats.Chunks}
	if err != nil {
		return out, fmt.Errorf("ingest: %w", err)
	}
	logger.Info("ingest complete", "documents", out.Documents, "pages", out.Pages, "chunks", out.Chunks)
	return out, nil
}
