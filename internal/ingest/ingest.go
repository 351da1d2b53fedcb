package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/service/embedding"
)

// Index receives embedded chunks.
type Index interface {
	Upsert(ctx context.Context, chunks []model.Chunk) error
}

// SourceDeleter is implemented by indexes that can drop a document's chunks
// before it is re-ingested.
type SourceDeleter interface {
	DeleteBySource(ctx context.Context, source string) error
}

// Extensions lists the file types Indexer reads.
var Extensions = []string{".txt", ".md"}

// DefaultBatchSize is the number of chunks embedded per provider call.
const DefaultBatchSize = 32

// Indexer chunks, embeds, and upserts documents.
type Indexer struct {
	splitter  Splitter
	embedder  embedding.Provider
	index     Index
	batchSize int
	replace   bool
	logger    *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithReplace deletes a document's existing chunks before writing new ones,
// when the index supports it.
func WithReplace(replace bool) Option {
	return func(ix *Indexer) { ix.replace = replace }
}

// NewIndexer creates an Indexer.
func NewIndexer(splitter Splitter, embedder embedding.Provider, index Index, logger *slog.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Stats summarizes an ingest run.
type Stats struct {
	Documents int
	Pages     int
	Chunks    int
}

// Chunks splits one document into chunks without embeddings. Ordinals
// restart on every page so chunk IDs stay stable when other pages change.
func (ix *Indexer) Chunks(source, text string) []model.Chunk {
	var out []model.Chunk
	for _, page := range Pages(text) {
		for i, c := range ix.splitter.Split(page.Text) {
			out = append(out, model.Chunk{
				ID:      model.ChunkID(source, page.Number, i),
				Passage: model.Passage{Content: c, Source: source, Page: page.Number},
			})
		}
	}
	return out
}

// IngestDocument indexes one document under source.
func (ix *Indexer) IngestDocument(ctx context.Context, source, text string) (int, error) {
	chunks := ix.Chunks(source, text)
	if ix.replace {
		if d, ok := ix.index.(SourceDeleter); ok {
			if err := d.DeleteBySource(ctx, source); err != nil {
				return 0, fmt.Errorf("ingest: replace %s: %w", source, err)
			}
		}
	}

	for start := 0; start < len(chunks); start += ix.batchSize {
		batch := chunks[start:min(start+ix.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Passage.Content
		}
		vecs, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return start, fmt.Errorf("ingest: embed %s: %w", source, err)
		}
		if len(vecs) != len(batch) {
			return start, fmt.Errorf("ingest: embed %s: got %d vectors for %d chunks", source, len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i].Slice()
		}
		if err := ix.index.Upsert(ctx, batch); err != nil {
			return start, fmt.Errorf("ingest: upsert %s: %w", source, err)
		}
	}
	return len(chunks), nil
}

// IngestFS indexes every supported file under root in fsys. The source of
// each chunk is the file's base name, matching how citations name documents.
func (ix *Indexer) IngestFS(ctx context.Context, fsys fs.FS, root string) (Stats, error) {
	var stats Stats
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supported(p) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("ingest: read %s: %w", p, err)
		}
		text := string(data)
		source := documentName(p)
		n, err := ix.IngestDocument(ctx, source, text)
		if err != nil {
			return err
		}
		stats.Documents++
		stats.Pages += len(Pages(text))
		stats.Chunks += n
		ix.logger.Info("ingest: document indexed", "source", source, "chunks", n)
		return nil
	})
	return stats, err
}

func supported(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// documentName strips the extraction suffix so "report.pdf.txt" cites as
// "report.pdf".
func documentName(p string) string {
	base := filepath.Base(p)
	ext := path.Ext(base)
	if inner := path.Ext(strings.TrimSuffix(base, ext)); inner != "" {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
