package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/service/embedding"
)

type recordingIndex struct {
	chunks  []model.Chunk
	deleted []string
	batches int
	err     error
}

func (r *recordingIndex) Upsert(_ context.Context, chunks []model.Chunk) error {
	if r.err != nil {
		return r.err
	}
	r.batches++
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func (r *recordingIndex) DeleteBySource(_ context.Context, source string) error {
	r.deleted = append(r.deleted, source)
	return nil
}

func newTestIndexer(idx Index, opts ...Option) *Indexer {
	s, _ := NewSplitter(40, 5)
	return NewIndexer(s, embedding.NewNoopProvider(3), idx, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestIngestDocument_PagesAndProvenance(t *testing.T) {
	idx := &recordingIndex{}
	ix := newTestIndexer(idx, WithBatchSize(2))

	n, err := ix.IngestDocument(context.Background(), "doc.pdf",
		"Page one text.\fPage two has a little more text than fits in one chunk here.\fThird.")
	require.NoError(t, err)
	assert.Equal(t, len(idx.chunks), n)
	require.GreaterOrEqual(t, n, 4)

	assert.Equal(t, 1, idx.chunks[0].Passage.Page)
	assert.Equal(t, "doc.pdf", idx.chunks[0].Passage.Source)
	assert.Equal(t, 3, idx.chunks[n-1].Passage.Page)
	for _, c := range idx.chunks {
		assert.Len(t, c.Embedding, 3)
		assert.Equal(t, model.ChunkID(c.Passage.Source, c.Passage.Page, 0) == c.ID, isFirstOnPage(idx.chunks, c))
	}
	assert.Greater(t, idx.batches, 1)
	assert.Empty(t, idx.deleted)
}

func isFirstOnPage(chunks []model.Chunk, c model.Chunk) bool {
	for _, o := range chunks {
		if o.Passage.Page == c.Passage.Page {
			return o.ID == c.ID
		}
	}
	return false
}

func TestIngestDocument_Replace(t *testing.T) {
	idx := &recordingIndex{}
	_, err := newTestIndexer(idx, WithReplace(true)).IngestDocument(context.Background(), "a.md", "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, idx.deleted)
}

func TestIngestDocument_UpsertError(t *testing.T) {
	idx := &recordingIndex{err: errors.New("qdrant down")}
	_, err := newTestIndexer(idx).IngestDocument(context.Background(), "a.md", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant down")
}

func TestIngestFS(t *testing.T) {
	fsys := fstest.MapFS{
		"docs/report.pdf.txt": {Data: []byte("Hackathons are events.\fThey last a weekend.")},
		"docs/notes.md":       {Data: []byte("# Notes\nshort")},
		"docs/image.png":      {Data: []byte{0x89, 'P', 'N', 'G'}},
		"docs/sub/more.txt":   {Data: []byte("nested file")},
	}
	idx := &recordingIndex{}

	stats, err := newTestIndexer(idx).IngestFS(context.Background(), fsys, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 4, stats.Pages)
	assert.Equal(t, len(idx.chunks), stats.Chunks)

	sources := map[string]bool{}
	for _, c := range idx.chunks {
		sources[c.Passage.Source] = true
	}
	assert.Equal(t, map[string]bool{"report.pdf": true, "notes.md": true, "more.txt": true}, sources)
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "report.pdf", documentName("a/b/report.pdf.txt"))
	assert.Equal(t, "notes.md", documentName("notes.md"))
}
