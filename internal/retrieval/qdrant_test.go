package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kenkyu/internal/model"
)

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{name: "https with REST port", rawURL: "https://xyz.cloud.qdrant.io:6333", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{name: "https with gRPC port", rawURL: "https://xyz.cloud.qdrant.io:6334", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{name: "http local", rawURL: "http://localhost:6333", host: "localhost", port: 6334},
		{name: "no port defaults to gRPC", rawURL: "http://qdrant.internal", host: "qdrant.internal", port: 6334},
		{name: "custom port preserved", rawURL: "https://qdrant.example.com:9334", host: "qdrant.example.com", port: 9334, tls: true},
		{name: "empty", rawURL: "", wantErr: true},
		{name: "no scheme", rawURL: "not-a-url", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, tls, err := parseQdrantURL(tt.rawURL)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, tls)
		})
	}
}

// newTestQdrantIndex points at a port with no server. gRPC connects lazily,
// so construction succeeds and RPCs fail.
func newTestQdrantIndex(t *testing.T, dims uint64) *QdrantIndex {
	t.Helper()
	idx, err := NewQdrantIndex(QdrantConfig{
		URL:  "http://localhost:16334",
		Dims: dims,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestNewQdrantIndex_DefaultCollection(t *testing.T) {
	idx := newTestQdrantIndex(t, 768)
	assert.Equal(t, DefaultCollection, idx.collection)
	assert.Equal(t, uint64(768), idx.dims)
}

func TestQdrantQuery_RejectsWrongDimensions(t *testing.T) {
	idx := newTestQdrantIndex(t, 768)
	_, err := idx.Query(context.Background(), make([]float32, 3), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection expects 768")
}

func TestQdrantQuery_ZeroLimit(t *testing.T) {
	idx := newTestQdrantIndex(t, 4)
	got, err := idx.Query(context.Background(), make([]float32, 4), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQdrantQuery_FailsWithoutServer(t *testing.T) {
	idx := newTestQdrantIndex(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := idx.Query(ctx, make([]float32, 4), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant query")
}

func TestQdrantUpsert(t *testing.T) {
	idx := newTestQdrantIndex(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, idx.Upsert(ctx, nil))

	err := idx.Upsert(ctx, []model.Chunk{{ID: model.ChunkID("a.pdf", 1, 0), Embedding: make([]float32, 2)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection expects 4")

	err = idx.Upsert(ctx, []model.Chunk{{
		ID:        model.ChunkID("a.pdf", 1, 0),
		Passage:   model.Passage{Content: "text", Source: "a.pdf", Page: 1},
		Embedding: make([]float32, 4),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant upsert")
}

func TestQdrantDeleteBySource_RequiresSource(t *testing.T) {
	idx := newTestQdrantIndex(t, 4)
	assert.Error(t, idx.DeleteBySource(context.Background(), ""))
}

func TestQdrantHealthy_CachesResult(t *testing.T) {
	idx := newTestQdrantIndex(t, 4)

	cached := errors.New("cached failure")
	idx.storeHealthErr(cached)
	idx.healthAt.Store(time.Now().UnixNano())
	assert.Equal(t, cached, idx.Healthy(context.Background()))

	idx.storeHealthErr(nil)
	assert.NoError(t, idx.Healthy(context.Background()))
}

func TestQdrantHealthy_ConcurrentAfterExpiry(t *testing.T) {
	idx := newTestQdrantIndex(t, 4)
	idx.healthAt.Store(time.Now().Add(-10 * time.Second).UnixNano())

	errs := make(chan error, 8)
	for range 8 {
		go func() { errs <- idx.Healthy(context.Background()) }()
	}
	for range 8 {
		err := <-errs
		require.Error(t, err)
		assert.Contains(t, err.Error(), "qdrant unhealthy")
	}
}

func TestPassageFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    model.Passage
	}{
		{
			name:    "integer page",
			payload: map[string]any{"content": "c", "source": "doc.pdf", "page": int64(3)},
			want:    model.Passage{Content: "c", Source: "doc.pdf", Page: 3},
		},
		{
			name:    "float page",
			payload: map[string]any{"content": "c", "source": "doc.pdf", "page": 4.0},
			want:    model.Passage{Content: "c", Source: "doc.pdf", Page: 4},
		},
		{
			name:    "string page",
			payload: map[string]any{"content": "c", "source": "doc.pdf", "page": "7"},
			want:    model.Passage{Content: "c", Source: "doc.pdf", Page: 7},
		},
		{
			name:    "missing provenance",
			payload: map[string]any{"content": "c"},
			want:    model.Passage{Content: "c", Source: model.UnknownSource, Page: 0},
		},
		{
			name:    "negative page",
			payload: map[string]any{"content": "c", "source": "x", "page": int64(-1)},
			want:    model.Passage{Content: "c", Source: "x", Page: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passageFromPayload(qdrant.NewValueMap(tt.payload)))
		})
	}
}
