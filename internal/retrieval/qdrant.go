package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// Payload fields written for every chunk.
const (
	payloadContent = "content"
	payloadSource  = "source"
	payloadPage    = "page"
)

// DefaultCollection is the collection documents are ingested into.
const DefaultCollection = "research_docs_v1"

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantIndex implements Index backed by a Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // *error; the inner error may be nil
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, gRPC port, and TLS flag from a Qdrant URL.
// The REST port 6333 is mapped to the gRPC port 6334.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("retrieval: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("retrieval: invalid port in qdrant URL: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}
	return host, port, useTLS, nil
}

// NewQdrantIndex connects to Qdrant over gRPC. The connection is lazy; the
// first RPC surfaces an unreachable server.
func NewQdrantIndex(cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if missing and ensures the
// source payload index exists. CreateFieldIndex is idempotent.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("retrieval: check collection exists: %w", err)
	}

	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("retrieval: create collection %q: %w", q.collection, err)
		}
		q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      payloadSource,
		FieldType:      &keywordType,
	}); err != nil {
		return fmt.Errorf("retrieval: ensure index on %q: %w", payloadSource, err)
	}
	return nil
}

// Query returns the passages of the chunks nearest to vector.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, limit int) ([]model.Passage, error) {
	if limit <= 0 {
		return nil, nil
	}
	if q.dims > 0 && uint64(len(vector)) != q.dims {
		return nil, fmt.Errorf("retrieval: query vector has %d dimensions, collection expects %d", len(vector), q.dims)
	}

	fetch := uint64(limit) //nolint:gosec // limit is positive
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &fetch,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: qdrant query: %w", err)
	}

	passages := make([]model.Passage, 0, len(scored))
	for _, sp := range scored {
		passages = append(passages, passageFromPayload(sp.GetPayload()))
	}
	return passages, nil
}

// passageFromPayload reads a chunk payload. Missing fields fall back to the
// passage defaults applied by Normalize.
func passageFromPayload(payload map[string]*qdrant.Value) model.Passage {
	p := model.Passage{
		Content: payload[payloadContent].GetStringValue(),
		Source:  payload[payloadSource].GetStringValue(),
	}
	if v, ok := payload[payloadPage]; ok {
		switch k := v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			p.Page = model.ParsePage(k.IntegerValue)
		case *qdrant.Value_DoubleValue:
			p.Page = model.ParsePage(k.DoubleValue)
		case *qdrant.Value_StringValue:
			p.Page = model.ParsePage(k.StringValue)
		}
	}
	return p.Normalize()
}

// Upsert writes chunks as points keyed by chunk ID.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if q.dims > 0 && uint64(len(c.Embedding)) != q.dims {
			return fmt.Errorf("retrieval: chunk %s has %d dimensions, collection expects %d", c.ID, len(c.Embedding), q.dims)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(c.ID.String()),
			Vectors: qdrant.NewVectorsDense(c.Embedding),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadContent: c.Passage.Content,
				payloadSource:  c.Passage.Source,
				payloadPage:    int64(c.Passage.Page),
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("retrieval: qdrant upsert %d points: %w", len(chunks), err)
	}
	return nil
}

// DeleteBySource removes every chunk ingested from source.
func (q *QdrantIndex) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return errors.New("retrieval: delete by source: empty source")
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch(payloadSource, source)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("retrieval: qdrant delete source %q: %w", source, err)
	}
	return nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for five
// seconds and concurrent checks after expiry share one gRPC call.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// singleflight hands the first caller's context to every waiter, so the
	// check runs on its own context.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if _, err := q.client.HealthCheck(checkCtx); err != nil {
			q.storeHealthErr(fmt.Errorf("retrieval: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

func (q *QdrantIndex) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantIndex) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
