package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/telemetry"
)

// Searcher is anything that answers a query with passages.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.Passage, error)
}

// CachedRetriever memoizes successful searches in an in-process cache.
// Errors are never cached, so a failed sub-query is retried on resume.
type CachedRetriever struct {
	next  Searcher
	cache *ristretto.Cache[string, []model.Passage]
	ttl   time.Duration

	lookups metric.Int64Counter
}

// NewCachedRetriever wraps next with a cache bounded to maxCostBytes of
// passage content. Entries expire after ttl; zero keeps them until evicted.
func NewCachedRetriever(next Searcher, maxCostBytes int64, ttl time.Duration) (*CachedRetriever, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("retrieval: cache size must be positive, got %d", maxCostBytes)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []model.Passage]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: create cache: %w", err)
	}
	lookups, _ := telemetry.Meter("kenkyu/retrieval").Int64Counter("kenkyu.retrieval.cache.lookups",
		metric.WithDescription("Retrieval cache lookups by result"),
	)
	return &CachedRetriever{next: next, cache: c, ttl: ttl, lookups: lookups}, nil
}

func cacheKey(query string, limit int) string {
	return strconv.Itoa(limit) + "\x00" + query
}

// Search returns a cached result for (query, limit) or delegates to the
// wrapped searcher. Returned slices are copies.
func (c *CachedRetriever) Search(ctx context.Context, query string, limit int) ([]model.Passage, error) {
	key := cacheKey(query, limit)
	if hit, ok := c.cache.Get(key); ok {
		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		return append([]model.Passage(nil), hit...), nil
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))

	passages, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	stored := append([]model.Passage(nil), passages...)
	c.cache.SetWithTTL(key, stored, passageCost(stored), c.ttl)
	return passages, nil
}

// passageCost approximates the memory held by passages.
func passageCost(passages []model.Passage) int64 {
	cost := int64(1)
	for _, p := range passages {
		cost += int64(len(p.Content) + len(p.Source) + 8)
	}
	return cost
}

// Healthy delegates to the wrapped searcher when it reports health.
func (c *CachedRetriever) Healthy(ctx context.Context) error {
	if h, ok := c.next.(interface{ Healthy(context.Context) error }); ok {
		return h.Healthy(ctx)
	}
	return nil
}

// Close releases the cache's background goroutines.
func (c *CachedRetriever) Close() {
	c.cache.Close()
}
