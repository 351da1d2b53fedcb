package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedGenerator answers planner, draft, and revise prompts from fixed
// outputs. Queued errors are returned before any output for that kind.
type scriptedGenerator struct {
	mu       sync.Mutex
	plans    []string
	draft    string
	revision string
	errs     map[string][]error
	calls    map[string]int
}

func newScriptedGenerator(plans ...string) *scriptedGenerator {
	return &scriptedGenerator{
		plans:    plans,
		draft:    "Draft: a hackathon is an event [Source: doc.pdf, page: 3].",
		revision: "Final: a hackathon is a time-boxed event [Source: doc.pdf, page: 3].",
		errs:     make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (g *scriptedGenerator) failNext(kind string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[kind] = append(g.errs[kind], err)
}

func (g *scriptedGenerator) count(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "research planner"):
		return "plan"
	case strings.Contains(prompt, "report writer"):
		return "draft"
	case strings.Contains(prompt, "expert editor"):
		return "revise"
	default:
		return "unknown"
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kind := promptKind(prompt)
	g.calls[kind]++
	if q := g.errs[kind]; len(q) > 0 {
		g.errs[kind] = q[1:]
		return "", q[0]
	}
	switch kind {
	case "plan":
		if len(g.plans) == 0 {
			return "", errors.New("no scripted plan left")
		}
		out := g.plans[0]
		if len(g.plans) > 1 {
			g.plans = g.plans[1:]
		}
		return out, nil
	case "draft":
		return g.draft, nil
	case "revise":
		return g.revision, nil
	}
	return "", errors.New("unexpected prompt")
}

// mapRetriever returns canned passages per query, or an error for queries in fail.
type mapRetriever struct {
	mu       sync.Mutex
	passages map[string][]model.Passage
	fail     map[string]error
	queries  []string
	limits   []int
}

func (r *mapRetriever) Search(_ context.Context, query string, limit int) ([]model.Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	r.limits = append(r.limits, limit)
	if err, ok := r.fail[query]; ok {
		return nil, err
	}
	return r.passages[query], nil
}

func (r *mapRetriever) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

// recordingStore wraps the memory store, records the stage of every Put,
// and can be told to fail.
type recordingStore struct {
	*memory.Store
	mu      sync.Mutex
	stages  []model.Stage
	logLens []int
	putErr  error
	getErr  error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memory.New()}
}

func (s *recordingStore) Put(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	err := s.putErr
	if err == nil {
		s.stages = append(s.stages, sess.Stage)
		s.logLens = append(s.logLens, len(sess.ReasoningLog))
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, sess)
}

func (s *recordingStore) Get(ctx context.Context, id string) (model.Session, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return model.Session{}, err
	}
	return s.Store.Get(ctx, id)
}

const hackathonPlan = "1. What is the definition of a hackathon?\n2. What are common hackathon formats?"

func hackathonRetriever() *mapRetriever {
	return &mapRetriever{
		passages: map[string][]model.Passage{
			"What is the definition of a hackathon?": {{Content: "A hackathon is a sprint-like event.", Source: "doc.pdf", Page: 3}},
			"What are common hackathon formats?":     {{Content: "Formats include in-person and virtual.", Source: "doc.pdf", Page: 3}},
		},
	}
}
