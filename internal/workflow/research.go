package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// SummaryDelimiter separates the header and the per-sub-query blocks of a
// research summary. Splitting a summary on it yields 1+len(plan) parts.
const SummaryDelimiter = "\n\n---\n\n"

// Markers that open the body of a degraded block.
const (
	NoInformationMarker = "No information found for this sub-query."
	ErrorMarker         = "ERROR:"
)

// research runs one retrieval per plan item and returns findings in plan
// order. A failed or empty retrieval becomes a typed finding; it never
// aborts the loop.
func (e *Engine) research(ctx context.Context, plan []string) []model.Finding {
	findings := make([]model.Finding, len(plan))
	if e.researchConcurrency <= 1 {
		for i, q := range plan {
			findings[i] = e.researchOne(ctx, i, q)
		}
		return findings
	}

	// Each goroutine writes only its own index, so order is preserved.
	var g errgroup.Group
	g.SetLimit(e.researchConcurrency)
	for i, q := range plan {
		g.Go(func() error {
			findings[i] = e.researchOne(ctx, i, q)
			return nil
		})
	}
	_ = g.Wait()
	return findings
}

func (e *Engine) researchOne(ctx context.Context, i int, query string) model.Finding {
	f := model.Finding{Index: i + 1, Query: query}

	start := time.Now()
	passages, err := e.retriever.Search(ctx, query, e.retrievalLimit)
	e.retrievalDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		f.Outcome = model.FindingFailed
		f.Error = fmt.Errorf("%w: %w", ErrRetrieval, err).Error()
		e.retrievalFailures.Add(ctx, 1, metric.WithAttributes(attribute.Int("kenkyu.sub_query", f.Index)))
		e.logger.Warn("workflow: retrieval failed", "sub_query", f.Index, "error", err)
		return f
	}
	if len(passages) == 0 {
		f.Outcome = model.FindingEmpty
		return f
	}

	f.Outcome = model.FindingFound
	f.Passages = make([]model.Passage, len(passages))
	for j, p := range passages {
		f.Passages[j] = p.Normalize()
	}
	return f
}

// FormatSummary renders findings into the research summary: a header naming
// the task, then one labeled block per finding, joined by SummaryDelimiter.
func FormatSummary(task string, findings []model.Finding) string {
	blocks := make([]string, 0, len(findings)+1)
	blocks = append(blocks, "Research summary for task: "+singleLine(task))
	for _, f := range findings {
		blocks = append(blocks, formatBlock(f))
	}
	return strings.Join(blocks, SummaryDelimiter)
}

func formatBlock(f model.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Sub-query %d: %s\n", f.Index, singleLine(f.Query))
	switch f.Outcome {
	case model.FindingFailed:
		fmt.Fprintf(&b, "%s retrieval failed for this sub-query: %s", ErrorMarker, singleLine(f.Error))
	case model.FindingEmpty:
		b.WriteString(NoInformationMarker)
	default:
		for j, p := range f.Passages {
			if j > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(p.Citation())
			b.WriteString("\n")
			b.WriteString(sanitizeContent(p.Content))
		}
	}
	return b.String()
}

// sanitizeContent keeps passage text from forging a block boundary: a line
// consisting of "---" is the only way to reproduce SummaryDelimiter.
func sanitizeContent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "---" {
			lines[i] = "- - -"
		}
	}
	return strings.Join(lines, "\n")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
