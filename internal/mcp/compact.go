package mcp

import (
	"github.com/ashita-ai/kenkyu/internal/model"
)

const (
	maxCompactText    = 600
	maxCompactPassage = 160
)

// compactSession returns a token-lean view of a session for MCP responses.
// Long text is truncated and passages are reduced to their citations; the
// full report is only returned by research_execute.
func compactSession(s model.Session) map[string]any {
	m := map[string]any{
		"session_id":    s.ID,
		"task":          s.Task,
		"stage":         s.Stage,
		"plan":          s.Plan,
		"reasoning_log": s.ReasoningLog,
		"updated_at":    s.UpdatedAt,
	}
	if len(s.Findings) > 0 {
		findings := make([]map[string]any, 0, len(s.Findings))
		for _, f := range s.Findings {
			findings = append(findings, compactFinding(f))
		}
		m["findings"] = findings
	}
	if s.Draft != "" {
		m["draft"] = truncate(s.Draft, maxCompactText)
	}
	if s.FinalReport != "" {
		m["final_report"] = truncate(s.FinalReport, maxCompactText)
	}
	return m
}

func compactFinding(f model.Finding) map[string]any {
	m := map[string]any{
		"query":   f.Query,
		"outcome": f.Outcome,
	}
	if f.Error != "" {
		m["error"] = f.Error
	}
	if len(f.Passages) > 0 {
		cites := make([]map[string]any, 0, len(f.Passages))
		for _, p := range f.Passages {
			cites = append(cites, map[string]any{
				"citation": p.Citation(),
				"excerpt":  truncate(p.Content, maxCompactPassage),
			})
		}
		m["passages"] = cites
	}
	return m
}

// truncate shortens s to at most n runes, appending "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
