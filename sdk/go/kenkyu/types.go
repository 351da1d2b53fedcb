package kenkyu

import "time"

// Stage is a session's position in the research workflow.
type Stage string

const (
	StagePlanning          Stage = "planning"
	StagePausedForApproval Stage = "paused_for_approval"
	StageResearching       Stage = "researching"
	StageDrafting          Stage = "drafting"
	StageRevising          Stage = "revising"
	StageDone              Stage = "done"
)

// PlanResult is returned by StartPlanning. The session is paused for approval.
type PlanResult struct {
	SessionID string   `json:"session_id"`
	Stage     Stage    `json:"stage"`
	Plan      []string `json:"plan"`
}

// ExecuteResult is returned by ExecutePlan.
type ExecuteResult struct {
	SessionID    string   `json:"session_id"`
	Stage        Stage    `json:"stage"`
	FinalReport  string   `json:"final_report"`
	ReasoningLog []string `json:"reasoning_log"`
}

// Passage is a retrieved piece of evidence.
type Passage struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
}

// Finding is the research outcome for one plan item.
type Finding struct {
	Index    int       `json:"index"`
	Query    string    `json:"query"`
	Outcome  string    `json:"outcome"` // "found", "empty", or "failed"
	Passages []Passage `json:"passages,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Session is a full session snapshot.
type Session struct {
	SessionID       string    `json:"session_id"`
	Task            string    `json:"task"`
	Plan            []string  `json:"plan"`
	Findings        []Finding `json:"findings"`
	ResearchSummary string    `json:"research_summary"`
	Draft           string    `json:"draft"`
	FinalReport     string    `json:"final_report"`
	ReasoningLog    []string  `json:"reasoning_log"`
	Stage           Stage     `json:"stage"`
	Owner           string    `json:"owner,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Health is the server's health report.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	SessionStore  string `json:"session_store"`
	Retrieval     string `json:"retrieval"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
