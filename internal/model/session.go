// Package model defines the core domain types for Kenkyu.
//
// A Session is the durable state of one research task as it moves through
// the workflow stages. Every field's presence is determined by Stage, never
// by ad hoc lookups.
package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrSessionNotFound is returned by session stores when no snapshot exists
// for the requested session ID.
var ErrSessionNotFound = errors.New("session not found")

// Stage is a position in the research workflow state machine.
type Stage string

const (
	StagePlanning          Stage = "planning"
	StagePausedForApproval Stage = "paused_for_approval"
	StageResearching       Stage = "researching"
	StageDrafting          Stage = "drafting"
	StageRevising          Stage = "revising"
	StageDone              Stage = "done"
)

// stageOrder is the forward order of the stage graph. PAUSED_FOR_APPROVAL
// sits between planning and research; a continuous run skips it.
var stageOrder = map[Stage]int{
	StagePlanning:          0,
	StagePausedForApproval: 1,
	StageResearching:       2,
	StageDrafting:          3,
	StageRevising:          4,
	StageDone:              5,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Before reports whether s comes strictly before other in the stage graph.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Executable reports whether an execute call may resume from s.
// PLANNING has no approved plan yet and DONE has nothing left to run.
func (s Stage) Executable() bool {
	switch s {
	case StagePausedForApproval, StageResearching, StageDrafting, StageRevising:
		return true
	default:
		return false
	}
}

// ParseStage converts a stored stage name back into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// FindingOutcome classifies the result of researching one plan item.
type FindingOutcome string

const (
	// FindingFound means retrieval returned at least one passage.
	FindingFound FindingOutcome = "found"
	// FindingEmpty means retrieval succeeded but returned nothing.
	FindingEmpty FindingOutcome = "empty"
	// FindingFailed means the retrieval backend returned an error.
	FindingFailed FindingOutcome = "failed"
)

// Finding is the typed research result for a single plan item.
// Degraded outcomes (empty, failed) are data, not errors.
type Finding struct {
	Index    int            `json:"index"`
	Query    string         `json:"query"`
	Outcome  FindingOutcome `json:"outcome"`
	Passages []Passage      `json:"passages,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Session is the unit of persisted workflow state.
type Session struct {
	ID              string    `json:"session_id"`
	Task            string    `json:"task"`
	Plan            []string  `json:"plan"`
	Findings        []Finding `json:"findings,omitempty"`
	ResearchSummary string    `json:"research_summary"`
	Draft           string    `json:"draft"`
	FinalReport     string    `json:"final_report"`
	ReasoningLog    []string  `json:"reasoning_log"`
	Stage           Stage     `json:"stage"`
	Owner           string    `json:"owner,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate a stored snapshot
// through shared slices.
func (s Session) Clone() Session {
	out := s
	out.Plan = slices.Clone(s.Plan)
	out.ReasoningLog = slices.Clone(s.ReasoningLog)
	if s.Findings != nil {
		out.Findings = make([]Finding, len(s.Findings))
		for i, f := range s.Findings {
			f.Passages = slices.Clone(f.Passages)
			out.Findings[i] = f
		}
	}
	return out
}

// Log appends an entry to the reasoning log. Entries are never rewritten.
func (s *Session) Log(entry string) {
	s.ReasoningLog = append(s.ReasoningLog, entry)
}

// MaxSessionIDLen bounds caller-supplied session identifiers.
const MaxSessionIDLen = 128

// ValidateSessionID checks that a session ID is 1-128 ASCII characters:
// alphanumeric, dots, hyphens, underscores, and colons.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("session_id is required")
	}
	if len(id) > MaxSessionIDLen {
		return fmt.Errorf("session_id must be at most %d characters", MaxSessionIDLen)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != ':' {
			return fmt.Errorf("session_id contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
