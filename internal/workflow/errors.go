package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// Error kinds. Every error returned by the Engine wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrInvalidInput rejects a request before any stage runs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPlanParse means planning produced no recognizable plan items.
	// The session stays in PLANNING so the call can be retried.
	ErrPlanParse = errors.New("plan parse failed")
	// ErrGeneration means the generation backend failed during a stage.
	ErrGeneration = errors.New("generation failed")
	// ErrRetrieval marks a retrieval failure. Per-sub-query failures are
	// recorded in the research summary; only an aborted research stage
	// surfaces it to the caller.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrStore means the session store could not read or write a snapshot.
	ErrStore = errors.New("session store unavailable")
	// ErrPrecondition means a stage's input invariant did not hold.
	ErrPrecondition = errors.New("stage precondition failed")
)

// ErrNotExecutable is wrapped with ErrInvalidInput when execution is
// requested for a session that has no approved plan or is already done.
var ErrNotExecutable = errors.New("session is not executable in its current stage")

// ErrAlreadyPlanned is wrapped with ErrInvalidInput when planning is
// requested for a session whose execution has already started.
var ErrAlreadyPlanned = errors.New("session is past planning")

// ErrTaskMismatch is wrapped with ErrInvalidInput when a caller supplies a
// task that differs from the one stored for the session.
var ErrTaskMismatch = errors.New("task does not match the session's task")

// Error is the tagged error returned by the Engine. It always carries the
// session ID when one was resolved, so a failed call never loses the session.
type Error struct {
	Kind      error
	SessionID string
	Stage     model.Stage
	// Raw holds the unparsable planner output for ErrPlanParse.
	Raw string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("workflow: ")
	b.WriteString(e.Kind.Error())
	if e.SessionID != "" {
		b.WriteString(" (session ")
		b.WriteString(e.SessionID)
		if e.Stage != "" {
			b.WriteString(", stage ")
			b.WriteString(string(e.Stage))
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SessionIDOf returns the session ID carried by err, if any.
func SessionIDOf(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.SessionID
	}
	return ""
}

// RawOutputOf returns the unparsable planner output carried by a plan parse error.
func RawOutputOf(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Raw
	}
	return ""
}

func inputError(sessionID string, err error) *Error {
	return &Error{Kind: ErrInvalidInput, SessionID: sessionID, Err: err}
}

// Code classifies err into one of the model.ErrCode values shared by the
// HTTP and MCP surfaces.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrSessionNotFound):
		return model.ErrCodeNotFound
	case errors.Is(err, ErrNotExecutable), errors.Is(err, ErrAlreadyPlanned):
		return model.ErrCodeConflict
	case errors.Is(err, ErrInvalidInput):
		return model.ErrCodeInvalidInput
	case errors.Is(err, ErrPlanParse):
		return model.ErrCodePlanParse
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrCodeTimeout
	case errors.Is(err, ErrGeneration), errors.Is(err, ErrRetrieval):
		return model.ErrCodeUpstream
	case errors.Is(err, ErrStore):
		return model.ErrCodeStore
	default:
		return model.ErrCodeInternalError
	}
}
