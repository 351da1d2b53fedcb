// Package kenkyu provides a Go client for the Kenkyu research API.
package kenkyu

import (
	"errors"
	"fmt"
)

// Error codes returned by the server.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodePlanParseFailed     = "PLAN_PARSE_FAILED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error represents an error from the Kenkyu API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	// SessionID is set when the failure concerns a session. A failed plan or
	// execute can be retried with it.
	SessionID string
	// RawOutput is the planner text that held no plan items (PLAN_PARSE_FAILED only).
	RawOutput string
}

func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("kenkyu: %s (%d): session %s: %s", e.Code, e.StatusCode, e.SessionID, e.Message)
	}
	return fmt.Sprintf("kenkyu: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if the session does not exist or is not visible to the caller.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsConflict returns true if the session is in the wrong stage or busy.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsPlanParseFailed returns true if the planner produced no plan items.
// Retry StartPlanning with the error's SessionID.
func IsPlanParseFailed(err error) bool { return hasCode(err, CodePlanParseFailed) }

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsRetryable returns true for failures where re-sending the same request
// with the same session ID may succeed.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case CodePlanParseFailed, CodeUpstreamUnavailable, CodeStoreUnavailable, CodeTimeout:
		return true
	}
	return false
}
