package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// MaxTaskLen bounds the research question accepted from callers. The task is
// embedded in every prompt, so an unbounded value inflates each generation call.
const MaxTaskLen = 8 * 1024

// ValidateTask checks that a research task is present and within bounds.
func ValidateTask(task string) error {
	if task == "" {
		return fmt.Errorf("task is required")
	}
	if !utf8.ValidString(task) {
		return fmt.Errorf("task must be valid UTF-8")
	}
	if len(task) > MaxTaskLen {
		return fmt.Errorf("task exceeds maximum length of %d bytes", MaxTaskLen)
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodePlanParse     = "PLAN_PARSE_FAILED"
	ErrCodeUpstream      = "UPSTREAM_UNAVAILABLE"
	ErrCodeStore         = "STORE_UNAVAILABLE"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// StartPlanningRequest is the request body for POST /v1/sessions.
type StartPlanningRequest struct {
	Task      string `json:"task"`
	SessionID string `json:"session_id,omitempty"`
}

// StartPlanningResponse is the response for POST /v1/sessions.
type StartPlanningResponse struct {
	SessionID string   `json:"session_id"`
	Stage     Stage    `json:"stage"`
	Plan      []string `json:"plan"`
}

// ExecutePlanResponse is the response for POST /v1/sessions/{session_id}/execute.
type ExecutePlanResponse struct {
	SessionID    string   `json:"session_id"`
	Stage        Stage    `json:"stage"`
	FinalReport  string   `json:"final_report"`
	ReasoningLog []string `json:"reasoning_log"`
}

// PlanParseDetails accompanies a PLAN_PARSE_FAILED error so the caller can
// inspect what the planner produced.
type PlanParseDetails struct {
	RawOutput string `json:"raw_output"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	SessionStore string `json:"session_store"`
	Retrieval    string `json:"retrieval,omitempty"`
	Uptime       int64  `json:"uptime_seconds"`
}
