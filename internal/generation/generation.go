// Package generation adapts chat-completion backends to single-prompt text
// generation for the workflow engine.
//
// Every call sends one user message and returns the assistant's text. Two
// backends are supported: any OpenAI-compatible chat completions endpoint
// (Groq by default) and a local Ollama daemon.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("generation: empty completion")

// StatusError is a non-2xx response from a backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation: %s: status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// Retryable reports whether err is worth another attempt: rate limiting,
// server-side failures, timeouts, and dropped connections.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
