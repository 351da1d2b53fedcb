package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults match the hosted Groq endpoint.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
)

// OpenAIConfig configures an OpenAIChat client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// MaxTokens caps the completion length; zero leaves it to the backend.
	MaxTokens int
	Timeout   time.Duration
}

// OpenAIChat calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIChat struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIChat creates a client. Empty BaseURL and Model select the
// Groq defaults; a zero Timeout selects two minutes.
func NewOpenAIChat(cfg OpenAIConfig) *OpenAIChat {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &OpenAIChat{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends prompt as a single user message.
func (c *OpenAIChat) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generation: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("generation: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("generation: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Backend: "openai", StatusCode: resp.StatusCode, Body: errorMessage(body)}
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("generation: decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("generation: openai error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return result.Choices[0].Message.Content, nil
}

// errorMessage extracts the provider's error message from a failure body,
// falling back to a truncated raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(body) > 512 {
		return string(body[:512]) + "..."
	}
	return string(body)
}
