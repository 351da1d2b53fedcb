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

// DefaultOllamaURL is the address of a local Ollama daemon.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaChat calls Ollama's /api/chat with streaming disabled.
type OllamaChat struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOllamaChat creates a client for model, e.g. "llama3.1:8b".
func NewOllamaChat(baseURL, model string, temperature float64) *OllamaChat {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaChat{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		// Local models on CPU can take minutes for a full report.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

// Generate sends prompt as a single user message.
func (c *OllamaChat) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Options:  map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("generation: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("generation: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &StatusError{Backend: "ollama", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("generation: decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("generation: ollama error: %s", result.Error)
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return result.Message.Content, nil
}
