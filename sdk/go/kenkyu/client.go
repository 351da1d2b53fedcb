package kenkyu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Kenkyu server (e.g. "http://localhost:8080").
	BaseURL string

	// ClientID and APIKey are exchanged for a JWT. Leave both empty when the
	// server runs without authentication.
	ClientID string
	APIKey   string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 10 minutes
	// because ExecutePlan runs research, drafting, and revision in one call.
	Timeout time.Duration
}

// Client is an HTTP client for the Kenkyu research API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager // nil when unauthenticated
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty or only one of ClientID and APIKey is set.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("kenkyu: BaseURL is required")
	}
	if (cfg.ClientID == "") != (cfg.APIKey == "") {
		return nil, fmt.Errorf("kenkyu: ClientID and APIKey must be set together")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{baseURL: baseURL, client: httpClient}
	if cfg.ClientID != "" {
		c.tokenMgr = newTokenManager(baseURL, cfg.ClientID, cfg.APIKey, httpClient)
	}
	return c, nil
}

// StartPlanning creates a session for task and returns its plan. The session
// pauses for approval; call ExecutePlan to continue.
func (c *Client) StartPlanning(ctx context.Context, task string) (*PlanResult, error) {
	return c.plan(ctx, task, "")
}

// RetryPlanning re-runs planning for a session still in the planning stage,
// typically after IsPlanParseFailed.
func (c *Client) RetryPlanning(ctx context.Context, sessionID, task string) (*PlanResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("kenkyu: sessionID is required")
	}
	return c.plan(ctx, task, sessionID)
}

func (c *Client) plan(ctx context.Context, task, sessionID string) (*PlanResult, error) {
	body := map[string]string{"task": task}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	var resp PlanResult
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecutePlan approves the session's plan and runs it to a final report.
// After an IsRetryable error, calling it again resumes from the last
// completed stage.
func (c *Client) ExecutePlan(ctx context.Context, sessionID string) (*ExecuteResult, error) {
	var resp ExecuteResult
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/execute", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession returns the session snapshot.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var resp Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports server status. It needs no credentials.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("kenkyu: create request: %w", err)
	}
	var resp Health
	if err := c.send(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		SessionID string          `json:"session_id"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return fmt.Errorf("kenkyu: marshal request body: %w", err)
		}
	}

	// One retry after a 401 covers tokens revoked by a server key rotation.
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("kenkyu: create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.tokenMgr != nil {
			token, err := c.tokenMgr.getToken(ctx)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		err = c.send(req, dest)
		if c.tokenMgr != nil && attempt == 0 && IsUnauthorized(err) {
			c.tokenMgr.invalidate()
			continue
		}
		return err
	}
}

func (c *Client) send(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kenkyu: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kenkyu: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, raw)
	}
	if dest == nil {
		return nil
	}
	return unwrapData(raw, dest)
}

// unwrapData decodes the server's { "data": ... } envelope into dest.
func unwrapData(raw []byte, dest any) error {
	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("kenkyu: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("kenkyu: response has no data")
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.SessionID = envelope.Error.SessionID
		var details struct {
			RawOutput string `json:"raw_output"`
		}
		if len(envelope.Error.Details) > 0 && json.Unmarshal(envelope.Error.Details, &details) == nil {
			apiErr.RawOutput = details.RawOutput
		}
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
