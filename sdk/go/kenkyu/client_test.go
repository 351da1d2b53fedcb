package kenkyu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer creates an httptest server that mimics the Kenkyu API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	if _, ok := handlers["POST /auth/token"]; !ok {
		mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "test-token-xyz",
					"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
				},
			})
		})
	}
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg, sessionID string, details any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": msg, "session_id": sessionID, "details": details},
	})
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:  serverURL,
		ClientID: "test-client",
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "http://x", ClientID: "only-id"})
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "http://x"})
	assert.NoError(t, err, "unauthenticated client")
}

func TestPlanThenExecute(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-token-xyz", r.Header.Get("Authorization"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Summarize the hackathon", body["task"])
			_, hasID := body["session_id"]
			assert.False(t, hasID)
			writeJSON(w, http.StatusCreated, map[string]any{"data": PlanResult{
				SessionID: "s-1", Stage: StagePausedForApproval, Plan: []string{"Who won?"},
			}})
		},
		"POST /v1/sessions/{id}/execute": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "s-1", r.PathValue("id"))
			writeJSON(w, http.StatusOK, map[string]any{"data": ExecuteResult{
				SessionID: "s-1", Stage: StageDone, FinalReport: "Report [Source: a.md, page: 1]",
			}})
		},
	})
	c := newTestClient(t, srv.URL)

	plan, err := c.StartPlanning(context.Background(), "Summarize the hackathon")
	require.NoError(t, err)
	assert.Equal(t, []string{"Who won?"}, plan.Plan)

	done, err := c.ExecutePlan(context.Background(), plan.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StageDone, done.Stage)
	assert.Contains(t, done.FinalReport, "[Source: a.md, page: 1]")
}

func TestPlanParseFailureCarriesRawOutput(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/sessions": func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusUnprocessableEntity, CodePlanParseFailed, "no plan items", "s-9",
				map[string]string{"raw_output": "I cannot help"})
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.StartPlanning(context.Background(), "task")
	require.Error(t, err)
	assert.True(t, IsPlanParseFailed(err))
	assert.True(t, IsRetryable(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "s-9", apiErr.SessionID)
	assert.Equal(t, "I cannot help", apiErr.RawOutput)
}

func TestRetryPlanningSendsSessionID(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "s-9", body["session_id"])
			writeJSON(w, http.StatusCreated, map[string]any{"data": PlanResult{SessionID: "s-9", Stage: StagePausedForApproval}})
		},
	})
	c := newTestClient(t, srv.URL)

	res, err := c.RetryPlanning(context.Background(), "s-9", "task")
	require.NoError(t, err)
	assert.Equal(t, "s-9", res.SessionID)

	_, err = c.RetryPlanning(context.Background(), "", "task")
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		check     func(error) bool
		retryable bool
	}{
		{http.StatusNotFound, CodeNotFound, IsNotFound, false},
		{http.StatusConflict, CodeConflict, IsConflict, false},
		{http.StatusBadGateway, CodeUpstreamUnavailable, IsRetryable, true},
		{http.StatusGatewayTimeout, CodeTimeout, IsRetryable, true},
		{http.StatusTooManyRequests, CodeRateLimited, IsRateLimited, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := mockServer(t, map[string]http.HandlerFunc{
				"GET /v1/sessions/{id}": func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, tt.status, tt.code, "nope", "s-1", nil)
				},
			})
			_, err := newTestClient(t, srv.URL).GetSession(context.Background(), "s-1")
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Contains(t, err.Error(), "session s-1")
		})
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/sessions/{id}": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	})
	_, err := newTestClient(t, srv.URL).GetSession(context.Background(), "x")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
}

func TestTokenCachedAndRefreshedAfter401(t *testing.T) {
	var tokenCalls, sessionCalls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/token": func(w http.ResponseWriter, r *http.Request) {
			var body authRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "test-client", body.ClientID)
			n := tokenCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"token":      map[int32]string{1: "first", 2: "second"}[n],
				"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
			}})
		},
		"GET /v1/sessions/{id}": func(w http.ResponseWriter, r *http.Request) {
			sessionCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer second" && sessionCalls.Load() == 2 {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "expired", "", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": Session{SessionID: r.PathValue("id")}})
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.GetSession(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.GetSession(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, int32(2), tokenCalls.Load(), "cached once, refreshed once after 401")
	assert.Equal(t, int32(3), sessionCalls.Load())
}

func TestAuthFailure(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/token": func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials", "", nil)
		},
	})
	_, err := newTestClient(t, srv.URL).GetSession(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestUnauthenticatedClientSendsNoToken(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{"data": Health{Status: "healthy", Version: "1.0"}})
		},
		"GET /v1/sessions/{id}": func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{"data": Session{SessionID: "a", Stage: StageDone}})
		},
	})
	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	s, err := c.GetSession(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, StageDone, s.Stage)
}
