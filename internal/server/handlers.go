package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/kenkyu/internal/auth"
	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/workflow"
)

// Pinger reports whether the session store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports whether the retrieval backend is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	engine              *workflow.Engine
	guard               *workflow.Guard
	store               Pinger
	retrieval           HealthChecker
	jwtMgr              *auth.JWTManager
	clients             auth.Clients
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	sessionStoreName    string
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Retrieval, JWTMgr, Clients, OpenAPISpec.
type HandlersDeps struct {
	Engine              *workflow.Engine
	Guard               *workflow.Guard
	Store               Pinger
	Retrieval           HealthChecker
	JWTMgr              *auth.JWTManager
	Clients             auth.Clients
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	SessionStoreName    string
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		engine:              d.Engine,
		guard:               d.Guard,
		store:               d.Store,
		retrieval:           d.Retrieval,
		jwtMgr:              d.JWTMgr,
		clients:             d.Clients,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		sessionStoreName:    d.SessionStoreName,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /auth/token.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.ClientID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "client_id and api_key are required")
		return
	}

	if !h.clients.Authenticate(req.ClientID, req.APIKey) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.ClientID)
	if err != nil {
		h.logger.Error("auth: issue token", "client_id", req.ClientID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	h.logger.Info("auth: token issued", "client_id", req.ClientID, "expires_at", expiresAt)
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	storeStatus := "connected"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health: session store unreachable", "error", err)
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := model.HealthResponse{
		Status:       status,
		Version:      h.version,
		SessionStore: h.sessionStoreName + ":" + storeStatus,
		Uptime:       int64(time.Since(h.startedAt).Seconds()),
	}

	// Retrieval failures degrade research but do not stop sessions from
	// being planned or read.
	if h.retrieval != nil {
		if err := h.retrieval.Healthy(ctx); err == nil {
			resp.Retrieval = "connected"
		} else {
			resp.Retrieval = "disconnected"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}
