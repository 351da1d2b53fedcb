package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kenkyu/internal/auth"
	"github.com/ashita-ai/kenkyu/internal/ratelimit"
	"github.com/ashita-ai/kenkyu/internal/workflow"
)

// Server is the Kenkyu HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Guard, Retrieval, JWTMgr, MCPServer, Limiter, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Engine *workflow.Engine
	Store  Pinger
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Guard     *workflow.Guard // Created when nil; share it with the MCP server.
	Retrieval HealthChecker
	JWTMgr    *auth.JWTManager // Nil disables authentication.
	Clients   auth.Clients
	MCPServer *mcpserver.MCPServer
	Limiter   ratelimit.Limiter // Applied to planning, execution, and token exchange.

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	SessionStoreName    string

	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// Extension points for embedders of the root package.
	RouteRegistrars []func(mux *http.ServeMux)
	Middlewares     []func(http.Handler) http.Handler // First is outermost.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Guard == nil {
		cfg.Guard = workflow.NewGuard()
	}
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = 1 << 20
	}
	h := NewHandlers(HandlersDeps{
		Engine:              cfg.Engine,
		Guard:               cfg.Guard,
		Store:               cfg.Store,
		Retrieval:           cfg.Retrieval,
		JWTMgr:              cfg.JWTMgr,
		Clients:             cfg.Clients,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		SessionStoreName:    cfg.SessionStoreName,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	reqIDFunc := func(r *http.Request) string { return RequestIDFromContext(r.Context()) }
	// Auth runs before the mux, so client IDs are known here.
	clientRL := ratelimit.Middleware(cfg.Limiter, ratelimit.ClientKeyFunc, reqIDFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Token exchange exists only when authentication is on.
	if cfg.JWTMgr != nil {
		mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))
	}

	// Research sessions.
	mux.Handle("POST /v1/sessions", clientRL(http.HandlerFunc(h.HandleStartPlanning)))
	mux.Handle("POST /v1/sessions/{session_id}/execute", clientRL(http.HandlerFunc(h.HandleExecutePlan)))
	mux.HandleFunc("GET /v1/sessions/{session_id}", h.HandleGetSession)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.RouteRegistrars {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
