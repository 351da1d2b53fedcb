// Package kenkyu is the public API for embedding the Kenkyu research server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := kenkyu.New(ctx,
//	    kenkyu.WithVersion(version),
//	    kenkyu.WithLogger(logger),
//	    kenkyu.WithGenerator(myGenerator{}),
//	    kenkyu.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: kenkyu (root) imports
// internal/*, but internal/* never imports kenkyu (root). Public types are
// standalone structs; the adapters that convert them live in this package.
package kenkyu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/kenkyu/api"
	"github.com/ashita-ai/kenkyu/internal/auth"
	"github.com/ashita-ai/kenkyu/internal/config"
	"github.com/ashita-ai/kenkyu/internal/mcp"
	"github.com/ashita-ai/kenkyu/internal/model"
	"github.com/ashita-ai/kenkyu/internal/ratelimit"
	"github.com/ashita-ai/kenkyu/internal/server"
	"github.com/ashita-ai/kenkyu/internal/service/embedding"
	"github.com/ashita-ai/kenkyu/internal/telemetry"
	"github.com/ashita-ai/kenkyu/internal/workflow"
)

const defaultShutdownTimeout = 10 * time.Second

// App is the Kenkyu server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg             config.Config
	srv             *server.Server
	backends        *backends
	otelShutdown    telemetry.Shutdown
	shutdownTimeout time.Duration
	logger          *slog.Logger
	version         string
}

// New loads configuration, connects the session store and retrieval backend,
// and wires the workflow engine behind the HTTP and MCP surfaces.
// It does NOT accept HTTP connections; call Run().
func New(ctx context.Context, opts ...Option) (app *App, err error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	var cfg config.Config
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}

	logger.Info("kenkyu starting",
		"version", version,
		"port", cfg.Port,
		"session_store", cfg.SessionStore,
		"retrieval_backend", cfg.RetrievalBackend,
	)

	a := &App{
		cfg:             cfg,
		logger:          logger,
		version:         version,
		shutdownTimeout: o.shutdownTimeout,
	}
	if a.shutdownTimeout <= 0 {
		a.shutdownTimeout = defaultShutdownTimeout
	}
	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.otelShutdown, err = telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	b := &backends{cfg: cfg, logger: logger}
	a.backends = b

	store, err := b.sessionStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingAdapter{p: o.embeddingProvider}
	}
	ret, health, err := b.retriever(ctx, o.retriever, embedder)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	var gen workflow.Generator
	if o.generator != nil {
		gen = o.generator
	} else if gen, err = b.generator(); err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	gen = b.withRetry(gen)

	engine := workflow.New(ret, gen, store, logger,
		workflow.WithRetrievalLimit(cfg.RetrievalLimit),
		workflow.WithResearchConcurrency(cfg.ResearchConcurrency),
	)

	var (
		jwtMgr  *auth.JWTManager
		clients auth.Clients
	)
	if cfg.AuthEnabled {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		clients, err = auth.ParseClients(cfg.APIClients)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		logger.Info("auth: enabled", "clients", len(clients))
	} else {
		logger.Warn("auth: disabled (KENKYU_AUTH_ENABLED=false); sessions are not owner-scoped")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		b.closers = append(b.closers, func() { _ = mem.Close() })
		limiter = mem
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	// One guard for both surfaces so HTTP and MCP cannot advance the same session at once.
	guard := workflow.NewGuard()
	mcpSrv := mcp.New(engine, guard, logger, version)

	registrars := make([]func(*http.ServeMux), 0, len(o.routeRegistrars))
	for _, r := range o.routeRegistrars {
		registrars = append(registrars, r)
	}
	middlewares := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	a.srv = server.New(server.ServerConfig{
		Engine:              engine,
		Store:               store,
		Logger:              logger,
		Guard:               guard,
		Retrieval:           health,
		JWTMgr:              jwtMgr,
		Clients:             clients,
		MCPServer:           mcpSrv.MCPServer(),
		Limiter:             limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		SessionStoreName:    cfg.SessionStore,
		OpenAPISpec:         api.OpenAPISpec,
		RouteRegistrars:     registrars,
		Middlewares:         middlewares,
	})
	return a, nil
}

// Handler returns the fully wrapped HTTP handler, for tests and for callers
// that run their own listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown has already run.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.close()
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests, waits for in-flight ones (a running
// execute may take minutes), then closes the stores and the OTEL provider.
// A request cut off here leaves its session at the last completed stage.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("kenkyu shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	err := a.srv.Shutdown(httpCtx)
	cancel()
	if err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.close()
	a.logger.Info("kenkyu stopped")
	return err
}

func (a *App) close() {
	if a.backends != nil {
		a.backends.close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
		a.otelShutdown = nil
	}
}

// embeddingAdapter bridges a public EmbeddingProvider to embedding.Provider.
type embeddingAdapter struct {
	p EmbeddingProvider
}

func (e *embeddingAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := e.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (e *embeddingAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vs, err := e.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(vs))
	for i, v := range vs {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

func (e *embeddingAdapter) Dimensions() int { return e.p.Dimensions() }

// retrieverAdapter bridges a public Retriever to workflow.Retriever.
type retrieverAdapter struct {
	r Retriever
}

func (a *retrieverAdapter) Search(ctx context.Context, query string, limit int) ([]model.Passage, error) {
	ps, err := a.r.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Passage, len(ps))
	for i, p := range ps {
		out[i] = model.Passage{Content: p.Content, Source: p.Source, Page: p.Page}.Normalize()
	}
	return out, nil
}
