package kenkyu

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port              int
	configFile        string
	logger            *slog.Logger
	version           string
	shutdownTimeout   time.Duration
	generator         Generator
	retriever         Retriever
	embeddingProvider EmbeddingProvider
	routeRegistrars   []RouteRegistrar
	middlewares       []Middleware
}

// WithPort overrides the TCP port from config (KENKYU_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithConfigFile loads YAML configuration from path instead of KENKYU_CONFIG.
// Environment variables still override file values.
func WithConfigFile(path string) Option {
	return func(o *resolvedOptions) { o.configFile = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithShutdownTimeout bounds the HTTP drain on shutdown. Defaults to 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *resolvedOptions) { o.shutdownTimeout = d }
}

// WithGenerator replaces the configured text generation backend.
func WithGenerator(g Generator) Option {
	return func(o *resolvedOptions) { o.generator = g }
}

// WithRetriever replaces the configured retrieval pipeline entirely.
// The vector index and embedding provider are not constructed.
func WithRetriever(r Retriever) Option {
	return func(o *resolvedOptions) { o.retriever = r }
}

// WithEmbeddingProvider replaces the configured embedding provider (Ollama/OpenAI/noop).
// Its dimensionality must match the vector index.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
