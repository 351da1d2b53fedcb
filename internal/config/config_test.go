package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("KENKYU_PORT", "abc")
	_, err := LoadFrom("")
	if err == nil {
		t.Fatal("expected LoadFrom to fail with invalid KENKYU_PORT")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !strings.Contains(got, "KENKYU_PORT") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention KENKYU_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("KENKYU_PORT", "abc")
	t.Setenv("KENKYU_RETRIEVAL_LIMIT", "xyz")
	_, err := LoadFrom("")
	if err == nil {
		t.Fatal("expected LoadFrom to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "KENKYU_PORT") {
		t.Fatalf("error should mention KENKYU_PORT, got: %s", got)
	}
	if !strings.Contains(got, "KENKYU_RETRIEVAL_LIMIT") {
		t.Fatalf("error should mention KENKYU_RETRIEVAL_LIMIT, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("expected LoadFrom to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.RetrievalLimit != 7 {
		t.Fatalf("expected default retrieval limit 7, got %d", cfg.RetrievalLimit)
	}
	if cfg.QdrantCollection != "research_docs_v1" {
		t.Fatalf("unexpected default collection %q", cfg.QdrantCollection)
	}
	if cfg.GenerationModel != "llama-3.1-8b-instant" || cfg.GenerationTemperature != 0 {
		t.Fatalf("unexpected generation defaults: %q %v", cfg.GenerationModel, cfg.GenerationTemperature)
	}
	if cfg.ChunkSize != 1024 || cfg.ChunkOverlap != 120 {
		t.Fatalf("unexpected chunk defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
}

func TestLoadFromYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kenkyu.yaml")
	yml := "port: 9090\nsession_store: sqlite\nsqlite_path: /tmp/k.db\nretrieval_limit: 5\nretrieval_cache_ttl: 30s\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KENKYU_RETRIEVAL_LIMIT", "3")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port from file, got %d", cfg.Port)
	}
	if cfg.SessionStore != StoreSQLite || cfg.SQLitePath != "/tmp/k.db" {
		t.Fatalf("unexpected store settings: %q %q", cfg.SessionStore, cfg.SQLitePath)
	}
	if cfg.RetrievalLimit != 3 {
		t.Fatalf("expected env to override file, got %d", cfg.RetrievalLimit)
	}
	if cfg.RetrievalCacheTTL != 30*time.Second {
		t.Fatalf("expected ttl from file, got %s", cfg.RetrievalCacheTTL)
	}
	if cfg.WriteTimeout != Defaults().WriteTimeout {
		t.Fatalf("unset keys should keep defaults, got %s", cfg.WriteTimeout)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGroqKeyPreferred(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GROQ_API_KEY", "gsk-groq")
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.GenerationAPIKey != "gsk-groq" {
		t.Fatalf("expected groq key, got %q", cfg.GenerationAPIKey)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown store", func(c *Config) { c.SessionStore = "redis" }, "KENKYU_SESSION_STORE"},
		{"unknown backend", func(c *Config) { c.RetrievalBackend = "faiss" }, "KENKYU_RETRIEVAL_BACKEND"},
		{"zero limit", func(c *Config) { c.RetrievalLimit = 0 }, "KENKYU_RETRIEVAL_LIMIT"},
		{"zero concurrency", func(c *Config) { c.ResearchConcurrency = 0 }, "KENKYU_RESEARCH_CONCURRENCY"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, "KENKYU_CHUNK_OVERLAP"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "KENKYU_LOG_LEVEL"},
		{"auth without clients", func(c *Config) { c.AuthEnabled = true }, "KENKYU_API_CLIENTS"},
		{"half key pair", func(c *Config) { c.JWTPublicKeyPath = "pub.pem" }, "KENKYU_JWT_PRIVATE_KEY"},
		{"openai embeddings without key", func(c *Config) { c.EmbeddingProvider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"rate limit without rate", func(c *Config) {
			c.RateLimitEnabled = true
			c.RateLimitRPS = 0
		}, "KENKYU_RATE_LIMIT_RPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error should mention %s, got: %s", tt.want, err)
			}
		})
	}
}
