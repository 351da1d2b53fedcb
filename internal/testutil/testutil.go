// Package testutil provides shared test infrastructure for integration tests
// that need a Postgres container with pgvector.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc, err := testutil.StartPostgres()
//	    if err == nil {
//	        defer tc.Terminate()
//	        testDB, _ = tc.NewTestDB(context.Background(), testutil.TestLogger())
//	    }
//	    os.Exit(m.Run())
//	}
//
// Tests then call RequireDB-style helpers that skip when no container runtime
// was available.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/kenkyu/internal/storage"
	"github.com/ashita-ai/kenkyu/migrations"
)

// PostgresImage ships Postgres with the vector extension available.
const PostgresImage = "pgvector/pgvector:pg17"

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// StartPostgres starts a pgvector-enabled Postgres container. The error is
// non-nil when no container runtime is reachable.
func StartPostgres() (tc *TestContainer, err error) {
	defer func() {
		// testcontainers panics when no Docker host can be resolved.
		if r := recover(); r != nil {
			tc, err = nil, fmt.Errorf("testutil: container runtime unavailable: %v", r)
		}
	}()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kenkyu",
				"POSTGRES_PASSWORD": "kenkyu",
				"POSTGRES_DB":       "kenkyu",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://kenkyu:kenkyu@%s:%s/kenkyu?sslmode=disable", host, port.Port())
	return &TestContainer{Container: container, DSN: dsn}, nil
}

// NewTestDB creates a storage.DB connected to this container and runs all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger, opts ...storage.Option) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
