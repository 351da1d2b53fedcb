// Package storage is the PostgreSQL persistence layer for Kenkyu.
//
// One pgx pool backs two concerns: session snapshots (a workflow.SessionStore)
// and the embedded passage corpus (a retrieval.Index over pgvector).
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// DB wraps a pgxpool.Pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	// dims is the embedding size enforced on the passages table; zero skips the check.
	dims int
}

// Option configures a DB.
type Option func(*DB)

// WithDimensions enforces an embedding size on passage reads and writes.
func WithDimensions(dims int) Option {
	return func(db *DB) { db.dims = dims }
}

// New connects a pool to dsn and verifies it with a ping.
func New(ctx context.Context, dsn string, logger *slog.Logger, opts ...Option) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	// Registration fails until the vector extension exists, which is the
	// case for connections opened before the first migration. Those
	// connections never touch the passages table.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			logger.Debug("storage: pgvector types not registered (extension may not exist yet)", "error", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Reset drops pooled connections so new ones pick up type registrations
// made after the pool was opened (the vector extension created by a migration).
func (db *DB) Reset() {
	db.pool.Reset()
}
