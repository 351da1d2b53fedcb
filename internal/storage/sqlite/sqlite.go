// Package sqlite is a single-file session store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ashita-ai/kenkyu/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	snapshot   TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Store keeps session snapshots in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put upserts the session snapshot.
func (s *Store) Put(ctx context.Context, sess model.Session) error {
	snapshot, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sqlite: marshal session %s: %w", sess.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, stage, snapshot, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			stage = excluded.stage,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		sess.ID, string(sess.Stage), string(snapshot), sess.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: put session %s: %w", sess.ID, err)
	}
	return nil
}

// Get loads the snapshot for id, or model.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.Session, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("sqlite: get session %s: %w", id, err)
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(snapshot), &sess); err != nil {
		return model.Session{}, fmt.Errorf("sqlite: decode session %s: %w", id, err)
	}
	return sess, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
