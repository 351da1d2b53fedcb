package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// Put upserts the full session snapshot. The stage, task, and owner are
// duplicated into columns for listing and operational queries.
func (db *DB) Put(ctx context.Context, s model.Session) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("storage: marshal session %s: %w", s.ID, err)
	}
	return WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO sessions (id, task, stage, owner, snapshot, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				stage = EXCLUDED.stage,
				snapshot = EXCLUDED.snapshot,
				updated_at = EXCLUDED.updated_at`,
			s.ID, s.Task, string(s.Stage), s.Owner, snapshot, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("storage: put session %s: %w", s.ID, err)
		}
		return nil
	})
}

// Get loads the snapshot for id, or model.ErrSessionNotFound.
func (db *DB) Get(ctx context.Context, id string) (model.Session, error) {
	var snapshot []byte
	err := db.pool.QueryRow(ctx, `SELECT snapshot FROM sessions WHERE id = $1`, id).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: get session %s: %w", id, err)
	}
	var s model.Session
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return model.Session{}, fmt.Errorf("storage: decode session %s: %w", id, err)
	}
	return s, nil
}
