package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/kenkyu/internal/model"
)

func (db *DB) checkDims(n int) error {
	if db.dims > 0 && n != db.dims {
		return fmt.Errorf("storage: vector has %d dimensions, passages expect %d", n, db.dims)
	}
	return nil
}

// Query returns the passages whose embeddings are nearest to vector by
// cosine distance, best first.
func (db *DB) Query(ctx context.Context, vector []float32, limit int) ([]model.Passage, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := db.checkDims(len(vector)); err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx, `
		SELECT content, source, page FROM passages
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query passages: %w", err)
	}
	passages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Passage, error) {
		var p model.Passage
		err := row.Scan(&p.Content, &p.Source, &p.Page)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan passages: %w", err)
	}
	return passages, nil
}

// Upsert writes chunks in one batch, replacing rows with the same ID.
func (db *DB) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if err := db.checkDims(len(c.Embedding)); err != nil {
			return fmt.Errorf("storage: chunk %s: %w", c.ID, err)
		}
		batch.Queue(`
			INSERT INTO passages (id, source, page, content, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				source = EXCLUDED.source,
				page = EXCLUDED.page,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding`,
			c.ID, c.Passage.Source, c.Passage.Page, c.Passage.Content, pgvector.NewVector(c.Embedding))
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: upsert %d passages: %w", len(chunks), err)
	}
	return nil
}

// DeleteBySource removes every passage ingested from source.
func (db *DB) DeleteBySource(ctx context.Context, source string) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM passages WHERE source = $1`, source); err != nil {
		return fmt.Errorf("storage: delete passages for %q: %w", source, err)
	}
	return nil
}

// Healthy reports database reachability.
func (db *DB) Healthy(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("storage: unhealthy: %w", err)
	}
	return nil
}
