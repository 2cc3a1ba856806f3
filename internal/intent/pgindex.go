package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/sightwear/sightwear/internal/mode"
)

const ddlIntentExamples = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS intent_examples (
    id         BIGSERIAL    PRIMARY KEY,
    model      TEXT         NOT NULL,
    label      TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    embedding  vector(%d)   NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_intent_examples_model
    ON intent_examples (model);

CREATE TABLE IF NOT EXISTS intent_index_state (
    model         TEXT         PRIMARY KEY,
    examples_hash TEXT         NOT NULL,
    synced_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// PGIndex keeps embedded examples in PostgreSQL and answers k=1 queries with
// the pgvector cosine distance operator. The pool must have pgvector types
// registered on every connection.
type PGIndex struct {
	pool  *pgxpool.Pool
	model string
}

var _ Index = (*PGIndex)(nil)

// NewPGIndex migrates the examples table for vectors of dims and returns an
// index scoped to model.
func NewPGIndex(ctx context.Context, pool *pgxpool.Pool, model string, dims int) (*PGIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("intent: pg index: invalid dimensions %d", dims)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlIntentExamples, dims)); err != nil {
		return nil, fmt.Errorf("intent: pg index: migrate: %w", err)
	}
	return &PGIndex{pool: pool, model: model}, nil
}

// Count returns the number of stored examples for the index's model.
func (p *PGIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM intent_examples WHERE model = $1`, p.model).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("intent: pg index: count: %w", err)
	}
	return n, nil
}

// Hash returns the examples hash recorded by the last [PGIndex.Sync], or ""
// when the model was never synced.
func (p *PGIndex) Hash(ctx context.Context) (string, error) {
	var hash string
	err := p.pool.QueryRow(ctx, `SELECT examples_hash FROM intent_index_state WHERE model = $1`, p.model).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("intent: pg index: hash: %w", err)
	}
	return hash, nil
}

// Sync replaces the stored examples of the index's model with c's vectors
// and records c's examples hash, in one transaction.
func (p *PGIndex) Sync(ctx context.Context, c *Classifier) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("intent: pg index: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM intent_examples WHERE model = $1`, p.model); err != nil {
		return fmt.Errorf("intent: pg index: clear: %w", err)
	}

	batch := &pgx.Batch{}
	for _, v := range c.Vectors {
		batch.Queue(`INSERT INTO intent_examples (model, label, text, embedding) VALUES ($1, $2, $3, $4)`,
			p.model, string(v.Label), v.Text, pgvector.NewVector(v.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("intent: pg index: insert: %w", err)
	}
	const state = `
		INSERT INTO intent_index_state (model, examples_hash) VALUES ($1, $2)
		ON CONFLICT (model) DO UPDATE SET examples_hash = EXCLUDED.examples_hash, synced_at = now()`
	if _, err := tx.Exec(ctx, state, p.model, c.ExamplesHash); err != nil {
		return fmt.Errorf("intent: pg index: record hash: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("intent: pg index: commit: %w", err)
	}
	return nil
}

// Nearest implements [Index].
func (p *PGIndex) Nearest(ctx context.Context, vec []float32) (mode.Label, float64, error) {
	const q = `
		SELECT label, embedding <=> $1 AS distance
		FROM   intent_examples
		WHERE  model = $2
		ORDER  BY distance
		LIMIT  1`

	var (
		label    string
		distance float64
	)
	err := p.pool.QueryRow(ctx, q, pgvector.NewVector(vec), p.model).Scan(&label, &distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, ErrNoTrainingData
	}
	if err != nil {
		return "", 0, fmt.Errorf("intent: pg index: nearest: %w", err)
	}
	return mode.Label(label), 1 - distance, nil
}
