package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

const ddl = `
CREATE TABLE IF NOT EXISTS preferences (
    id         INT          PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    language   TEXT         NOT NULL DEFAULT '',
    device_id  TEXT         NOT NULL DEFAULT '',
    last_mode  TEXT         NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
    name       TEXT         PRIMARY KEY,
    phone      TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_lower_name ON contacts (lower(name));

CREATE TABLE IF NOT EXISTS transactions (
    id         TEXT         PRIMARY KEY,
    recipient  TEXT         NOT NULL,
    phone      TEXT         NOT NULL DEFAULT '',
    amount     DOUBLE PRECISION NOT NULL,
    status     TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookmarks (
    name       TEXT         PRIMARY KEY,
    lat        DOUBLE PRECISION NOT NULL,
    lng        DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// OpenPool connects to dsn with pgvector types registered on every
// connection, so the pool also serves the intent example index.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// The extension may not exist until the intent index migrates.
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// Postgres stores data in PostgreSQL tables.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres migrates the schema on pool. The caller keeps ownership of
// the pool; Close is a no-op.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Preferences implements [Store].
func (s *Postgres) Preferences(ctx context.Context) (Preferences, error) {
	const q = `SELECT language, device_id, last_mode FROM preferences WHERE id = 1`
	var p Preferences
	err := s.pool.QueryRow(ctx, q).Scan(&p.Language, &p.DeviceID, &p.LastMode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("store: preferences: %w", err)
	}
	return p, nil
}

// SavePreferences implements [Store].
func (s *Postgres) SavePreferences(ctx context.Context, p Preferences) error {
	const q = `
		INSERT INTO preferences (id, language, device_id, last_mode, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET language = EXCLUDED.language,
		    device_id = EXCLUDED.device_id,
		    last_mode = EXCLUDED.last_mode,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, p.Language, p.DeviceID, p.LastMode); err != nil {
		return fmt.Errorf("store: save preferences: %w", err)
	}
	return nil
}

// SaveContact implements [Store].
func (s *Postgres) SaveContact(ctx context.Context, c Contact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: save contact: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM contacts WHERE lower(name) = lower($1)`, c.Name); err != nil {
		return fmt.Errorf("store: save contact: %w", err)
	}
	const q = `INSERT INTO contacts (name, phone, created_at) VALUES ($1, $2, COALESCE($3, now()))`
	if _, err := tx.Exec(ctx, q, c.Name, c.Phone, nullTime(c.CreatedAt)); err != nil {
		return fmt.Errorf("store: save contact: %w", err)
	}
	return tx.Commit(ctx)
}

// Contacts implements [Store].
func (s *Postgres) Contacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, phone, created_at FROM contacts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: contacts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Contact, error) {
		var c Contact
		err := r.Scan(&c.Name, &c.Phone, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: contacts: %w", err)
	}
	return out, nil
}

// RecordTransaction implements [Store].
func (s *Postgres) RecordTransaction(ctx context.Context, t Transaction) error {
	const q = `
		INSERT INTO transactions (id, recipient, phone, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`
	if _, err := s.pool.Exec(ctx, q, t.ID, t.Recipient, t.Phone, t.Amount, t.Status, nullTime(t.CreatedAt)); err != nil {
		return fmt.Errorf("store: record transaction: %w", err)
	}
	return nil
}

// Transactions implements [Store].
func (s *Postgres) Transactions(ctx context.Context) ([]Transaction, error) {
	const q = `SELECT id, recipient, phone, amount, status, created_at FROM transactions ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: transactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Transaction, error) {
		var t Transaction
		err := r.Scan(&t.ID, &t.Recipient, &t.Phone, &t.Amount, &t.Status, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: transactions: %w", err)
	}
	return out, nil
}

// SaveBookmark implements [Store].
func (s *Postgres) SaveBookmark(ctx context.Context, b Bookmark) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: save bookmark: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM bookmarks WHERE lower(name) = lower($1)`, b.Name); err != nil {
		return fmt.Errorf("store: save bookmark: %w", err)
	}
	const q = `INSERT INTO bookmarks (name, lat, lng, created_at) VALUES ($1, $2, $3, COALESCE($4, now()))`
	if _, err := tx.Exec(ctx, q, b.Name, b.Lat, b.Lng, nullTime(b.CreatedAt)); err != nil {
		return fmt.Errorf("store: save bookmark: %w", err)
	}
	return tx.Commit(ctx)
}

// Bookmarks implements [Store].
func (s *Postgres) Bookmarks(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, lat, lng, created_at FROM bookmarks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: bookmarks: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Bookmark, error) {
		var b Bookmark
		err := r.Scan(&b.Name, &b.Lat, &b.Lng, &b.CreatedAt)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: bookmarks: %w", err)
	}
	return out, nil
}

// Close implements [Store].
func (s *Postgres) Close() error { return nil }

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
