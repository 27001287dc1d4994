// Package repository is the Postgres store behind requests, their activity
// trail, users and API keys.
package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidCursor is returned for a malformed pagination cursor.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

const pgUniqueViolation = "23505"

// Repository wraps a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New parses databaseURL, opens a pool and pings it.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := poolConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func poolConfig(databaseURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	return cfg, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping reports database reachability for the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// withTx commits when fn returns nil and rolls back otherwise.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// pageCursor is the keyset position after the last row of a page.
type pageCursor struct {
	ID        string    `json:"i"`
	CreatedAt time.Time `json:"t"`
}

func encodeCursor(c pageCursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (*pageCursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var c pageCursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" || c.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
