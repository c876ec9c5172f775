package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path TEXT PRIMARY KEY,
	body JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps documents in a JSONB column through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the documents table exists.
// viaBouncer switches to the simple protocol for PgBouncer transaction pooling.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int, viaBouncer bool) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// ReadJSON implements Store.
func (s *PostgresStore) ReadJSON(ctx context.Context, p string, out any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	var body []byte
	err = s.pool.QueryRow(ctx, `SELECT body::text FROM documents WHERE path = $1`, cleaned).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", cleaned, err)
	}
	return decode(cleaned, body, out)
}

// WriteJSON implements Store.
func (s *PostgresStore) WriteJSON(ctx context.Context, p string, v any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (path, body, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (path) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		cleaned, string(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", cleaned, err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, cleaned); err != nil {
		return fmt.Errorf("delete %s: %w", cleaned, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
