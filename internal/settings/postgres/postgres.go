// Package postgres is a [settings.Store] backed by a PostgreSQL table.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urbansense/urbansense/internal/settings"
)

const ddlSettings = `
CREATE TABLE IF NOT EXISTS user_settings (
    profile     TEXT         NOT NULL,
    key         TEXT         NOT NULL,
    value       TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (profile, key)
);
`

// Migrate creates the settings table if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSettings); err != nil {
		return fmt.Errorf("postgres settings: migrate: %w", err)
	}
	return nil
}

// Store implements settings.Store on a connection pool. All operations are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the server and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres settings: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres settings: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres settings: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Ping checks connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get implements settings.Store.
func (s *Store) Get(ctx context.Context, profile, key string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM user_settings WHERE profile = $1 AND key = $2`,
		profile, key,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", settings.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres settings: get %s: %w", key, err)
	}
	return v, nil
}

// Load implements settings.Store.
func (s *Store) Load(ctx context.Context, profile string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM user_settings WHERE profile = $1`, profile)
	if err != nil {
		return nil, fmt.Errorf("postgres settings: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres settings: scan: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres settings: load rows: %w", err)
	}
	return out, nil
}

// Set implements settings.Store.
func (s *Store) Set(ctx context.Context, profile, key, value string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO user_settings (profile, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		profile, key, value)
	if err != nil {
		return fmt.Errorf("postgres settings: set %s: %w", key, err)
	}
	return nil
}

// Delete implements settings.Store.
func (s *Store) Delete(ctx context.Context, profile, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_settings WHERE profile = $1 AND key = $2`, profile, key)
	if err != nil {
		return fmt.Errorf("postgres settings: delete %s: %w", key, err)
	}
	return nil
}

var _ settings.Store = (*Store)(nil)
