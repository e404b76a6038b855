package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Get returns the value stored under key in kv_store, or nil if absent.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM kv_store WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying kv %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key. Concurrent writers resolve last-write-wins.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("upserting kv %s: %w", key, err)
	}
	return nil
}
