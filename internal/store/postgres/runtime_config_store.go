package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerodte/execd/internal/domain"
)

// RuntimeConfigStore implements domain.RuntimeConfigStore using PostgreSQL.
type RuntimeConfigStore struct {
	pool *pgxpool.Pool
}

// NewRuntimeConfigStore creates a new RuntimeConfigStore backed by the given
// connection pool.
func NewRuntimeConfigStore(pool *pgxpool.Pool) *RuntimeConfigStore {
	return &RuntimeConfigStore{pool: pool}
}

// GetAll returns every stored runtime config key/value pair. Missing keys
// are the caller's problem to default, not this store's.
func (s *RuntimeConfigStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM runtime_config`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get all runtime config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan runtime config row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts one runtime config key, as used by the dashboard / admin API.
func (s *RuntimeConfigStore) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO runtime_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set runtime config %s: %w", key, err)
	}
	return nil
}

var _ domain.RuntimeConfigStore = (*RuntimeConfigStore)(nil)
