package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerodte/execd/internal/domain"
)

// PromptStore implements domain.PromptStore using PostgreSQL.
type PromptStore struct {
	pool *pgxpool.Pool
}

// NewPromptStore creates a new PromptStore backed by the given connection pool.
func NewPromptStore(pool *pgxpool.Pool) *PromptStore {
	return &PromptStore{pool: pool}
}

// GetTemplate fetches a saved template body by name. Returns
// domain.ErrNotFound if nothing has been saved under that name, so callers
// can fall back to the embedded default.
func (s *PromptStore) GetTemplate(ctx context.Context, name string) (string, error) {
	var body string
	err := s.pool.QueryRow(ctx, `SELECT body FROM prompt_templates WHERE name = $1`, name).Scan(&body)
	if err != nil {
		return "", fmt.Errorf("postgres: get prompt template %s: %w", name, domain.ErrNotFound)
	}
	return body, nil
}

// SaveTemplate upserts a template body by name.
func (s *PromptStore) SaveTemplate(ctx context.Context, name, body string) error {
	const query = `
		INSERT INTO prompt_templates (name, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query, name, body)
	if err != nil {
		return fmt.Errorf("postgres: save prompt template %s: %w", name, err)
	}
	return nil
}

var _ domain.PromptStore = (*PromptStore)(nil)
