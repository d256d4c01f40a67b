package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerodte/execd/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// SaveSignal upserts a signal by thread id, so re-processing after a Delay
// decision overwrites the prior row rather than duplicating it.
func (s *SignalStore) SaveSignal(ctx context.Context, sig domain.Signal) error {
	messagesJSON, err := json.Marshal(sig.Messages)
	if err != nil {
		return fmt.Errorf("postgres: marshal signal messages: %w", err)
	}
	parsedJSON, err := json.Marshal(sig.Parsed)
	if err != nil {
		return fmt.Errorf("postgres: marshal signal parsed fields: %w", err)
	}

	const query = `
		INSERT INTO signals (thread_id, thread_name, messages, parsed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE
		SET thread_name = EXCLUDED.thread_name,
		    messages = EXCLUDED.messages,
		    parsed = EXCLUDED.parsed`
	_, err = s.pool.Exec(ctx, query, sig.ThreadID, sig.ThreadName, messagesJSON, parsedJSON, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save signal %s: %w", sig.ThreadID, err)
	}
	return nil
}

// GetSignal fetches one signal by thread id.
func (s *SignalStore) GetSignal(ctx context.Context, threadID string) (domain.Signal, error) {
	const query = `SELECT thread_id, thread_name, messages, parsed, created_at FROM signals WHERE thread_id = $1`
	var sig domain.Signal
	var messagesJSON, parsedJSON []byte
	err := s.pool.QueryRow(ctx, query, threadID).Scan(
		&sig.ThreadID, &sig.ThreadName, &messagesJSON, &parsedJSON, &sig.CreatedAt,
	)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("postgres: get signal %s: %w", threadID, domain.ErrNotFound)
	}
	if err := json.Unmarshal(messagesJSON, &sig.Messages); err != nil {
		return domain.Signal{}, fmt.Errorf("postgres: unmarshal signal messages %s: %w", threadID, err)
	}
	if err := json.Unmarshal(parsedJSON, &sig.Parsed); err != nil {
		return domain.Signal{}, fmt.Errorf("postgres: unmarshal signal parsed fields %s: %w", threadID, err)
	}
	return sig, nil
}

// SaveResult writes the decision envelope onto the existing signal row.
// Implements domain.SignalStore; idempotent by construction since it's a
// plain UPDATE keyed by thread_id with the same values on replay. Returns
// domain.ErrNotFound when no signal row exists for threadID.
func (s *SignalStore) SaveResult(ctx context.Context, threadID string, env domain.DecisionEnvelope) error {
	resultJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("postgres: marshal decision envelope %s: %w", threadID, err)
	}

	var reanalysisJSON []byte
	if env.ScheduledReanalysis != nil {
		reanalysisJSON, err = json.Marshal(env.ScheduledReanalysis)
		if err != nil {
			return fmt.Errorf("postgres: marshal scheduled reanalysis %s: %w", threadID, err)
		}
	}

	var traceID *string
	if env.TraceID != "" {
		traceID = &env.TraceID
	}

	const query = `
		UPDATE signals
		SET ai_processed = TRUE,
		    ai_processed_at = $2,
		    ai_result = $3,
		    scheduled_reanalysis = $4,
		    trace_id = $5
		WHERE thread_id = $1`
	tag, err := s.pool.Exec(ctx, query, threadID, env.Timestamp, resultJSON, reanalysisJSON, traceID)
	if err != nil {
		return fmt.Errorf("postgres: save result %s: %w", threadID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save result %s: %w", threadID, domain.ErrNotFound)
	}
	return nil
}

// ListBefore returns all signals created strictly before the given cutoff,
// for archival. Implements s3blob.SignalArchiveStore.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	const query = `SELECT thread_id, thread_name, messages, parsed, created_at FROM signals WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var messagesJSON, parsedJSON []byte
		if err := rows.Scan(&sig.ThreadID, &sig.ThreadName, &messagesJSON, &parsedJSON, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		if err := json.Unmarshal(messagesJSON, &sig.Messages); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal signal messages: %w", err)
		}
		if err := json.Unmarshal(parsedJSON, &sig.Parsed); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal signal parsed fields: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// DeleteBefore deletes signals created before the given cutoff. Returns the
// number deleted.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.SignalStore = (*SignalStore)(nil)
