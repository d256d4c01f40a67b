package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerodte/execd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, thread_id, parent_order_id, occ_symbol, contract_id,
	side, quantity, entry_price, take_profit, stop_loss, model_id, confidence,
	status, simulated, entry_time, exit_time, exit_price, pnl, exit_reason`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, status string
		if err := rows.Scan(
			&t.ID, &t.ThreadID, &t.ParentOrderID, &t.OCCSymbol, &t.ContractID,
			&side, &t.Quantity, &t.EntryPrice, &t.TakeProfit, &t.StopLoss,
			&t.ModelID, &t.Confidence, &status, &t.Simulated, &t.EntryTime,
			&t.ExitTime, &t.ExitPrice, &t.PnL, &t.ExitReason,
		); err != nil {
			return nil, err
		}
		t.Side = domain.Direction(side)
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveTrade inserts a newly placed trade. Implements domain.TradeStore.
func (s *TradeStore) SaveTrade(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, thread_id, parent_order_id, occ_symbol, contract_id,
			side, quantity, entry_price, take_profit, stop_loss,
			model_id, confidence, status, simulated, entry_time, exit_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.ThreadID, t.ParentOrderID, t.OCCSymbol, t.ContractID,
		string(t.Side), t.Quantity, t.EntryPrice, t.TakeProfit, t.StopLoss,
		t.ModelID, t.Confidence, string(t.Status), t.Simulated, t.EntryTime, t.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: save trade %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTradeStatus closes out a trade with its final status, exit price and
// realized pnl. Implements domain.TradeStore.
func (s *TradeStore) UpdateTradeStatus(ctx context.Context, id string, status domain.TradeStatus, exitPrice, pnl *float64, exitReason string) error {
	const query = `
		UPDATE trades
		SET status = $2, exit_price = $3, pnl = $4, exit_time = NOW(), exit_reason = $5
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status), exitPrice, pnl, exitReason)
	if err != nil {
		return fmt.Errorf("postgres: update trade status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update trade status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// OpenTrades returns all trades still in the open status, used by the fill
// monitor and by the DuplicatePosition precondition check.
func (s *TradeStore) OpenTrades(ctx context.Context) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE status = $1 ORDER BY entry_time ASC`
	rows, err := s.pool.Query(ctx, query, string(domain.TradeStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list open trades: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// GetTrade fetches one trade by id.
func (s *TradeStore) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE id = $1`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: scan trade %s: %w", id, err)
	}
	if len(trades) == 0 {
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, domain.ErrNotFound)
	}
	return trades[0], nil
}

// ListBefore returns all trades with entry_time strictly before the given
// cutoff, for archival. Implements s3blob.TradeArchiveStore.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE entry_time < $1 AND status != $2 ORDER BY entry_time ASC`
	rows, err := s.pool.Query(ctx, query, before, string(domain.TradeStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all closed trades with entry_time before the given
// cutoff. Returns the number deleted. Called only after ListBefore's
// archive has uploaded successfully.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE entry_time < $1 AND status != $2`,
		before, string(domain.TradeStatusOpen))
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
