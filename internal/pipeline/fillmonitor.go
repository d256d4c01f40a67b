package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// DefaultFillMonitorInterval matches the spec's documented 30s poll cadence
// for reconciling broker order state against open Trades.
const DefaultFillMonitorInterval = 30 * time.Second

// FillMonitor polls the broker's live orders and closes out open Trades
// whose bracket children have reached a terminal state. The matching rule
// between broker order state and the Trade record is the one the spec
// leaves to implementers: match by the parent order id stored at placement
// time. A take-profit or stop-loss fill closes the trade as TP or SL, an
// expired status as expired, and any other state as closed_manual.
type FillMonitor struct {
	broker   domain.BrokerGateway
	trades   domain.TradeStore
	interval time.Duration
	logger   *slog.Logger
}

// NewFillMonitor creates a FillMonitor polling at interval
// (DefaultFillMonitorInterval if zero).
func NewFillMonitor(broker domain.BrokerGateway, trades domain.TradeStore, interval time.Duration, logger *slog.Logger) *FillMonitor {
	if interval <= 0 {
		interval = DefaultFillMonitorInterval
	}
	return &FillMonitor{
		broker:   broker,
		trades:   trades,
		interval: interval,
		logger:   logger.With(slog.String("component", "fill_monitor")),
	}
}

// Run blocks, polling until ctx is cancelled.
func (m *FillMonitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "fill monitor starting", slog.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "fill monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *FillMonitor) tick(ctx context.Context) {
	open, err := m.trades.OpenTrades(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "open trades lookup failed", slog.String("error", err.Error()))
		return
	}
	if len(open) == 0 {
		return
	}

	live, err := m.broker.LiveOrders(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "live orders lookup failed", slog.String("error", err.Error()))
		return
	}

	byParent := make(map[string][]domain.LiveOrderStatus, len(live))
	for _, o := range live {
		byParent[o.ParentID] = append(byParent[o.ParentID], o)
	}

	for _, trade := range open {
		children := byParent[trade.ParentOrderID]
		for _, child := range children {
			if !child.Filled {
				continue
			}
			m.close(ctx, trade, child)
			break
		}
	}
}

func (m *FillMonitor) close(ctx context.Context, trade domain.Trade, child domain.LiveOrderStatus) {
	status, reason := classifyFill(child.Status)
	exitPrice := child.FillPrice
	pnl := computePnL(trade, exitPrice)

	if err := m.trades.UpdateTradeStatus(ctx, trade.ID, status, &exitPrice, &pnl, reason); err != nil {
		m.logger.ErrorContext(ctx, "close trade failed",
			slog.String("trade_id", trade.ID), slog.String("error", err.Error()))
		return
	}
	m.logger.InfoContext(ctx, "trade closed",
		slog.String("trade_id", trade.ID), slog.String("status", string(status)),
		slog.Float64("exit_price", exitPrice), slog.Float64("pnl", pnl))
}

// classifyFill maps a broker order status string to a Trade's terminal
// status and exit reason. A status naming a take-profit, a stop-loss or an
// expiry maps to the TP, SL or expired status; anything else is
// closed_manual, per the spec's resolution of the fill monitor's open
// matching question.
func classifyFill(brokerStatus string) (domain.TradeStatus, string) {
	s := strings.ToLower(brokerStatus)
	switch {
	case strings.Contains(s, "tp") || strings.Contains(s, "take_profit") || strings.Contains(s, "profit"):
		return domain.TradeStatusClosedTP, brokerStatus
	case strings.Contains(s, "sl") || strings.Contains(s, "stop_loss") || strings.Contains(s, "stop"):
		return domain.TradeStatusClosedSL, brokerStatus
	case strings.Contains(s, "expired"):
		return domain.TradeStatusClosedExpired, brokerStatus
	default:
		return domain.TradeStatusClosedManual, brokerStatus
	}
}

// computePnL derives realized P&L from entry and exit price, signed by side.
func computePnL(trade domain.Trade, exitPrice float64) float64 {
	diff := exitPrice - trade.EntryPrice
	if trade.Side == domain.DirectionSell {
		diff = -diff
	}
	return diff * float64(trade.Quantity)
}
