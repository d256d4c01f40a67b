package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

type fakeFillBroker struct {
	domain.BrokerGateway
	live []domain.LiveOrderStatus
}

func (f *fakeFillBroker) LiveOrders(ctx context.Context) ([]domain.LiveOrderStatus, error) {
	return f.live, nil
}

type fakeFillTradeStore struct {
	domain.TradeStore
	open    []domain.Trade
	updates []struct {
		id     string
		status domain.TradeStatus
		reason string
	}
}

func (f *fakeFillTradeStore) OpenTrades(ctx context.Context) ([]domain.Trade, error) { return f.open, nil }

func (f *fakeFillTradeStore) UpdateTradeStatus(ctx context.Context, id string, status domain.TradeStatus, exitPrice, pnl *float64, reason string) error {
	f.updates = append(f.updates, struct {
		id     string
		status domain.TradeStatus
		reason string
	}{id, status, reason})
	return nil
}

func testFMLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFillMonitor_ClosesOnTakeProfitFill(t *testing.T) {
	trades := &fakeFillTradeStore{open: []domain.Trade{
		{ID: "tr1", ParentOrderID: "parent1", EntryPrice: 1.0, Quantity: 1, Side: domain.DirectionBuy},
	}}
	broker := &fakeFillBroker{live: []domain.LiveOrderStatus{
		{OrderID: "tp1", ParentID: "parent1", Status: "filled_tp", Filled: true, FillPrice: 1.5},
	}}
	m := NewFillMonitor(broker, trades, time.Millisecond, testFMLogger())

	ctx, cancel := context.WithCancel(context.Background())
	m.tick(ctx)
	cancel()

	require.Len(t, trades.updates, 1)
	assert.Equal(t, domain.TradeStatusClosedTP, trades.updates[0].status)
}

func TestFillMonitor_UnrecognizedStateClosesManual(t *testing.T) {
	trades := &fakeFillTradeStore{open: []domain.Trade{
		{ID: "tr1", ParentOrderID: "parent1", EntryPrice: 1.0, Quantity: 1, Side: domain.DirectionBuy},
	}}
	broker := &fakeFillBroker{live: []domain.LiveOrderStatus{
		{OrderID: "weird1", ParentID: "parent1", Status: "halted", Filled: true, FillPrice: 1.2},
	}}
	m := NewFillMonitor(broker, trades, time.Millisecond, testFMLogger())

	m.tick(context.Background())

	require.Len(t, trades.updates, 1)
	assert.Equal(t, domain.TradeStatusClosedManual, trades.updates[0].status)
}

func TestFillMonitor_NoMatchingChildLeavesTradeOpen(t *testing.T) {
	trades := &fakeFillTradeStore{open: []domain.Trade{
		{ID: "tr1", ParentOrderID: "parent1"},
	}}
	broker := &fakeFillBroker{live: []domain.LiveOrderStatus{
		{OrderID: "other", ParentID: "parent2", Status: "working", Filled: false},
	}}
	m := NewFillMonitor(broker, trades, time.Millisecond, testFMLogger())

	m.tick(context.Background())

	assert.Empty(t, trades.updates)
}

func TestNewFillMonitor_DefaultsInterval(t *testing.T) {
	m := NewFillMonitor(&fakeFillBroker{}, &fakeFillTradeStore{}, 0, testFMLogger())
	assert.Equal(t, DefaultFillMonitorInterval, m.interval)
}
