package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

type fakeGateway struct {
	domain.BrokerGateway
	searchErr  error
	placeErr   error
	searchCall int
	placeCall  int
}

func (f *fakeGateway) SearchContract(ctx context.Context, ticker, expiry string, strike float64, right domain.Direction) (domain.ContractSearchResult, error) {
	f.searchCall++
	if f.searchErr != nil {
		return domain.ContractSearchResult{}, f.searchErr
	}
	return domain.ContractSearchResult{ContractID: "C123", OCCSymbol: "SPY   241209C00605000", Strike: strike, Right: right, Expiry: expiry}, nil
}

func (f *fakeGateway) PlaceBracket(ctx context.Context, req domain.BracketOrderRequest) (domain.BracketOrderResponse, error) {
	f.placeCall++
	if f.placeErr != nil {
		return domain.BracketOrderResponse{}, f.placeErr
	}
	return domain.BracketOrderResponse{ParentOrderID: "ord-1", TPOrderID: "ord-2", SLOrderID: "ord-3", Status: "submitted"}, nil
}

type fakeTradeStore struct {
	domain.TradeStore
	saved   []domain.Trade
	saveErr error
}

func (f *fakeTradeStore) SaveTrade(ctx context.Context, t domain.Trade) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, t)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleExec() domain.ExecuteDecision {
	return domain.ExecuteDecision{
		Ticker: "SPY", Expiry: "2024-12-09", Strike: 605,
		Direction: domain.DirectionCall, Side: domain.DirectionBuy,
		Quantity: 1, EntryPrice: 1.77, TakeProfit: 2.50, StopLoss: 1.20,
	}
}

func TestDispatch_DryRunParity(t *testing.T) {
	gw := &fakeGateway{}
	ts := &fakeTradeStore{}
	a := New(gw, ts, testLogger())

	result, err := a.Dispatch(context.Background(), "t1", sampleExec(), "gpt-test", 0.7, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Simulated)
	assert.True(t, strings.HasPrefix(result.OrderID, "sim-"))
	assert.Equal(t, 0, gw.searchCall)
	assert.Equal(t, 0, gw.placeCall)

	require.Len(t, ts.saved, 1)
	assert.True(t, ts.saved[0].Simulated)
	assert.Equal(t, domain.TradeStatusOpen, ts.saved[0].Status)
}

func TestDispatch_LivePlacement(t *testing.T) {
	gw := &fakeGateway{}
	ts := &fakeTradeStore{}
	a := New(gw, ts, testLogger())

	result, err := a.Dispatch(context.Background(), "t1", sampleExec(), "gpt-test", 0.7, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Simulated)
	assert.Equal(t, "ord-1", result.OrderID)
	assert.Equal(t, 1, gw.searchCall)
	assert.Equal(t, 1, gw.placeCall)
	require.Len(t, ts.saved, 1)
	assert.False(t, ts.saved[0].Simulated)
}

func TestDispatch_ContractNotFound(t *testing.T) {
	gw := &fakeGateway{searchErr: domain.ErrContractNotFound}
	ts := &fakeTradeStore{}
	a := New(gw, ts, testLogger())

	result, err := a.Dispatch(context.Background(), "t1", sampleExec(), "gpt-test", 0.7, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailureContractNotFound, result.FailureKind)
	assert.Empty(t, ts.saved)
}

func TestDispatch_BrokerRejected(t *testing.T) {
	gw := &fakeGateway{placeErr: domain.ErrBrokerRejection}
	ts := &fakeTradeStore{}
	a := New(gw, ts, testLogger())

	result, err := a.Dispatch(context.Background(), "t1", sampleExec(), "gpt-test", 0.7, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailureBrokerRejected, result.FailureKind)
}

func TestDispatch_BrokerUnreachablePropagatesError(t *testing.T) {
	gw := &fakeGateway{searchErr: errors.New("dial tcp: timeout")}
	ts := &fakeTradeStore{}
	a := New(gw, ts, testLogger())

	_, err := a.Dispatch(context.Background(), "t1", sampleExec(), "gpt-test", 0.7, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBrokerUnreachable))
}

func TestDispatch_OrphanedTradeOnPersistFailure(t *testing.T) {
	gw := &fakeGateway{}
	ts := &fakeTradeStore{saveErr: errors.New("db down")}
	a := New(gw, ts, testLogger())

	result, err := a.Dispatch(context.Background(), "t1", sampleExec(), "gpt-test", 0.7, true)
	require.Error(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, err.Error(), "orphaned trade")
}
