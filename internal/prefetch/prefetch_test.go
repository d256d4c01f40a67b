package prefetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

type fakeMarket struct {
	timeErr  error
	chainErr error
	vixErr   error
	delay    time.Duration
}

func (f fakeMarket) Time(ctx context.Context) (domain.TimeSnapshot, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.TimeSnapshot{}, ctx.Err()
		}
	}
	if f.timeErr != nil {
		return domain.TimeSnapshot{}, f.timeErr
	}
	return domain.TimeSnapshot{MarketOpen: true, Status: domain.MarketOpenStatus}, nil
}

func (f fakeMarket) OptionChain(ctx context.Context, ticker, expiry string) (domain.OptionChainSnapshot, error) {
	if f.chainErr != nil {
		return domain.OptionChainSnapshot{}, f.chainErr
	}
	return domain.OptionChainSnapshot{Ticker: ticker, Expiry: expiry, UnderlyingPrice: 600}, nil
}

func (f fakeMarket) VIX(ctx context.Context) (domain.VIXSnapshot, error) {
	if f.vixErr != nil {
		return domain.VIXSnapshot{}, f.vixErr
	}
	return domain.VIXSnapshot{Level: 18, Band: domain.VIXNormal}, nil
}

type fakeBroker struct {
	domain.BrokerGateway
	acctErr error
	posErr  error
}

func (f fakeBroker) Account(ctx context.Context) (domain.AccountSnapshot, error) {
	if f.acctErr != nil {
		return domain.AccountSnapshot{}, f.acctErr
	}
	return domain.AccountSnapshot{CashAvailable: 1000}, nil
}

func (f fakeBroker) Positions(ctx context.Context) (domain.PositionsSnapshot, error) {
	if f.posErr != nil {
		return domain.PositionsSnapshot{}, f.posErr
	}
	return domain.PositionsSnapshot{Positions: []domain.PositionSnapshot{{Ticker: "SPY", Quantity: 1}}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngine_Fetch_AllSucceed(t *testing.T) {
	e := New(fakeMarket{}, fakeBroker{}, 0, testLogger())
	b := e.Fetch(context.Background(), domain.Signal{ThreadID: "t1"}, "SPY", "2024-12-09")

	require.Nil(t, b.Time.Unavailable)
	assert.True(t, b.Time.MarketOpen)
	require.Nil(t, b.OptionChain.Unavailable)
	assert.Equal(t, 600.0, b.OptionChain.UnderlyingPrice)
	require.Nil(t, b.Account.Unavailable)
	assert.Equal(t, 1000.0, b.Account.CashAvailable)
	require.Nil(t, b.Positions.Unavailable)
	assert.Len(t, b.Positions.Positions, 1)
	require.Nil(t, b.VIX.Unavailable)
	assert.Equal(t, domain.VIXNormal, b.VIX.Band)
}

func TestEngine_Fetch_PartialFailureDoesNotAbort(t *testing.T) {
	e := New(fakeMarket{vixErr: errors.New("vix feed down")}, fakeBroker{acctErr: errors.New("broker timeout")}, 0, testLogger())
	b := e.Fetch(context.Background(), domain.Signal{}, "SPY", "2024-12-09")

	require.NotNil(t, b.VIX.Unavailable)
	assert.Equal(t, "vix", b.VIX.Unavailable.Kind)
	require.NotNil(t, b.Account.Unavailable)

	// Unaffected sub-fetches still completed.
	require.Nil(t, b.OptionChain.Unavailable)
	require.Nil(t, b.Positions.Unavailable)
}

func TestEngine_Fetch_DeadlineCancelsSlowSubFetch(t *testing.T) {
	e := New(fakeMarket{delay: 50 * time.Millisecond}, fakeBroker{}, 5*time.Millisecond, testLogger())
	b := e.Fetch(context.Background(), domain.Signal{}, "SPY", "2024-12-09")

	require.NotNil(t, b.Time.Unavailable)
}
