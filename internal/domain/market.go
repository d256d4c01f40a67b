package domain

import "context"

// MarketDataProvider is the read-side port used by prefetch to source time,
// option chain, and VIX snapshots. The websocket client in
// internal/platform/marketdata is its only implementation and wiring always
// uses it; there is no brokerage-backed implementation.
type MarketDataProvider interface {
	Time(ctx context.Context) (TimeSnapshot, error)
	OptionChain(ctx context.Context, ticker, expiry string) (OptionChainSnapshot, error)
	VIX(ctx context.Context) (VIXSnapshot, error)
}
