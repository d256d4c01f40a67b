// Package prefetch implements the parallel read stage (spec §4.4): time,
// option chain, account, positions, and VIX are fetched concurrently with a
// hard wall-clock budget so the LLM call that follows is a single round
// trip. Any sub-fetch that errors or times out degrades to an explicit
// Unavailable marker rather than aborting the bundle.
package prefetch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zerodte/execd/internal/domain"
)

// DefaultBudget is the spec's documented default total deadline for one
// prefetch call.
const DefaultBudget = 6 * time.Second

// Engine runs the five sub-reads concurrently against a MarketDataProvider
// and a BrokerGateway (account/positions).
type Engine struct {
	market domain.MarketDataProvider
	broker domain.BrokerGateway
	budget time.Duration
	logger *slog.Logger
}

// New creates an Engine. budget <= 0 uses DefaultBudget.
func New(market domain.MarketDataProvider, broker domain.BrokerGateway, budget time.Duration, logger *slog.Logger) *Engine {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Engine{
		market: market,
		broker: broker,
		budget: budget,
		logger: logger.With(slog.String("component", "prefetch")),
	}
}

// Fetch gathers the bundle for one signal. It never returns an error: every
// sub-fetch failure is captured as an Unavailable marker on its own field,
// per spec §4.4's partial failure policy.
func (e *Engine) Fetch(ctx context.Context, sig domain.Signal, ticker, expiry string) domain.PrefetchBundle {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	bundle := domain.PrefetchBundle{Signal: sig}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ts, err := e.market.Time(gctx)
		if err != nil {
			ts = domain.TimeSnapshot{Unavailable: &domain.Unavailable{Kind: "time", Reason: err.Error()}}
			e.logger.WarnContext(ctx, "prefetch time unavailable", slog.String("error", err.Error()))
		}
		bundle.Time = ts
		return nil
	})

	g.Go(func() error {
		oc, err := e.market.OptionChain(gctx, ticker, expiry)
		if err != nil {
			oc = domain.OptionChainSnapshot{Ticker: ticker, Expiry: expiry, Unavailable: &domain.Unavailable{Kind: "option_chain", Reason: err.Error()}}
			e.logger.WarnContext(ctx, "prefetch option chain unavailable", slog.String("error", err.Error()))
		}
		bundle.OptionChain = oc
		return nil
	})

	g.Go(func() error {
		acct, err := e.broker.Account(gctx)
		if err != nil {
			acct = domain.AccountSnapshot{Unavailable: &domain.Unavailable{Kind: "account", Reason: err.Error()}}
			e.logger.WarnContext(ctx, "prefetch account unavailable", slog.String("error", err.Error()))
		}
		bundle.Account = acct
		return nil
	})

	g.Go(func() error {
		pos, err := e.broker.Positions(gctx)
		if err != nil {
			pos = domain.PositionsSnapshot{Unavailable: &domain.Unavailable{Kind: "positions", Reason: err.Error()}}
			e.logger.WarnContext(ctx, "prefetch positions unavailable", slog.String("error", err.Error()))
		}
		bundle.Positions = pos
		return nil
	})

	g.Go(func() error {
		vix, err := e.market.VIX(gctx)
		if err != nil {
			vix = domain.VIXSnapshot{Unavailable: &domain.Unavailable{Kind: "vix", Reason: err.Error()}}
			e.logger.WarnContext(ctx, "prefetch vix unavailable", slog.String("error", err.Error()))
		}
		bundle.VIX = vix
		return nil
	})

	// errgroup's Go funcs never return a non-nil error (failures degrade to
	// Unavailable instead), so Wait only blocks until every goroutine has
	// stored its partial or full result, or the budget deadline cancels
	// gctx and in-flight reads bail out on their own ctx check.
	_ = g.Wait()

	return bundle
}
