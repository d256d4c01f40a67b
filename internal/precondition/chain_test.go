package precondition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/broker"
	"github.com/zerodte/execd/internal/domain"
)

func ticker(t string) domain.ParsedFields {
	return domain.ParsedFields{Ticker: &t}
}

func baseInput() Input {
	cfg := domain.DefaultRuntimeConfig()
	cfg.TickerWhitelist = nil // unrestricted baseline; TestChain_Whitelist sets its own
	return Input{
		Signal:     domain.Signal{Parsed: ticker("AAPL")},
		RuntimeCfg: cfg,
		LiveOnly:   true,
	}
}

func TestChain_PassesCleanSignal(t *testing.T) {
	in := baseInput()
	r := DefaultChain().Run(in)
	assert.True(t, r.Passed)
}

func TestChain_EmergencyStopShortCircuitsFirst(t *testing.T) {
	in := baseInput()
	in.RuntimeCfg.EmergencyStop = true
	in.Signal.Parsed = domain.ParsedFields{} // would also fail ticker_present

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "emergency_stop", r.FailedCheck)
}

func TestChain_NoTicker(t *testing.T) {
	in := baseInput()
	in.Signal.Parsed = domain.ParsedFields{}

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "ticker_present", r.FailedCheck)
}

func TestChain_Whitelist(t *testing.T) {
	in := baseInput()
	in.RuntimeCfg.TickerWhitelist = []string{"SPY", "QQQ"}

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "whitelist", r.FailedCheck)
}

func TestChain_Blacklist(t *testing.T) {
	in := baseInput()
	in.RuntimeCfg.TickerBlacklist = []string{"AAPL"}

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "blacklist", r.FailedCheck)
}

func TestChain_MinConfidence_AbsentPasses(t *testing.T) {
	in := baseInput()
	r := DefaultChain().Run(in)
	assert.True(t, r.Passed)
}

func TestChain_MinConfidence_BelowFloorFails(t *testing.T) {
	in := baseInput()
	conf := 0.1
	in.Signal.Parsed.Confidence = &conf

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "min_confidence", r.FailedCheck)
}

func TestChain_MaxPositions_SkippedInDryRun(t *testing.T) {
	in := baseInput()
	in.LiveOnly = false
	in.RuntimeCfg.MaxOpenPositions = 0
	in.OpenTrades = []domain.Trade{{Status: domain.TradeStatusOpen, OCCSymbol: mustOCC(t, "MSFT", 400)}}

	r := DefaultChain().Run(in)
	assert.True(t, r.Passed, "max_positions and duplicate_position are live-only and skipped in dry run")
}

func TestChain_MaxPositions_EnforcedLive(t *testing.T) {
	in := baseInput()
	in.RuntimeCfg.MaxOpenPositions = 1
	in.OpenTrades = []domain.Trade{{Status: domain.TradeStatusOpen, OCCSymbol: mustOCC(t, "MSFT", 400)}}

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "max_positions", r.FailedCheck)
}

func TestChain_DuplicatePosition(t *testing.T) {
	in := baseInput()
	in.RuntimeCfg.MaxOpenPositions = 10
	in.OpenTrades = []domain.Trade{{Status: domain.TradeStatusOpen, OCCSymbol: mustOCC(t, "AAPL", 150)}}

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "duplicate_position", r.FailedCheck)
}

// mustOCC builds a real OCC symbol via broker.OCCSymbol, so fixtures exercise
// the actual space-padded ticker field (e.g. "AAPL  260116C00150000") rather
// than a hand-written symbol that happens to have no padding to trim.
func mustOCC(t *testing.T, ticker string, strike float64) string {
	t.Helper()
	expiry, err := broker.ParseExpiry("2026-01-16")
	require.NoError(t, err)
	occ, err := broker.OCCSymbol(ticker, expiry, domain.DirectionCall, strike)
	require.NoError(t, err)
	return occ
}

func TestOccTicker_TrimsOCCSymbolPadding(t *testing.T) {
	occ := mustOCC(t, "AAPL", 150)
	require.Equal(t, "AAPL  260116C00150000", occ, "sanity check on the real padded format")
	assert.Equal(t, "AAPL", occTicker(occ))
}

func TestChain_DuplicatePosition_ShortTickerWithRealOCCPadding(t *testing.T) {
	in := baseInput()
	in.Signal.Parsed = ticker("SPY")
	in.RuntimeCfg.MaxOpenPositions = 10
	in.OpenTrades = []domain.Trade{{Status: domain.TradeStatusOpen, OCCSymbol: mustOCC(t, "SPY", 605)}}

	r := DefaultChain().Run(in)
	assert.False(t, r.Passed)
	assert.Equal(t, "duplicate_position", r.FailedCheck)
}

func TestResult_ToDecision(t *testing.T) {
	passing := Result{Passed: true}
	assert.Nil(t, passing.ToDecision())

	failing := Result{Passed: false, FailedCheck: "min_confidence", Reason: "too low"}
	d := failing.ToDecision()
	if assert.NotNil(t, d) {
		assert.Equal(t, domain.DecisionSkip, d.Kind)
		assert.Equal(t, domain.SkipLowConfidence, d.Skip.Category)
	}
}
