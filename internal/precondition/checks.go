package precondition

import (
	"fmt"
	"strings"
)

// EmergencyStop halts all processing immediately when the operator has set
// the kill switch. Not LiveOnly — applies even in dry run so the switch can
// be rehearsed safely.
type EmergencyStop struct{}

func (EmergencyStop) Name() string   { return "emergency_stop" }
func (EmergencyStop) LiveOnly() bool { return false }
func (EmergencyStop) Evaluate(in Input) (bool, string) {
	if in.RuntimeCfg.EmergencyStop {
		return false, "emergency stop is engaged"
	}
	return true, ""
}

// TickerPresent requires the upstream parser to have extracted a ticker
// symbol; without one there is nothing to look up for prefetch.
type TickerPresent struct{}

func (TickerPresent) Name() string   { return "ticker_present" }
func (TickerPresent) LiveOnly() bool { return false }
func (TickerPresent) Evaluate(in Input) (bool, string) {
	if strings.TrimSpace(in.Signal.Ticker()) == "" {
		return false, "no ticker could be parsed from the signal"
	}
	return true, ""
}

// Whitelist restricts trading to an explicit ticker allowlist, when the
// operator has configured one. An empty whitelist means "no restriction".
type Whitelist struct{}

func (Whitelist) Name() string   { return "whitelist" }
func (Whitelist) LiveOnly() bool { return false }
func (Whitelist) Evaluate(in Input) (bool, string) {
	if len(in.RuntimeCfg.TickerWhitelist) == 0 {
		return true, ""
	}
	ticker := strings.ToUpper(in.Signal.Ticker())
	for _, t := range in.RuntimeCfg.TickerWhitelist {
		if t == ticker {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s is not in the ticker whitelist", ticker)
}

// Blacklist excludes specific tickers even if they would otherwise pass the
// whitelist — used to pull a single symbol out of rotation without touching
// the broader allowlist.
type Blacklist struct{}

func (Blacklist) Name() string   { return "blacklist" }
func (Blacklist) LiveOnly() bool { return false }
func (Blacklist) Evaluate(in Input) (bool, string) {
	ticker := strings.ToUpper(in.Signal.Ticker())
	for _, t := range in.RuntimeCfg.TickerBlacklist {
		if t == ticker {
			return false, fmt.Sprintf("%s is blacklisted", ticker)
		}
	}
	return true, ""
}

// MinConfidence rejects signals whose parsed confidence, if present, falls
// below the configured floor. A signal with no parsed confidence passes —
// the LLM is left to judge it on the merits.
type MinConfidence struct{}

func (MinConfidence) Name() string   { return "min_confidence" }
func (MinConfidence) LiveOnly() bool { return false }
func (MinConfidence) Evaluate(in Input) (bool, string) {
	conf := in.Signal.Confidence()
	if conf < 0 {
		return true, ""
	}
	if conf < in.RuntimeCfg.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f is below the floor of %.2f", conf, in.RuntimeCfg.MinConfidence)
	}
	return true, ""
}

// VIXCeiling rejects a signal when the market is running hotter than the
// operator's configured ceiling. LiveOnly: a zero VIXLevel (the pre-check
// fetch failed) never trips this gate on its own.
type VIXCeiling struct{}

func (VIXCeiling) Name() string   { return "vix_ceiling" }
func (VIXCeiling) LiveOnly() bool { return true }
func (VIXCeiling) Evaluate(in Input) (bool, string) {
	if in.VIXLevel <= 0 {
		return true, ""
	}
	if in.VIXLevel >= in.RuntimeCfg.VIXCeiling {
		return false, fmt.Sprintf("VIX at %.2f is at or above the ceiling of %.2f", in.VIXLevel, in.RuntimeCfg.VIXCeiling)
	}
	return true, ""
}

// MaxPositions rejects a new signal once the account already holds the
// configured maximum number of open positions. LiveOnly: in dry run,
// simulated trades are allowed to stack without limit so operators can
// rehearse the full decision surface.
type MaxPositions struct{}

func (MaxPositions) Name() string   { return "max_positions" }
func (MaxPositions) LiveOnly() bool { return true }
func (MaxPositions) Evaluate(in Input) (bool, string) {
	open := 0
	for _, t := range in.OpenTrades {
		if t.Status == "open" {
			open++
		}
	}
	if open >= in.RuntimeCfg.MaxOpenPositions {
		return false, fmt.Sprintf("already at the max of %d open positions", in.RuntimeCfg.MaxOpenPositions)
	}
	return true, ""
}

// DuplicatePosition rejects a signal for a ticker that already has an open
// trade, so the same thesis isn't executed twice concurrently. LiveOnly for
// the same reason as MaxPositions.
type DuplicatePosition struct{}

func (DuplicatePosition) Name() string   { return "duplicate_position" }
func (DuplicatePosition) LiveOnly() bool { return true }
func (DuplicatePosition) Evaluate(in Input) (bool, string) {
	ticker := strings.ToUpper(in.Signal.Ticker())
	for _, t := range in.OpenTrades {
		if t.Status == "open" && strings.ToUpper(occTicker(t.OCCSymbol)) == ticker {
			return false, fmt.Sprintf("%s already has an open position", ticker)
		}
	}
	return true, ""
}

// occTicker extracts the ticker from an OCC option symbol, trimming the
// space padding OCCSymbol always pads the ticker to 6 chars with
// (e.g. "AAPL  260116C00150000" -> "AAPL").
func occTicker(occ string) string {
	i := 0
	for i < len(occ) && !(occ[i] >= '0' && occ[i] <= '9') {
		i++
	}
	return strings.TrimSpace(occ[:i])
}
