// Package precondition implements the ordered, short-circuiting checks that
// run before a signal is ever handed to the LLM. Each check is a pure
// function of the signal, the runtime config, the open trades and the VIX
// level gathered before the full prefetch — no check makes a network call of
// its own.
package precondition

import (
	"fmt"

	"github.com/zerodte/execd/internal/domain"
)

// Input bundles everything a Check needs to decide pass/fail. OpenTrades
// comes from the trade store and VIXLevel from a light VIX read, both
// gathered by the caller before the full prefetch.
type Input struct {
	Signal      domain.Signal
	RuntimeCfg  domain.RuntimeConfig
	OpenTrades  []domain.Trade
	VIXLevel    float64 // current VIX level, from a light pre-check fetch; 0 if unavailable
	LiveOnly    bool // true once running against a live (non-dry-run) broker
}

// Check is one ordered gate. Reason is only meaningful when Pass is false.
type Check interface {
	Name() string
	// LiveOnly reports whether this check should be skipped in dry-run mode.
	LiveOnly() bool
	Evaluate(in Input) (pass bool, reason string)
}

// Chain runs checks in order and stops at the first failure.
type Chain struct {
	checks []Check
}

// NewChain builds a Chain from the given checks, run in the given order.
func NewChain(checks ...Check) *Chain {
	return &Chain{checks: checks}
}

// Result is the outcome of running a Chain.
type Result struct {
	Passed     bool
	FailedCheck string
	Reason     string
}

// Run evaluates each check in order, skipping LiveOnly checks when
// in.LiveOnly is false. It returns at the first failing check.
func (c *Chain) Run(in Input) Result {
	for _, chk := range c.checks {
		if chk.LiveOnly() && !in.LiveOnly {
			continue
		}
		pass, reason := chk.Evaluate(in)
		if !pass {
			return Result{Passed: false, FailedCheck: chk.Name(), Reason: reason}
		}
	}
	return Result{Passed: true}
}

// DefaultChain builds the standard eight-check chain in spec order:
// emergency stop, ticker present, whitelist, blacklist, min confidence,
// VIX ceiling, max positions, duplicate position.
func DefaultChain() *Chain {
	return NewChain(
		EmergencyStop{},
		TickerPresent{},
		Whitelist{},
		Blacklist{},
		MinConfidence{},
		VIXCeiling{},
		MaxPositions{},
		DuplicatePosition{},
	)
}

// skip builds the domain.Decision a failed chain result maps to, so callers
// don't have to re-derive a SkipCategory from the check name.
func skip(category domain.SkipCategory, format string, args ...any) domain.Decision {
	return domain.NewSkip(fmt.Sprintf(format, args...), category)
}

// ToDecision converts a failing Result into the terminal Skip decision the
// pipeline should record, or nil if the chain passed and processing should
// continue to prefetch/LLM.
func (r Result) ToDecision() *domain.Decision {
	if r.Passed {
		return nil
	}

	category := domain.SkipOther
	switch r.FailedCheck {
	case "min_confidence":
		category = domain.SkipLowConfidence
	case "max_positions", "duplicate_position":
		category = domain.SkipPositionExists
	}

	d := skip(category, "%s", r.Reason)
	return &d
}
