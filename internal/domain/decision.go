package domain

// SkipCategory enumerates the reasons a Skip decision may carry.
type SkipCategory string

const (
	SkipNoSignal       SkipCategory = "no_signal"
	SkipMarketClosed   SkipCategory = "market_closed"
	SkipBadRR          SkipCategory = "bad_rr"
	SkipLowConfidence  SkipCategory = "low_confidence"
	SkipTiming         SkipCategory = "timing"
	SkipPositionExists SkipCategory = "position_exists"
	SkipOther          SkipCategory = "other"
)

// DecisionKind tags which of the three terminal variants a Decision holds.
type DecisionKind string

const (
	DecisionSkip    DecisionKind = "skip"
	DecisionExecute DecisionKind = "execute"
	DecisionDelay   DecisionKind = "delay"
)

// SkipDecision is the "do nothing" terminal action.
type SkipDecision struct {
	Reason   string
	Category SkipCategory
}

// ExecuteDecision is the "place a bracket order" terminal action. The
// invariant stop_loss < entry_price < take_profit (mirrored for PUT/SELL) is
// checked by the caller before dispatch, not embedded here.
type ExecuteDecision struct {
	Ticker     string
	Expiry     string // YYYY-MM-DD
	Strike     float64
	Direction  Direction // CALL or PUT
	Side       Direction // BUY or SELL
	Quantity   int
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
}

// IsCall reports whether this is a long-call-shaped bracket (CALL/BUY),
// as opposed to the mirrored PUT/SELL shape.
func (e ExecuteDecision) IsCall() bool {
	return e.Direction == DirectionCall || e.Side == DirectionBuy
}

// DelayDecision is the "ask again later" terminal action.
type DelayDecision struct {
	DelayMinutes int
	Reason       string
	Question     string
	KeyLevels    map[string]float64
}

// Decision is the LLM's terminal choice: exactly one of Skip, Execute, Delay.
// Exactly one of the three pointer fields is non-nil; Kind names which one so
// callers can switch without nil-checking every field.
type Decision struct {
	Kind    DecisionKind
	Skip    *SkipDecision
	Execute *ExecuteDecision
	Delay   *DelayDecision
}

// NewSkip builds a Decision wrapping a SkipDecision.
func NewSkip(reason string, category SkipCategory) Decision {
	return Decision{Kind: DecisionSkip, Skip: &SkipDecision{Reason: reason, Category: category}}
}

// NewExecute builds a Decision wrapping an ExecuteDecision.
func NewExecute(e ExecuteDecision) Decision {
	return Decision{Kind: DecisionExecute, Execute: &e}
}

// NewDelay builds a Decision wrapping a DelayDecision.
func NewDelay(d DelayDecision) Decision {
	return Decision{Kind: DecisionDelay, Delay: &d}
}
