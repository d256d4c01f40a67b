package domain

import "time"

// TradeStatus tracks a Trade's lifecycle from placement through close.
type TradeStatus string

const (
	TradeStatusOpen          TradeStatus = "open"
	TradeStatusClosedTP      TradeStatus = "closed_tp"
	TradeStatusClosedSL      TradeStatus = "closed_sl"
	TradeStatusClosedManual  TradeStatus = "closed_manual"
	TradeStatusClosedExpired TradeStatus = "closed_expired"
)

// Trade is materialized only when an Execute decision succeeds.
type Trade struct {
	ID            string // core-assigned UUID
	ThreadID      string
	ParentOrderID string // broker-issued parent order id
	OCCSymbol     string
	ContractID    string
	Side          Direction // BUY or SELL
	Quantity      int
	EntryPrice    float64
	TakeProfit    float64
	StopLoss      float64
	ModelID       string
	Confidence    float64
	Status        TradeStatus
	Simulated     bool
	EntryTime     time.Time
	ExitTime      *time.Time
	ExitPrice     *float64
	PnL           *float64
	ExitReason    string
}

// TradeResult is the outcome of attempting to place a bracket order. Success
// may be false even though Decision stayed Execute (contract_not_found,
// broker_rejected) — the failure is recorded, not silently dropped.
type TradeResult struct {
	Success     bool
	OrderID     string
	Simulated   bool
	FailureKind string // "" | "contract_not_found" | "broker_rejected"
	Message     string
}
