// Package broker implements the Execute-decision dispatch (spec §4.7):
// resolve the option contract, build the three-order bracket, submit it (or
// synthesize a dry-run fill), and persist the resulting Trade. Contract
// resolution and placement go through domain.BrokerGateway; the concrete
// REST implementation lives in internal/platform/brokergw.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zerodte/execd/internal/domain"
)

// Failure taxonomy constants (spec §4.7).
const (
	FailureContractNotFound = "contract_not_found"
	FailureBrokerRejected   = "broker_rejected"
)

// ErrBrokerUnreachable wraps a transport failure from the gateway; the
// caller treats this as a retriable task failure, not a TradeResult.
var ErrBrokerUnreachable = errors.New("broker: unreachable")

// Adapter turns an Execute decision into broker orders and a persisted
// Trade.
type Adapter struct {
	gateway domain.BrokerGateway
	trades  domain.TradeStore
	logger  *slog.Logger
}

// New creates an Adapter.
func New(gateway domain.BrokerGateway, trades domain.TradeStore, logger *slog.Logger) *Adapter {
	return &Adapter{gateway: gateway, trades: trades, logger: logger.With(slog.String("component", "broker"))}
}

// Dispatch places (or simulates) the bracket order for exec and persists the
// resulting Trade. dryRun mirrors RuntimeConfig.execute_orders=false: no
// network submission happens, a sim-<uuid> order id is synthesized, and the
// Trade is marked simulated. The returned TradeResult.Success may be false
// (contract_not_found, broker_rejected) while still returning a nil error —
// those are recorded outcomes, not task failures. A non-nil error means the
// broker was unreachable or persistence failed; the caller should treat the
// former as retriable and the latter as an orphaned-trade condition (spec
// §4.7 step 5).
func (a *Adapter) Dispatch(ctx context.Context, threadID string, exec domain.ExecuteDecision, modelID string, confidence float64, dryRun bool) (domain.TradeResult, error) {
	expiry, err := ParseExpiry(exec.Expiry)
	if err != nil {
		return domain.TradeResult{Success: false, FailureKind: FailureContractNotFound, Message: err.Error()}, nil
	}

	right := exec.Direction
	occSymbol, err := OCCSymbol(exec.Ticker, expiry, right, exec.Strike)
	if err != nil {
		return domain.TradeResult{Success: false, FailureKind: FailureContractNotFound, Message: err.Error()}, nil
	}

	var contractID string
	if !dryRun {
		contract, err := a.gateway.SearchContract(ctx, exec.Ticker, exec.Expiry, exec.Strike, right)
		if err != nil {
			if errors.Is(err, domain.ErrContractNotFound) {
				a.logger.WarnContext(ctx, "contract not found", slog.String("thread_id", threadID), slog.String("occ_symbol", occSymbol))
				return domain.TradeResult{Success: false, FailureKind: FailureContractNotFound, Message: err.Error()}, nil
			}
			return domain.TradeResult{}, fmt.Errorf("%w: search contract: %w", ErrBrokerUnreachable, err)
		}
		contractID = contract.ContractID
		occSymbol = contract.OCCSymbol
	}

	clientOrderID := uuid.NewString()

	var result domain.TradeResult
	var parentOrderID string
	var simulated bool

	if dryRun {
		parentOrderID = "sim-" + uuid.NewString()
		simulated = true
		result = domain.TradeResult{Success: true, OrderID: parentOrderID, Simulated: true}
	} else {
		resp, err := a.gateway.PlaceBracket(ctx, domain.BracketOrderRequest{
			ContractID:    contractID,
			OCCSymbol:     occSymbol,
			Side:          exec.Side,
			Quantity:      exec.Quantity,
			EntryLimit:    exec.EntryPrice,
			TakeProfit:    exec.TakeProfit,
			StopLoss:      exec.StopLoss,
			ClientOrderID: clientOrderID,
			Simulated:     false,
		})
		if err != nil {
			if errors.Is(err, domain.ErrBrokerRejection) {
				a.logger.WarnContext(ctx, "broker rejected bracket order", slog.String("thread_id", threadID), slog.String("error", err.Error()))
				return domain.TradeResult{Success: false, FailureKind: FailureBrokerRejected, Message: err.Error()}, nil
			}
			return domain.TradeResult{}, fmt.Errorf("%w: place bracket: %w", ErrBrokerUnreachable, err)
		}
		parentOrderID = resp.ParentOrderID
		result = domain.TradeResult{Success: true, OrderID: parentOrderID, Simulated: false}
	}

	trade := domain.Trade{
		ID:            uuid.NewString(),
		ThreadID:      threadID,
		ParentOrderID: parentOrderID,
		OCCSymbol:     occSymbol,
		ContractID:    contractID,
		Side:          exec.Side,
		Quantity:      exec.Quantity,
		EntryPrice:    exec.EntryPrice,
		TakeProfit:    exec.TakeProfit,
		StopLoss:      exec.StopLoss,
		ModelID:       modelID,
		Confidence:    confidence,
		Status:        domain.TradeStatusOpen,
		Simulated:     simulated,
		EntryTime:     time.Now(),
	}

	if err := a.trades.SaveTrade(ctx, trade); err != nil {
		// The broker order (real or simulated) already exists; the Trade
		// record failed to land. The caller persists this thread id to the
		// failed record so an operator can reconcile it against the broker.
		return result, fmt.Errorf("broker: orphaned trade %s (order %s): %w", threadID, parentOrderID, err)
	}

	return result, nil
}
