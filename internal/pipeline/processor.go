// Package pipeline wires the per-task stages (preconditions, prefetch,
// prompt, LLM, broker dispatch, persistence) into the single SignalProcessor
// function, and drives it off the queue via Consumer (spec §4.1-§4.8). This
// is the only layer permitted to catch and classify a stage's error — every
// collaborator below it returns errors that propagate untouched.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zerodte/execd/internal/broker"
	"github.com/zerodte/execd/internal/domain"
	"github.com/zerodte/execd/internal/llm"
	"github.com/zerodte/execd/internal/precondition"
	"github.com/zerodte/execd/internal/prefetch"
	"github.com/zerodte/execd/internal/prompt"
	"github.com/zerodte/execd/internal/runtimeconfig"
)

// Outcome is what SignalProcessor.Process resolved to, for Consumer to turn
// into the matching queue action.
type Outcome struct {
	// Complete is true when the task should be marked completed (the signal
	// record has a terminal act, even if TradeResult.success = false).
	Complete bool
	// ScheduleAt is non-zero when a Delay decision parked the task for
	// re-delivery; ScheduledContext carries the blob Consumer hands to
	// queue.Schedule alongside it.
	ScheduleAt       time.Time
	ScheduledContext *domain.ScheduledContext
	// Fail, when non-nil, is the classified failure Consumer should report
	// via queue.Fail.
	Fail *domain.TaskFailure
	// DeadLetter is true when Fail should be reported via queue.DeadLetter
	// instead of queue.Fail (parse_error).
	DeadLetter bool
}

// SignalProcessor runs the strictly sequential per-task pipeline: runtime
// config refresh -> light VIX pre-check + open trades -> preconditions ->
// prefetch -> prompt -> LLM -> bracket validation -> dispatch -> persist.
type SignalProcessor struct {
	runtimeCfg *runtimeconfig.Accessor
	signals    domain.SignalStore
	trades     domain.TradeStore
	market     domain.MarketDataProvider
	prefetch   *prefetch.Engine
	prompts    *prompt.Assembler
	llmRunner  *llm.Runner
	dispatcher *broker.Adapter
	chain      *precondition.Chain
	llmTimeout time.Duration
	logger     *slog.Logger
}

// New creates a SignalProcessor. llmTimeout <= 0 uses the spec's documented
// 60s default.
func New(
	runtimeCfg *runtimeconfig.Accessor,
	signals domain.SignalStore,
	trades domain.TradeStore,
	market domain.MarketDataProvider,
	prefetchEngine *prefetch.Engine,
	prompts *prompt.Assembler,
	llmRunner *llm.Runner,
	dispatcher *broker.Adapter,
	llmTimeout time.Duration,
	logger *slog.Logger,
) *SignalProcessor {
	if llmTimeout <= 0 {
		llmTimeout = 60 * time.Second
	}
	return &SignalProcessor{
		runtimeCfg: runtimeCfg,
		signals:    signals,
		trades:     trades,
		market:     market,
		prefetch:   prefetchEngine,
		prompts:    prompts,
		llmRunner:  llmRunner,
		dispatcher: dispatcher,
		chain:      precondition.DefaultChain(),
		llmTimeout: llmTimeout,
		logger:     logger.With(slog.String("component", "signal_processor")),
	}
}

// Process runs the full pipeline for one task and returns the Outcome
// Consumer should act on. It never panics on a collaborator error; every
// stage's error is classified into an Outcome here, per spec §7's
// propagation policy.
func (p *SignalProcessor) Process(ctx context.Context, task domain.Task) Outcome {
	log := p.logger.With(slog.String("thread_id", task.ThreadID))

	sig, err := p.signals.GetSignal(ctx, task.ThreadID)
	if err != nil {
		log.ErrorContext(ctx, "signal not found", slog.String("error", err.Error()))
		return Outcome{DeadLetter: true, Fail: domain.Fail(domain.ErrParseError, err)}
	}

	cfg, err := p.runtimeCfg.Refresh(ctx)
	if err != nil {
		log.ErrorContext(ctx, "runtime config refresh failed", slog.String("error", err.Error()))
		return Outcome{Fail: domain.Fail(domain.ErrStoreWriteError, err)}
	}

	var vixLevel float64
	if vix, err := p.market.VIX(ctx); err == nil {
		vixLevel = vix.Level
	} else {
		log.WarnContext(ctx, "vix pre-check unavailable", slog.String("error", err.Error()))
	}

	openTrades, err := p.trades.OpenTrades(ctx)
	if err != nil {
		log.ErrorContext(ctx, "open trades lookup failed", slog.String("error", err.Error()))
		return Outcome{Fail: domain.Fail(domain.ErrStoreWriteError, err)}
	}

	in := precondition.Input{
		Signal:     sig,
		RuntimeCfg: cfg,
		OpenTrades: openTrades,
		VIXLevel:   vixLevel,
		LiveOnly:   !cfg.DryRun,
	}

	if result := p.chain.Run(in); !result.Passed {
		decision := *result.ToDecision()
		log.InfoContext(ctx, "precondition rejected signal",
			slog.String("check", result.FailedCheck), slog.String("reason", result.Reason))
		return p.persistSkip(ctx, task.ThreadID, decision, "", "")
	}

	ticker := sig.Ticker()
	expiry := ""
	if sig.Parsed.Expiry != nil {
		expiry = sig.Parsed.Expiry.Format("2006-01-02")
	}
	bundle := p.prefetch.Fetch(ctx, sig, ticker, expiry)

	var scheduledCtx *domain.ScheduledContext
	if task.ScheduledContext != nil {
		scheduledCtx = task.ScheduledContext
	}
	view := prompt.NewView(sig, bundle, cfg, scheduledCtx)

	systemPrompt := p.prompts.RenderSystem(ctx)
	userPrompt, err := p.prompts.RenderUser(ctx, view)
	if err != nil {
		log.ErrorContext(ctx, "prompt render failed", slog.String("error", err.Error()))
		decision := domain.NewSkip("template_error", domain.SkipOther)
		return p.persistSkip(ctx, task.ThreadID, decision, "", "")
	}

	llmCtx, cancel := context.WithTimeout(ctx, p.llmTimeout)
	result, err := p.llmRunner.Run(llmCtx, cfg.LLMModel, systemPrompt, userPrompt)
	cancel()
	if err != nil {
		kind := domain.ErrLLMTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.ErrLLMTimeout
		}
		log.ErrorContext(ctx, "llm call failed", slog.String("error", err.Error()))
		return Outcome{Fail: domain.Fail(kind, err)}
	}

	return p.handleDecision(ctx, task.ThreadID, result, sig, cfg, task.ScheduledContext)
}

// handleDecision dispatches on the LLM's terminal decision kind, running the
// bracket-price invariant check before an Execute reaches the broker.
func (p *SignalProcessor) handleDecision(ctx context.Context, threadID string, result llm.Result, sig domain.Signal, cfg domain.RuntimeConfig, prior *domain.ScheduledContext) Outcome {
	log := p.logger.With(slog.String("thread_id", threadID))
	decision := result.Decision

	switch decision.Kind {
	case domain.DecisionExecute:
		exec := *decision.Execute
		if !validBracket(exec) {
			log.WarnContext(ctx, "llm execute decision failed bracket invariant",
				slog.Float64("entry_price", exec.EntryPrice),
				slog.Float64("take_profit", exec.TakeProfit),
				slog.Float64("stop_loss", exec.StopLoss))
			invalid := domain.NewSkip("invalid_bracket", domain.SkipOther)
			return p.persistSkip(ctx, threadID, invalid, result.Model, result.TraceID)
		}

		tradeResult, err := p.dispatcher.Dispatch(ctx, threadID, exec, result.Model, sig.Confidence(), cfg.DryRun)
		if err != nil {
			if errors.Is(err, broker.ErrBrokerUnreachable) {
				return Outcome{Fail: domain.Fail(domain.ErrBrokerUnreachable, err)}
			}
			// Broker placement succeeded but the Trade failed to persist:
			// the order already exists on the broker side.
			return Outcome{Fail: domain.Fail(domain.ErrStoreWriteError, err)}
		}

		envelope := domain.DecisionEnvelope{
			Act:         domain.ActExecute,
			Decision:    decision,
			TradeResult: &tradeResult,
			ModelUsed:   result.Model,
			Timestamp:   time.Now(),
			TraceID:     result.TraceID,
		}
		if !tradeResult.Success {
			log.InfoContext(ctx, "execute recorded as failed outcome", slog.String("failure_kind", tradeResult.FailureKind))
		}
		if err := p.signals.SaveResult(ctx, threadID, envelope); err != nil {
			log.ErrorContext(ctx, "save result failed", slog.String("error", err.Error()))
			return Outcome{Fail: domain.Fail(domain.ErrStoreWriteError, err)}
		}
		return Outcome{Complete: true}

	case domain.DecisionDelay:
		delay := *decision.Delay
		dueAt := time.Now().Add(time.Duration(delay.DelayMinutes) * time.Minute)
		envelope := domain.DecisionEnvelope{
			Act:       domain.ActSchedule,
			Decision:  decision,
			ModelUsed: result.Model,
			Timestamp: time.Now(),
			TraceID:   result.TraceID,
			ScheduledReanalysis: &domain.ScheduledReanalysisMarker{
				DueAt:        dueAt,
				DelayMinutes: delay.DelayMinutes,
				Question:     delay.Question,
			},
		}
		if err := p.signals.SaveResult(ctx, threadID, envelope); err != nil {
			log.ErrorContext(ctx, "save result failed", slog.String("error", err.Error()))
			return Outcome{Fail: domain.Fail(domain.ErrStoreWriteError, err)}
		}

		retryCount := 1
		if prior != nil {
			retryCount = prior.RetryCount + 1
		}
		sc := &domain.ScheduledContext{
			RetryCount:       retryCount,
			PreviousToolCall: llm.ToolScheduleReanalysis,
			DelayReason:      delay.Reason,
			Question:         delay.Question,
			KeyLevels:        delay.KeyLevels,
		}
		// Not marked Complete: the same thread id must be eligible to run
		// again once PollScheduled releases it back onto pending.
		return Outcome{ScheduleAt: dueAt, ScheduledContext: sc}

	default: // domain.DecisionSkip
		return p.persistSkip(ctx, threadID, decision, result.Model, result.TraceID)
	}
}

// persistSkip writes the terminal Skip envelope and returns the matching
// Outcome. Used both for precondition rejections (no model involved) and for
// an LLM Skip decision.
func (p *SignalProcessor) persistSkip(ctx context.Context, threadID string, decision domain.Decision, model, traceID string) Outcome {
	envelope := domain.DecisionEnvelope{
		Act:       domain.ActSkip,
		Decision:  decision,
		ModelUsed: model,
		Timestamp: time.Now(),
		TraceID:   traceID,
	}
	if decision.Skip != nil {
		envelope.Reasoning = decision.Skip.Reason
	}
	if err := p.signals.SaveResult(ctx, threadID, envelope); err != nil {
		p.logger.ErrorContext(ctx, "save result failed", slog.String("thread_id", threadID), slog.String("error", err.Error()))
		return Outcome{Fail: domain.Fail(domain.ErrStoreWriteError, err)}
	}
	return Outcome{Complete: true}
}

// validBracket enforces stop_loss < entry_price < take_profit for a
// CALL/BUY bracket, mirrored for PUT/SELL (spec §3/§8).
func validBracket(e domain.ExecuteDecision) bool {
	if e.IsCall() {
		return e.StopLoss < e.EntryPrice && e.EntryPrice < e.TakeProfit
	}
	return e.TakeProfit < e.EntryPrice && e.EntryPrice < e.StopLoss
}
