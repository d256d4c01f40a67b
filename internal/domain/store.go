package domain

import (
	"context"
	"time"
)

// ActKind tags the decision envelope's act field for dashboard consumers,
// mirroring the Decision variant that produced it.
type ActKind string

const (
	ActExecute  ActKind = "execute"
	ActSkip     ActKind = "skip"
	ActSchedule ActKind = "schedule"
)

// ScheduledReanalysisMarker is written alongside a Delay decision's envelope
// so a dashboard can see why and when a signal will re-enter the pipeline.
type ScheduledReanalysisMarker struct {
	DueAt        time.Time
	DelayMinutes int
	Question     string
}

// DecisionEnvelope is the shape persisted onto a signal once processing
// reaches a terminal outcome: {act, reasoning, decision, trade_result?,
// model_used, timestamp, trace_id?}, optionally carrying a
// scheduled_reanalysis marker for Delay decisions.
type DecisionEnvelope struct {
	Act                 ActKind
	Reasoning            string
	Decision             Decision
	TradeResult          *TradeResult
	ModelUsed            string
	Timestamp            time.Time
	TraceID              string
	ScheduledReanalysis *ScheduledReanalysisMarker
}

// SignalStore persists the raw signal payload a Task was built from, keyed
// by thread id, so the pipeline and the dashboard can replay what the model
// saw.
type SignalStore interface {
	SaveSignal(ctx context.Context, s Signal) error
	GetSignal(ctx context.Context, threadID string) (Signal, error)

	// SaveResult upserts the decision envelope onto the signal row
	// (ai_processed, ai_processed_at, ai_result, optional
	// scheduled_reanalysis, optional trace_id). Idempotent: replaying the
	// same envelope for the same thread id leaves the record unchanged.
	SaveResult(ctx context.Context, threadID string, envelope DecisionEnvelope) error
}

// TradeStore persists placed trades and their lifecycle.
type TradeStore interface {
	SaveTrade(ctx context.Context, t Trade) error
	UpdateTradeStatus(ctx context.Context, id string, status TradeStatus, exitPrice *float64, pnl *float64, exitReason string) error
	OpenTrades(ctx context.Context) ([]Trade, error)
	GetTrade(ctx context.Context, id string) (Trade, error)
}

// PromptStore holds the dashboard-editable prompt templates used by prompt
// assembly, falling back to embedded defaults when nothing has been saved.
type PromptStore interface {
	GetTemplate(ctx context.Context, name string) (string, error)
	SaveTemplate(ctx context.Context, name, body string) error
}

// RuntimeConfigStore backs the process-wide, dashboard-editable runtime
// config keys. Values are stored as strings; RuntimeConfig does the typed,
// defaulted decoding on top of this.
type RuntimeConfigStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// AuditStore records a free-form event log: one row per task-processing
// milestone (precondition rejection, decision taken, broker placement,
// archival run) for after-the-fact review.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// ListOpts bounds an AuditStore.List query.
type ListOpts struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// AuditEntry is one row returned by AuditStore.List.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}
