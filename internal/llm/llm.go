// Package llm implements the single-shot decision runner (spec §4.6): one
// chat-completion request with tool_choice=required against the three
// terminal tools, converted into a domain.Decision. The tool surface is
// small and the prefetch bundle is already in hand, so there is no
// iterative tool-calling loop here by design.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zerodte/execd/internal/domain"
)

// Tool names, also used as the function_name the proxy echoes back.
const (
	ToolSkipSignal         = "skip_signal"
	ToolPlaceBracketOrder  = "place_bracket_order"
	ToolScheduleReanalysis = "schedule_reanalysis"
)

// Message is one entry in the chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSchema describes one callable tool in the chat-completions tool
// format: {name, description, parameters: <json schema>}.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is what Client.Complete sends to the proxy.
type Request struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools"`
	ToolChoice  string       `json:"tool_choice"`
}

// ToolCall is one entry in the response's tool_calls array.
type ToolCall struct {
	ID            string `json:"id"`
	FunctionName  string `json:"function_name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Usage mirrors the proxy's token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the proxy's reply shape (spec §6 LLM proxy contract).
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls"`
	Model     string     `json:"model"`
	Usage     Usage      `json:"usage"`
	RequestID string     `json:"request_id"`
}

// Client is the transport-level collaborator; internal/platform/llmproxy
// implements it against the real HTTP proxy. Timeouts and connection
// failures are returned as errors here and surfaced by the caller as a
// retriable llm_timeout/llm_transport task failure (spec §4.6/§7).
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Tools returns the three tool schemas offered to the model on every call.
func Tools() []ToolSchema {
	return []ToolSchema{
		{
			Name:        ToolSkipSignal,
			Description: "Decline to act on this signal.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"reason": {"type": "string"},
					"category": {"type": "string", "enum": ["no_signal","market_closed","bad_rr","low_confidence","timing","position_exists","other"]}
				},
				"required": ["reason", "category"]
			}`),
		},
		{
			Name:        ToolPlaceBracketOrder,
			Description: "Place a bracket order: parent limit entry, take-profit limit, stop-loss stop.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"ticker": {"type": "string"},
					"expiry": {"type": "string", "description": "YYYY-MM-DD"},
					"strike": {"type": "number"},
					"direction": {"type": "string", "enum": ["CALL","PUT"]},
					"side": {"type": "string", "enum": ["BUY","SELL"]},
					"quantity": {"type": "integer"},
					"entry_price": {"type": "number"},
					"take_profit": {"type": "number"},
					"stop_loss": {"type": "number"}
				},
				"required": ["ticker","expiry","strike","direction","side","quantity","entry_price","take_profit","stop_loss"]
			}`),
		},
		{
			Name:        ToolScheduleReanalysis,
			Description: "Ask to be re-evaluated after a delay, optionally recording key levels to check.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"delay_minutes": {"type": "integer", "minimum": 5, "maximum": 240},
					"reason": {"type": "string"},
					"question": {"type": "string"},
					"key_levels": {"type": "object", "additionalProperties": {"type": "number"}}
				},
				"required": ["delay_minutes", "reason", "question"]
			}`),
		},
	}
}

// skipSignalArgs, bracketOrderArgs, scheduleReanalysisArgs mirror the three
// tool parameter schemas for unmarshalling arguments_json.
type skipSignalArgs struct {
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

type bracketOrderArgs struct {
	Ticker     string  `json:"ticker"`
	Expiry     string  `json:"expiry"`
	Strike     float64 `json:"strike"`
	Direction  string  `json:"direction"`
	Side       string  `json:"side"`
	Quantity   int     `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

type scheduleReanalysisArgs struct {
	DelayMinutes int                `json:"delay_minutes"`
	Reason       string             `json:"reason"`
	Question     string             `json:"question"`
	KeyLevels    map[string]float64 `json:"key_levels"`
}

// Runner makes the single LLM call and converts the result to a Decision.
type Runner struct {
	client  Client
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// New creates a Runner. limiter may be nil, in which case calls go straight
// through with no throttling (fine for a single task worker).
func New(client Client, limiter domain.RateLimiter, logger *slog.Logger) *Runner {
	return &Runner{client: client, limiter: limiter, logger: logger.With(slog.String("component", "llm"))}
}

// Result carries the Decision plus the bookkeeping the caller persists
// alongside it (spec §4.6: model id and optional trace id).
type Result struct {
	Decision  domain.Decision
	Model     string
	TraceID   string
}

// formatSkip builds the Skip(ai_format_error) decision used for every
// malformed-response branch (no call, unknown tool, bad arguments).
func formatSkip(reason string) domain.Decision {
	return domain.NewSkip(reason, domain.SkipOther)
}

// Run sends one chat-completion request with the given model, system and
// user messages, and tool_choice=required, then dispatches the first tool
// call (if any) into a Decision. It never returns an error for a malformed
// model response — that degrades to a Skip decision per spec §4.6 — only
// for transport/timeout failures from the Client, which the caller should
// treat as retriable (llm_timeout / llm_transport).
func (r *Runner) Run(ctx context.Context, model, systemPrompt, userPrompt string) (Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "llm"); err != nil {
			return Result{}, fmt.Errorf("llm: rate limit: %w", err)
		}
	}

	req := Request{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Tools:      Tools(),
		ToolChoice: "required",
	}

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("llm: complete: %w", err)
	}

	result := Result{Model: resp.Model, TraceID: resp.RequestID}

	if len(resp.ToolCalls) == 0 {
		r.logger.WarnContext(ctx, "llm returned no tool call", slog.String("request_id", resp.RequestID))
		result.Decision = formatSkip("ai_format_error")
		return result, nil
	}

	if len(resp.ToolCalls) > 1 {
		r.logger.InfoContext(ctx, "llm returned extra tool calls, ignoring all but the first",
			slog.Int("count", len(resp.ToolCalls)))
	}

	call := resp.ToolCalls[0]
	decision, err := dispatch(call)
	if err != nil {
		r.logger.WarnContext(ctx, "llm tool call rejected", slog.String("tool", call.FunctionName), slog.String("error", err.Error()))
		result.Decision = formatSkip("ai_format_error")
		return result, nil
	}

	result.Decision = decision
	return result, nil
}

func dispatch(call ToolCall) (domain.Decision, error) {
	switch call.FunctionName {
	case ToolSkipSignal:
		var args skipSignalArgs
		if err := json.Unmarshal([]byte(call.ArgumentsJSON), &args); err != nil {
			return domain.Decision{}, fmt.Errorf("unmarshal skip_signal args: %w", err)
		}
		if args.Reason == "" || args.Category == "" {
			return domain.Decision{}, fmt.Errorf("skip_signal: missing required field")
		}
		return domain.NewSkip(args.Reason, domain.SkipCategory(args.Category)), nil

	case ToolPlaceBracketOrder:
		var args bracketOrderArgs
		if err := json.Unmarshal([]byte(call.ArgumentsJSON), &args); err != nil {
			return domain.Decision{}, fmt.Errorf("unmarshal place_bracket_order args: %w", err)
		}
		if args.Ticker == "" || args.Expiry == "" || args.Quantity <= 0 {
			return domain.Decision{}, fmt.Errorf("place_bracket_order: missing required field")
		}
		return domain.NewExecute(domain.ExecuteDecision{
			Ticker:     args.Ticker,
			Expiry:     args.Expiry,
			Strike:     args.Strike,
			Direction:  domain.Direction(args.Direction),
			Side:       domain.Direction(args.Side),
			Quantity:   args.Quantity,
			EntryPrice: args.EntryPrice,
			TakeProfit: args.TakeProfit,
			StopLoss:   args.StopLoss,
		}), nil

	case ToolScheduleReanalysis:
		var args scheduleReanalysisArgs
		if err := json.Unmarshal([]byte(call.ArgumentsJSON), &args); err != nil {
			return domain.Decision{}, fmt.Errorf("unmarshal schedule_reanalysis args: %w", err)
		}
		if args.DelayMinutes < 5 || args.DelayMinutes > 240 {
			return domain.Decision{}, fmt.Errorf("schedule_reanalysis: delay_minutes %d out of [5,240]", args.DelayMinutes)
		}
		return domain.NewDelay(domain.DelayDecision{
			DelayMinutes: args.DelayMinutes,
			Reason:       args.Reason,
			Question:     args.Question,
			KeyLevels:    args.KeyLevels,
		}), nil

	default:
		return domain.Decision{}, fmt.Errorf("unknown tool %q", call.FunctionName)
	}
}
