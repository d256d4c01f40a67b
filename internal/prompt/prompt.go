// Package prompt renders the system and user messages handed to the LLM
// (spec §4.5). The user template is an expression-level text/template:
// conditionals, loops, attribute access, and numeric formatting over the
// Signal and PrefetchBundle. Both templates are loaded from a PromptStore
// with embedded defaults as fallback; any render error is fatal for the
// current task (Skip, category=other, reason=template_error).
package prompt

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/zerodte/execd/internal/domain"
)

// Store names, matching the prompt_templates table's name column.
const (
	NameSystemPrompt = "system_prompt"
	NameUserTemplate = "user_template"
)

//go:embed defaults/system_prompt.txt
var defaultSystemPrompt string

//go:embed defaults/user_template.txt
var defaultUserTemplate string

// View is the data handed to the user template. It exposes the signal, the
// prefetch bundle, the runtime config fields the LLM should be told about,
// and the scheduled context from a prior Delay, if any — all primitive
// fields, no callables, per spec §4.4/§9.
type View struct {
	Signal     domain.Signal
	Parsed     ParsedView
	Bundle     domain.PrefetchBundle
	RuntimeCfg domain.RuntimeConfig
	Retry      RetryView
}

// ParsedView renders each optional parsed field as either its value or the
// literal string "NOT SPECIFIED", so the template never has to carry the
// null-check logic itself (spec §3 Signal invariant).
type ParsedView struct {
	Ticker      string
	Direction   string
	Strike      string
	Expiry      string
	EntryPrice  string
	TargetPrice string
	StopLoss    string
	Confidence  string
}

// RetryView surfaces a prior Delay decision's context, zero-valued when this
// is a first pass.
type RetryView struct {
	IsRetry          bool
	RetryCount       int
	PreviousToolCall string
	DelayReason      string
	Question         string
	KeyLevels        map[string]float64
}

const notSpecified = "NOT SPECIFIED"

func orNotSpecified(s *string) string {
	if s == nil {
		return notSpecified
	}
	return *s
}

func numOrNotSpecified(f *float64) string {
	if f == nil {
		return notSpecified
	}
	return fmt.Sprintf("%.4f", *f)
}

// NewView builds the template View for one signal and its prefetch bundle.
func NewView(sig domain.Signal, bundle domain.PrefetchBundle, cfg domain.RuntimeConfig, sc *domain.ScheduledContext) View {
	p := sig.Parsed

	direction := notSpecified
	if p.Direction != nil {
		direction = string(*p.Direction)
	}

	expiry := notSpecified
	if p.Expiry != nil {
		expiry = p.Expiry.Format("2006-01-02")
	}

	v := View{
		Signal: sig,
		Parsed: ParsedView{
			Ticker:      orNotSpecified(p.Ticker),
			Direction:   direction,
			Strike:      numOrNotSpecified(p.Strike),
			Expiry:      expiry,
			EntryPrice:  numOrNotSpecified(p.EntryPrice),
			TargetPrice: numOrNotSpecified(p.TargetPrice),
			StopLoss:    numOrNotSpecified(p.StopLoss),
			Confidence:  numOrNotSpecified(p.Confidence),
		},
		Bundle:     bundle,
		RuntimeCfg: cfg,
	}

	if sc != nil {
		v.Retry = RetryView{
			IsRetry:          true,
			RetryCount:       sc.RetryCount,
			PreviousToolCall: sc.PreviousToolCall,
			DelayReason:      sc.DelayReason,
			Question:         sc.Question,
			KeyLevels:        sc.KeyLevels,
		}
	}

	return v
}

// funcs are the helpers available to the user template for numeric
// formatting and strike-proximity filtering of the option chain.
var funcs = template.FuncMap{
	"fmt2": func(f float64) string { return fmt.Sprintf("%.2f", f) },
	"fmt4": func(f float64) string { return fmt.Sprintf("%.4f", f) },
	"pct":  func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
	"near": func(strike, target, width float64) bool {
		return strike >= target-width && strike <= target+width
	},
}

// Assembler loads and renders the system and user messages. Rendering is
// pure given the same template text and View: the same bundle renders to
// byte-identical output on every call.
type Assembler struct {
	store domain.PromptStore
}

// New creates an Assembler backed by store. A nil store falls back to the
// embedded defaults unconditionally, useful for tests and for a first boot
// before any dashboard edit has been saved.
func New(store domain.PromptStore) *Assembler {
	return &Assembler{store: store}
}

func (a *Assembler) load(ctx context.Context, name, fallback string) string {
	if a.store == nil {
		return fallback
	}
	body, err := a.store.GetTemplate(ctx, name)
	if err != nil || strings.TrimSpace(body) == "" {
		return fallback
	}
	return body
}

// RenderSystem returns the system prompt text, either the operator's
// dashboard override or the embedded default. The system prompt carries no
// template directives; it is returned verbatim.
func (a *Assembler) RenderSystem(ctx context.Context) string {
	return a.load(ctx, NameSystemPrompt, defaultSystemPrompt)
}

// RenderUser renders the user message template against view. A render
// failure (bad template syntax from a dashboard edit, or a field the
// template references that View doesn't carry) wraps domain.ErrTemplateRender
// so the caller can turn it into a Skip decision.
func (a *Assembler) RenderUser(ctx context.Context, view View) (string, error) {
	body := a.load(ctx, NameUserTemplate, defaultUserTemplate)

	tmpl, err := template.New(NameUserTemplate).Funcs(funcs).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("prompt: parse user template: %w: %w", err, domain.ErrTemplateRender)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("prompt: render user template: %w: %w", err, domain.ErrTemplateRender)
	}

	return buf.String(), nil
}
