package domain

import "time"

// Direction is the parsed trade direction of a signal.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// SignalMessage is one message in a signal's ordered conversation payload.
type SignalMessage struct {
	Content   string
	Timestamp time.Time
	// UpstreamAI carries optional metadata the scraper attached from an
	// upstream AI classification pass (confidence, tags, ...). Opaque to the
	// core; passed through to the prompt verbatim.
	UpstreamAI map[string]any
}

// ParsedFields holds the best-effort fields the upstream collector extracted
// from a signal's raw content. Any field may be absent; absence is valid and
// must be surfaced to the LLM as "NOT SPECIFIED" rather than a zero value.
type ParsedFields struct {
	Ticker      *string
	Direction   *Direction
	Strike      *float64
	Expiry      *time.Time
	EntryPrice  *float64
	TargetPrice *float64
	StopLoss    *float64
	Confidence  *float64
}

// Signal is one queued work unit: an upstream thread plus whatever fields
// could be parsed out of it. The core treats a Signal as read-only aside from
// the decision envelope appended after processing.
type Signal struct {
	ThreadID   string
	ThreadName string
	Messages   []SignalMessage
	Parsed     ParsedFields
	CreatedAt  time.Time
}

// Ticker returns the parsed ticker, or empty string if not specified.
func (s Signal) Ticker() string {
	if s.Parsed.Ticker == nil {
		return ""
	}
	return *s.Parsed.Ticker
}

// Confidence returns the parsed confidence, or -1 if not specified so callers
// can distinguish "unspecified" from "zero confidence".
func (s Signal) Confidence() float64 {
	if s.Parsed.Confidence == nil {
		return -1
	}
	return *s.Parsed.Confidence
}

// RawContent concatenates all message bodies, newest last, for checks and
// prompts that only need unstructured text (e.g. TickerPresent).
func (s Signal) RawContent() string {
	var out string
	for i, m := range s.Messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// ScheduledContext is carried by a Task that re-enters the pipeline after a
// Delay decision. RetryCount is monotonic across repeated delays.
type ScheduledContext struct {
	RetryCount       int
	PreviousToolCall string
	DelayReason      string
	Question         string
	KeyLevels        map[string]float64
}

// Task is a queue entry pointing to a Signal.
type Task struct {
	ThreadID         string
	ThreadName       string
	ScheduledContext *ScheduledContext
}
