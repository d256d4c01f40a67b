package domain

import "errors"

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrContextDone       = errors.New("context cancelled")
	ErrLockHeld          = errors.New("lock already held")
	ErrEmptyQueue        = errors.New("queue empty")
	ErrDuplicateTask         = errors.New("task already completed")
	ErrTaskDeadlineExceeded  = errors.New("task deadline exceeded")
	ErrTemplateRender        = errors.New("template render failed")
	ErrLLMNoToolCall         = errors.New("llm response did not resolve to a tool call")
	ErrBrokerRejection       = errors.New("broker rejected order")
	ErrBrokerConnUnreachable = errors.New("broker unreachable")
	ErrContractNotFound      = errors.New("option contract not found")
)

// ErrorKind classifies a task failure for retry policy and dead-lettering.
// Every non-nil error surfaced by the pipeline is tagged with exactly one
// kind via Fail, so the consumer never has to pattern-match error strings.
type ErrorKind string

const (
	ErrConfigInvalid    ErrorKind = "config_invalid"
	ErrQueueUnreachable ErrorKind = "queue_unreachable"
	ErrParseError       ErrorKind = "parse_error"
	ErrTemplateError    ErrorKind = "template_error"
	ErrPrefetchPartial  ErrorKind = "prefetch_partial"
	ErrLLMTimeout       ErrorKind = "llm_timeout"
	ErrLLMTransport     ErrorKind = "llm_transport"
	ErrLLMFormat        ErrorKind = "llm_format"
	ErrBrokerRejected   ErrorKind = "broker_rejected"
	ErrBrokerUnreachable ErrorKind = "broker_unreachable"
	ErrStoreWriteError  ErrorKind = "store_write_error"
	ErrDeadlineExceeded ErrorKind = "deadline_exceeded"
)

// Retriable reports whether a task failing with this kind should be retried
// (eventually dead-lettered after the queue's max-attempts policy) rather
// than dead-lettered immediately.
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrBrokerRejected, ErrParseError, ErrTemplateError, ErrConfigInvalid:
		return false
	default:
		return true
	}
}

// TaskFailure wraps an underlying error with the kind the pipeline
// classified it as, so the queue layer can decide retry vs. dead-letter
// without re-deriving the classification from the error text.
type TaskFailure struct {
	Kind ErrorKind
	Err  error
}

func (f *TaskFailure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *TaskFailure) Unwrap() error {
	return f.Err
}

// Fail constructs a TaskFailure, the standard way pipeline stages report a
// classified error upward.
func Fail(kind ErrorKind, err error) *TaskFailure {
	return &TaskFailure{Kind: kind, Err: err}
}
