package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
	"github.com/zerodte/execd/internal/llm"
)

func llmResponseWithTool(name, argsJSON string) llm.Response {
	return llm.Response{
		Model:     "gpt-test",
		RequestID: "req-1",
		ToolCalls: []llm.ToolCall{{ID: "c1", FunctionName: name, ArgumentsJSON: argsJSON}},
	}
}

var _ domain.Queue = (*fakeQueue)(nil)

type fakeQueue struct {
	mu sync.Mutex

	tasks     []domain.Task
	popIdx    int
	completed []string
	failed    []struct {
		task domain.Task
		kind domain.ErrorKind
	}
	deadLettered []domain.Task
	scheduled    []struct {
		task  domain.Task
		dueAt time.Time
	}
	reclaimCalls int
}

func (q *fakeQueue) PopTask(ctx context.Context) (domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.popIdx >= len(q.tasks) {
		return domain.Task{}, domain.ErrEmptyQueue
	}
	task := q.tasks[q.popIdx]
	q.popIdx++
	return task, nil
}

func (q *fakeQueue) Complete(ctx context.Context, threadID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.completed {
		if id == threadID {
			return nil
		}
	}
	q.completed = append(q.completed, threadID)
	return nil
}

func (q *fakeQueue) IsCompleted(ctx context.Context, threadID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.completed {
		if id == threadID {
			return true, nil
		}
	}
	return false, nil
}

func (q *fakeQueue) Fail(ctx context.Context, task domain.Task, kind domain.ErrorKind, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, struct {
		task domain.Task
		kind domain.ErrorKind
	}{task, kind})
	return nil
}

func (q *fakeQueue) DeadLetter(ctx context.Context, task domain.Task, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLettered = append(q.deadLettered, task)
	return nil
}

func (q *fakeQueue) Schedule(ctx context.Context, task domain.Task, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scheduled = append(q.scheduled, struct {
		task  domain.Task
		dueAt time.Time
	}{task, dueAt})
	return nil
}

func (q *fakeQueue) PollScheduled(ctx context.Context, now time.Time) ([]domain.Task, error) {
	return nil, nil
}

func (q *fakeQueue) Reclaim(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimCalls++
	return 0, nil
}

func (q *fakeQueue) Depth(ctx context.Context) (domain.QueueDepth, error) { return domain.QueueDepth{}, nil }

func TestConsumer_ProcessCompleteCallsQueueComplete(t *testing.T) {
	signals := newFakeSignalStore()
	signals.signals["t1"] = sampleSignal("t1", "SPY", 0.9)
	trades := &fakeTradeStore{}
	market := &fakeMarket{vix: domain.VIXSnapshot{Level: 12}}
	gw := &fakeBrokerGateway{}
	rcStore := &fakeRuntimeConfigStore{values: map[string]string{"emergency_stop": "true"}}
	llmClient := &fakeLLMClient{err: errors.New("must not be called")}
	p := newProcessor(t, signals, trades, market, gw, rcStore, llmClient)

	q := &fakeQueue{tasks: []domain.Task{{ThreadID: "t1"}}}
	c := NewConsumer(q, p, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Equal(t, 1, q.reclaimCalls)
	assert.Contains(t, q.completed, "t1")
}

func TestConsumer_ScheduleOutcomeCallsQueueSchedule(t *testing.T) {
	signals := newFakeSignalStore()
	signals.signals["t1"] = sampleSignal("t1", "SPY", 0.9)
	trades := &fakeTradeStore{}
	market := &fakeMarket{vix: domain.VIXSnapshot{Level: 12}}
	gw := &fakeBrokerGateway{}
	rcStore := &fakeRuntimeConfigStore{values: map[string]string{"dry_run": "true"}}
	args := `{"delay_minutes":15,"reason":"wait for open","question":"did SPY hold 600?"}`
	llmClient := &fakeLLMClient{resp: llmResponseWithTool("schedule_reanalysis", args)}
	p := newProcessor(t, signals, trades, market, gw, rcStore, llmClient)

	q := &fakeQueue{tasks: []domain.Task{{ThreadID: "t1"}}}
	c := NewConsumer(q, p, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	require.Len(t, q.scheduled, 1)
	assert.Equal(t, "t1", q.scheduled[0].task.ThreadID)
	assert.Empty(t, q.completed)
}

func TestConsumer_FailOutcomeCallsQueueFail(t *testing.T) {
	signals := newFakeSignalStore()
	signals.signals["t1"] = sampleSignal("t1", "SPY", 0.9)
	trades := &fakeTradeStore{}
	market := &fakeMarket{vix: domain.VIXSnapshot{Level: 12}}
	gw := &fakeBrokerGateway{}
	rcStore := &fakeRuntimeConfigStore{values: map[string]string{"dry_run": "true"}}
	llmClient := &fakeLLMClient{err: errors.New("connection reset")}
	p := newProcessor(t, signals, trades, market, gw, rcStore, llmClient)

	q := &fakeQueue{tasks: []domain.Task{{ThreadID: "t1"}}}
	c := NewConsumer(q, p, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	require.Len(t, q.failed, 1)
	assert.Equal(t, domain.ErrLLMTransport, q.failed[0].kind)
}

func TestConsumer_RedeliveredCompletedTaskIsDroppedWithoutReprocessing(t *testing.T) {
	signals := newFakeSignalStore()
	signals.signals["t1"] = sampleSignal("t1", "SPY", 0.9)
	trades := &fakeTradeStore{}
	market := &fakeMarket{vix: domain.VIXSnapshot{Level: 12}}
	gw := &fakeBrokerGateway{}
	rcStore := &fakeRuntimeConfigStore{values: map[string]string{"dry_run": "true"}}
	llmClient := &fakeLLMClient{err: errors.New("must not be called")}
	p := newProcessor(t, signals, trades, market, gw, rcStore, llmClient)

	q := &fakeQueue{tasks: []domain.Task{{ThreadID: "t1"}}, completed: []string{"t1"}}
	c := NewConsumer(q, p, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Empty(t, trades.saved)
	assert.Len(t, q.completed, 1)
}

func TestConsumer_DeadLetterOutcome(t *testing.T) {
	signals := newFakeSignalStore() // t1 not registered -> GetSignal fails
	trades := &fakeTradeStore{}
	market := &fakeMarket{vix: domain.VIXSnapshot{Level: 12}}
	gw := &fakeBrokerGateway{}
	rcStore := &fakeRuntimeConfigStore{}
	llmClient := &fakeLLMClient{}
	p := newProcessor(t, signals, trades, market, gw, rcStore, llmClient)

	q := &fakeQueue{tasks: []domain.Task{{ThreadID: "missing"}}}
	c := NewConsumer(q, p, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	require.Len(t, q.deadLettered, 1)
	assert.Equal(t, "missing", q.deadLettered[0].ThreadID)
}
