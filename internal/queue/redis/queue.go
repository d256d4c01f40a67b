// Package redis implements domain.Queue on top of Redis primitives:
// a pending/processing hand-off for reliable delivery, a completed set for
// idempotent dedup, a dead letter list for exhausted retries, and a
// due-time-ordered scheduled set for delayed reanalysis.
package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zerodte/execd/internal/domain"
)

const (
	keyPending       = "queue:pending"
	keyProcessing    = "queue:processing"
	keyClaims        = "queue:claims"
	keyAttempts      = "queue:attempts"
	keyCompleted     = "queue:completed"
	keyDeadLetter    = "queue:dead_letter"
	keyScheduled     = "queue:scheduled"
	keyScheduledData = "queue:scheduled_data:"
)

//go:embed scripts/pop_task.lua
var popTaskLua string

//go:embed scripts/complete_task.lua
var completeTaskLua string

//go:embed scripts/fail_task.lua
var failTaskLua string

//go:embed scripts/reclaim.lua
var reclaimLua string

//go:embed scripts/poll_scheduled.lua
var pollScheduledLua string

// MaxAttempts bounds how many times a retriable failure requeues a task
// before it is dead-lettered.
const MaxAttempts = 5

// pollScheduledBatch caps how many due entries one PollScheduled call
// releases, so a backlog doesn't block the scheduler loop for too long.
const pollScheduledBatch = 100

// wireTask is the JSON shape stored in Redis for one queued task.
type wireTask struct {
	ThreadID         string                   `json:"thread_id"`
	ThreadName       string                   `json:"thread_name"`
	ScheduledContext *domain.ScheduledContext `json:"scheduled_context,omitempty"`
	FailureReason    string                   `json:"failure_reason,omitempty"`
}

func toWire(t domain.Task) wireTask {
	return wireTask{ThreadID: t.ThreadID, ThreadName: t.ThreadName, ScheduledContext: t.ScheduledContext}
}

func (w wireTask) toTask() domain.Task {
	return domain.Task{ThreadID: w.ThreadID, ThreadName: w.ThreadName, ScheduledContext: w.ScheduledContext}
}

// Queue implements domain.Queue using go-redis/v9.
type Queue struct {
	rdb *redis.Client

	popTaskSc       *redis.Script
	completeTaskSc  *redis.Script
	failTaskSc      *redis.Script
	reclaimSc       *redis.Script
	pollScheduledSc *redis.Script
}

// New creates a Queue backed by an already-connected go-redis client (see
// internal/cache/redis.Client.Underlying).
func New(rdb *redis.Client) *Queue {
	return &Queue{
		rdb:             rdb,
		popTaskSc:       redis.NewScript(popTaskLua),
		completeTaskSc:  redis.NewScript(completeTaskLua),
		failTaskSc:      redis.NewScript(failTaskLua),
		reclaimSc:       redis.NewScript(reclaimLua),
		pollScheduledSc: redis.NewScript(pollScheduledLua),
	}
}

// PopTask blocks until a task is available or ctx is done, then atomically
// claims it via the pop_task script. Polls rather than BRPOPLPUSH because
// the hand-off also needs to write the claims zset in the same atomic step.
func (q *Queue) PopTask(ctx context.Context) (domain.Task, error) {
	const pollInterval = 250 * time.Millisecond

	for {
		raw, err := q.popTaskSc.Run(ctx, q.rdb, []string{keyPending, keyProcessing, keyClaims}, time.Now().Unix()).Text()
		if err == nil {
			var w wireTask
			if err := json.Unmarshal([]byte(raw), &w); err != nil {
				return domain.Task{}, fmt.Errorf("redis: pop task unmarshal: %w", err)
			}
			return w.toTask(), nil
		}
		if err != redis.Nil {
			return domain.Task{}, fmt.Errorf("redis: pop task: %w", err)
		}

		select {
		case <-ctx.Done():
			return domain.Task{}, fmt.Errorf("redis: pop task: %w", domain.ErrEmptyQueue)
		case <-time.After(pollInterval):
		}
	}
}

// Complete implements domain.Queue.
func (q *Queue) Complete(ctx context.Context, threadID string) error {
	if err := q.completeTaskSc.Run(ctx, q.rdb, []string{keyProcessing, keyClaims, keyCompleted}, threadID).Err(); err != nil {
		return fmt.Errorf("redis: complete task %s: %w", threadID, err)
	}
	return nil
}

// Fail implements domain.Queue.
func (q *Queue) Fail(ctx context.Context, task domain.Task, kind domain.ErrorKind, cause error) error {
	w := toWire(task)
	if cause != nil {
		w.FailureReason = cause.Error()
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("redis: fail task %s marshal: %w", task.ThreadID, err)
	}

	retriable := "0"
	if kind.Retriable() {
		retriable = "1"
	}

	if err := q.failTaskSc.Run(ctx, q.rdb,
		[]string{keyProcessing, keyClaims, keyAttempts, keyPending, keyDeadLetter},
		task.ThreadID, raw, retriable, MaxAttempts,
	).Err(); err != nil {
		return fmt.Errorf("redis: fail task %s: %w", task.ThreadID, err)
	}
	return nil
}

// IsCompleted implements domain.Queue.
func (q *Queue) IsCompleted(ctx context.Context, threadID string) (bool, error) {
	isMember, err := q.rdb.SIsMember(ctx, keyCompleted, threadID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: is completed %s: %w", threadID, err)
	}
	return isMember, nil
}

// DeadLetter implements domain.Queue.
func (q *Queue) DeadLetter(ctx context.Context, task domain.Task, reason string) error {
	w := toWire(task)
	w.FailureReason = reason
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("redis: dead letter task %s marshal: %w", task.ThreadID, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, keyProcessing, task.ThreadID)
	pipe.ZRem(ctx, keyClaims, task.ThreadID)
	pipe.LPush(ctx, keyDeadLetter, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: dead letter task %s: %w", task.ThreadID, err)
	}
	return nil
}

// Schedule implements domain.Queue.
func (q *Queue) Schedule(ctx context.Context, task domain.Task, dueAt time.Time) error {
	w := toWire(task)
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("redis: schedule task %s marshal: %w", task.ThreadID, err)
	}

	ttl := time.Until(dueAt) + 24*time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}

	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, keyProcessing, task.ThreadID)
	pipe.ZRem(ctx, keyClaims, task.ThreadID)
	pipe.ZAdd(ctx, keyScheduled, redis.Z{Score: float64(dueAt.Unix()), Member: task.ThreadID})
	pipe.Set(ctx, keyScheduledData+task.ThreadID, raw, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: schedule task %s: %w", task.ThreadID, err)
	}
	return nil
}

// PollScheduled implements domain.Queue.
func (q *Queue) PollScheduled(ctx context.Context, now time.Time) ([]domain.Task, error) {
	result, err := q.pollScheduledSc.Run(ctx, q.rdb,
		[]string{keyScheduled, keyScheduledData, keyPending},
		now.Unix(), pollScheduledBatch,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis: poll scheduled: %w", err)
	}

	tasks := make([]domain.Task, 0, len(result))
	for _, raw := range result {
		var w wireTask
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("redis: poll scheduled unmarshal: %w", err)
		}
		tasks = append(tasks, w.toTask())
	}
	return tasks, nil
}

// Reclaim implements domain.Queue.
func (q *Queue) Reclaim(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	n, err := q.reclaimSc.Run(ctx, q.rdb, []string{keyClaims, keyProcessing, keyPending}, cutoff).Int()
	if err != nil {
		return 0, fmt.Errorf("redis: reclaim: %w", err)
	}
	return n, nil
}

// Depth implements domain.Queue.
func (q *Queue) Depth(ctx context.Context) (domain.QueueDepth, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, keyPending)
	processing := pipe.HLen(ctx, keyProcessing)
	scheduled := pipe.ZCard(ctx, keyScheduled)
	dead := pipe.LLen(ctx, keyDeadLetter)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.QueueDepth{}, fmt.Errorf("redis: queue depth: %w", err)
	}
	return domain.QueueDepth{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Scheduled:  scheduled.Val(),
		DeadLetter: dead.Val(),
	}, nil
}

// Enqueue pushes a brand new task onto pending, skipping it if its thread id
// is already in the completed set (idempotent ingestion).
func (q *Queue) Enqueue(ctx context.Context, task domain.Task) error {
	isCompleted, err := q.IsCompleted(ctx, task.ThreadID)
	if err != nil {
		return fmt.Errorf("redis: enqueue check completed %s: %w", task.ThreadID, err)
	}
	if isCompleted {
		return fmt.Errorf("redis: enqueue %s: %w", task.ThreadID, domain.ErrDuplicateTask)
	}

	raw, err := json.Marshal(toWire(task))
	if err != nil {
		return fmt.Errorf("redis: enqueue %s marshal: %w", task.ThreadID, err)
	}
	if err := q.rdb.LPush(ctx, keyPending, raw).Err(); err != nil {
		return fmt.Errorf("redis: enqueue %s: %w", task.ThreadID, err)
	}
	return nil
}

var _ domain.Queue = (*Queue)(nil)
