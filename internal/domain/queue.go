package domain

import (
	"context"
	"time"
)

// Queue is the reliable work queue the consumer pops tasks from. A Task
// popped but never Completed/Failed/DeadLettered must be recoverable by
// Reclaim after its visibility window expires — the implementation owns
// exactly how (e.g. a processing list plus a claimed-at index).
type Queue interface {
	// PopTask atomically moves one task from pending to in-flight and
	// returns it. Blocks up to the context deadline if the queue is empty;
	// returns ErrEmptyQueue on a non-blocking timeout.
	PopTask(ctx context.Context) (Task, error)

	// Complete marks a task's thread id as done so a duplicate enqueue of
	// the same thread is dropped rather than reprocessed.
	Complete(ctx context.Context, threadID string) error

	// IsCompleted reports whether threadID is already in the completed set,
	// so a redelivered task (retry, reclaim, or a duplicate enqueue that
	// slipped through) can be dropped before it is processed again.
	IsCompleted(ctx context.Context, threadID string) (bool, error)

	// Fail records a processing failure. Depending on kind.Retriable() and
	// the attempt count, the implementation either re-queues the task or
	// moves it to the dead letter list.
	Fail(ctx context.Context, task Task, kind ErrorKind, cause error) error

	// DeadLetter moves a task straight to the dead letter list, bypassing
	// retry, for failures the pipeline knows are not worth retrying.
	DeadLetter(ctx context.Context, task Task, reason string) error

	// Schedule parks a task for re-delivery at dueAt, alongside an opaque
	// blob (the rendered ScheduledContext) retrievable by PollScheduled.
	Schedule(ctx context.Context, task Task, dueAt time.Time) error

	// PollScheduled releases and returns tasks whose due time has passed,
	// oldest first, re-enqueuing them onto the pending side.
	PollScheduled(ctx context.Context, now time.Time) ([]Task, error)

	// Reclaim requeues in-flight tasks whose claim has expired, returning
	// how many were recovered. Called once at consumer startup to recover
	// tasks left in flight by a crashed worker.
	Reclaim(ctx context.Context, olderThan time.Duration) (int, error)

	// Depth reports queue sizes for the status endpoint.
	Depth(ctx context.Context) (QueueDepth, error)
}

// QueueDepth is a point-in-time census of the queue's internal lists.
type QueueDepth struct {
	Pending    int64
	Processing int64
	Scheduled  int64
	DeadLetter int64
}
