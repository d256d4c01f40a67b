package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb)
}

func TestQueue_EnqueuePopComplete(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.Task{ThreadID: "t1", ThreadName: "AAPL thread"}))

	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	task, err := q.PopTask(popCtx)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ThreadID)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth.Pending)
	assert.EqualValues(t, 1, depth.Processing)

	require.NoError(t, q.Complete(ctx, task.ThreadID))

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth.Processing)
}

func TestQueue_Enqueue_DedupsCompleted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := domain.Task{ThreadID: "t1"}
	require.NoError(t, q.Enqueue(ctx, task))

	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	popped, err := q.PopTask(popCtx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, popped.ThreadID))

	err = q.Enqueue(ctx, task)
	assert.ErrorIs(t, err, domain.ErrDuplicateTask)
}

func TestQueue_Fail_RequeuesUntilMaxAttemptsThenDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.Task{ThreadID: "t1"}))

	for i := 0; i < MaxAttempts-1; i++ {
		popCtx, cancel := context.WithTimeout(ctx, time.Second)
		task, err := q.PopTask(popCtx)
		cancel()
		require.NoError(t, err)
		require.NoError(t, q.Fail(ctx, task, domain.ErrLLMTimeout, nil))

		depth, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, depth.Pending, "attempt %d should requeue", i)
	}

	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	task, err := q.PopTask(popCtx)
	cancel()
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, task, domain.ErrLLMTimeout, nil))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth.Pending)
	assert.EqualValues(t, 1, depth.DeadLetter)
}

func TestQueue_Fail_NonRetriableDeadLettersImmediately(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.Task{ThreadID: "t1"}))
	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	task, err := q.PopTask(popCtx)
	cancel()
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, task, domain.ErrBrokerRejected, nil))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth.Pending)
	assert.EqualValues(t, 1, depth.DeadLetter)
}

func TestQueue_ScheduleAndPollScheduled(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.Task{ThreadID: "t1"}))
	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	task, err := q.PopTask(popCtx)
	cancel()
	require.NoError(t, err)

	dueAt := time.Now().Add(-time.Minute)
	require.NoError(t, q.Schedule(ctx, task, dueAt))

	released, err := q.PollScheduled(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "t1", released[0].ThreadID)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth.Pending)
	assert.EqualValues(t, 0, depth.Scheduled)
}

func TestQueue_Reclaim(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.Task{ThreadID: "t1"}))
	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	_, err := q.PopTask(popCtx)
	cancel()
	require.NoError(t, err)

	n, err := q.Reclaim(ctx, -time.Hour) // everything looks "older than" a negative window
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth.Pending)
	assert.EqualValues(t, 0, depth.Processing)
}
