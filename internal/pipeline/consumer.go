package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// DefaultTaskDeadline matches the spec's documented per-task budget.
const DefaultTaskDeadline = 90 * time.Second

// DefaultReclaimAge is how long a processing entry sits unclaimed before
// Consumer's startup Reclaim sweep considers it orphaned by a crashed
// worker.
const DefaultReclaimAge = 5 * time.Minute

// Consumer drives SignalProcessor off a single queue, one task at a time.
// The spec's worker-pool knob (concurrency > 1) is future wiring; this is
// the default-1 safe loop.
type Consumer struct {
	queue        domain.Queue
	processor    *SignalProcessor
	taskDeadline time.Duration
	reclaimAge   time.Duration
	logger       *slog.Logger
}

// NewConsumer creates a Consumer. taskDeadline <= 0 uses DefaultTaskDeadline.
func NewConsumer(queue domain.Queue, processor *SignalProcessor, taskDeadline time.Duration, logger *slog.Logger) *Consumer {
	if taskDeadline <= 0 {
		taskDeadline = DefaultTaskDeadline
	}
	return &Consumer{
		queue:        queue,
		processor:    processor,
		taskDeadline: taskDeadline,
		reclaimAge:   DefaultReclaimAge,
		logger:       logger.With(slog.String("component", "consumer")),
	}
}

// Run reclaims orphaned in-flight tasks once, then pops and processes tasks
// serially until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if n, err := c.queue.Reclaim(ctx, c.reclaimAge); err != nil {
		c.logger.ErrorContext(ctx, "startup reclaim failed", slog.String("error", err.Error()))
	} else if n > 0 {
		c.logger.InfoContext(ctx, "reclaimed orphaned tasks", slog.Int("count", n))
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "consumer stopping")
			return ctx.Err()
		default:
		}

		task, err := c.queue.PopTask(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrEmptyQueue) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "pop task failed", slog.String("error", err.Error()))
			continue
		}

		c.process(ctx, task)
	}
}

func (c *Consumer) process(ctx context.Context, task domain.Task) {
	log := c.logger.With(slog.String("thread_id", task.ThreadID))

	if done, err := c.queue.IsCompleted(ctx, task.ThreadID); err != nil {
		log.ErrorContext(ctx, "is completed check failed", slog.String("error", err.Error()))
	} else if done {
		log.InfoContext(ctx, "dropping redelivered task already in completed set")
		if err := c.queue.Complete(ctx, task.ThreadID); err != nil {
			log.ErrorContext(ctx, "mark complete failed", slog.String("error", err.Error()))
		}
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, c.taskDeadline)
	outcome := c.processor.Process(taskCtx, task)
	deadlineHit := taskCtx.Err() != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded)
	cancel()

	switch {
	case outcome.Complete:
		if err := c.queue.Complete(ctx, task.ThreadID); err != nil {
			log.ErrorContext(ctx, "mark complete failed", slog.String("error", err.Error()))
		}

	case !outcome.ScheduleAt.IsZero():
		scheduled := task
		scheduled.ScheduledContext = outcome.ScheduledContext
		if err := c.queue.Schedule(ctx, scheduled, outcome.ScheduleAt); err != nil {
			log.ErrorContext(ctx, "schedule task failed", slog.String("error", err.Error()))
		}

	case outcome.DeadLetter:
		reason := ""
		if outcome.Fail != nil {
			reason = outcome.Fail.Error()
		}
		if err := c.queue.DeadLetter(ctx, task, reason); err != nil {
			log.ErrorContext(ctx, "dead letter failed", slog.String("error", err.Error()))
		}

	case outcome.Fail != nil:
		failure := outcome.Fail
		if deadlineHit {
			failure = domain.Fail(domain.ErrDeadlineExceeded, failure.Err)
		}
		log.WarnContext(ctx, "task failed", slog.String("kind", string(failure.Kind)), slog.String("error", failure.Error()))
		if err := c.queue.Fail(ctx, task, failure.Kind, failure.Err); err != nil {
			log.ErrorContext(ctx, "record failure failed", slog.String("error", err.Error()))
		}

	default:
		if deadlineHit {
			if err := c.queue.Fail(ctx, task, domain.ErrDeadlineExceeded, taskCtx.Err()); err != nil {
				log.ErrorContext(ctx, "record deadline failure failed", slog.String("error", err.Error()))
			}
			return
		}
		log.WarnContext(ctx, "processor returned an empty outcome, treating as failure")
		if err := c.queue.Fail(ctx, task, domain.ErrDeadlineExceeded, errors.New("empty outcome")); err != nil {
			log.ErrorContext(ctx, "record failure failed", slog.String("error", err.Error()))
		}
	}
}
