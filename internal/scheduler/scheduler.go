// Package scheduler implements the delayed-reanalysis release loop (spec
// §4.2): a single goroutine that polls the queue's scheduled set on a fixed
// interval and re-enqueues any task whose due time has passed.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// DefaultInterval matches the spec's documented default poll cadence.
const DefaultInterval = 30 * time.Second

// Scheduler polls domain.Queue.PollScheduled and logs what it releases.
// Release back onto pending is the queue implementation's job; Scheduler
// only drives the cadence.
type Scheduler struct {
	queue    domain.Queue
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Scheduler polling at interval (DefaultInterval if zero).
func New(queue domain.Queue, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		queue:    queue,
		interval: interval,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run blocks, polling until ctx is cancelled. Due entries are released in
// ascending due_at order by PollScheduled; entries with the same due_at come
// back in the queue's sorted-set member order (by thread id).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler starting", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	released, err := s.queue.PollScheduled(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "poll scheduled failed", slog.String("error", err.Error()))
		return
	}
	if len(released) == 0 {
		return
	}
	for _, task := range released {
		retry := 0
		if task.ScheduledContext != nil {
			retry = task.ScheduledContext.RetryCount
		}
		s.logger.InfoContext(ctx, "released scheduled task",
			slog.String("thread_id", task.ThreadID),
			slog.Int("retry_count", retry),
		)
	}
}
