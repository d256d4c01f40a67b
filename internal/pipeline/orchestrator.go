package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zerodte/execd/internal/scheduler"
)

// Orchestrator runs the consumer, scheduler, fill monitor, and archiver cron
// as concurrent goroutines sharing one lifecycle. If any sub-system returns a
// non-context error the shared context is cancelled and Run returns that
// error; a clean ctx cancellation returns nil.
type Orchestrator struct {
	consumer    *Consumer
	scheduler   *scheduler.Scheduler
	fillMonitor *FillMonitor
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil (archival
// skipped, e.g. when no S3 endpoint is configured).
func NewOrchestrator(
	consumer *Consumer,
	sched *scheduler.Scheduler,
	fillMonitor *FillMonitor,
	archiver *Archiver,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		consumer:    consumer,
		scheduler:   sched,
		fillMonitor: fillMonitor,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every sub-system and blocks until ctx is cancelled or one of
// them fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator starting", slog.String("archive_cron", o.archiveCron))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.consumer.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("consumer: %w", err)
	})

	g.Go(func() error {
		err := o.scheduler.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("scheduler: %w", err)
	})

	g.Go(func() error {
		err := o.fillMonitor.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("fill monitor: %w", err)
	})

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.ErrorContext(ctx, "orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.InfoContext(ctx, "orchestrator stopped cleanly")
	return nil
}
