package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// archiveLockKey is the LockManager key archiver cron ticks single-flight
// against, so two running instances don't race the same upload+delete pass.
const archiveLockKey = "pipeline:archiver"

// archiveLockTTL bounds how long one instance may hold the lock for a single
// run; it must comfortably exceed how long ArchiveTrades+ArchiveSignals take.
const archiveLockTTL = 5 * time.Minute

// tradeDeleter prunes archived trades from the hot store. Implemented by
// postgres.TradeStore.
type tradeDeleter interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// signalDeleter prunes archived signals from the hot store. Implemented by
// postgres.SignalStore.
type signalDeleter interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves signal and trade records older than a retention window to
// cold storage, then prunes them from the hot Postgres tables. Deletion only
// runs after the matching upload succeeds.
type Archiver struct {
	blobArchiver  domain.Archiver
	trades        tradeDeleter
	signals       signalDeleter
	locks         domain.LockManager
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver. locks may be nil, in which case Run
// proceeds without single-flight protection (fine for a single instance).
func NewArchiver(blobArchiver domain.Archiver, trades tradeDeleter, signals signalDeleter, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		trades:        trades,
		signals:       signals,
		locks:         locks,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive-then-prune pass for trades and signals older
// than retentionDays.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.InfoContext(ctx, "archive run skipped, another instance holds the lock")
				return nil
			}
			return fmt.Errorf("pipeline: archiver acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.retentionDays)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff), slog.Int("retention_days", a.retentionDays))

	tradesArchived, err := a.blobArchiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive trades before %v: %w", cutoff, err)
	}
	if tradesArchived > 0 {
		deleted, err := a.trades.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: prune archived trades: %w", err)
		}
		a.logger.InfoContext(ctx, "archived and pruned trades",
			slog.Int64("archived", tradesArchived), slog.Int64("deleted", deleted))
	}

	signalsArchived, err := a.blobArchiver.ArchiveSignals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive signals before %v: %w", cutoff, err)
	}
	if signalsArchived > 0 {
		deleted, err := a.signals.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: prune archived signals: %w", err)
		}
		a.logger.InfoContext(ctx, "archived and pruned signals",
			slog.Int64("archived", signalsArchived), slog.Int64("deleted", deleted))
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("trades_archived", tradesArchived), slog.Int64("signals_archived", signalsArchived))
	return nil
}

// RunCron runs the archiver on a cron schedule until ctx is cancelled, in the
// standard 5-field "minute hour day-of-month month day-of-week" format, e.g.
// "0 3 1 * *" for 3:00 AM on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: parse cron expression %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		a.logger.InfoContext(ctx, "archiver waiting for next cron trigger",
			slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is a parsed cron field that can match against a calendar value.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime finds the next time after 'after' matching cronExpr, searching
// minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
