package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

type fakeBlobArchiver struct {
	tradesArchived  int64
	signalsArchived int64
	tradesErr       error
	signalsErr      error
	tradesCutoff    time.Time
	signalsCutoff   time.Time
}

func (f *fakeBlobArchiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	f.tradesCutoff = before
	return f.tradesArchived, f.tradesErr
}

func (f *fakeBlobArchiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	f.signalsCutoff = before
	return f.signalsArchived, f.signalsErr
}

type fakeDeleter struct {
	calls   int
	deleted int64
	err     error
}

func (f *fakeDeleter) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeArchiveLockManager struct {
	held bool
}

func (f *fakeArchiveLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.held = true
	return func() { f.held = false }, nil
}

func TestArchiver_RunPrunesOnlyWhatWasArchived(t *testing.T) {
	blob := &fakeBlobArchiver{tradesArchived: 3, signalsArchived: 0}
	trades := &fakeDeleter{}
	signals := &fakeDeleter{}
	a := NewArchiver(blob, trades, signals, nil, 90, testFMLogger())

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, 1, trades.calls)
	assert.Equal(t, 0, signals.calls)
}

func TestArchiver_RunSkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{tradesArchived: 5}
	trades := &fakeDeleter{}
	signals := &fakeDeleter{}
	locks := &fakeArchiveLockManager{held: true}
	a := NewArchiver(blob, trades, signals, locks, 90, testFMLogger())

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, 0, trades.calls)
}

func TestNextCronTime_MonthlyExpression(t *testing.T) {
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestParseCron_RejectsWrongFieldCount(t *testing.T) {
	_, err := parseCron("0 3 1 *")
	assert.Error(t, err)
}
