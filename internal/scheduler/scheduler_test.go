package scheduler

import (
	"context"
	"log/slog"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

type fakeQueue struct {
	domain.Queue
	mu    sync.Mutex
	polls int
	due   []domain.Task
}

func (f *fakeQueue) PollScheduled(ctx context.Context, now time.Time) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	due := f.due
	f.due = nil
	return due, nil
}

func TestScheduler_ReleasesDueTasks(t *testing.T) {
	fq := &fakeQueue{due: []domain.Task{{ThreadID: "t1"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(fq, 10*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fq.mu.Lock()
	defer fq.mu.Unlock()
	assert.GreaterOrEqual(t, fq.polls, 2)
}

func TestNew_DefaultsInterval(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(&fakeQueue{}, 0, logger)
	assert.Equal(t, DefaultInterval, s.interval)
}
