package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/domain"
)

type fakeStore struct {
	bodies map[string]string
	err    error
}

func (f fakeStore) GetTemplate(ctx context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, ok := f.bodies[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return body, nil
}

func (f fakeStore) SaveTemplate(ctx context.Context, name, body string) error {
	f.bodies[name] = body
	return nil
}

func sampleSignal() domain.Signal {
	ticker := "SPY"
	return domain.Signal{
		ThreadID:   "t1",
		ThreadName: "alerts",
		Messages:   []domain.SignalMessage{{Content: "SPY breaking out, buy calls"}},
		Parsed:     domain.ParsedFields{Ticker: &ticker},
	}
}

func TestRenderUser_DefaultsWhenStoreEmpty(t *testing.T) {
	a := New(nil)
	view := NewView(sampleSignal(), domain.PrefetchBundle{}, domain.DefaultRuntimeConfig(), nil)

	out, err := a.RenderUser(context.Background(), view)
	require.NoError(t, err)
	assert.Contains(t, out, "SPY breaking out, buy calls")
	assert.Contains(t, out, "ticker: SPY")
	assert.Contains(t, out, "direction: NOT SPECIFIED")
}

func TestRenderUser_DeterministicAcrossCalls(t *testing.T) {
	a := New(nil)
	view := NewView(sampleSignal(), domain.PrefetchBundle{
		VIX: domain.VIXSnapshot{Level: 18.5, Band: domain.VIXNormal},
	}, domain.DefaultRuntimeConfig(), nil)

	first, err := a.RenderUser(context.Background(), view)
	require.NoError(t, err)
	second, err := a.RenderUser(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderUser_UsesStoreOverride(t *testing.T) {
	store := fakeStore{bodies: map[string]string{NameUserTemplate: "override: {{.Parsed.Ticker}}"}}
	a := New(store)

	out, err := a.RenderUser(context.Background(), NewView(sampleSignal(), domain.PrefetchBundle{}, domain.DefaultRuntimeConfig(), nil))
	require.NoError(t, err)
	assert.Equal(t, "override: SPY", out)
}

func TestRenderUser_BadTemplateWrapsErrTemplateRender(t *testing.T) {
	store := fakeStore{bodies: map[string]string{NameUserTemplate: "{{.Nonexistent.Field}}"}}
	a := New(store)

	_, err := a.RenderUser(context.Background(), NewView(sampleSignal(), domain.PrefetchBundle{}, domain.DefaultRuntimeConfig(), nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTemplateRender))
}

func TestRenderSystem_FallsBackOnStoreError(t *testing.T) {
	store := fakeStore{err: errors.New("db down")}
	a := New(store)

	out := a.RenderSystem(context.Background())
	assert.Equal(t, defaultSystemPrompt, out)
}

func TestRenderUser_RetryContext(t *testing.T) {
	a := New(nil)
	sc := &domain.ScheduledContext{
		RetryCount:       1,
		PreviousToolCall: "schedule_reanalysis",
		DelayReason:      "waiting for confirmation",
		Question:         "did SPY hold 600?",
		KeyLevels:        map[string]float64{"support": 598.5},
	}
	view := NewView(sampleSignal(), domain.PrefetchBundle{}, domain.DefaultRuntimeConfig(), sc)

	out, err := a.RenderUser(context.Background(), view)
	require.NoError(t, err)
	assert.Contains(t, out, "PRIOR DELAY (retry 1)")
	assert.Contains(t, out, "did SPY hold 600?")
	assert.Contains(t, out, "support: 598.5000")
}
