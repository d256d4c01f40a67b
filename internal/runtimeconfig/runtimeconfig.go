// Package runtimeconfig provides the single typed accessor for the
// dashboard-editable configuration that governs pipeline behavior
// (emergency stop, dry run, confidence floor, VIX ceiling, position caps,
// ticker lists). It is distinct from the static, deploy-time internal/config
// package: runtime config can change between two task pops without a
// restart, so every task refreshes its own snapshot at the start of
// processing rather than reading a value cached at startup.
package runtimeconfig

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// Accessor reads RuntimeConfig from a store, decoding each key with its
// documented default when absent or malformed. A malformed value logs
// nothing itself (callers own logging) and silently falls back to default:
// an operator fat-fingering one key must not fail every task.
type Accessor struct {
	store domain.RuntimeConfigStore

	mu       sync.RWMutex
	cached   domain.RuntimeConfig
	fetchedAt time.Time
}

// New creates an Accessor backed by store.
func New(store domain.RuntimeConfigStore) *Accessor {
	return &Accessor{store: store, cached: domain.DefaultRuntimeConfig()}
}

// Refresh re-reads every key from the store and decodes a fresh snapshot.
// Called once at the start of every task; never reuses a snapshot across
// tasks.
func (a *Accessor) Refresh(ctx context.Context) (domain.RuntimeConfig, error) {
	raw, err := a.store.GetAll(ctx)
	if err != nil {
		return domain.RuntimeConfig{}, fmt.Errorf("runtimeconfig: refresh: %w", err)
	}

	cfg := decode(raw)

	a.mu.Lock()
	a.cached = cfg
	a.fetchedAt = time.Now()
	a.mu.Unlock()

	return cfg, nil
}

// Cached returns the last snapshot fetched by Refresh, or the documented
// defaults if Refresh has never been called. It makes no store round trip.
func (a *Accessor) Cached() domain.RuntimeConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cached
}

func decode(raw map[string]string) domain.RuntimeConfig {
	cfg := domain.DefaultRuntimeConfig()

	if v, ok := raw[domain.KeyEmergencyStop]; ok {
		cfg.EmergencyStop = parseBool(v, cfg.EmergencyStop)
	}
	if v, ok := raw[domain.KeyDryRun]; ok {
		cfg.DryRun = parseBool(v, cfg.DryRun)
	}
	if v, ok := raw[domain.KeyMinConfidence]; ok {
		cfg.MinConfidence = parseFloat(v, cfg.MinConfidence)
	}
	if v, ok := raw[domain.KeyVIXCeiling]; ok {
		cfg.VIXCeiling = parseFloat(v, cfg.VIXCeiling)
	}
	if v, ok := raw[domain.KeyMaxOpenPositions]; ok {
		cfg.MaxOpenPositions = parseInt(v, cfg.MaxOpenPositions)
	}
	if v, ok := raw[domain.KeyTickerWhitelist]; ok {
		cfg.TickerWhitelist = parseList(v)
	}
	if v, ok := raw[domain.KeyTickerBlacklist]; ok {
		cfg.TickerBlacklist = parseList(v)
	}
	if v, ok := raw[domain.KeyDefaultQuantity]; ok {
		cfg.DefaultQuantity = parseInt(v, cfg.DefaultQuantity)
	}
	if v, ok := raw[domain.KeyReanalysisMinMins]; ok {
		cfg.ReanalysisMinDelay = time.Duration(parseInt(v, int(cfg.ReanalysisMinDelay/time.Minute))) * time.Minute
	}
	if v, ok := raw[domain.KeyReanalysisMaxMins]; ok {
		cfg.ReanalysisMaxDelay = time.Duration(parseInt(v, int(cfg.ReanalysisMaxDelay/time.Minute))) * time.Minute
	}
	if v, ok := raw[domain.KeyLLMModel]; ok && strings.TrimSpace(v) != "" {
		cfg.LLMModel = v
	}

	if v, ok := raw[domain.KeyMaxLossPerTradePercent]; ok {
		cfg.MaxLossPerTradePercent = parseFloat(v, cfg.MaxLossPerTradePercent)
	}
	if v, ok := raw[domain.KeyMaxDailyTrades]; ok {
		cfg.MaxDailyTrades = parseInt(v, cfg.MaxDailyTrades)
	}
	if v, ok := raw[domain.KeyMaxLossPerDayPercent]; ok {
		cfg.MaxLossPerDayPercent = parseFloat(v, cfg.MaxLossPerDayPercent)
	}
	if v, ok := raw[domain.KeyDefaultStopLossPercent]; ok {
		cfg.DefaultStopLossPercent = parseFloat(v, cfg.DefaultStopLossPercent)
	}
	if v, ok := raw[domain.KeyDefaultTakeProfitPercent]; ok {
		cfg.DefaultTakeProfitPercent = parseFloat(v, cfg.DefaultTakeProfitPercent)
	}
	if v, ok := raw[domain.KeyTrailingStopEnabled]; ok {
		cfg.TrailingStopEnabled = parseBool(v, cfg.TrailingStopEnabled)
	}
	if v, ok := raw[domain.KeyTrailingStopActivationPercent]; ok {
		cfg.TrailingStopActivationPercent = parseFloat(v, cfg.TrailingStopActivationPercent)
	}
	if v, ok := raw[domain.KeyTrailingStopDistancePercent]; ok {
		cfg.TrailingStopDistancePercent = parseFloat(v, cfg.TrailingStopDistancePercent)
	}
	if v, ok := raw[domain.KeyMaxPositionSizePercent]; ok {
		cfg.MaxPositionSizePercent = parseFloat(v, cfg.MaxPositionSizePercent)
	}

	return cfg
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func parseFloat(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseInt(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func parseList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
