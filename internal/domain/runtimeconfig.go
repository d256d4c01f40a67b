package domain

import "time"

// RuntimeConfig is the process-wide, dashboard-editable configuration
// snapshot, re-read fresh at the start of every task so an operator's
// change takes effect on the next pop without a restart. Callers go through
// this typed accessor rather than reading raw store keys so a missing key
// degrades to a documented default instead of a zero value.
type RuntimeConfig struct {
	EmergencyStop      bool
	DryRun             bool
	MinConfidence      float64
	VIXCeiling         float64
	MaxOpenPositions   int
	TickerWhitelist    []string
	TickerBlacklist    []string
	DefaultQuantity    int
	ReanalysisMinDelay time.Duration
	ReanalysisMaxDelay time.Duration
	LLMModel           string

	// Risk-sizing and trailing-stop guidance. These are not enforced by the
	// precondition chain; they are handed to the LLM as prompt context, which
	// is expected to honour them when sizing the bracket it proposes.
	MaxLossPerTradePercent        float64
	MaxDailyTrades                int
	MaxLossPerDayPercent          float64
	DefaultStopLossPercent        float64
	DefaultTakeProfitPercent      float64
	TrailingStopEnabled           bool
	TrailingStopActivationPercent float64
	TrailingStopDistancePercent   float64
	MaxPositionSizePercent        float64
}

// Runtime config keys as stored in RuntimeConfigStore, and their defaults
// when a key is absent.
const (
	KeyEmergencyStop     = "emergency_stop"
	KeyDryRun            = "dry_run"
	KeyMinConfidence     = "min_confidence"
	KeyVIXCeiling        = "vix_ceiling"
	KeyMaxOpenPositions  = "max_open_positions"
	KeyTickerWhitelist   = "ticker_whitelist"
	KeyTickerBlacklist   = "ticker_blacklist"
	KeyDefaultQuantity   = "default_quantity"
	KeyReanalysisMinMins = "reanalysis_min_delay_minutes"
	KeyReanalysisMaxMins = "reanalysis_max_delay_minutes"
	KeyLLMModel          = "llm_model"

	KeyMaxLossPerTradePercent        = "max_loss_per_trade_percent"
	KeyMaxDailyTrades                = "max_daily_trades"
	KeyMaxLossPerDayPercent          = "max_loss_per_day_percent"
	KeyDefaultStopLossPercent        = "default_stop_loss_percent"
	KeyDefaultTakeProfitPercent      = "default_take_profit_percent"
	KeyTrailingStopEnabled           = "trailing_stop_enabled"
	KeyTrailingStopActivationPercent = "trailing_stop_activation_percent"
	KeyTrailingStopDistancePercent   = "trailing_stop_distance_percent"
	KeyMaxPositionSizePercent        = "max_position_size_percent"
)

// DefaultRuntimeConfig is used whenever the store has no row yet for a key,
// so a fresh deployment behaves safely (dry run, conservative confidence,
// SPY/QQQ only) until an operator tunes it. Values match spec §6's
// RuntimeConfig table.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		EmergencyStop:      false,
		DryRun:             true,
		MinConfidence:      0.5,
		VIXCeiling:         25,
		MaxOpenPositions:   5,
		TickerWhitelist:    []string{"SPY", "QQQ"},
		TickerBlacklist:    nil,
		DefaultQuantity:    1,
		ReanalysisMinDelay: 5 * time.Minute,
		ReanalysisMaxDelay: 60 * time.Minute,
		LLMModel:           "deepseek/deepseek-reasoner",

		MaxLossPerTradePercent:        0.1,
		MaxDailyTrades:                10,
		MaxLossPerDayPercent:          0.1,
		DefaultStopLossPercent:        0.3,
		DefaultTakeProfitPercent:      0.5,
		TrailingStopEnabled:           false,
		TrailingStopActivationPercent: 0.2,
		TrailingStopDistancePercent:   0.1,
		MaxPositionSizePercent:        0.2,
	}
}
