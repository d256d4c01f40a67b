// Package config defines the static, deploy-time configuration for execd:
// connection settings for the queue, database, LLM proxy, brokerage gateway
// and market-data fallback, plus the health-server port, log level, and
// debug flag. It is distinct from internal/runtimeconfig, which holds the
// dashboard-editable knobs that can change between two task pops.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by EXECD_* environment variables.
type Config struct {
	Queue      QueueConfig      `toml:"queue"`
	Database   DatabaseConfig   `toml:"database"`
	LLM        LLMConfig        `toml:"llm"`
	Broker     BrokerConfig     `toml:"broker"`
	MarketData MarketDataConfig `toml:"market_data"`
	S3         S3Config         `toml:"s3"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
	Debug      bool             `toml:"debug"`
}

// QueueConfig holds the Redis connection parameters for the reliable queue.
type QueueConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// DatabaseConfig holds the PostgreSQL connection parameters for the signal,
// trade, prompt, runtime-config, and audit stores.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// LLMConfig holds the LLM proxy connection parameters. APIKey is the bearer
// master key; it is typically supplied by EXECD_LLM_API_KEY rather than the
// TOML file.
type LLMConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// BrokerConfig holds the brokerage gateway REST connection parameters.
type BrokerConfig struct {
	BaseURL   string `toml:"base_url"`
	AccountID string `toml:"account_id"`
	APIKey    string `toml:"api_key"`
}

// MarketDataConfig configures the websocket market-data provider. UseIBKR is
// loaded from config and the environment, but no code path branches on it:
// the websocket provider is always the one wired.
type MarketDataConfig struct {
	UseIBKR bool   `toml:"use_ibkr"`
	WSURL   string `toml:"ws_url"`
	APIKey  string `toml:"api_key"`
}

// S3Config holds S3-compatible object storage parameters for cold-storage
// archival of processed signals and trades.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PipelineConfig holds the consumer/scheduler/archiver tuning knobs that are
// deploy-time rather than dashboard-editable: worker concurrency, per-task
// and per-prefetch deadlines, poll intervals, and archive retention.
type PipelineConfig struct {
	WorkerConcurrency    int      `toml:"worker_concurrency"`
	TaskDeadline         duration `toml:"task_deadline"`
	PrefetchDeadline     duration `toml:"prefetch_deadline"`
	LLMDeadline          duration `toml:"llm_deadline"`
	SchedulerInterval    duration `toml:"scheduler_interval"`
	ReclaimInterval      duration `toml:"reclaim_interval"`
	ReclaimAfter         duration `toml:"reclaim_after"`
	FillMonitorInterval  duration `toml:"fill_monitor_interval"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveCron          string   `toml:"archive_cron"`
}

// ServerConfig holds HTTP health/status server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds the log-webhook / chat notification channel
// credentials used to surface terminal outcomes to operators.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	LogWebhookURL     string   `toml:"log_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Queue: QueueConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "execd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: duration{60 * time.Second},
		},
		Broker: BrokerConfig{
			BaseURL: "https://localhost:5000/v1/api",
		},
		MarketData: MarketDataConfig{
			UseIBKR: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "execd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			WorkerConcurrency:    1,
			TaskDeadline:         duration{90 * time.Second},
			PrefetchDeadline:     duration{6 * time.Second},
			LLMDeadline:          duration{60 * time.Second},
			SchedulerInterval:    duration{30 * time.Second},
			ReclaimInterval:      duration{5 * time.Minute},
			ReclaimAfter:         duration{10 * time.Minute},
			FillMonitorInterval:  duration{30 * time.Second},
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"skip", "execute", "delay", "error"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Queue.Addr == "" {
		errs = append(errs, "queue: addr must not be empty")
	}
	if c.Queue.PoolSize < 1 {
		errs = append(errs, "queue: pool_size must be >= 1")
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.LLM.BaseURL == "" {
		errs = append(errs, "llm: base_url must not be empty")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm: api_key must not be empty (set EXECD_LLM_API_KEY)")
	}

	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Pipeline.WorkerConcurrency < 1 {
		errs = append(errs, "pipeline: worker_concurrency must be >= 1")
	}
	if c.Pipeline.TaskDeadline.Duration <= 0 {
		errs = append(errs, "pipeline: task_deadline must be > 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
