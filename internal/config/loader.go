package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EXECD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EXECD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Queue ──
	setStr(&cfg.Queue.Addr, "EXECD_QUEUE_ADDR")
	setStr(&cfg.Queue.Password, "EXECD_QUEUE_PASSWORD")
	setInt(&cfg.Queue.DB, "EXECD_QUEUE_DB")
	setInt(&cfg.Queue.PoolSize, "EXECD_QUEUE_POOL_SIZE")
	setInt(&cfg.Queue.MaxRetries, "EXECD_QUEUE_MAX_RETRIES")
	setBool(&cfg.Queue.TLSEnabled, "EXECD_QUEUE_TLS_ENABLED")

	// ── Database ──
	setStr(&cfg.Database.DSN, "EXECD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "EXECD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "EXECD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "EXECD_DATABASE_NAME")
	setStr(&cfg.Database.User, "EXECD_DATABASE_USER")
	setStr(&cfg.Database.Password, "EXECD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "EXECD_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "EXECD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "EXECD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "EXECD_DATABASE_RUN_MIGRATIONS")

	// ── LLM proxy ──
	setStr(&cfg.LLM.BaseURL, "EXECD_LLM_BASE_URL")
	setStr(&cfg.LLM.APIKey, "EXECD_LLM_API_KEY")
	setDuration(&cfg.LLM.Timeout, "EXECD_LLM_TIMEOUT")

	// ── Brokerage gateway ──
	setStr(&cfg.Broker.BaseURL, "EXECD_BROKER_BASE_URL")
	setStr(&cfg.Broker.AccountID, "EXECD_BROKER_ACCOUNT_ID")
	setStr(&cfg.Broker.APIKey, "EXECD_BROKER_API_KEY")

	// ── Market data ──
	setBool(&cfg.MarketData.UseIBKR, "USE_IBKR_MARKET_DATA")
	setStr(&cfg.MarketData.WSURL, "EXECD_MARKET_DATA_WS_URL")
	setStr(&cfg.MarketData.APIKey, "EXECD_MARKET_DATA_API_KEY")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "EXECD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EXECD_S3_REGION")
	setStr(&cfg.S3.Bucket, "EXECD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EXECD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EXECD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EXECD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EXECD_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.WorkerConcurrency, "EXECD_PIPELINE_WORKER_CONCURRENCY")
	setDuration(&cfg.Pipeline.TaskDeadline, "EXECD_PIPELINE_TASK_DEADLINE")
	setDuration(&cfg.Pipeline.PrefetchDeadline, "EXECD_PIPELINE_PREFETCH_DEADLINE")
	setDuration(&cfg.Pipeline.LLMDeadline, "EXECD_PIPELINE_LLM_DEADLINE")
	setDuration(&cfg.Pipeline.SchedulerInterval, "EXECD_PIPELINE_SCHEDULER_INTERVAL")
	setDuration(&cfg.Pipeline.ReclaimInterval, "EXECD_PIPELINE_RECLAIM_INTERVAL")
	setDuration(&cfg.Pipeline.ReclaimAfter, "EXECD_PIPELINE_RECLAIM_AFTER")
	setDuration(&cfg.Pipeline.FillMonitorInterval, "EXECD_PIPELINE_FILL_MONITOR_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "EXECD_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "EXECD_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "EXECD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "EXECD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "EXECD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EXECD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EXECD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EXECD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.LogWebhookURL, "EXECD_NOTIFY_LOG_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EXECD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "EXECD_LOG_LEVEL")
	setBool(&cfg.Debug, "EXECD_DEBUG")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
