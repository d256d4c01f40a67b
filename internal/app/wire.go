package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/zerodte/execd/internal/blob/s3"
	"github.com/zerodte/execd/internal/broker"
	cacheredis "github.com/zerodte/execd/internal/cache/redis"
	"github.com/zerodte/execd/internal/config"
	"github.com/zerodte/execd/internal/domain"
	"github.com/zerodte/execd/internal/llm"
	"github.com/zerodte/execd/internal/notify"
	"github.com/zerodte/execd/internal/pipeline"
	"github.com/zerodte/execd/internal/platform/brokergw"
	"github.com/zerodte/execd/internal/platform/llmproxy"
	"github.com/zerodte/execd/internal/platform/marketdata"
	"github.com/zerodte/execd/internal/prefetch"
	"github.com/zerodte/execd/internal/prompt"
	queueredis "github.com/zerodte/execd/internal/queue/redis"
	"github.com/zerodte/execd/internal/runtimeconfig"
	"github.com/zerodte/execd/internal/scheduler"
	"github.com/zerodte/execd/internal/store/postgres"
)

// Dependencies bundles every concrete implementation the orchestrator and
// the health/status server need. It is constructed by Wire and torn down by
// the returned cleanup function.
type Dependencies struct {
	Queue    domain.Queue
	Signals  domain.SignalStore
	Trades   domain.TradeStore
	Prompts  domain.PromptStore
	RTConfig domain.RuntimeConfigStore
	Audit    domain.AuditStore

	Broker     domain.BrokerGateway
	MarketData domain.MarketDataProvider

	LockManager domain.LockManager
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	Archiver    domain.Archiver

	Notifier *notify.Notifier

	Orchestrator *pipeline.Orchestrator
}

// Wire constructs every concrete dependency from cfg and assembles the
// pipeline orchestrator. It returns a cleanup function that releases every
// connection it opened, in reverse order, regardless of where wiring failed.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	signalStore := postgres.NewSignalStore(pool)
	tradeStore := postgres.NewTradeStore(pool)
	deps.Signals = signalStore
	deps.Trades = tradeStore
	deps.Prompts = postgres.NewPromptStore(pool)
	deps.RTConfig = postgres.NewRuntimeConfigStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	redisClient, err := cacheredis.New(ctx, cacheredis.ClientConfig{
		Addr:       cfg.Queue.Addr,
		Password:   cfg.Queue.Password,
		DB:         cfg.Queue.DB,
		PoolSize:   cfg.Queue.PoolSize,
		MaxRetries: cfg.Queue.MaxRetries,
		TLSEnabled: cfg.Queue.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Queue = queueredis.New(redisClient.Underlying())
	deps.LockManager = cacheredis.NewLockManager(redisClient)
	rateLimiter := cacheredis.NewRateLimiter(redisClient)

	brokerGW := brokergw.New(cfg.Broker.BaseURL, cfg.Broker.AccountID, cfg.Broker.APIKey, 0)
	deps.Broker = brokerGW

	mdClient := marketdata.New(cfg.MarketData.WSURL)
	if err := mdClient.Connect(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market data: %w", err)
	}
	closers = append(closers, func() { _ = mdClient.Close() })
	deps.MarketData = mdClient

	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	blobWriter := s3blob.NewWriter(s3Client)
	blobReader := s3blob.NewReader(s3Client)
	deps.BlobWriter = blobWriter
	deps.BlobReader = blobReader
	deps.Archiver = s3blob.NewArchiver(blobWriter, tradeStore, signalStore, deps.Audit)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	rtAccessor := runtimeconfig.New(deps.RTConfig)
	prefetchEngine := prefetch.New(deps.MarketData, deps.Broker, cfg.Pipeline.PrefetchDeadline.Duration, logger)
	promptAssembler := prompt.New(deps.Prompts)
	llmClient := llmproxy.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout.Duration)
	llmRunner := llm.New(llmClient, rateLimiter, logger)
	dispatcher := broker.New(deps.Broker, deps.Trades, logger)

	processor := pipeline.New(
		rtAccessor, deps.Signals, deps.Trades, deps.MarketData,
		prefetchEngine, promptAssembler, llmRunner, dispatcher,
		cfg.Pipeline.LLMDeadline.Duration, logger,
	)
	consumer := pipeline.NewConsumer(deps.Queue, processor, cfg.Pipeline.TaskDeadline.Duration, logger)
	sched := scheduler.New(deps.Queue, cfg.Pipeline.SchedulerInterval.Duration, logger)
	fillMonitor := pipeline.NewFillMonitor(deps.Broker, deps.Trades, cfg.Pipeline.FillMonitorInterval.Duration, logger)
	archiverStage := pipeline.NewArchiver(deps.Archiver, tradeStore, signalStore, deps.LockManager, cfg.Pipeline.ArchiveRetentionDays, logger)

	deps.Orchestrator = pipeline.NewOrchestrator(consumer, sched, fillMonitor, archiverStage, cfg.Pipeline.ArchiveCron, logger)

	return deps, cleanup, nil
}
