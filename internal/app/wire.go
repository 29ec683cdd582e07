package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/crownedlabs/tradetrack/internal/blob/s3"
	"github.com/crownedlabs/tradetrack/internal/cache/redis"
	"github.com/crownedlabs/tradetrack/internal/config"
	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/notify"
	"github.com/crownedlabs/tradetrack/internal/platform/ibgateway"
	"github.com/crownedlabs/tradetrack/internal/platform/polygon"
	"github.com/crownedlabs/tradetrack/internal/selector"
	"github.com/crownedlabs/tradetrack/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	PlanStore     domain.TradePlanStore
	EventStore    domain.ExitEventStore

	// Caches
	QuoteCache  domain.QuoteCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Raw clients, kept for health checks.
	Postgres *postgres.Client
	Redis    *redis.Client

	// Market data
	Market domain.MarketDataProvider
	Stream *polygon.Stream // nil when streaming is disabled

	// Broker (nil when reconciliation is disabled)
	Broker domain.BrokerClient

	// Blob storage (nil when archiving is disabled)
	Archiver *s3blob.Archiver

	// Contract selection
	Selector *selector.Selector

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.AutoMigrate {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.PlanStore = postgres.NewTradePlanStore(pool)
	deps.EventStore = postgres.NewExitEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Polygon market data ---
	apiKey, err := cfg.ResolvePolygonKey()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: polygon key: %w", err)
	}
	deps.Market = polygon.NewClient(polygon.ClientConfig{
		APIKey:        apiKey,
		BaseURL:       cfg.Polygon.BaseURL,
		Timeout:       cfg.Polygon.Timeout.Duration,
		MaxChainPages: cfg.Polygon.MaxChainPages,
	})

	// Streamed trades land in the same cache the tracker reads, so a healthy
	// stream keeps quote lookups off the REST API.
	if cfg.Polygon.Stream {
		quoteTTL := cfg.Tracker.QuoteTTL.Duration
		onTrade := func(ctx context.Context, ticker string, price float64) {
			if err := deps.QuoteCache.Set(ctx, ticker, price, quoteTTL); err != nil {
				logger.WarnContext(ctx, "stream quote cache write failed",
					slog.String("ticker", ticker),
					slog.String("error", err.Error()),
				)
			}
		}
		deps.Stream = polygon.NewStream(cfg.Polygon.WSURL, apiKey, cfg.Polygon.StreamTopics, onTrade, logger)
	}

	// --- Broker gateway ---
	if cfg.Broker.Enabled {
		deps.Broker = ibgateway.NewClient(ibgateway.ClientConfig{
			BaseURL: cfg.Broker.BaseURL,
			Account: cfg.Broker.Account,
			Timeout: cfg.Broker.Timeout.Duration,
		})
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.PositionStore,
			deps.EventStore,
			cfg.S3.Prefix,
			logger,
		)
	}

	// --- Contract selection ---
	deps.Selector = selector.New(ladderFromConfig(cfg.Selector), logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	return deps, cleanup, nil
}

// ladderFromConfig converts per-horizon config overrides to selector levels.
// Horizons without an override keep the built-in ladder.
func ladderFromConfig(sc config.SelectorConfig) selector.Ladder {
	ladder := selector.Ladder{}
	for horizon, levels := range sc.Horizons() {
		converted := make([]selector.Level, 0, len(levels))
		for _, l := range levels {
			windows := make([]selector.DTEWindow, 0, len(l.DTEWindows))
			for _, w := range l.DTEWindows {
				if len(w) != 2 {
					continue
				}
				windows = append(windows, selector.DTEWindow{Min: w[0], Max: w[1]})
			}
			converted = append(converted, selector.Level{
				DeltaMin:         l.DeltaMin,
				DeltaMax:         l.DeltaMax,
				MinOpenInterest:  l.MinOpenInterest,
				MaxSpread:        l.MaxSpread,
				MoneynessBandPct: l.MoneynessBandPct,
				DTEWindows:       windows,
			})
		}
		ladder[horizon] = converted
	}
	return ladder
}
