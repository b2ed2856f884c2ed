package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	s3blob "github.com/alanyoungcy/pumpbot/internal/blob/s3"
	"github.com/alanyoungcy/pumpbot/internal/cache/redis"
	"github.com/alanyoungcy/pumpbot/internal/config"
	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/filter"
	"github.com/alanyoungcy/pumpbot/internal/notify"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpfun"
	"github.com/alanyoungcy/pumpbot/internal/server/handler"
	"github.com/alanyoungcy/pumpbot/internal/server/ws"
	"github.com/alanyoungcy/pumpbot/internal/store/memory"
	"github.com/alanyoungcy/pumpbot/internal/store/postgres"
	"github.com/alanyoungcy/pumpbot/internal/valuation"
)

// PositionStore is a position store that can also list closed positions by
// close time for the archive.
type PositionStore interface {
	domain.PositionStore
	s3blob.ClosedSource
}

// Dependencies bundles every dependency the modes need. Optional
// dependencies are nil when their backend is disabled.
type Dependencies struct {
	PositionStore PositionStore
	AuditStore    domain.AuditStore

	// Redis-backed, optional.
	LockManager    domain.LockManager
	SignalBus      domain.SignalBus
	Live           ws.Subscriber
	ValuationCache domain.ValuationCache

	// Valuation is the pump.fun client wrapped in timeout, breaker, rate
	// limit and cache decorators.
	Valuation domain.ValuationClient

	// S3-backed, optional.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Checks are the dependency probes served by /api/health.
	Checks map[string]handler.Check
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
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Position store ---
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		deps.PositionStore = postgres.NewPositionStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	} else {
		deps.PositionStore = memory.NewPositionStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient)
		deps.SignalBus = bus
		deps.Live = bus
		deps.ValuationCache = redis.NewValuationCache(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- Valuation ---
	deps.Valuation = buildValuation(cfg.Valuation, deps.ValuationCache, logger)

	// --- S3 archive ---
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.PositionStore, deps.AuditStore, cfg.S3.Prefix)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			cfg.Notify.TelegramActionChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Timeout.Duration, logger)
	}

	return deps, cleanup, nil
}

// buildValuation wraps the pump.fun client. Decorators apply inside out:
// the cache is consulted first, then the rate limiter, then the breaker,
// and each upstream call is bounded by the timeout.
func buildValuation(cfg config.ValuationConfig, cache domain.ValuationCache, logger *slog.Logger) domain.ValuationClient {
	var v domain.ValuationClient = pumpfun.NewClient(cfg.BaseURL, cfg.Timeout.Duration)
	v = valuation.WithTimeout(v, cfg.Timeout.Duration)

	if cfg.BreakerFailures > 0 {
		v = valuation.WithBreaker(v, valuation.BreakerConfig{
			Name:                "pumpfun",
			ConsecutiveFailures: uint32(cfg.BreakerFailures),
			OpenTimeout:         cfg.BreakerOpenTimeout.Duration,
		}, logger)
	}
	if cfg.RatePerSecond > 0 {
		v = valuation.WithRateLimit(v, rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst))
	}
	if cache != nil && cfg.CacheTTL.Duration > 0 {
		v = valuation.WithCache(v, cache, cfg.CacheTTL.Duration, logger)
	}
	return v
}

// thresholds converts the strategy section into filter limits.
func thresholds(s config.StrategyConfig) filter.Thresholds {
	return filter.Thresholds{
		MinMarketCap:    decimal.NewFromFloat(s.MinMarketCap),
		MaxMarketCap:    decimal.NewFromFloat(s.MaxMarketCap),
		MinLiquidity:    decimal.NewFromFloat(s.MinLiquidity),
		MaxInitialRatio: decimal.NewFromFloat(s.MaxInitialRatio),
		UnitScale:       decimal.NewFromFloat(s.UnitScale),
	}
}

// statusInfo is the static part of GET /api/status.
func statusInfo(cfg *config.Config) handler.StatusInfo {
	th := thresholds(cfg.Strategy)
	return handler.StatusInfo{
		Mode:             strings.ToLower(cfg.Mode),
		Storage:          strings.ToLower(cfg.Storage.Driver),
		MaxActive:        cfg.Strategy.MaxActive,
		MinMarketCap:     th.MinMarketCap.String(),
		MaxMarketCap:     th.MaxMarketCap.String(),
		MinLiquidity:     th.MinLiquidity.String(),
		MaxInitialRatio:  th.MaxInitialRatio.String(),
		ProfitTargetPct:  decimal.NewFromFloat(cfg.Strategy.ProfitTargetPct).String(),
		LossThresholdPct: decimal.NewFromFloat(cfg.Strategy.LossThresholdPct).String(),
		MonitorInterval:  cfg.Monitor.Interval.Duration.String(),
	}
}

// shutdownTimeout falls back to 10s when unset.
func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
