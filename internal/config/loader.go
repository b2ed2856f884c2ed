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
// built-in defaults, applies PUMPBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PUMPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "PUMPBOT_FEED_URL")
	setDuration(&cfg.Feed.ConnectTimeout, "PUMPBOT_FEED_CONNECT_TIMEOUT")
	setDuration(&cfg.Feed.ReconnectInitial, "PUMPBOT_FEED_RECONNECT_INITIAL")
	setDuration(&cfg.Feed.ReconnectMax, "PUMPBOT_FEED_RECONNECT_MAX")
	setInt(&cfg.Feed.BufferSize, "PUMPBOT_FEED_BUFFER_SIZE")
	setDuration(&cfg.Feed.EventTimeout, "PUMPBOT_FEED_EVENT_TIMEOUT")

	// ── Valuation ──
	setStr(&cfg.Valuation.BaseURL, "PUMPBOT_VALUATION_BASE_URL")
	setDuration(&cfg.Valuation.Timeout, "PUMPBOT_VALUATION_TIMEOUT")
	setFloat64(&cfg.Valuation.RatePerSecond, "PUMPBOT_VALUATION_RATE_PER_SECOND")
	setInt(&cfg.Valuation.Burst, "PUMPBOT_VALUATION_BURST")
	setInt(&cfg.Valuation.BreakerFailures, "PUMPBOT_VALUATION_BREAKER_FAILURES")
	setDuration(&cfg.Valuation.BreakerOpenTimeout, "PUMPBOT_VALUATION_BREAKER_OPEN_TIMEOUT")
	setDuration(&cfg.Valuation.CacheTTL, "PUMPBOT_VALUATION_CACHE_TTL")

	// ── Strategy ──
	setInt(&cfg.Strategy.MaxActive, "PUMPBOT_STRATEGY_MAX_ACTIVE")
	setFloat64(&cfg.Strategy.MinMarketCap, "PUMPBOT_STRATEGY_MIN_MARKET_CAP")
	setFloat64(&cfg.Strategy.MaxMarketCap, "PUMPBOT_STRATEGY_MAX_MARKET_CAP")
	setFloat64(&cfg.Strategy.MinLiquidity, "PUMPBOT_STRATEGY_MIN_LIQUIDITY")
	setFloat64(&cfg.Strategy.MaxInitialRatio, "PUMPBOT_STRATEGY_MAX_INITIAL_RATIO")
	setFloat64(&cfg.Strategy.UnitScale, "PUMPBOT_STRATEGY_UNIT_SCALE")
	setFloat64(&cfg.Strategy.TradeAmount, "PUMPBOT_STRATEGY_TRADE_AMOUNT")
	setFloat64(&cfg.Strategy.ProfitTargetPct, "PUMPBOT_STRATEGY_PROFIT_TARGET_PCT")
	setFloat64(&cfg.Strategy.LossThresholdPct, "PUMPBOT_STRATEGY_LOSS_THRESHOLD_PCT")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "PUMPBOT_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.CheckTimeout, "PUMPBOT_MONITOR_CHECK_TIMEOUT")
	setDuration(&cfg.Monitor.LockTTL, "PUMPBOT_MONITOR_LOCK_TTL")

	// ── Storage / Postgres ──
	setStr(&cfg.Storage.Driver, "PUMPBOT_STORAGE_DRIVER")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "PUMPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PUMPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PUMPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PUMPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PUMPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PUMPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PUMPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PUMPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PUMPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PUMPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PUMPBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PUMPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PUMPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PUMPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PUMPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PUMPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PUMPBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PUMPBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PUMPBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PUMPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PUMPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PUMPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PUMPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PUMPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PUMPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PUMPBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "PUMPBOT_S3_PREFIX")
	setStr(&cfg.S3.ArchiveCron, "PUMPBOT_S3_ARCHIVE_CRON")
	setInt(&cfg.S3.ArchiveLookbackDays, "PUMPBOT_S3_ARCHIVE_LOOKBACK_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PUMPBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PUMPBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PUMPBOT_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimit, "PUMPBOT_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "PUMPBOT_SERVER_RATE_BURST")
	setDuration(&cfg.Server.ShutdownTimeout, "PUMPBOT_SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PUMPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PUMPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramActionChatID, "PUMPBOT_NOTIFY_TELEGRAM_ACTION_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PUMPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PUMPBOT_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Timeout, "PUMPBOT_NOTIFY_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "PUMPBOT_MODE")
	setStr(&cfg.LogLevel, "PUMPBOT_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
