// Package config defines the top-level configuration for the pump.fun sniper
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/pipeline"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PUMPBOT_* environment variables.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Valuation ValuationConfig `toml:"valuation"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Storage   StorageConfig   `toml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig holds the new-token websocket settings.
type FeedConfig struct {
	URL              string   `toml:"url"`
	ConnectTimeout   duration `toml:"connect_timeout"`
	ReconnectInitial duration `toml:"reconnect_initial"`
	ReconnectMax     duration `toml:"reconnect_max"`
	BufferSize       int      `toml:"buffer_size"`
	// EventTimeout bounds the handling of one event, valuation lookup
	// included.
	EventTimeout duration `toml:"event_timeout"`
}

// ValuationConfig holds the pump.fun valuation client and its guards.
type ValuationConfig struct {
	BaseURL            string   `toml:"base_url"`
	Timeout            duration `toml:"timeout"`
	RatePerSecond      float64  `toml:"rate_per_second"`
	Burst              int      `toml:"burst"`
	BreakerFailures    int      `toml:"breaker_failures"`
	BreakerOpenTimeout duration `toml:"breaker_open_timeout"`
	// CacheTTL enables the Redis read-through cache when > 0 and Redis is
	// enabled.
	CacheTTL duration `toml:"cache_ttl"`
}

// StrategyConfig holds the admission filter limits and the position
// lifecycle constants. Market cap and liquidity share one unit; the initial
// buy is UnitScale times smaller.
type StrategyConfig struct {
	MaxActive        int     `toml:"max_active"`
	MinMarketCap     float64 `toml:"min_market_cap"`
	MaxMarketCap     float64 `toml:"max_market_cap"`
	MinLiquidity     float64 `toml:"min_liquidity"`
	MaxInitialRatio  float64 `toml:"max_initial_ratio"` // percent
	UnitScale        float64 `toml:"unit_scale"`
	TradeAmount      float64 `toml:"trade_amount"`
	ProfitTargetPct  float64 `toml:"profit_target_pct"`
	LossThresholdPct float64 `toml:"loss_threshold_pct"` // negative
}

// MonitorConfig holds the monitor loop settings.
type MonitorConfig struct {
	Interval     duration `toml:"interval"`
	CheckTimeout duration `toml:"check_timeout"`
	LockTTL      duration `toml:"lock_ttl"`
}

// StorageConfig selects the position store.
type StorageConfig struct {
	Driver string `toml:"driver"` // "memory" or "postgres"
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters. Redis backs the monitor
// lock, the valuation cache and the position event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for the closed
// position archive.
type S3Config struct {
	Enabled             bool   `toml:"enabled"`
	Endpoint            string `toml:"endpoint"`
	Region              string `toml:"region"`
	Bucket              string `toml:"bucket"`
	AccessKey           string `toml:"access_key"`
	SecretKey           string `toml:"secret_key"`
	UseSSL              bool   `toml:"use_ssl"`
	ForcePathStyle      bool   `toml:"force_path_style"`
	Prefix              string `toml:"prefix"`
	ArchiveCron         string `toml:"archive_cron"`
	ArchiveLookbackDays int    `toml:"archive_lookback_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`    // empty disables auth
	RateLimit       float64  `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int      `toml:"rate_burst"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials. New-token messages go
// to TelegramChatID; open and close messages go to TelegramActionChatID when
// set.
type NotifyConfig struct {
	TelegramToken        string   `toml:"telegram_token"`
	TelegramChatID       string   `toml:"telegram_chat_id"`
	TelegramActionChatID string   `toml:"telegram_action_chat_id"`
	DiscordWebhookURL    string   `toml:"discord_webhook_url"`
	Events               []string `toml:"events"`
	Timeout              duration `toml:"timeout"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:              "wss://pumpportal.fun/api/data",
			ConnectTimeout:   duration{10 * time.Second},
			ReconnectInitial: duration{2 * time.Second},
			ReconnectMax:     duration{time.Minute},
			BufferSize:       256,
			EventTimeout:     duration{15 * time.Second},
		},
		Valuation: ValuationConfig{
			BaseURL:            "https://frontend-api-v3.pump.fun",
			Timeout:            duration{5 * time.Second},
			RatePerSecond:      5,
			Burst:              5,
			BreakerFailures:    5,
			BreakerOpenTimeout: duration{30 * time.Second},
			CacheTTL:           duration{5 * time.Second},
		},
		Strategy: StrategyConfig{
			MaxActive:        10,
			MinMarketCap:     10,
			MaxMarketCap:     50,
			MinLiquidity:     10,
			MaxInitialRatio:  15,
			UnitScale:        1e9,
			TradeAmount:      0.01,
			ProfitTargetPct:  50,
			LossThresholdPct: -50,
		},
		Monitor: MonitorConfig{
			Interval:     duration{10 * time.Second},
			CheckTimeout: duration{30 * time.Second},
			LockTTL:      duration{30 * time.Second},
		},
		Storage: StorageConfig{Driver: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "pumpbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "pumpbot:",
		},
		S3: S3Config{
			Enabled:             false,
			Endpoint:            "http://localhost:9000",
			Region:              "us-east-1",
			Bucket:              "pumpbot-data",
			ForcePathStyle:      true,
			Prefix:              "archive",
			ArchiveCron:         "15 0 * * *",
			ArchiveLookbackDays: 3,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events:  []string{"token_evaluated", "position_opened", "position_closed"},
			Timeout: duration{10 * time.Second},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true,
	"ingest":  true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	"token_evaluated": true,
	"position_opened": true,
	"position_closed": true,
}

// NeedsPostgres reports whether positions are stored in PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return strings.EqualFold(c.Storage.Driver, "postgres")
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, ingest, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	}
	if c.Feed.ConnectTimeout.Duration <= 0 {
		errs = append(errs, "feed: connect_timeout must be > 0")
	}
	if c.Feed.ReconnectInitial.Duration <= 0 || c.Feed.ReconnectMax.Duration < c.Feed.ReconnectInitial.Duration {
		errs = append(errs, "feed: need 0 < reconnect_initial <= reconnect_max")
	}
	if c.Feed.BufferSize < 0 {
		errs = append(errs, "feed: buffer_size must be >= 0")
	}
	if c.Feed.EventTimeout.Duration <= 0 {
		errs = append(errs, "feed: event_timeout must be > 0")
	}

	// Valuation
	if c.Valuation.BaseURL == "" {
		errs = append(errs, "valuation: base_url must not be empty")
	}
	if c.Valuation.Timeout.Duration <= 0 {
		errs = append(errs, "valuation: timeout must be > 0")
	}
	if c.Valuation.RatePerSecond < 0 {
		errs = append(errs, "valuation: rate_per_second must be >= 0 (0 disables)")
	}
	if c.Valuation.RatePerSecond > 0 && c.Valuation.Burst < 1 {
		errs = append(errs, "valuation: burst must be >= 1 when rate limiting")
	}
	if c.Valuation.BreakerFailures < 0 {
		errs = append(errs, "valuation: breaker_failures must be >= 0 (0 disables)")
	}
	if c.Valuation.CacheTTL.Duration < 0 {
		errs = append(errs, "valuation: cache_ttl must be >= 0")
	}

	// Strategy
	s := c.Strategy
	if s.MaxActive < 1 {
		errs = append(errs, "strategy: max_active must be >= 1")
	}
	if s.MinMarketCap < 0 || s.MinLiquidity < 0 || s.MaxInitialRatio < 0 {
		errs = append(errs, "strategy: min_market_cap, min_liquidity and max_initial_ratio must be >= 0")
	}
	if s.MinMarketCap > s.MaxMarketCap {
		errs = append(errs, fmt.Sprintf("strategy: min_market_cap (%g) exceeds max_market_cap (%g)", s.MinMarketCap, s.MaxMarketCap))
	}
	if s.UnitScale <= 0 {
		errs = append(errs, "strategy: unit_scale must be > 0")
	}
	if s.TradeAmount <= 0 {
		errs = append(errs, "strategy: trade_amount must be > 0")
	}
	if s.ProfitTargetPct <= 0 {
		errs = append(errs, "strategy: profit_target_pct must be > 0")
	}
	if s.LossThresholdPct >= 0 {
		errs = append(errs, "strategy: loss_threshold_pct must be < 0")
	}

	// Monitor
	if c.Monitor.Interval.Duration < time.Second {
		errs = append(errs, "monitor: interval must be >= 1s")
	}
	if c.Monitor.CheckTimeout.Duration <= 0 {
		errs = append(errs, "monitor: check_timeout must be > 0")
	}
	if c.Redis.Enabled && c.Monitor.LockTTL.Duration <= 0 {
		errs = append(errs, "monitor: lock_ttl must be > 0 when redis is enabled")
	}

	// Storage
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
		if mode == "ingest" || mode == "monitor" || mode == "server" {
			errs = append(errs, fmt.Sprintf("storage: mode %q runs as a separate process and needs driver postgres", c.Mode))
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: memory, postgres)", c.Storage.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ArchiveCron == "" {
			errs = append(errs, "s3: archive_cron must not be empty")
		} else if err := pipeline.ValidateCron(c.S3.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("s3: archive_cron %q: %v", c.S3.ArchiveCron, err))
		}
		if c.S3.ArchiveLookbackDays < 1 {
			errs = append(errs, "s3: archive_lookback_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0 (0 disables)")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			errs = append(errs, "server: rate_burst must be >= 1 when rate limiting")
		}
	}

	// Notify
	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" && c.Notify.TelegramActionChatID == "" {
		errs = append(errs, "notify: telegram_token needs telegram_chat_id or telegram_action_chat_id")
	}
	if c.Notify.Timeout.Duration <= 0 {
		errs = append(errs, "notify: timeout must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
