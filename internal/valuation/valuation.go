// Package valuation composes domain.ValuationClient decorators. The monitor
// and ingestor see one client; timeouts, circuit breaking, rate limiting and
// caching are stacked around the platform client at wiring time.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Func adapts a function to domain.ValuationClient.
type Func func(ctx context.Context, assetID string) (decimal.Decimal, error)

func (f Func) Value(ctx context.Context, assetID string) (decimal.Decimal, error) {
	return f(ctx, assetID)
}

// WithTimeout bounds every call to next by d.
func WithTimeout(next domain.ValuationClient, d time.Duration) domain.ValuationClient {
	return Func(func(ctx context.Context, assetID string) (decimal.Decimal, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Value(ctx, assetID)
	})
}

// BreakerConfig tunes WithBreaker.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // trips after this many failures in a row
	OpenTimeout         time.Duration // how long the breaker stays open
	Interval            time.Duration // closed-state counter reset period
}

// WithBreaker stops calling next after repeated failures. An asset that is
// simply not found does not count as a failure. While the breaker is open
// calls fail fast with an error matching domain.ErrValuationUnavailable.
func WithBreaker(next domain.ValuationClient, cfg BreakerConfig, logger *slog.Logger) domain.ValuationClient {
	trips := cfg.ConsecutiveFailures
	if trips == 0 {
		trips = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     cfg.Name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrValuationUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("valuation breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return Func(func(ctx context.Context, assetID string) (decimal.Decimal, error) {
		out, err := cb.Execute(func() (any, error) {
			return next.Value(ctx, assetID)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrValuationUnavailable, err)
		}
		if err != nil {
			return decimal.Zero, err
		}
		return out.(decimal.Decimal), nil
	})
}

// WithRateLimit waits on limiter before each call to next.
func WithRateLimit(next domain.ValuationClient, limiter *rate.Limiter) domain.ValuationClient {
	return Func(func(ctx context.Context, assetID string) (decimal.Decimal, error) {
		if err := limiter.Wait(ctx); err != nil {
			return decimal.Zero, fmt.Errorf("valuation: rate limit: %w", err)
		}
		return next.Value(ctx, assetID)
	})
}

// WithCache serves values younger than ttl from cache and stores fresh
// lookups. Cache errors are logged and bypassed.
func WithCache(next domain.ValuationClient, cache domain.ValuationCache, ttl time.Duration, logger *slog.Logger) domain.ValuationClient {
	return Func(func(ctx context.Context, assetID string) (decimal.Decimal, error) {
		v, at, err := cache.GetValue(ctx, assetID)
		switch {
		case err == nil && time.Since(at) < ttl:
			return v, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			logger.WarnContext(ctx, "valuation cache read failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}

		v, err = next.Value(ctx, assetID)
		if err != nil {
			return decimal.Zero, err
		}
		if err := cache.SetValue(ctx, assetID, v, ttl); err != nil {
			logger.WarnContext(ctx, "valuation cache write failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
		return v, nil
	})
}
