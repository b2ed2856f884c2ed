package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// ValuationCache implements domain.ValuationCache. Each asset is a hash at
// "valuation:{assetID}" with fields "value" (decimal string) and "ts" (unix
// nanoseconds); the key expires after the TTL passed to SetValue.
type ValuationCache struct {
	c *Client
}

// NewValuationCache creates a ValuationCache backed by c.
func NewValuationCache(c *Client) *ValuationCache {
	return &ValuationCache{c: c}
}

func (vc *ValuationCache) key(assetID string) string {
	return vc.c.Key("valuation:", assetID)
}

func (vc *ValuationCache) SetValue(ctx context.Context, assetID string, value decimal.Decimal, ttl time.Duration) error {
	k := vc.key(assetID)
	pipe := vc.c.rdb.TxPipeline()
	pipe.HSet(ctx, k, map[string]any{
		"value": value.String(),
		"ts":    strconv.FormatInt(time.Now().UnixNano(), 10),
	})
	if ttl > 0 {
		pipe.PExpire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set valuation %s: %w", assetID, err)
	}
	return nil
}

// GetValue returns the cached value and when it was stored, or
// domain.ErrNotFound.
func (vc *ValuationCache) GetValue(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error) {
	vals, err := vc.c.rdb.HGetAll(ctx, vc.key(assetID)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get valuation %s: %w", assetID, err)
	}
	raw, ok := vals["value"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse valuation %s: %w", assetID, err)
	}
	var ts time.Time
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, n)
	}
	return v, ts, nil
}

var _ domain.ValuationCache = (*ValuationCache)(nil)
