package valuation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mapCache struct {
	mu   sync.Mutex
	vals map[string]decimal.Decimal
	at   map[string]time.Time
}

func newMapCache() *mapCache {
	return &mapCache{vals: map[string]decimal.Decimal{}, at: map[string]time.Time{}}
}

func (c *mapCache) SetValue(_ context.Context, id string, v decimal.Decimal, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[id] = v
	c.at[id] = time.Now()
	return nil
}

func (c *mapCache) GetValue(_ context.Context, id string) (decimal.Decimal, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[id]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return v, c.at[id], nil
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _ string) (decimal.Decimal, error) {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	})

	start := time.Now()
	_, err := WithTimeout(slow, 20*time.Millisecond).Value(context.Background(), "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithBreaker_OpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	failing := Func(func(context.Context, string) (decimal.Decimal, error) {
		calls.Add(1)
		return decimal.Zero, errors.New("boom")
	})

	c := WithBreaker(failing, BreakerConfig{Name: "test", ConsecutiveFailures: 3, OpenTimeout: time.Minute}, discard)
	for i := 0; i < 3; i++ {
		_, err := c.Value(context.Background(), "a")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrValuationUnavailable)
	}

	_, err := c.Value(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrValuationUnavailable)
	assert.EqualValues(t, 3, calls.Load(), "open breaker must not call through")
}

func TestWithBreaker_NotFoundDoesNotTrip(t *testing.T) {
	var calls atomic.Int32
	missing := Func(func(context.Context, string) (decimal.Decimal, error) {
		calls.Add(1)
		return decimal.Zero, domain.ErrValuationUnavailable
	})

	c := WithBreaker(missing, BreakerConfig{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute}, discard)
	for i := 0; i < 10; i++ {
		_, err := c.Value(context.Background(), "a")
		assert.ErrorIs(t, err, domain.ErrValuationUnavailable)
	}
	assert.EqualValues(t, 10, calls.Load())
}

func TestWithBreaker_PassesValue(t *testing.T) {
	c := WithBreaker(Func(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.NewFromInt(42), nil
	}), BreakerConfig{Name: "ok"}, discard)

	v, err := c.Value(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(42)))
}

func TestWithRateLimit_RespectsContext(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := WithRateLimit(Func(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.NewFromInt(1), nil
	}), lim)

	_, err := c.Value(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Value(ctx, "a")
	assert.Error(t, err)
}

func TestWithCache_ReadThrough(t *testing.T) {
	var calls atomic.Int32
	src := Func(func(context.Context, string) (decimal.Decimal, error) {
		calls.Add(1)
		return decimal.NewFromInt(7), nil
	})
	cache := newMapCache()
	c := WithCache(src, cache, time.Minute, discard)

	for i := 0; i < 3; i++ {
		v, err := c.Value(context.Background(), "a")
		require.NoError(t, err)
		assert.True(t, v.Equal(decimal.NewFromInt(7)))
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestWithCache_ExpiredEntryRefetched(t *testing.T) {
	var calls atomic.Int32
	src := Func(func(context.Context, string) (decimal.Decimal, error) {
		calls.Add(1)
		return decimal.NewFromInt(9), nil
	})
	cache := newMapCache()
	cache.vals["a"] = decimal.NewFromInt(1)
	cache.at["a"] = time.Now().Add(-time.Hour)

	v, err := WithCache(src, cache, time.Second, discard).Value(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(9)))
	assert.EqualValues(t, 1, calls.Load())
}

func TestWithCache_ErrorNotCached(t *testing.T) {
	src := Func(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, domain.ErrValuationUnavailable
	})
	cache := newMapCache()

	_, err := WithCache(src, cache, time.Minute, discard).Value(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrValuationUnavailable)
	_, _, err = cache.GetValue(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
