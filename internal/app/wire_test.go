package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/config"
	"github.com/alanyoungcy/pumpbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMemoryOnly(t *testing.T) {
	cfg := config.Defaults()

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.PositionStore)
	assert.NotNil(t, deps.AuditStore)
	assert.NotNil(t, deps.Valuation)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Live)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.Notifier)
	assert.Empty(t, deps.Checks)
}

func TestThresholdsFromDefaults(t *testing.T) {
	th := thresholds(config.Defaults().Strategy)

	assert.True(t, th.MinMarketCap.Equal(decimal.NewFromInt(10)))
	assert.True(t, th.MaxMarketCap.Equal(decimal.NewFromInt(50)))
	assert.True(t, th.MinLiquidity.Equal(decimal.NewFromInt(10)))
	assert.True(t, th.MaxInitialRatio.Equal(decimal.NewFromInt(15)))
	assert.True(t, th.UnitScale.Equal(decimal.NewFromInt(1_000_000_000)))
}

func TestStatusInfo(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "RUN"

	info := statusInfo(&cfg)
	assert.Equal(t, "run", info.Mode)
	assert.Equal(t, "memory", info.Storage)
	assert.Equal(t, 10, info.MaxActive)
	assert.Equal(t, "50", info.ProfitTargetPct)
	assert.Equal(t, "-50", info.LossThresholdPct)
	assert.Equal(t, "10s", info.MonitorInterval)
}

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, shutdownTimeout(0))
	assert.Equal(t, 3*time.Second, shutdownTimeout(3*time.Second))
}

func TestBuildValuation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/mintA":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"mint":"mintA","usd_market_cap":4200.5}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Defaults().Valuation
	cfg.BaseURL = srv.URL

	v := buildValuation(cfg, nil, discardLogger())

	got, err := v.Value(context.Background(), "mintA")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("4200.5")))

	_, err = v.Value(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrValuationUnavailable)
}
