package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/config"
)

func TestAuxiliarySwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	fn := auxiliary(context.Background(), logger, "archiver", func() error {
		return errors.New("bad cron")
	})
	assert.NoError(t, fn())
	assert.Contains(t, buf.String(), `"task":"archiver"`)
	assert.Contains(t, buf.String(), "bad cron")

	buf.Reset()
	fn = auxiliary(context.Background(), logger, "ws_hub", func() error { return context.Canceled })
	assert.NoError(t, fn())
	assert.Empty(t, buf.String())
}

// busyPort holds a port so the API server cannot bind it.
func busyPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestMonitorModeOutlivesServerBindFailure(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Enabled = true
	cfg.Server.Port = busyPort(t)

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = New(&cfg, discardLogger()).MonitorMode(ctx, deps)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServerModeFailsOnBindFailure(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = busyPort(t)

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = New(&cfg, discardLogger()).ServerMode(ctx, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: listen")
}
