// Package feed turns the upstream new-token websocket into a channel of
// domain.TokenEvent that survives disconnects.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpportal"
)

// Backoff bounds reconnect delays. The delay doubles after each failed
// session and resets once a session delivers a frame.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff waits 2s, doubling up to a minute.
var DefaultBackoff = Backoff{Initial: 2 * time.Second, Max: 60 * time.Second}

// PumpPortalFeed connects to PumpPortal, subscribes to token creation and
// publishes each event on Events. It reconnects until its context ends.
type PumpPortalFeed struct {
	url            string
	backoff        Backoff
	connectTimeout time.Duration
	out            chan domain.TokenEvent
	logger         *slog.Logger
	closeOnce      sync.Once
}

// NewPumpPortalFeed creates a feed for url with an output buffer of
// bufferSize events.
func NewPumpPortalFeed(url string, backoff Backoff, connectTimeout time.Duration, bufferSize int, logger *slog.Logger) *PumpPortalFeed {
	if backoff.Initial <= 0 {
		backoff = DefaultBackoff
	}
	if backoff.Max < backoff.Initial {
		backoff.Max = backoff.Initial
	}
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	return &PumpPortalFeed{
		url:            url,
		backoff:        backoff,
		connectTimeout: connectTimeout,
		out:            make(chan domain.TokenEvent, bufferSize),
		logger:         logger.With(slog.String("component", "pumpportal_feed")),
	}
}

// Events returns the output channel. It is closed when Run returns.
func (f *PumpPortalFeed) Events() <-chan domain.TokenEvent {
	return f.out
}

// Run blocks until ctx is cancelled, returning ctx.Err().
func (f *PumpPortalFeed) Run(ctx context.Context) error {
	defer f.closeOnce.Do(func() { close(f.out) })

	delay := f.backoff.Initial
	for {
		delivered, err := f.session(ctx)
		if ctx.Err() != nil {
			f.logger.Info("feed stopped")
			return ctx.Err()
		}
		if delivered {
			delay = f.backoff.Initial
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		metrics.FeedReconnects.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, f.backoff.Max)
	}
}

// session runs one connection. delivered reports whether at least one
// token reached the output channel.
func (f *PumpPortalFeed) session(ctx context.Context) (delivered bool, err error) {
	client := pumpportal.NewWSClient(f.url, f.logger)
	defer client.Close()

	connCtx, cancel := context.WithTimeout(ctx, f.connectTimeout)
	err = client.Connect(connCtx)
	cancel()
	if err != nil {
		return false, err
	}
	if err := client.Subscribe(pumpportal.SubscribeNewToken); err != nil {
		return false, err
	}
	f.logger.Info("subscribed to new token events", slog.String("url", f.url))

	err = client.Listen(ctx, func(ev domain.TokenEvent) {
		select {
		case f.out <- ev:
			delivered = true
		case <-ctx.Done():
		}
	})
	return delivered, err
}
