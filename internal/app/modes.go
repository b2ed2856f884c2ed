package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pumpbot/internal/feed"
	"github.com/alanyoungcy/pumpbot/internal/filter"
	"github.com/alanyoungcy/pumpbot/internal/pipeline"
	"github.com/alanyoungcy/pumpbot/internal/server"
	"github.com/alanyoungcy/pumpbot/internal/server/handler"
	"github.com/alanyoungcy/pumpbot/internal/server/ws"
	"github.com/alanyoungcy/pumpbot/internal/service"
)

// RunMode runs ingestion and monitoring in one process over a shared store,
// plus the HTTP server and archiver when enabled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	g, ctx := errgroup.WithContext(ctx)
	positions := a.positionService(deps)

	a.startIngestion(ctx, g, deps, positions)
	a.startMonitor(ctx, g, deps, positions)
	a.startArchiver(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// IngestMode runs only the ingestion loop. Pair it with a monitor process
// on the same database.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIngestion(ctx, g, deps, a.positionService(deps))
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs only the monitor loop, plus the archiver when enabled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMonitor(ctx, g, deps, a.positionService(deps))
	a.startArchiver(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the read-only API and nothing else.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, true)

	return g.Wait()
}

// auxiliary wraps a goroutine that must not stop the mode's loops: its
// failure is logged and the group carries on.
func auxiliary(ctx context.Context, logger *slog.Logger, name string, fn func() error) func() error {
	return func() error {
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "auxiliary task stopped",
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}

func (a *App) positionService(deps *Dependencies) *service.PositionService {
	return service.NewPositionService(
		deps.PositionStore,
		deps.AuditStore,
		deps.SignalBus,
		deps.Notifier,
		service.PositionConfig{
			MaxActive:       a.cfg.Strategy.MaxActive,
			TradeAmount:     decimal.NewFromFloat(a.cfg.Strategy.TradeAmount),
			ProfitTargetPct: decimal.NewFromFloat(a.cfg.Strategy.ProfitTargetPct),
		},
		a.logger,
	)
}

// startIngestion adds the feed and the ingestor to g. An event being handled
// at shutdown finishes; buffered events are dropped.
func (a *App) startIngestion(ctx context.Context, g *errgroup.Group, deps *Dependencies, positions *service.PositionService) {
	fc := a.cfg.Feed
	pf := feed.NewPumpPortalFeed(
		fc.URL,
		feed.Backoff{Initial: fc.ReconnectInitial.Duration, Max: fc.ReconnectMax.Duration},
		fc.ConnectTimeout.Duration,
		fc.BufferSize,
		a.logger,
	)

	ingestor := service.NewIngestor(
		filter.New(thresholds(a.cfg.Strategy)),
		positions,
		deps.Valuation,
		deps.AuditStore,
		deps.Notifier,
		service.IngestConfig{
			MaxActive:    a.cfg.Strategy.MaxActive,
			EventTimeout: fc.EventTimeout.Duration,
		},
		a.logger,
	)

	g.Go(func() error { return pf.Run(ctx) })
	g.Go(func() error { return ingestor.Run(ctx, pf.Events()) })
}

func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies, positions *service.PositionService) {
	mc := a.cfg.Monitor
	monitor := service.NewMonitor(positions, deps.Valuation, deps.LockManager, service.MonitorConfig{
		Interval:         mc.Interval.Duration,
		ProfitTargetPct:  decimal.NewFromFloat(a.cfg.Strategy.ProfitTargetPct),
		LossThresholdPct: decimal.NewFromFloat(a.cfg.Strategy.LossThresholdPct),
		CheckTimeout:     mc.CheckTimeout.Duration,
		LockTTL:          mc.LockTTL.Duration,
	}, a.logger)

	g.Go(func() error { return monitor.Run(ctx) })
}

// startArchiver schedules the closed-position export when S3 is enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.S3.ArchiveLookbackDays, a.logger)
	g.Go(auxiliary(ctx, a.logger, "archiver", func() error {
		return archiver.RunCron(ctx, a.cfg.S3.ArchiveCron)
	}))
}

// startHTTPServer adds the API server when server.enabled is set.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}
	a.startServer(ctx, g, deps, false)
}

// startServer adds the API server goroutine and a watcher that shuts it down
// gracefully when ctx is cancelled. A listen failure ends the group only when
// serving is the mode's primary job.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, primary bool) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		Positions: handler.NewPositionHandler(deps.PositionStore, a.logger),
		Status:    handler.NewStatusHandler(statusInfo(a.cfg), deps.PositionStore, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventsHandler(deps.SignalBus, service.PositionsChannel, a.logger)
	}
	if deps.Live != nil {
		hub := ws.NewHub(deps.Live, ws.Config{
			Channels: []string{service.PositionsChannel},
			Mode:     a.cfg.Mode,
		}, a.logger)
		handlers.Live = hub
		g.Go(auxiliary(ctx, a.logger, "ws_hub", func() error { return hub.Run(ctx) }))
	}

	srv := server.NewServer(server.Config{
		Port:      a.cfg.Server.Port,
		APIKey:    a.cfg.Server.APIKey,
		RateLimit: a.cfg.Server.RateLimit,
		RateBurst: a.cfg.Server.RateBurst,
	}, handlers, a.logger)

	if primary {
		g.Go(srv.Start)
	} else {
		g.Go(auxiliary(ctx, a.logger, "http_server", srv.Start))
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout(a.cfg.Server.ShutdownTimeout.Duration))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})
}
