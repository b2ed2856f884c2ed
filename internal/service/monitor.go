package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
)

// MonitorConfig tunes the Monitor.
type MonitorConfig struct {
	Interval         time.Duration
	ProfitTargetPct  decimal.Decimal
	LossThresholdPct decimal.Decimal // negative
	// CheckTimeout bounds listing the active set and, separately, each
	// position's check, so one slow position cannot starve the rest of the
	// cycle. Zero means no bound.
	CheckTimeout time.Duration
	// LockTTL is how long a per-asset lock is held when a LockManager is
	// configured.
	LockTTL time.Duration
}

// CycleReport summarises one monitor pass.
type CycleReport struct {
	Checked int // active positions examined
	Skipped int // no usable valuation, lock held or bad entry
	Closed  int
}

// Monitor revalues every active position on a fixed interval and closes the
// ones that crossed the profit target or loss threshold.
type Monitor struct {
	positions *PositionService
	valuation domain.ValuationClient
	locks     domain.LockManager // optional
	cfg       MonitorConfig
	logger    *slog.Logger
}

// NewMonitor creates a Monitor. locks may be nil for single-instance
// deployments.
func NewMonitor(positions *PositionService, valuation domain.ValuationClient, locks domain.LockManager, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Monitor{
		positions: positions,
		valuation: valuation,
		locks:     locks,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "monitor")),
	}
}

// Run performs a cycle immediately and then one every Interval until ctx is
// cancelled. A cycle in progress at cancellation finishes first.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.String("profit_target_pct", m.cfg.ProfitTargetPct.String()),
		slog.String("loss_threshold_pct", m.cfg.LossThresholdPct.String()),
	)
	for {
		rep, err := m.RunCycle(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "monitor cycle failed", slog.String("error", err.Error()))
		} else if rep.Checked > 0 {
			m.logger.InfoContext(ctx, "monitor cycle done",
				slog.Int("checked", rep.Checked),
				slog.Int("skipped", rep.Skipped),
				slog.Int("closed", rep.Closed),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Interval):
		}
	}
}

// RunCycle examines every active position once. It only fails when the
// active set cannot be listed; per-position problems are logged and
// counted as skips.
func (m *Monitor) RunCycle(parent context.Context) (CycleReport, error) {
	start := time.Now()
	defer func() { metrics.MonitorCycle.Observe(time.Since(start).Seconds()) }()

	base := context.WithoutCancel(parent)

	listCtx, cancel := m.bounded(base)
	active, err := m.positions.ListActive(listCtx)
	cancel()
	if err != nil {
		return CycleReport{}, err
	}
	metrics.ActivePositions.Set(float64(len(active)))

	var rep CycleReport
	for _, pos := range active {
		rep.Checked++
		ctx, cancel := m.bounded(base)
		res := m.check(ctx, pos)
		cancel()
		switch res {
		case checkClosed:
			rep.Closed++
		case checkSkipped:
			rep.Skipped++
		}
	}
	return rep, nil
}

func (m *Monitor) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.CheckTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.CheckTimeout)
	}
	return context.WithCancel(ctx)
}

type checkResult int

const (
	checkHeld checkResult = iota
	checkSkipped
	checkClosed
)

func (m *Monitor) check(ctx context.Context, pos domain.Position) checkResult {
	log := m.logger.With(
		slog.String("position_id", pos.ID),
		slog.String("asset_id", pos.AssetID),
	)

	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, "position:"+pos.AssetID, m.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.DebugContext(ctx, "position locked by another monitor")
			} else {
				log.WarnContext(ctx, "acquire position lock failed", slog.String("error", err.Error()))
			}
			return checkSkipped
		}
		defer unlock()
	}

	if !pos.EntryValue.IsPositive() {
		log.WarnContext(ctx, "entry value not positive, skipping", slog.String("entry_value", pos.EntryValue.String()))
		return checkSkipped
	}

	cur, err := m.valuation.Value(ctx, pos.AssetID)
	if err == nil && !cur.IsPositive() {
		err = domain.ErrValuationUnavailable
	}
	if err != nil {
		metrics.ValuationErrors.WithLabelValues("monitor").Inc()
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrValuationUnavailable) {
			level = slog.LevelDebug
		}
		log.Log(ctx, level, "valuation unavailable, skipping", slog.String("error", err.Error()))
		return checkSkipped
	}

	pct := pos.ChangePct(cur)
	var reason domain.CloseReason
	switch {
	case pct.GreaterThanOrEqual(m.cfg.ProfitTargetPct):
		reason = domain.CloseReasonProfitTarget
	case pct.LessThanOrEqual(m.cfg.LossThresholdPct):
		reason = domain.CloseReasonLossThreshold
	default:
		log.DebugContext(ctx, "position held",
			slog.String("current_value", cur.String()),
			slog.String("change_pct", pct.StringFixed(2)),
		)
		return checkHeld
	}

	if _, err := m.positions.Close(ctx, pos, cur, reason, pct); err != nil {
		if errors.Is(err, domain.ErrNotActive) {
			log.DebugContext(ctx, "position already closed")
			return checkHeld
		}
		log.ErrorContext(ctx, "close position failed", slog.String("error", err.Error()))
		return checkSkipped
	}
	return checkClosed
}
