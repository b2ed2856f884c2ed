// Package service holds the two trading loops and the position lifecycle
// they share.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
	"github.com/alanyoungcy/pumpbot/internal/notify"
)

// PositionsChannel is the bus channel and stream that carry position
// lifecycle events.
const PositionsChannel = "positions"

// PositionConfig holds the lifecycle constants.
type PositionConfig struct {
	MaxActive       int
	TradeAmount     decimal.Decimal
	ProfitTargetPct decimal.Decimal
}

// PositionService opens and closes positions and emits the side effects
// (audit entry, bus event, notification) that go with each transition.
type PositionService struct {
	positions domain.PositionStore
	audit     domain.AuditStore
	bus       domain.SignalBus // optional
	notifier  *notify.Notifier // optional
	cfg       PositionConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewPositionService creates a PositionService. bus and notifier may be nil.
func NewPositionService(
	positions domain.PositionStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	cfg PositionConfig,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		audit:     audit,
		bus:       bus,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// positionEvent is the JSON published on PositionsChannel.
type positionEvent struct {
	Event       string    `json:"event"`
	PositionID  string    `json:"position_id"`
	AssetID     string    `json:"asset_id"`
	Symbol      string    `json:"symbol,omitempty"`
	EntryValue  string    `json:"entry_value"`
	ExitValue   string    `json:"exit_value,omitempty"`
	ChangePct   string    `json:"change_pct,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
	At          time.Time `json:"at"`
}

// Open records a new active position for ev at entry. The store enforces
// the active cap and per-asset uniqueness; ErrCapReached and
// ErrAlreadyActive come back unwrapped so callers can treat them as no-ops.
func (s *PositionService) Open(ctx context.Context, ev domain.TokenEvent, entry decimal.Decimal) (domain.Position, error) {
	if !entry.IsPositive() {
		return domain.Position{}, fmt.Errorf("position_service: open %s: entry value %s is not positive", ev.AssetID, entry)
	}

	now := s.now().UTC()
	pos := domain.Position{
		ID:          uuid.NewString(),
		AssetID:     ev.AssetID,
		Name:        ev.Name,
		Symbol:      ev.Symbol,
		EntryValue:  entry,
		TargetValue: domain.TargetFor(entry, s.cfg.ProfitTargetPct),
		Quantity:    s.cfg.TradeAmount,
		Status:      domain.PositionStatusActive,
		OpenedAt:    now,
	}

	if err := s.positions.Open(ctx, pos, s.cfg.MaxActive); err != nil {
		if errors.Is(err, domain.ErrCapReached) || errors.Is(err, domain.ErrAlreadyActive) {
			return domain.Position{}, err
		}
		return domain.Position{}, fmt.Errorf("position_service: open %s: %w", ev.AssetID, err)
	}
	metrics.PositionsOpened.Inc()

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("asset_id", pos.AssetID),
		slog.String("symbol", pos.Symbol),
		slog.String("entry_value", pos.EntryValue.String()),
		slog.String("target_value", pos.TargetValue.String()),
	)

	s.record(ctx, notify.EventPositionOpened, positionEvent{
		Event:      notify.EventPositionOpened,
		PositionID: pos.ID,
		AssetID:    pos.AssetID,
		Symbol:     pos.Symbol,
		EntryValue: pos.EntryValue.String(),
		At:         now,
	})
	title, body := notify.PositionOpened(pos)
	s.notify(ctx, notify.EventPositionOpened, title, body)

	return pos, nil
}

// Close transitions pos to closed at exit. It returns domain.ErrNotActive
// when the position was already closed, which callers treat as a no-op.
func (s *PositionService) Close(ctx context.Context, pos domain.Position, exit decimal.Decimal, reason domain.CloseReason, changePct decimal.Decimal) (domain.Position, error) {
	closed, err := s.positions.Close(ctx, pos.ID, exit, reason, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotActive) {
			return domain.Position{}, err
		}
		return domain.Position{}, fmt.Errorf("position_service: close %s: %w", pos.AssetID, err)
	}
	metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", closed.ID),
		slog.String("asset_id", closed.AssetID),
		slog.String("reason", string(reason)),
		slog.String("entry_value", closed.EntryValue.String()),
		slog.String("exit_value", exit.String()),
		slog.String("change_pct", changePct.StringFixed(2)),
	)

	s.record(ctx, notify.EventPositionClosed, positionEvent{
		Event:       notify.EventPositionClosed,
		PositionID:  closed.ID,
		AssetID:     closed.AssetID,
		Symbol:      closed.Symbol,
		EntryValue:  closed.EntryValue.String(),
		ExitValue:   exit.String(),
		ChangePct:   changePct.StringFixed(2),
		CloseReason: string(reason),
		At:          *closed.ClosedAt,
	})
	title, body := notify.PositionClosed(closed, changePct)
	s.notify(ctx, notify.EventPositionClosed, title, body)

	return closed, nil
}

// CountActive returns the number of active positions.
func (s *PositionService) CountActive(ctx context.Context) (int, error) {
	return s.positions.CountActive(ctx)
}

// ListActive returns every active position.
func (s *PositionService) ListActive(ctx context.Context) ([]domain.Position, error) {
	return s.positions.ListActive(ctx)
}

// record writes the audit entry and publishes the bus event. Both are best
// effort.
func (s *PositionService) record(ctx context.Context, event string, evt positionEvent) {
	if err := s.audit.Log(ctx, event, map[string]any{
		"position_id":  evt.PositionID,
		"asset_id":     evt.AssetID,
		"entry_value":  evt.EntryValue,
		"exit_value":   evt.ExitValue,
		"change_pct":   evt.ChangePct,
		"close_reason": evt.CloseReason,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("position_id", evt.PositionID),
			slog.String("error", err.Error()),
		)
	}

	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, PositionsChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish position event failed",
			slog.String("position_id", evt.PositionID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, PositionsChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "append position event failed",
			slog.String("position_id", evt.PositionID),
			slog.String("error", err.Error()),
		)
	}
}

// notify detaches from the caller's deadline; the notifier applies its own
// per-send timeout, so a transition that used most of its budget is still
// announced.
func (s *PositionService) notify(ctx context.Context, event, title, body string) {
	if err := s.notifier.Notify(context.WithoutCancel(ctx), event, title, body); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
