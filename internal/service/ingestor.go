package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/filter"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
	"github.com/alanyoungcy/pumpbot/internal/notify"
)

// Outcome is what happened to one token event.
type Outcome string

const (
	OutcomeRejected             Outcome = "rejected"
	OutcomeOpened               Outcome = "opened"
	OutcomeCapReached           Outcome = "cap_reached"
	OutcomeAlreadyActive        Outcome = "already_active"
	OutcomeValuationUnavailable Outcome = "valuation_unavailable"
	OutcomeInvalidEntry         Outcome = "invalid_entry"
	OutcomeFailed               Outcome = "failed"
)

// IngestConfig tunes the Ingestor.
type IngestConfig struct {
	MaxActive int
	// EventTimeout bounds the store and valuation work for one event. The
	// decision notification runs outside it. Zero means no bound.
	EventTimeout time.Duration
}

// Ingestor evaluates each new token and opens a position for the ones that
// pass the filter while there is room under the active cap.
type Ingestor struct {
	filter    *filter.Filter
	positions *PositionService
	valuation domain.ValuationClient
	auditLog  domain.AuditStore
	notifier  *notify.Notifier
	cfg       IngestConfig
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor. notifier may be nil.
func NewIngestor(
	f *filter.Filter,
	positions *PositionService,
	valuation domain.ValuationClient,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	cfg IngestConfig,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		filter:    f,
		positions: positions,
		valuation: valuation,
		auditLog:  audit,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ingestor")),
	}
}

// Run handles events in arrival order until ctx is cancelled or events is
// closed. An event already being handled when ctx is cancelled runs to
// completion.
func (i *Ingestor) Run(ctx context.Context, events <-chan domain.TokenEvent) error {
	i.logger.InfoContext(ctx, "ingestor started", slog.Int("max_active", i.cfg.MaxActive))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				i.logger.InfoContext(ctx, "event stream closed")
				return nil
			}
			i.Handle(ctx, ev)
		}
	}
}

// Handle processes a single event and reports what happened to it. The
// decision notification is sent before the EventTimeout budget starts, so a
// slow sender never costs the event its valuation or insert.
func (i *Ingestor) Handle(parent context.Context, ev domain.TokenEvent) Outcome {
	base := context.WithoutCancel(parent)

	log := i.logger.With(
		slog.String("asset_id", ev.AssetID),
		slog.String("symbol", ev.Symbol),
	)

	dec := i.filter.Evaluate(ev)
	i.narrate(base, log, ev, dec)

	ctx := base
	if i.cfg.EventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, i.cfg.EventTimeout)
		defer cancel()
	}
	i.audit(ctx, log, ev, dec)

	if !dec.Accept {
		return OutcomeRejected
	}

	active, err := i.positions.CountActive(ctx)
	if err != nil {
		log.ErrorContext(ctx, "count active failed", slog.String("error", err.Error()))
		return OutcomeFailed
	}
	if active >= i.cfg.MaxActive {
		log.InfoContext(ctx, "active cap reached, not opening", slog.Int("active", active))
		metrics.OpenSkipped.WithLabelValues(string(OutcomeCapReached)).Inc()
		return OutcomeCapReached
	}

	entry, err := i.valuation.Value(ctx, ev.AssetID)
	if err != nil {
		metrics.ValuationErrors.WithLabelValues("ingest").Inc()
		metrics.OpenSkipped.WithLabelValues(string(OutcomeValuationUnavailable)).Inc()
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrValuationUnavailable) {
			level = slog.LevelInfo
		}
		log.Log(ctx, level, "entry valuation unavailable, abandoning", slog.String("error", err.Error()))
		return OutcomeValuationUnavailable
	}
	if !entry.IsPositive() {
		metrics.OpenSkipped.WithLabelValues(string(OutcomeInvalidEntry)).Inc()
		log.WarnContext(ctx, "entry valuation not positive, abandoning", slog.String("entry_value", entry.String()))
		return OutcomeInvalidEntry
	}

	if _, err := i.positions.Open(ctx, ev, entry); err != nil {
		switch {
		case errors.Is(err, domain.ErrCapReached):
			metrics.OpenSkipped.WithLabelValues(string(OutcomeCapReached)).Inc()
			log.WarnContext(ctx, "active cap reached at open")
			return OutcomeCapReached
		case errors.Is(err, domain.ErrAlreadyActive):
			metrics.OpenSkipped.WithLabelValues(string(OutcomeAlreadyActive)).Inc()
			log.WarnContext(ctx, "asset already has an active position")
			return OutcomeAlreadyActive
		default:
			log.ErrorContext(ctx, "open position failed", slog.String("error", err.Error()))
			return OutcomeFailed
		}
	}
	return OutcomeOpened
}

// narrate logs, counts and notifies the decision. The notifier bounds each
// send with its own timeout.
func (i *Ingestor) narrate(ctx context.Context, log *slog.Logger, ev domain.TokenEvent, dec domain.Decision) {
	result := "reject"
	if dec.Accept {
		result = "accept"
	}
	metrics.Decisions.WithLabelValues(result).Inc()

	log.InfoContext(ctx, "token evaluated",
		slog.Bool("accept", dec.Accept),
		slog.String("reason", dec.Reason),
		slog.String("market_cap", ev.MarketCap.String()),
		slog.String("liquidity", ev.LiquidityPoolSize.String()),
	)

	title, body := notify.TokenEvaluated(ev, dec)
	if err := i.notifier.Notify(ctx, notify.EventTokenEvaluated, title, body); err != nil {
		log.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}

func (i *Ingestor) audit(ctx context.Context, log *slog.Logger, ev domain.TokenEvent, dec domain.Decision) {
	if err := i.auditLog.Log(ctx, notify.EventTokenEvaluated, map[string]any{
		"asset_id":      ev.AssetID,
		"symbol":        ev.Symbol,
		"accept":        dec.Accept,
		"reason":        dec.Reason,
		"market_cap":    ev.MarketCap.String(),
		"liquidity":     ev.LiquidityPoolSize.String(),
		"initial_ratio": dec.InitialRatio.StringFixed(4),
	}); err != nil {
		log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}
