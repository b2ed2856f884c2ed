package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// PositionReader defines the read-only store methods the position handler
// requires.
type PositionReader interface {
	ListActive(ctx context.Context) ([]domain.Position, error)
	GetByID(ctx context.Context, id string) (domain.Position, error)
	ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionReader
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given store and logger.
func NewPositionHandler(positions PositionReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// positionView is the JSON shape of a position. Decimals are strings so no
// precision is lost in transit.
type positionView struct {
	ID          string     `json:"id"`
	AssetID     string     `json:"asset_id"`
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	Status      string     `json:"status"`
	EntryValue  string     `json:"entry_value"`
	TargetValue string     `json:"target_value"`
	ExitValue   *string    `json:"exit_value"`
	Quantity    string     `json:"quantity"`
	ChangePct   *string    `json:"change_pct"`
	RealizedPnL *string    `json:"realized_pnl"`
	CloseReason string     `json:"close_reason,omitempty"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

func toView(p domain.Position) positionView {
	v := positionView{
		ID:          p.ID,
		AssetID:     p.AssetID,
		Name:        p.Name,
		Symbol:      p.Symbol,
		Status:      string(p.Status),
		EntryValue:  p.EntryValue.String(),
		TargetValue: p.TargetValue.String(),
		Quantity:    p.Quantity.String(),
		CloseReason: string(p.CloseReason),
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.ClosedAt,
	}
	if p.ExitValue != nil {
		exit := p.ExitValue.String()
		pnl := p.RealizedPnL().String()
		v.ExitValue, v.RealizedPnL = &exit, &pnl
		if p.EntryValue.IsPositive() {
			pct := p.ChangePct(*p.ExitValue).StringFixed(2)
			v.ChangePct = &pct
		}
	}
	return v
}

func toViews(ps []domain.Position) []positionView {
	out := make([]positionView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toView(p))
	}
	return out
}

type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
}

// ListActive returns every active position, oldest first.
// GET /api/positions
func (h *PositionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list active positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: toViews(positions)})
}

// History returns positions newest first, filtered by status, since, until,
// limit and offset.
// GET /api/positions/history
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.positions.ListHistory(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: toViews(positions)})
}

// GetPosition returns one position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}
	writeJSON(w, http.StatusOK, toView(p))
}
