package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ActiveCounter reports how many positions are active.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Mode             string `json:"mode"`
	Storage          string `json:"storage"`
	MaxActive        int    `json:"max_active"`
	MinMarketCap     string `json:"min_market_cap"`
	MaxMarketCap     string `json:"max_market_cap"`
	MinLiquidity     string `json:"min_liquidity"`
	MaxInitialRatio  string `json:"max_initial_ratio"`
	ProfitTargetPct  string `json:"profit_target_pct"`
	LossThresholdPct string `json:"loss_threshold_pct"`
	MonitorInterval  string `json:"monitor_interval"`
}

// StatusHandler serves the bot's mode, limits and current load.
type StatusHandler struct {
	info      StatusInfo
	positions ActiveCounter
	started   time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo, positions ActiveCounter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{info: info, positions: positions, started: time.Now(), logger: logger}
}

type statusResponse struct {
	StatusInfo
	ActivePositions int    `json:"active_positions"`
	StartedAt       string `json:"started_at"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// GetStatus responds with the configured limits and the active count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	n, err := h.positions.CountActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count active failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count positions")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		StatusInfo:      h.info,
		ActivePositions: n,
		StartedAt:       h.started.UTC().Format(time.RFC3339),
		UptimeSeconds:   int64(time.Since(h.started).Seconds()),
	})
}
