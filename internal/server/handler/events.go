package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// StreamReader reads a bounded event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler pages through the position event stream so clients can
// catch up on opens and closes they missed.
type EventsHandler struct {
	stream StreamReader
	name   string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading stream name.
func NewEventsHandler(stream StreamReader, name string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{stream: stream, name: name, logger: logger}
}

type eventView struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ListEvents returns up to limit events after the given ID. Pass the last
// returned ID as after to get the next page.
// GET /api/events?after=<id>&limit=<n>
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 1000)
	}

	msgs, err := h.stream.StreamRead(r.Context(), h.name, q.Get("after"), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	out := make([]eventView, 0, len(msgs))
	for _, m := range msgs {
		payload := json.RawMessage(m.Payload)
		if !json.Valid(payload) {
			b, _ := json.Marshal(string(m.Payload))
			payload = b
		}
		out = append(out, eventView{ID: m.ID, Payload: payload})
	}

	resp := map[string]any{"events": out}
	if len(out) > 0 {
		resp["last_id"] = out[len(out)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}
