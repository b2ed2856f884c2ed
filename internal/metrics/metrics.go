// Package metrics provides Prometheus instrumentation for the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FeedFrames counts websocket frames by kind (token, ack, invalid).
	FeedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_feed_frames_total",
		Help: "Frames received from the new-token feed",
	}, []string{"kind"})

	// FeedReconnects counts feed reconnect attempts.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pumpbot_feed_reconnects_total",
		Help: "New-token feed reconnect attempts",
	})

	// Decisions counts filter outcomes by result (accept, reject).
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_filter_decisions_total",
		Help: "Admission filter decisions",
	}, []string{"result"})

	// PositionsOpened counts positions created.
	PositionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pumpbot_positions_opened_total",
		Help: "Positions opened",
	})

	// PositionsClosed counts positions closed by reason.
	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_positions_closed_total",
		Help: "Positions closed",
	}, []string{"reason"})

	// OpenSkipped counts accepted tokens that did not become positions,
	// by cause (cap_reached, already_active, valuation_unavailable, invalid_entry).
	OpenSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_open_skipped_total",
		Help: "Accepted tokens that were not opened",
	}, []string{"cause"})

	// ActivePositions is the active count observed by the last monitor cycle.
	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pumpbot_active_positions",
		Help: "Active positions at the start of the last monitor cycle",
	})

	// ValuationErrors counts failed valuation lookups by caller (ingest, monitor).
	ValuationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_valuation_errors_total",
		Help: "Valuation lookups that returned no usable value",
	}, []string{"caller"})

	// MonitorCycle tracks monitor cycle duration.
	MonitorCycle = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pumpbot_monitor_cycle_seconds",
		Help:    "Monitor cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	})

	// NotifyFailures counts notification delivery failures by sender.
	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_notify_failures_total",
		Help: "Notification sends that failed",
	}, []string{"sender"})

	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// ArchivedPositions counts closed positions exported to object storage.
	ArchivedPositions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pumpbot_archived_positions_total",
		Help: "Closed positions written to the archive",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
