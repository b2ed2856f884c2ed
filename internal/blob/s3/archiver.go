package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
)

// multipartThreshold switches uploads to multipart above this size.
const multipartThreshold = 8 * 1024 * 1024

// ClosedSource lists positions closed in [since, until).
type ClosedSource interface {
	ClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error)
}

// ObjectStore is the blob surface the archiver needs.
type ObjectStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports closed positions as JSON Lines, one object per window.
// Rows are left in the database.
type Archiver struct {
	store  ObjectStore
	source ClosedSource
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates an Archiver writing under prefix (e.g. "archive").
func NewArchiver(store ObjectStore, source ClosedSource, audit domain.AuditStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{store: store, source: source, audit: audit, prefix: prefix}
}

// archiveRecord is one JSONL line.
type archiveRecord struct {
	ID          string     `json:"id"`
	AssetID     string     `json:"asset_id"`
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	EntryValue  string     `json:"entry_value"`
	ExitValue   string     `json:"exit_value"`
	TargetValue string     `json:"target_value"`
	Quantity    string     `json:"quantity"`
	RealizedPnL string     `json:"realized_pnl"`
	CloseReason string     `json:"close_reason"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

func toRecord(p domain.Position) archiveRecord {
	r := archiveRecord{
		ID:          p.ID,
		AssetID:     p.AssetID,
		Name:        p.Name,
		Symbol:      p.Symbol,
		EntryValue:  p.EntryValue.String(),
		TargetValue: p.TargetValue.String(),
		Quantity:    p.Quantity.String(),
		RealizedPnL: p.RealizedPnL().String(),
		CloseReason: string(p.CloseReason),
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.ClosedAt,
	}
	if p.ExitValue != nil {
		r.ExitValue = p.ExitValue.String()
	}
	return r
}

// ArchiveClosed uploads positions closed in [since, until) and returns how
// many were written. A window whose object already exists is skipped, so
// re-running a window is safe.
func (a *Archiver) ArchiveClosed(ctx context.Context, since, until time.Time) (int64, error) {
	path := a.Path(since, until)

	exists, err := a.store.Exists(ctx, path)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	closed, err := a.source.ClosedBetween(ctx, since, until)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(closed) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range closed {
		if err := enc.Encode(toRecord(p)); err != nil {
			return 0, fmt.Errorf("s3blob: encode position %s: %w", p.ID, err)
		}
	}

	if buf.Len() > multipartThreshold {
		err = a.store.PutMultipart(ctx, path, &buf, minPartSize)
	} else {
		err = a.store.Put(ctx, path, &buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, err
	}

	n := int64(len(closed))
	metrics.ArchivedPositions.Add(float64(n))

	if err := a.audit.Log(ctx, "archive_positions", map[string]any{
		"path":  path,
		"count": n,
		"since": since.UTC().Format(time.RFC3339),
		"until": until.UTC().Format(time.RFC3339),
	}); err != nil {
		return n, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	return n, nil
}

// Path returns the object key for a window, partitioned by the window's
// start date.
func (a *Archiver) Path(since, until time.Time) string {
	s, u := since.UTC(), until.UTC()
	return fmt.Sprintf("%s/positions/%s/%s_%s.jsonl",
		a.prefix, s.Format("2006/01/02"), s.Format("150405"), u.Format("20060102T150405"))
}

var _ domain.Archiver = (*Archiver)(nil)
