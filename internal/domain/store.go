package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Status PositionStatus // empty means any status
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Implementations must make Open and Close
// atomic per asset: two concurrent calls for the same asset never both
// succeed.
type PositionStore interface {
	// Open inserts pos as active. It returns ErrAlreadyActive when the asset
	// already has an active position and ErrCapReached when maxActive
	// positions are already active (maxActive <= 0 disables the cap).
	Open(ctx context.Context, pos Position, maxActive int) error
	// Close transitions the position with id to closed and records the
	// exit value. It returns ErrNotActive when that position is unknown or
	// already closed, so a stale snapshot can never close a newer row for
	// the same asset.
	Close(ctx context.Context, id string, exitValue decimal.Decimal, reason CloseReason, closedAt time.Time) (Position, error)
	CountActive(ctx context.Context) (int, error)
	ListActive(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
