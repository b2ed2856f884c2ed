package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationClient returns the current valuation of an asset. A missing
// asset is reported as ErrValuationUnavailable, which callers treat as a
// normal outcome rather than a fault.
type ValuationClient interface {
	Value(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// ValuationCache stores recently observed valuations.
type ValuationCache interface {
	SetValue(ctx context.Context, assetID string, value decimal.Decimal, ttl time.Duration) error
	GetValue(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is a single entry read back from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus broadcasts position events to live subscribers and keeps a
// bounded stream for late readers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
