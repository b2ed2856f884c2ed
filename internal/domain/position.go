package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is active or closed.
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "active"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records which threshold closed a position.
type CloseReason string

const (
	CloseReasonNone          CloseReason = ""
	CloseReasonProfitTarget  CloseReason = "profit_target"
	CloseReasonLossThreshold CloseReason = "loss_threshold"
)

var hundred = decimal.NewFromInt(100)

// Position is a simulated trade on a single asset. Rows are never deleted;
// closed positions are the audit trail.
type Position struct {
	ID          string
	AssetID     string
	Name        string
	Symbol      string
	EntryValue  decimal.Decimal
	ExitValue   *decimal.Decimal // set exactly once, at close
	TargetValue decimal.Decimal
	Quantity    decimal.Decimal
	Status      PositionStatus
	CloseReason CloseReason
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// Active reports whether the position is still open.
func (p Position) Active() bool {
	return p.Status == PositionStatusActive
}

// TargetFor returns the valuation at which a position entered at entry
// reaches profitTargetPct.
func TargetFor(entry, profitTargetPct decimal.Decimal) decimal.Decimal {
	return entry.Mul(decimal.NewFromInt(1).Add(profitTargetPct.Div(hundred)))
}

// ChangePct returns the percentage change of current relative to the entry
// value. The caller must ensure EntryValue is positive.
func (p Position) ChangePct(current decimal.Decimal) decimal.Decimal {
	return current.Sub(p.EntryValue).Div(p.EntryValue).Mul(hundred)
}

// RealizedPnL is the quantity-weighted percentage move between entry and
// exit. It is zero for active positions.
func (p Position) RealizedPnL() decimal.Decimal {
	if p.ExitValue == nil || !p.EntryValue.IsPositive() {
		return decimal.Zero
	}
	return p.Quantity.Mul(p.ChangePct(*p.ExitValue)).Div(hundred)
}
