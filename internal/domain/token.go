package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenEvent is a newly created asset observed on the event stream. Numeric
// fields that are absent from the wire payload are zero; the admission filter
// rejects a zero market cap, so no other default handling is needed.
type TokenEvent struct {
	AssetID            string
	Name               string
	Symbol             string
	TraderPublicKey    string
	TxType             string
	InitialTradeVolume decimal.Decimal // token units
	TokensInCurve      decimal.Decimal
	LiquidityPoolSize  decimal.Decimal // same unit as MarketCap
	MarketCap          decimal.Decimal
	URI                string
	Signature          string
	ReceivedAt         time.Time
}

// Decision is the outcome of running the admission filter on an event.
type Decision struct {
	Accept bool
	Reason string
	// InitialRatio is the initial trade volume as a percentage of the scaled
	// market cap. Zero when the filter stopped before computing it.
	InitialRatio decimal.Decimal
}
