// Package filter implements the admission rules that decide whether a newly
// created token is worth opening a position on.
package filter

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Reasons returned by Evaluate. The initial-ratio rejection embeds the
// computed percentage and so has no fixed constant.
const (
	ReasonMarketCapTooLow       = "market cap too low"
	ReasonMarketCapTooHigh      = "market cap too high"
	ReasonInsufficientLiquidity = "insufficient liquidity"
	ReasonMarketCapZero         = "market cap is zero"
	ReasonPassed                = "passed all checks"
)

var hundred = decimal.NewFromInt(100)

// Thresholds are the admission limits. MarketCap and LiquidityPoolSize share
// one unit; InitialTradeVolume is denominated in a unit UnitScale times
// smaller (lamports per SOL on pump.fun).
type Thresholds struct {
	MinMarketCap    decimal.Decimal
	MaxMarketCap    decimal.Decimal
	MinLiquidity    decimal.Decimal
	MaxInitialRatio decimal.Decimal // percent
	UnitScale       decimal.Decimal
}

// Filter evaluates token events against a fixed set of thresholds.
type Filter struct {
	th Thresholds
}

// New returns a Filter using th. Thresholds are validated by the config
// layer; New does not re-check them.
func New(th Thresholds) *Filter {
	return &Filter{th: th}
}

// Thresholds returns the limits the filter was built with.
func (f *Filter) Thresholds() Thresholds {
	return f.th
}

// Evaluate applies the rules in order and returns the first failure, or an
// accepting decision. It has no side effects.
func (f *Filter) Evaluate(ev domain.TokenEvent) domain.Decision {
	mc := ev.MarketCap

	if mc.LessThan(f.th.MinMarketCap) {
		return domain.Decision{Reason: ReasonMarketCapTooLow}
	}
	if mc.GreaterThan(f.th.MaxMarketCap) {
		return domain.Decision{Reason: ReasonMarketCapTooHigh}
	}
	if ev.LiquidityPoolSize.LessThan(f.th.MinLiquidity) {
		return domain.Decision{Reason: ReasonInsufficientLiquidity}
	}
	// Only reachable with MinMarketCap = 0.
	if !mc.IsPositive() || !f.th.UnitScale.IsPositive() {
		return domain.Decision{Reason: ReasonMarketCapZero}
	}

	ratio := InitialRatio(ev.InitialTradeVolume, mc, f.th.UnitScale)
	if ratio.GreaterThan(f.th.MaxInitialRatio) {
		return domain.Decision{
			Reason:       fmt.Sprintf("initial trade volume too high (%s%% of market cap)", ratio.StringFixed(2)),
			InitialRatio: ratio,
		}
	}

	return domain.Decision{Accept: true, Reason: ReasonPassed, InitialRatio: ratio}
}

// InitialRatio returns volume / (marketCap * unitScale) * 100. marketCap and
// unitScale must be positive.
func InitialRatio(volume, marketCap, unitScale decimal.Decimal) decimal.Decimal {
	return volume.Div(marketCap.Mul(unitScale)).Mul(hundred)
}
