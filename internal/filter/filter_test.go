package filter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testThresholds() Thresholds {
	return Thresholds{
		MinMarketCap:    d("10"),
		MaxMarketCap:    d("50"),
		MinLiquidity:    d("10"),
		MaxInitialRatio: d("15"),
		UnitScale:       d("1000000000"),
	}
}

// volumeFor returns the initial trade volume that is pct percent of the
// scaled market cap.
func volumeFor(pct, marketCap string) decimal.Decimal {
	return d(pct).Div(d("100")).Mul(d(marketCap)).Mul(d("1000000000"))
}

func TestEvaluate_Accepts(t *testing.T) {
	f := New(testThresholds())

	dec := f.Evaluate(domain.TokenEvent{
		MarketCap:          d("20"),
		LiquidityPoolSize:  d("15"),
		InitialTradeVolume: volumeFor("10", "20"),
	})

	assert.True(t, dec.Accept)
	assert.Equal(t, ReasonPassed, dec.Reason)
	assert.True(t, dec.InitialRatio.Equal(d("10")), "ratio = %s", dec.InitialRatio)
}

func TestEvaluate_InitialRatioTooHigh(t *testing.T) {
	f := New(testThresholds())

	dec := f.Evaluate(domain.TokenEvent{
		MarketCap:          d("20"),
		LiquidityPoolSize:  d("15"),
		InitialTradeVolume: volumeFor("20", "20"),
	})

	assert.False(t, dec.Accept)
	assert.Contains(t, dec.Reason, "too high")
	assert.Contains(t, dec.Reason, "20.00%")
}

func TestEvaluate_SmallInitialBuyAccepted(t *testing.T) {
	f := New(testThresholds())

	// 1e8 token units against a 20 SOL cap is 0.5%.
	dec := f.Evaluate(domain.TokenEvent{
		MarketCap:          d("20"),
		LiquidityPoolSize:  d("15"),
		InitialTradeVolume: d("100000000"),
	})

	require.True(t, dec.Accept)
	assert.True(t, dec.InitialRatio.Equal(d("0.5")))
}

func TestEvaluate_RuleOrder(t *testing.T) {
	f := New(testThresholds())

	tests := []struct {
		name   string
		ev     domain.TokenEvent
		reason string
	}{
		{
			name:   "cap below minimum wins over low liquidity",
			ev:     domain.TokenEvent{MarketCap: d("5"), LiquidityPoolSize: d("1")},
			reason: ReasonMarketCapTooLow,
		},
		{
			name:   "cap above maximum",
			ev:     domain.TokenEvent{MarketCap: d("50.01"), LiquidityPoolSize: d("100")},
			reason: ReasonMarketCapTooHigh,
		},
		{
			name:   "low liquidity wins over huge initial buy",
			ev:     domain.TokenEvent{MarketCap: d("20"), LiquidityPoolSize: d("9.99"), InitialTradeVolume: volumeFor("90", "20")},
			reason: ReasonInsufficientLiquidity,
		},
		{
			name:   "bounds are inclusive",
			ev:     domain.TokenEvent{MarketCap: d("50"), LiquidityPoolSize: d("10"), InitialTradeVolume: volumeFor("15", "50")},
			reason: ReasonPassed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, f.Evaluate(tt.ev).Reason)
		})
	}
}

func TestEvaluate_ZeroMarketCap(t *testing.T) {
	th := testThresholds()
	th.MinMarketCap = decimal.Zero
	th.MinLiquidity = decimal.Zero
	f := New(th)

	assert.NotPanics(t, func() {
		dec := f.Evaluate(domain.TokenEvent{InitialTradeVolume: d("1000")})
		assert.False(t, dec.Accept)
		assert.Equal(t, ReasonMarketCapZero, dec.Reason)
	})

	// With the default minimum the first rule already rejects.
	dec := New(testThresholds()).Evaluate(domain.TokenEvent{})
	assert.False(t, dec.Accept)
	assert.Equal(t, ReasonMarketCapTooLow, dec.Reason)
}

func TestEvaluate_Pure(t *testing.T) {
	f := New(testThresholds())
	ev := domain.TokenEvent{
		AssetID:            "mint-1",
		MarketCap:          d("33.3"),
		LiquidityPoolSize:  d("31"),
		InitialTradeVolume: d("4200000000"),
	}

	first := f.Evaluate(ev)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.Evaluate(ev))
	}
}
