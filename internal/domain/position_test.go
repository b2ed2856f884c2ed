package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTargetFor(t *testing.T) {
	assert.True(t, TargetFor(d("100"), d("50")).Equal(d("150")))
	assert.True(t, TargetFor(d("0.02"), d("25")).Equal(d("0.025")))
}

func TestChangePct(t *testing.T) {
	p := Position{EntryValue: d("100")}
	assert.True(t, p.ChangePct(d("150")).Equal(d("50")))
	assert.True(t, p.ChangePct(d("51")).Equal(d("-49")))
}

func TestRealizedPnL(t *testing.T) {
	p := Position{EntryValue: d("100"), Quantity: d("0.01")}
	assert.True(t, p.RealizedPnL().IsZero(), "active position has no realized pnl")

	exit := d("150")
	p.ExitValue = &exit
	assert.True(t, p.RealizedPnL().Equal(d("0.005")))
}
