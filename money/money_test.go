package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiskpoint/posengine/money"
)

func TestAmount_NewFromString_RoundTrip(t *testing.T) {
	a, err := money.NewFromString("3.50")
	require.NoError(t, err)
	assert.Equal(t, "3.50", a.StringFixed2())
}

func TestAmount_Arithmetic(t *testing.T) {
	a := money.New(3.00)
	b := money.New(2.00)

	assert.True(t, a.Add(b).Equal(money.New(5.00)))
	assert.True(t, a.Sub(b).Equal(money.New(1.00)))
	assert.True(t, a.Mul(b).Equal(money.New(6.00)))
	assert.True(t, a.GreaterThan(b))
	assert.True(t, b.LessThan(a))
}

func TestAmount_WithinTolerance(t *testing.T) {
	total := money.New(6.00)

	// exactly at the tolerance boundary
	atBound, err := money.NewFromString("6.001")
	require.NoError(t, err)
	assert.True(t, atBound.WithinTolerance(total), "0.001 off should be within tolerance")

	tooFar, err := money.NewFromString("6.01")
	require.NoError(t, err)
	assert.False(t, tooFar.WithinTolerance(total), "0.01 off should not be within tolerance")
}

func TestGrossFromNetRate_S1Coffee(t *testing.T) {
	// GIVEN: 2x Coffee at 3.00 (total 6.00), drink category -> 19%
	// WHEN: computing the gross-embedded tax portion
	// THEN: tax_amount rounds to 0.957983 per spec §8 S1
	total := money.New(6.00)
	tax := money.GrossFromNetRate(total, decimal.NewFromInt(19))
	assert.Equal(t, "0.96", tax.StringFixed2())
	assert.True(t, tax.Decimal.Round(6).Equal(decimal.RequireFromString("0.957983")))
}

func TestSum(t *testing.T) {
	total := money.Sum(money.New(1.5), money.New(2.25), money.New(0.25))
	assert.True(t, total.Equal(money.New(4.00)))
}

func TestSum_Empty(t *testing.T) {
	assert.True(t, money.Sum().IsZero())
}
