/*
Package money provides the exact-decimal quantity types shared across the
fiscal core: money amounts, quantities, and tax rates.

PURPOSE:
  All monetary and tax math in this system uses shopspring/decimal rather
  than binary floats, per the spec's numeric-semantics requirement. This
  package centralizes the arithmetic so every component (txn, fiscal,
  storno) shares the same rounding and comparison rules.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal end to end, never float64 for money.
  2. Tolerance: payment-to-total comparison uses a fixed 1e-3 tolerance;
     nowhere else does this package tolerate rounding slop.
  3. Immutability: every operation returns a new Amount.

SEE ALSO:
  - txn/engine.go: uses Amount for all item/transaction totals
  - fiscal/processdata.go: uses Amount for gross-bucket formatting
*/
package money

import (
	"github.com/shopspring/decimal"
)

// PaymentTolerance is the maximum allowed absolute difference between a
// transaction's payment_amount and its total_amount (spec §4.3/§8).
var PaymentTolerance = decimal.NewFromFloat(0.001)

// Amount is a decimal quantity. Quantities (signed) and money (always
// non-negative unless carrying a storno/discount sign) share this type.
type Amount struct {
	decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{decimal.Zero}

// New builds an Amount from a float64. Reserved for literal constants and
// test fixtures; values coming off the wire or out of storage should use
// NewFromString to avoid float round-trip error.
func New(f float64) Amount { return Amount{decimal.NewFromFloat(f)} }

// NewFromString parses a decimal string, as used for values read back from
// storage (stored as TEXT to preserve exact precision).
func NewFromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Amount{d}, nil
}

// NewFromInt builds an Amount from an integer quantity.
func NewFromInt(i int64) Amount { return Amount{decimal.NewFromInt(i)} }

func (a Amount) Add(b Amount) Amount  { return Amount{a.Decimal.Add(b.Decimal)} }
func (a Amount) Sub(b Amount) Amount  { return Amount{a.Decimal.Sub(b.Decimal)} }
func (a Amount) Mul(b Amount) Amount  { return Amount{a.Decimal.Mul(b.Decimal)} }
func (a Amount) Div(b Amount) Amount  { return Amount{a.Decimal.Div(b.Decimal)} }
func (a Amount) Neg() Amount          { return Amount{a.Decimal.Neg()} }
func (a Amount) Abs() Amount          { return Amount{a.Decimal.Abs()} }
func (a Amount) IsZero() bool         { return a.Decimal.IsZero() }
func (a Amount) IsNegative() bool     { return a.Decimal.IsNegative() }
func (a Amount) IsPositive() bool     { return a.Decimal.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Decimal.GreaterThan(b.Decimal) }
func (a Amount) LessThan(b Amount) bool    { return a.Decimal.LessThan(b.Decimal) }
func (a Amount) Equal(b Amount) bool       { return a.Decimal.Equal(b.Decimal) }

// WithinTolerance reports whether |a-b| <= PaymentTolerance.
func (a Amount) WithinTolerance(b Amount) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Amount{PaymentTolerance})
}

func (a Amount) LessThanOrEqual(b Amount) bool {
	return a.Decimal.LessThanOrEqual(b.Decimal)
}

// Round2 rounds to two fractional digits, the accounting precision floor
// mandated by spec §4.3.
func (a Amount) Round2() Amount { return Amount{a.Decimal.Round(2)} }

// StringFixed2 renders rounded to exactly two fractional digits, dot separator, as
// required by the processData format (spec §6).
func (a Amount) StringFixed2() string {
	return a.Decimal.StringFixed(2)
}

// Sum adds a slice of Amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// GrossFromNetRate computes the tax portion of a gross total_price at a
// given percentage rate: total - total/(1+rate/100).
// This is the exact formula spec §4.3 names for tax_amount.
func GrossFromNetRate(totalPrice Amount, ratePercent decimal.Decimal) Amount {
	hundred := decimal.NewFromInt(100)
	divisor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	net := totalPrice.Decimal.Div(divisor)
	return Amount{totalPrice.Decimal.Sub(net)}
}
