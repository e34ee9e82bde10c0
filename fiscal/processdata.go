/*
processdata.go - the bit-exact fiscal processData format of spec §6:

  "Beleg^<g1>_<g2>_<g3>_<g4>_<g5>^<amount>:<payment_type>"

where g1..g5 are gross totals per tax bucket in the fixed order
[19.00, 7.00, 10.70, 5.50, 0.00], missing buckets rendered as "0.00".
*/
package fiscal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fiskpoint/posengine/money"
)

// TaxBucketOrder is the fixed gross-tax-bucket order of the processData
// format, keyed by exact rate value (spec §4.3 "grouped by exact rate
// value, not by rate identifier").
var TaxBucketOrder = []string{"19.00", "7.00", "10.70", "5.50", "0.00"}

// FormatProcessData builds the bit-exact processData string. buckets maps
// a rate string (two fractional digits, e.g. "19.00") to the gross total
// for that bucket.
func FormatProcessData(buckets map[string]money.Amount, amount money.Amount, paymentType string) string {
	parts := make([]string, len(TaxBucketOrder))
	for i, rate := range TaxBucketOrder {
		if v, ok := buckets[rate]; ok {
			parts[i] = v.StringFixed2()
		} else {
			parts[i] = "0.00"
		}
	}
	return fmt.Sprintf("Beleg^%s^%s:%s", strings.Join(parts, "_"), amount.StringFixed2(), paymentType)
}

// RateKey normalizes a decimal tax rate to the two-fractional-digit key
// used by TaxBucketOrder/FormatProcessData.
func RateKey(rate decimal.Decimal) string {
	return rate.StringFixed(2)
}
