package storno

import (
	"github.com/fiskpoint/posengine/money"
)

// AdjustTrust applies delta to current, clamped to [0,100] (spec §4.4).
// When the absolute change is >=5, the per-user storno limits are
// recalculated (daily = 50*(trust/50), emergency = daily*0.5) and returned;
// otherwise the limit return values are nil, leaving the caller's existing
// limits untouched.
func AdjustTrust(current float64, delta float64) (newTrust float64, daily, emergency *money.Amount) {
	newTrust = current + delta
	if newTrust < 0 {
		newTrust = 0
	}
	if newTrust > 100 {
		newTrust = 100
	}

	absDelta := delta
	if absDelta < 0 {
		absDelta = -absDelta
	}
	if absDelta < 5 {
		return newTrust, nil, nil
	}

	d := money.New(50 * (newTrust / 50))
	e := d.Mul(money.New(0.5))
	return newTrust, &d, &e
}
