package storno_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fiskpoint/posengine/storno"
)

func TestAdjustTrust_SmallDelta_LimitsUntouched(t *testing.T) {
	// GIVEN: a small +0.5 adjustment, as performed on storno approval (spec §4.4/§8 S4)
	// WHEN: the absolute delta is below the 5-point recalculation threshold
	// THEN: new limits are nil, leaving the caller's existing values in place
	newTrust, daily, emergency := storno.AdjustTrust(50, 0.5)
	assert.Equal(t, 50.5, newTrust)
	assert.Nil(t, daily)
	assert.Nil(t, emergency)
}

func TestAdjustTrust_LargeDelta_RecalculatesLimits(t *testing.T) {
	newTrust, daily, emergency := storno.AdjustTrust(50, 10)
	assert.Equal(t, 60.0, newTrust)
	if assert.NotNil(t, daily) {
		assert.Equal(t, "60", daily.String())
	}
	if assert.NotNil(t, emergency) {
		assert.Equal(t, "30", emergency.String())
	}
}

func TestAdjustTrust_ClampsToBounds(t *testing.T) {
	hi, _, _ := storno.AdjustTrust(95, 20)
	assert.Equal(t, 100.0, hi)

	lo, _, _ := storno.AdjustTrust(3, -20)
	assert.Equal(t, 0.0, lo)
}
