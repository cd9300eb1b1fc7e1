package takeprofit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func agingCfg() AgingConfig {
	return AgingConfig{
		Threshold: time.Hour,
		Step:      4 * time.Hour,
		Reduction: dec("0.002"),
		MinMarkup: dec("0.001"),
	}
}

func TestMarkupUnchangedBelowThreshold(t *testing.T) {
	markup := ExitMarkup(dec("0.001"), dec("0.01"), 30*time.Minute, true, agingCfg())
	assert.True(t, markup.Equal(dec("0.011")))
}

func TestMarkupUnchangedWhenAgingDisabled(t *testing.T) {
	markup := ExitMarkup(dec("0.001"), dec("0.01"), 48*time.Hour, false, agingCfg())
	assert.True(t, markup.Equal(dec("0.011")))
}

func TestMarkupStepsDownPastThreshold(t *testing.T) {
	// 2h old: one step past the 1h threshold
	markup := ExitMarkup(dec("0.001"), dec("0.01"), 2*time.Hour, true, agingCfg())
	assert.True(t, markup.Equal(dec("0.009")))

	// 6h old: two steps
	markup = ExitMarkup(dec("0.001"), dec("0.01"), 6*time.Hour, true, agingCfg())
	assert.True(t, markup.Equal(dec("0.007")))
}

func TestMarkupMonotonicallyNonIncreasing(t *testing.T) {
	cfg := agingCfg()
	prev := ExitMarkup(dec("0.001"), dec("0.01"), 0, true, cfg)
	for age := time.Hour; age <= 72*time.Hour; age += time.Hour {
		cur := ExitMarkup(dec("0.001"), dec("0.01"), age, true, cfg)
		assert.True(t, cur.LessThanOrEqual(prev), "markup rose at age %s", age)
		prev = cur
	}
}

func TestMarkupFlooredAtMinimum(t *testing.T) {
	markup := ExitMarkup(dec("0.001"), dec("0.01"), 30*24*time.Hour, true, agingCfg())
	assert.True(t, markup.Equal(dec("0.001")))
}

func TestExitPriceRoundsToPrecision(t *testing.T) {
	price := ExitPrice(dec("50000"), dec("0.011"), 2)
	assert.True(t, price.Equal(dec("50550")))

	price = ExitPrice(dec("0.123456"), dec("0.01"), 4)
	assert.True(t, price.Equal(dec("0.1247")), price.String())
}
