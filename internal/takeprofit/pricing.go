// Package takeprofit coordinates idempotent creation of exit orders for
// filled buy positions.
package takeprofit

import (
	"time"

	"github.com/shopspring/decimal"

	"order_lifecycle/pkg/tradingutils"
)

// AgingConfig controls how the exit markup decays as a position ages.
// Older inventory is quoted closer to break-even to move it.
type AgingConfig struct {
	Threshold time.Duration
	Step      time.Duration
	Reduction decimal.Decimal
	MinMarkup decimal.Decimal
}

// ExitMarkup computes the markup for a position of the given age. The
// result is monotonically non-increasing in age and never drops below
// MinMarkup.
func ExitMarkup(makerFee, profitPercent decimal.Decimal, age time.Duration, agingEnabled bool, cfg AgingConfig) decimal.Decimal {
	markup := makerFee.Add(profitPercent)
	if !agingEnabled || age <= cfg.Threshold || cfg.Step <= 0 {
		return markup
	}

	steps := int64((age-cfg.Threshold)/cfg.Step) + 1
	markup = markup.Sub(cfg.Reduction.Mul(decimal.NewFromInt(steps)))
	if markup.LessThan(cfg.MinMarkup) {
		return cfg.MinMarkup
	}
	return markup
}

// ExitPrice applies the markup to the entry price and rounds to the
// symbol's price precision.
func ExitPrice(buyPrice, markup decimal.Decimal, precision int) decimal.Decimal {
	return tradingutils.RoundPrice(tradingutils.ApplyMarkup(buyPrice, markup), precision)
}
