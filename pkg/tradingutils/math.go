package tradingutils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity rounds a quantity to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Round(int32(qtyDecimals))
}

// ApplyMarkup returns price * (1 + markup)
func ApplyMarkup(price, markup decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(markup))
}

// CalculateNetProfit computes profit after trading fees
func CalculateNetProfit(buyPrice, sellPrice, buyFeeRate, sellFeeRate decimal.Decimal) decimal.Decimal {
	grossProfit := sellPrice.Sub(buyPrice)
	buyFee := buyPrice.Mul(buyFeeRate)
	sellFee := sellPrice.Mul(sellFeeRate)
	return grossProfit.Sub(buyFee).Sub(sellFee)
}

// knownQuotes lists quote assets recognized by SplitSymbol, longest first so
// USDT matches before USD.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "BTC", "ETH", "BNB"}

// SplitSymbol splits a concatenated trading pair like BTCUSDT into base and
// quote assets. Unrecognized quotes fall back to a USDT split so balance
// accounting degrades predictably.
func SplitSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if !strings.HasSuffix(s, q) || len(s) <= len(q) {
			continue
		}
		// TUSD overlaps with bases ending in T quoted in USD (XBTUSD).
		// Only take the longer match when it leaves a plausible base;
		// otherwise fall through so USD matches.
		if q == "TUSD" && len(s)-len(q) < 3 {
			continue
		}
		return s[:len(s)-len(q)], q
	}
	if len(s) > 4 {
		return s[:len(s)-4], s[len(s)-4:]
	}
	return s, "USDT"
}
