package tradingutils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSplitSymbol(t *testing.T) {
	cases := []struct {
		symbol, base, quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHUSDT", "ETH", "USDT"},
		{"ETHBTC", "ETH", "BTC"},
		{"SOLUSDC", "SOL", "USDC"},
		{"XBTUSD", "XBT", "USD"},
		{"BTCTUSD", "BTC", "TUSD"},
		{"btcusdt", "BTC", "USDT"},
	}
	for _, c := range cases {
		base, quote := SplitSymbol(c.symbol)
		assert.Equal(t, c.base, base, c.symbol)
		assert.Equal(t, c.quote, quote, c.symbol)
	}
}

func TestApplyMarkup(t *testing.T) {
	got := ApplyMarkup(dec("50000"), dec("0.011"))
	assert.True(t, got.Equal(dec("50550")))
}

func TestRoundPrice(t *testing.T) {
	assert.True(t, RoundPrice(dec("50550.126"), 2).Equal(dec("50550.13")))
	assert.True(t, RoundQuantity(dec("0.1234567"), 6).Equal(dec("0.123457")))
}

func TestCalculateNetProfit(t *testing.T) {
	// buy 50000, sell 50550, 0.1% fee each side
	got := CalculateNetProfit(dec("50000"), dec("50550"), dec("0.001"), dec("0.001"))
	assert.True(t, got.Equal(dec("449.45")), got.String())
}
