package gate

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_lifecycle/internal/core"
	"order_lifecycle/internal/mock"
	apperrors "order_lifecycle/pkg/errors"
)

type stubBalances struct {
	available map[string]decimal.Decimal
}

func (s *stubBalances) ValidateAssetBalance(ctx context.Context, asset string, required decimal.Decimal) (*core.BalanceCheck, error) {
	avail := s.available[asset]
	check := &core.BalanceCheck{
		Valid:          avail.GreaterThanOrEqual(required),
		TotalAvailable: avail,
		Variants:       []string{asset},
	}
	if !check.Valid {
		check.Deficit = required.Sub(avail)
	}
	return check, nil
}

type stubFills struct {
	filled map[string]bool
}

func (s *stubFills) HasFill(ctx context.Context, orderID string) (bool, error) {
	return s.filled[orderID], nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newGate(available map[string]decimal.Decimal, filled map[string]bool) *Gate {
	return New(&stubBalances{available: available}, &stubFills{filled: filled}, mock.NewLogger())
}

func buyRequest(price, amount string) *core.OrderRequest {
	return &core.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   core.OrderSideBuy,
		Type:   core.OrderTypeLimit,
		Price:  dec(price),
		Amount: dec(amount),
	}
}

func TestBuyAdmittedWhenQuoteSuffices(t *testing.T) {
	g := newGate(map[string]decimal.Decimal{"USDT": dec("10000")}, nil)

	result, err := g.CheckAndPrepare(context.Background(), buyRequest("50000", "0.1"))
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, "USDT", result.RequiredAsset)
	assert.True(t, result.RequiredAmount.Equal(dec("5000")))
}

func TestBuyRejectedOnDeficitWithoutError(t *testing.T) {
	g := newGate(map[string]decimal.Decimal{"USDT": dec("1000")}, nil)

	result, err := g.CheckAndPrepare(context.Background(), buyRequest("50000", "0.1"))
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.True(t, result.Deficit.Equal(dec("4000")))
	assert.NotEmpty(t, result.Reason)
}

func TestSellChecksBaseAsset(t *testing.T) {
	g := newGate(map[string]decimal.Decimal{"BTC": dec("0.05")}, nil)

	result, err := g.CheckAndPrepare(context.Background(), &core.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   core.OrderSideSell,
		Type:   core.OrderTypeLimit,
		Price:  dec("50000"),
		Amount: dec("0.1"),
	})
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Equal(t, "BTC", result.RequiredAsset)
	assert.True(t, result.Deficit.Equal(dec("0.05")))
}

func TestExitOrderBypassesBalanceWhenParentFilled(t *testing.T) {
	// no balance at all, but the parent has a fill
	g := newGate(map[string]decimal.Decimal{}, map[string]bool{"O1": true})

	result, err := g.CheckAndPrepare(context.Background(), &core.OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          core.OrderSideSell,
		Type:          core.OrderTypeLimit,
		Price:         dec("51000"),
		Amount:        dec("0.1"),
		ParentOrderID: "O1",
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestExitOrderRejectedWhenParentUnfilled(t *testing.T) {
	g := newGate(map[string]decimal.Decimal{"BTC": dec("10")}, map[string]bool{})

	result, err := g.CheckAndPrepare(context.Background(), &core.OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          core.OrderSideSell,
		Type:          core.OrderTypeLimit,
		Price:         dec("51000"),
		Amount:        dec("0.1"),
		ParentOrderID: "O1",
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestMalformedRequestIsError(t *testing.T) {
	g := newGate(map[string]decimal.Decimal{"USDT": dec("10000")}, nil)

	_, err := g.CheckAndPrepare(context.Background(), buyRequest("50000", "0"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderParameter)

	_, err = g.CheckAndPrepare(context.Background(), buyRequest("0", "1"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderParameter)
}
