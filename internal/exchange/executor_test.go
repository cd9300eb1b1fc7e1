package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_lifecycle/internal/core"
	"order_lifecycle/internal/mock"
	apperrors "order_lifecycle/pkg/errors"
	"order_lifecycle/pkg/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func request() *core.OrderRequest {
	return &core.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   core.OrderSideBuy,
		Type:   core.OrderTypeLimit,
		Price:  decimal.RequireFromString("50000"),
		Amount: decimal.RequireFromString("0.1"),
	}
}

func TestPlaceOrderSucceeds(t *testing.T) {
	ex := mock.NewExchange()
	e := NewOrderExecutor(ex, mock.NewLogger(), 100, 10)
	e.SetRetryPolicy(fastPolicy())

	order, err := e.PlaceOrder(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusOpen, order.Status)
}

func TestPlaceOrderDoesNotRetryBusinessRejection(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetOrderFailure("BTCUSDT", apperrors.ErrInsufficientFunds)
	e := NewOrderExecutor(ex, mock.NewLogger(), 100, 10)
	e.SetRetryPolicy(fastPolicy())

	start := time.Now()
	_, err := e.PlaceOrder(context.Background(), request())
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	// a definitive rejection returns without backoff sleeps
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPlaceOrderRetriesTransientFailure(t *testing.T) {
	ex := mock.NewExchange()
	ex.SetOrderFailure("BTCUSDT", apperrors.ErrNetwork)
	e := NewOrderExecutor(ex, mock.NewLogger(), 100, 10)
	e.SetRetryPolicy(fastPolicy())

	_, err := e.PlaceOrder(context.Background(), request())
	assert.ErrorIs(t, err, apperrors.ErrNetwork)

	// clearing the fault lets the next call through
	ex.SetOrderFailure("BTCUSDT", nil)
	_, err = e.PlaceOrder(context.Background(), request())
	assert.NoError(t, err)
}

func TestCancelOrderPropagatesNotFound(t *testing.T) {
	ex := mock.NewExchange()
	e := NewOrderExecutor(ex, mock.NewLogger(), 100, 10)
	e.SetRetryPolicy(fastPolicy())

	err := e.CancelOrder(context.Background(), "BTCUSDT", "missing", "test")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}
