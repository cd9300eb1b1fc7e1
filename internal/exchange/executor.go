// Package exchange hosts the concrete exchange boundary clients and the
// rate-limited order executor that fronts them.
package exchange

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"order_lifecycle/internal/core"
	apperrors "order_lifecycle/pkg/errors"
	"order_lifecycle/pkg/retry"
	"order_lifecycle/pkg/telemetry"
)

// OrderExecutor serializes exchange order calls through a rate limiter
// and retries transient failures. Business rejections never retry: the
// exchange already gave a definitive answer.
type OrderExecutor struct {
	exchange core.IExchange
	logger   core.ILogger
	limiter  *rate.Limiter
	policy   retry.Policy
}

// NewOrderExecutor creates an executor. limit is calls per second, burst
// the momentary allowance above it.
func NewOrderExecutor(exchange core.IExchange, logger core.ILogger, limit float64, burst int) *OrderExecutor {
	return &OrderExecutor{
		exchange: exchange,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		policy:   retry.DefaultPolicy,
	}
}

// SetRetryPolicy overrides the retry policy. Useful for tests that want
// fast failures.
func (e *OrderExecutor) SetRetryPolicy(policy retry.Policy) {
	e.policy = policy
}

func isDefinitive(err error) bool {
	return errors.Is(err, apperrors.ErrInsufficientFunds) ||
		errors.Is(err, apperrors.ErrInvalidOrderParameter) ||
		errors.Is(err, apperrors.ErrOrderRejected) ||
		errors.Is(err, apperrors.ErrDuplicateOrder) ||
		errors.Is(err, apperrors.ErrOrderNotFound) ||
		errors.Is(err, apperrors.ErrOrderTerminal)
}

func retriable(err error) bool { return !isDefinitive(err) }

// PlaceOrder submits an order to the exchange
func (e *OrderExecutor) PlaceOrder(ctx context.Context, req *core.OrderRequest) (*core.Order, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var order *core.Order
	start := time.Now()
	err := retry.Do(ctx, e.policy, retriable, func() error {
		var placeErr error
		order, placeErr = e.exchange.CreateOrder(ctx, req)
		if placeErr != nil {
			e.logger.Warn("order placement attempt failed",
				"symbol", req.Symbol, "side", req.Side, "error", placeErr)
		}
		return placeErr
	})
	telemetry.GetGlobalMetrics().RecordExchangeLatency(ctx, "create_order", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels an order on the exchange
func (e *OrderExecutor) CancelOrder(ctx context.Context, symbol, orderID, reason string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := retry.Do(ctx, e.policy, retriable, func() error {
		return e.exchange.CancelOrder(ctx, symbol, orderID, reason)
	})
	telemetry.GetGlobalMetrics().RecordExchangeLatency(ctx, "cancel_order", time.Since(start).Seconds())
	return err
}
