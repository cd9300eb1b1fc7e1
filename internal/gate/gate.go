// Package gate performs pre-trade admission checks.
package gate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/core"
	apperrors "order_lifecycle/pkg/errors"
	"order_lifecycle/pkg/tradingutils"
)

// BalanceChecker answers whether enough of an asset is available
type BalanceChecker interface {
	ValidateAssetBalance(ctx context.Context, asset string, required decimal.Decimal) (*core.BalanceCheck, error)
}

// FillChecker answers whether an order has received at least one fill
type FillChecker interface {
	HasFill(ctx context.Context, orderID string) (bool, error)
}

// Gate decides whether a proposed order may proceed to the exchange.
//
// Exit orders referencing a parent are admitted on proof that the parent
// actually filled, not on the current balance snapshot: the proceeds of
// the parent fill may not be visible in the snapshot yet.
type Gate struct {
	balances BalanceChecker
	fills    FillChecker
	logger   core.ILogger
}

// New creates a gate
func New(balances BalanceChecker, fills FillChecker, logger core.ILogger) *Gate {
	return &Gate{balances: balances, fills: fills, logger: logger}
}

// CheckAndPrepare validates the request and returns an admission
// decision. Malformed requests are errors; an unaffordable request is a
// rejection, not an error.
func (g *Gate) CheckAndPrepare(ctx context.Context, req *core.OrderRequest) (*core.AdmissionResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	if req.ParentOrderID != "" {
		filled, err := g.fills.HasFill(ctx, req.ParentOrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to check parent order fills: %w", err)
		}
		if filled {
			return &core.AdmissionResult{Allowed: true, Reason: "parent order filled"}, nil
		}
		g.logger.Debug("parent order has no fills, rejecting exit order",
			"parent_order_id", req.ParentOrderID, "symbol", req.Symbol)
		return &core.AdmissionResult{
			Allowed: false,
			Reason:  "parent order has no fills",
		}, nil
	}

	base, quote := tradingutils.SplitSymbol(req.Symbol)
	var asset string
	var required decimal.Decimal
	switch req.Side {
	case core.OrderSideBuy:
		asset = quote
		required = req.Price.Mul(req.Amount)
	case core.OrderSideSell:
		asset = base
		required = req.Amount
	default:
		return nil, fmt.Errorf("%w: unknown side %q", apperrors.ErrInvalidOrderParameter, req.Side)
	}

	check, err := g.balances.ValidateAssetBalance(ctx, asset, required)
	if err != nil {
		return nil, fmt.Errorf("failed to validate balance: %w", err)
	}

	result := &core.AdmissionResult{
		Allowed:        check.Valid,
		RequiredAsset:  asset,
		RequiredAmount: required,
		Available:      check.TotalAvailable,
		Deficit:        check.Deficit,
	}
	if !check.Valid {
		result.Reason = fmt.Sprintf("insufficient %s: need %s, have %s",
			asset, required.String(), check.TotalAvailable.String())
		g.logger.Info("order rejected by admission check",
			"symbol", req.Symbol,
			"side", req.Side,
			"asset", asset,
			"required", required.String(),
			"available", check.TotalAvailable.String())
	}
	return result, nil
}

func validate(req *core.OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", apperrors.ErrInvalidOrderParameter)
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", apperrors.ErrInvalidOrderParameter)
	}
	if req.Type == core.OrderTypeLimit && req.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: limit price must be positive", apperrors.ErrInvalidOrderParameter)
	}
	return nil
}
