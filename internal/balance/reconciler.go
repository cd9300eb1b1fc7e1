// Package balance reconciles the stream and pull balance feeds into one
// trusted snapshot.
package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/core"
	"order_lifecycle/pkg/telemetry"
	"order_lifecycle/pkg/tradingutils"
)

// defaultVariants maps assets that trade under more than one ticker
var defaultVariants = map[string][]string{
	"BTC": {"BTC", "XBT"},
	"XBT": {"XBT", "BTC"},
}

// Reconciler maintains the local balance snapshot. It prefers the stream
// feed but falls back to the pull API when the stream reports nothing
// above the dust threshold or errors outright.
type Reconciler struct {
	exchange core.IExchange
	logger   core.ILogger
	ttl      time.Duration
	dust     decimal.Decimal
	variants map[string][]string

	mu        sync.RWMutex
	snapshot  map[string]core.Balance
	fetchedAt time.Time
}

// New creates a reconciler. Extra variant groups from configuration are
// merged over the built-in ones.
func New(exchange core.IExchange, logger core.ILogger, ttl time.Duration, dust decimal.Decimal, extraVariants map[string][]string) *Reconciler {
	variants := make(map[string][]string, len(defaultVariants)+len(extraVariants))
	for k, v := range defaultVariants {
		variants[k] = v
	}
	for k, v := range extraVariants {
		variants[k] = v
	}
	return &Reconciler{
		exchange: exchange,
		logger:   logger,
		ttl:      ttl,
		dust:     dust,
		variants: variants,
		snapshot: make(map[string]core.Balance),
	}
}

// GetBalances returns the current snapshot, refreshing it when stale or
// when force is set.
func (r *Reconciler) GetBalances(ctx context.Context, force bool) (map[string]core.Balance, error) {
	r.mu.RLock()
	fresh := !force && !r.fetchedAt.IsZero() && time.Since(r.fetchedAt) < r.ttl
	if fresh {
		out := copySnapshot(r.snapshot)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	snapshot, source, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.fetchedAt = time.Now()
	out := copySnapshot(r.snapshot)
	r.mu.Unlock()

	telemetry.GetGlobalMetrics().IncBalanceRefresh(ctx, string(source))
	return out, nil
}

// fetch tries the stream source first. A stream snapshot where every
// balance is at or below dust is treated as uninitialized, not as empty.
func (r *Reconciler) fetch(ctx context.Context) (map[string]core.Balance, core.BalanceSource, error) {
	stream, err := r.exchange.GetBalances(ctx)
	if err == nil {
		usable := false
		for _, b := range stream {
			if b.Available.GreaterThan(r.dust) || b.Total.GreaterThan(r.dust) {
				usable = true
				break
			}
		}
		if usable {
			snapshot := make(map[string]core.Balance, len(stream))
			for asset, b := range stream {
				snapshot[asset] = core.Balance{
					Asset:     asset,
					Total:     b.Total,
					Available: b.Available,
					Reserved:  b.Total.Sub(b.Available),
					Source:    core.BalanceSourceStream,
				}
			}
			return snapshot, core.BalanceSourceStream, nil
		}
		r.logger.Warn("stream balances all at or below dust, falling back to pull source",
			"dust", r.dust.String())
	} else {
		r.logger.Warn("stream balance source failed, falling back to pull source", "error", err)
	}

	telemetry.GetGlobalMetrics().IncBalanceFallback(ctx)

	pulled, err := r.exchange.GetAccountBalance(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("both balance sources failed: %w", err)
	}
	snapshot := make(map[string]core.Balance, len(pulled))
	for asset, total := range pulled {
		snapshot[asset] = core.Balance{
			Asset:     asset,
			Total:     total,
			Available: total,
			Source:    core.BalanceSourcePull,
		}
	}
	return snapshot, core.BalanceSourcePull, nil
}

// ValidateAssetBalance checks whether required amount of asset is
// available, summing variant tickers above dust. A missing asset is a
// zero balance, never an error.
func (r *Reconciler) ValidateAssetBalance(ctx context.Context, asset string, required decimal.Decimal) (*core.BalanceCheck, error) {
	balances, err := r.GetBalances(ctx, false)
	if err != nil {
		return nil, err
	}

	names := r.variants[asset]
	if len(names) == 0 {
		names = []string{asset}
	}

	total := decimal.Zero
	var counted []string
	for _, name := range names {
		b, ok := balances[name]
		if !ok || !b.Available.GreaterThan(r.dust) {
			continue
		}
		total = total.Add(b.Available)
		counted = append(counted, name)
	}

	check := &core.BalanceCheck{
		Valid:          total.GreaterThanOrEqual(required),
		TotalAvailable: total,
		Variants:       counted,
	}
	if !check.Valid {
		check.Deficit = required.Sub(total)
	}
	return check, nil
}

// Invalidate forces the next GetBalances call to refresh
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}

// ApplyFill adjusts the local snapshot for an executed fill so the view
// stays usable between refreshes. No-op before the first fetch.
func (r *Reconciler) ApplyFill(ctx context.Context, fill *core.Fill, symbol string) error {
	base, quote := tradingutils.SplitSymbol(symbol)
	notional := fill.Price.Mul(fill.Amount)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fetchedAt.IsZero() {
		return nil
	}

	baseBal := r.snapshot[base]
	baseBal.Asset = base
	quoteBal := r.snapshot[quote]
	quoteBal.Asset = quote

	switch fill.Side {
	case core.OrderSideBuy:
		quoteBal.Available = quoteBal.Available.Sub(notional).Sub(fill.Fee)
		quoteBal.Total = quoteBal.Total.Sub(notional).Sub(fill.Fee)
		baseBal.Available = baseBal.Available.Add(fill.Amount)
		baseBal.Total = baseBal.Total.Add(fill.Amount)
	case core.OrderSideSell:
		baseBal.Available = baseBal.Available.Sub(fill.Amount)
		baseBal.Total = baseBal.Total.Sub(fill.Amount)
		quoteBal.Available = quoteBal.Available.Add(notional).Sub(fill.Fee)
		quoteBal.Total = quoteBal.Total.Add(notional).Sub(fill.Fee)
	default:
		return fmt.Errorf("unknown fill side %q", fill.Side)
	}

	r.snapshot[base] = baseBal
	r.snapshot[quote] = quoteBal
	return nil
}

func copySnapshot(in map[string]core.Balance) map[string]core.Balance {
	out := make(map[string]core.Balance, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
