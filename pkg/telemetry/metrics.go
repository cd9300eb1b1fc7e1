package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal      = "lifecycle_orders_placed_total"
	MetricOrdersCanceledTotal    = "lifecycle_orders_canceled_total"
	MetricOrdersActive           = "lifecycle_orders_active"
	MetricFillsAppliedTotal      = "lifecycle_fills_applied_total"
	MetricFillsDuplicateTotal    = "lifecycle_fills_duplicate_total"
	MetricFillsOrphanTotal       = "lifecycle_fills_orphan_total"
	MetricTakeProfitCreated      = "lifecycle_take_profit_created_total"
	MetricTakeProfitDuplicate    = "lifecycle_take_profit_duplicate_total"
	MetricTakeProfitFailed       = "lifecycle_take_profit_failed_total"
	MetricBalanceFallbackTotal   = "lifecycle_balance_fallback_total"
	MetricBalanceRefreshTotal    = "lifecycle_balance_refresh_total"
	MetricExchangeLatencySeconds = "lifecycle_exchange_latency_seconds"
)

// MetricsHolder holds initialized instruments. Instruments are nil until
// InitMetrics runs; the record helpers are safe to call either way so
// library code does not depend on telemetry being configured.
type MetricsHolder struct {
	OrdersPlacedTotal   metric.Int64Counter
	OrdersCanceledTotal metric.Int64Counter
	OrdersActive        metric.Int64ObservableGauge
	FillsAppliedTotal   metric.Int64Counter
	FillsDuplicateTotal metric.Int64Counter
	FillsOrphanTotal    metric.Int64Counter
	TakeProfitCreated   metric.Int64Counter
	TakeProfitDuplicate metric.Int64Counter
	TakeProfitFailed    metric.Int64Counter
	BalanceFallback     metric.Int64Counter
	BalanceRefresh      metric.Int64Counter
	ExchangeLatency     metric.Float64Histogram

	mu              sync.RWMutex
	activeOrdersMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			activeOrdersMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal,
		metric.WithDescription("Total orders recorded by the ledger")); err != nil {
		return err
	}
	if m.OrdersCanceledTotal, err = meter.Int64Counter(MetricOrdersCanceledTotal,
		metric.WithDescription("Total orders canceled")); err != nil {
		return err
	}
	if m.FillsAppliedTotal, err = meter.Int64Counter(MetricFillsAppliedTotal,
		metric.WithDescription("Total fills applied to orders")); err != nil {
		return err
	}
	if m.FillsDuplicateTotal, err = meter.Int64Counter(MetricFillsDuplicateTotal,
		metric.WithDescription("Total duplicate fill replays ignored")); err != nil {
		return err
	}
	if m.FillsOrphanTotal, err = meter.Int64Counter(MetricFillsOrphanTotal,
		metric.WithDescription("Total fills referencing unknown orders")); err != nil {
		return err
	}
	if m.TakeProfitCreated, err = meter.Int64Counter(MetricTakeProfitCreated,
		metric.WithDescription("Total take-profit orders created")); err != nil {
		return err
	}
	if m.TakeProfitDuplicate, err = meter.Int64Counter(MetricTakeProfitDuplicate,
		metric.WithDescription("Total take-profit claims lost to an existing holder")); err != nil {
		return err
	}
	if m.TakeProfitFailed, err = meter.Int64Counter(MetricTakeProfitFailed,
		metric.WithDescription("Total take-profit creation failures")); err != nil {
		return err
	}
	if m.BalanceFallback, err = meter.Int64Counter(MetricBalanceFallbackTotal,
		metric.WithDescription("Times the stream balance source was discarded for the pull source")); err != nil {
		return err
	}
	if m.BalanceRefresh, err = meter.Int64Counter(MetricBalanceRefreshTotal,
		metric.WithDescription("Balance snapshot refreshes")); err != nil {
		return err
	}
	if m.ExchangeLatency, err = meter.Float64Histogram(MetricExchangeLatencySeconds,
		metric.WithDescription("Latency of exchange boundary calls"),
		metric.WithUnit("s")); err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive,
		metric.WithDescription("Orders currently in the active working set"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, n := range m.activeOrdersMap {
				obs.Observe(n, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	return err
}

// SetActiveOrders updates the active-order gauge state for a symbol
func (m *MetricsHolder) SetActiveOrders(symbol string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[symbol] = n
}

// ActiveOrders reads the current gauge state for a symbol
func (m *MetricsHolder) ActiveOrders(symbol string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeOrdersMap[symbol]
}

func add(ctx context.Context, c metric.Int64Counter, opts ...metric.AddOption) {
	if c != nil {
		c.Add(ctx, 1, opts...)
	}
}

// IncOrdersPlaced records an order placement
func (m *MetricsHolder) IncOrdersPlaced(ctx context.Context, symbol string) {
	add(ctx, m.OrdersPlacedTotal, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// IncOrdersCanceled records an order cancellation
func (m *MetricsHolder) IncOrdersCanceled(ctx context.Context, symbol string) {
	add(ctx, m.OrdersCanceledTotal, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// IncFillsApplied records a fill application
func (m *MetricsHolder) IncFillsApplied(ctx context.Context, symbol string) {
	add(ctx, m.FillsAppliedTotal, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// IncFillsDuplicate records an ignored fill replay
func (m *MetricsHolder) IncFillsDuplicate(ctx context.Context) {
	add(ctx, m.FillsDuplicateTotal)
}

// IncFillsOrphan records a fill for an unknown order
func (m *MetricsHolder) IncFillsOrphan(ctx context.Context) {
	add(ctx, m.FillsOrphanTotal)
}

// IncTakeProfitCreated records a created exit order
func (m *MetricsHolder) IncTakeProfitCreated(ctx context.Context, symbol string) {
	add(ctx, m.TakeProfitCreated, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// IncTakeProfitDuplicate records a lost claim
func (m *MetricsHolder) IncTakeProfitDuplicate(ctx context.Context, symbol string) {
	add(ctx, m.TakeProfitDuplicate, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// IncTakeProfitFailed records a failed exit order creation
func (m *MetricsHolder) IncTakeProfitFailed(ctx context.Context, symbol string) {
	add(ctx, m.TakeProfitFailed, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// IncBalanceFallback records a stream-to-pull source fallback
func (m *MetricsHolder) IncBalanceFallback(ctx context.Context) {
	add(ctx, m.BalanceFallback)
}

// IncBalanceRefresh records a snapshot refresh
func (m *MetricsHolder) IncBalanceRefresh(ctx context.Context, source string) {
	add(ctx, m.BalanceRefresh, metric.WithAttributes(attribute.String("source", source)))
}

// RecordExchangeLatency records boundary call latency in seconds
func (m *MetricsHolder) RecordExchangeLatency(ctx context.Context, op string, seconds float64) {
	if m.ExchangeLatency != nil {
		m.ExchangeLatency.Record(ctx, seconds, metric.WithAttributes(attribute.String("op", op)))
	}
}
