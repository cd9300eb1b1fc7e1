// Package ledger owns the canonical order records and applies execution
// fills to them.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/core"
	"order_lifecycle/internal/store"
	apperrors "order_lifecycle/pkg/errors"
	"order_lifecycle/pkg/telemetry"
)

// fillEpsilon bounds the drift tolerated between filled+remaining and amount
var fillEpsilon = decimal.New(1, -8)

// BalanceWriter receives applied fills so the local balance view can be
// adjusted without waiting for the next refresh.
type BalanceWriter interface {
	ApplyFill(ctx context.Context, fill *core.Fill, symbol string) error
}

// Observer is notified after every committed order transition
type Observer func(event core.OrderEvent)

// Ledger is the authoritative order record keeper. All mutations to an
// order are serialized through a per-order lock, so concurrent fills for
// the same order apply one at a time.
type Ledger struct {
	store     core.IKeyedStore
	balances  BalanceWriter
	logger    core.ILogger
	sessionID string

	mu         sync.RWMutex
	active     map[string]*core.Order
	orderLocks map[string]*sync.Mutex
	observers  []Observer
}

// New creates a ledger. balances may be nil when no local balance view
// needs fill deltas.
func New(st core.IKeyedStore, balances BalanceWriter, logger core.ILogger, sessionID string) *Ledger {
	return &Ledger{
		store:      st,
		balances:   balances,
		logger:     logger,
		sessionID:  sessionID,
		active:     make(map[string]*core.Order),
		orderLocks: make(map[string]*sync.Mutex),
	}
}

// Subscribe registers an observer for order transitions. Observers run
// synchronously on the mutating goroutine and must not block.
func (l *Ledger) Subscribe(obs Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, obs)
}

// Place admits a new order into the ledger
func (l *Ledger) Place(ctx context.Context, order *core.Order) error {
	if order.ID == "" {
		return fmt.Errorf("%w: order id is empty", apperrors.ErrInvalidOrderParameter)
	}
	if order.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", apperrors.ErrInvalidOrderParameter)
	}
	if order.Type == core.OrderTypeLimit && order.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: limit price must be positive", apperrors.ErrInvalidOrderParameter)
	}

	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.LastModified = now
	if order.Status == "" {
		order.Status = core.OrderStatusOpen
	}
	if order.Filled.IsZero() && order.Remaining.IsZero() {
		order.Remaining = order.Amount
	}

	if err := l.persist(ctx, order); err != nil {
		return err
	}
	if err := l.store.AddToSet(ctx, store.SessionOrdersKey(l.sessionID), order.ID); err != nil {
		l.logger.Warn("failed to index order in session set", "order_id", order.ID, "error", err)
	}

	l.mu.Lock()
	if !order.Status.IsTerminal() {
		l.active[order.ID] = order
	}
	l.refreshActiveGauge(order.Symbol)
	l.mu.Unlock()

	telemetry.GetGlobalMetrics().IncOrdersPlaced(ctx, order.Symbol)
	l.logger.Info("order placed",
		"order_id", order.ID,
		"symbol", order.Symbol,
		"side", order.Side,
		"price", order.Price.String(),
		"amount", order.Amount.String())
	return nil
}

// RecordFill applies an execution fill to its order exactly once.
//
// Fills for unknown orders are logged and dropped without consuming the
// fill id, so a later replay still applies once the order exists.
// Duplicate fill ids are silent no-ops.
func (l *Ledger) RecordFill(ctx context.Context, fill *core.Fill) error {
	if fill.FillID == "" || fill.OrderID == "" {
		return fmt.Errorf("%w: fill id and order id are required", apperrors.ErrInvalidOrderParameter)
	}

	order, err := l.Get(ctx, fill.OrderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			telemetry.GetGlobalMetrics().IncFillsOrphan(ctx)
			l.logger.Warn("fill references unknown order, dropping",
				"fill_id", fill.FillID, "order_id", fill.OrderID)
			return nil
		}
		return err
	}

	payload, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("failed to marshal fill: %w", err)
	}
	fresh, err := l.store.SetIfAbsent(ctx, store.FillKey(fill.FillID), payload, 0)
	if err != nil {
		return fmt.Errorf("failed to claim fill id: %w", err)
	}
	if !fresh {
		telemetry.GetGlobalMetrics().IncFillsDuplicate(ctx)
		l.logger.Debug("duplicate fill ignored", "fill_id", fill.FillID, "order_id", fill.OrderID)
		return nil
	}

	lock := l.lockFor(fill.OrderID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent fill may have advanced the order
	order, err = l.Get(ctx, fill.OrderID)
	if err != nil {
		l.releaseFill(ctx, fill.FillID)
		return err
	}
	if order.Status.IsTerminal() {
		l.logger.Warn("fill arrived for terminal order",
			"fill_id", fill.FillID, "order_id", fill.OrderID, "status", order.Status)
		return nil
	}

	previous := order.Status
	order.Filled = order.Filled.Add(fill.Amount)
	if order.Filled.GreaterThan(order.Amount) {
		l.logger.Warn("overfill clamped",
			"order_id", order.ID,
			"filled", order.Filled.String(),
			"amount", order.Amount.String())
		order.Filled = order.Amount
	}
	order.Remaining = order.Amount.Sub(order.Filled)
	if order.Remaining.LessThanOrEqual(fillEpsilon) {
		order.Remaining = decimal.Zero
		order.Status = core.OrderStatusClosed
	} else {
		order.Status = core.OrderStatusPartiallyFilled
	}
	order.LastModified = time.Now()

	if err := l.persist(ctx, order); err != nil {
		l.releaseFill(ctx, fill.FillID)
		return err
	}
	if err := l.store.Push(ctx, store.OrderFillsKey(order.ID), payload); err != nil {
		l.logger.Warn("failed to append fill to order fill list",
			"order_id", order.ID, "fill_id", fill.FillID, "error", err)
	}

	l.mu.Lock()
	if order.Status.IsTerminal() {
		delete(l.active, order.ID)
	} else {
		l.active[order.ID] = order
	}
	l.refreshActiveGauge(order.Symbol)
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	telemetry.GetGlobalMetrics().IncFillsApplied(ctx, order.Symbol)

	if l.balances != nil {
		if err := l.balances.ApplyFill(ctx, fill, order.Symbol); err != nil {
			l.logger.Warn("failed to apply fill to balance view",
				"fill_id", fill.FillID, "error", err)
		}
	}

	event := core.OrderEvent{Order: order, Previous: previous, Fill: fill}
	for _, obs := range observers {
		obs(event)
	}

	l.logger.Info("fill applied",
		"fill_id", fill.FillID,
		"order_id", order.ID,
		"filled", order.Filled.String(),
		"remaining", order.Remaining.String(),
		"status", order.Status)
	return nil
}

// statusRank orders the forward direction of the lifecycle. CANCELED
// shares the terminal rank so it is reachable from any non-terminal state.
var statusRank = map[core.OrderStatus]int{
	core.OrderStatusOpen:            0,
	core.OrderStatusPartiallyFilled: 1,
	core.OrderStatusClosed:          2,
	core.OrderStatusCanceled:        2,
}

// UpdateStatus moves an order to a new status. The status only advances:
// terminal orders reject any transition, and backward moves are rejected.
func (l *Ledger) UpdateStatus(ctx context.Context, orderID string, status core.OrderStatus) error {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := l.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", apperrors.ErrOrderTerminal, orderID, order.Status)
	}
	rank, known := statusRank[status]
	if !known || rank < statusRank[order.Status] {
		return fmt.Errorf("%w: cannot move order %s from %s to %s",
			apperrors.ErrInvalidOrderParameter, orderID, order.Status, status)
	}

	previous := order.Status
	order.Status = status
	order.LastModified = time.Now()
	if err := l.persist(ctx, order); err != nil {
		return err
	}

	l.mu.Lock()
	if order.Status.IsTerminal() {
		delete(l.active, order.ID)
	} else {
		l.active[order.ID] = order
	}
	l.refreshActiveGauge(order.Symbol)
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	for _, obs := range observers {
		obs(core.OrderEvent{Order: order, Previous: previous})
	}
	return nil
}

// Cancel marks an order canceled with a reason. Canceling a terminal
// order is an error.
func (l *Ledger) Cancel(ctx context.Context, orderID, reason string) error {
	lock := l.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := l.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", apperrors.ErrOrderTerminal, orderID, order.Status)
	}

	previous := order.Status
	now := time.Now()
	order.Status = core.OrderStatusCanceled
	order.CanceledAt = &now
	order.CancelReason = reason
	order.LastModified = now
	if err := l.persist(ctx, order); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.active, order.ID)
	l.refreshActiveGauge(order.Symbol)
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	telemetry.GetGlobalMetrics().IncOrdersCanceled(ctx, order.Symbol)
	for _, obs := range observers {
		obs(core.OrderEvent{Order: order, Previous: previous})
	}

	l.logger.Info("order canceled", "order_id", orderID, "reason", reason)
	return nil
}

// Get loads an order by id
func (l *Ledger) Get(ctx context.Context, orderID string) (*core.Order, error) {
	data, err := l.store.Get(ctx, store.OrderKey(orderID))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	var order core.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", orderID, err)
	}
	return &order, nil
}

// HasFill reports whether at least one fill has been applied to the order
func (l *Ledger) HasFill(ctx context.Context, orderID string) (bool, error) {
	fills, err := l.store.List(ctx, store.OrderFillsKey(orderID))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return len(fills) > 0, nil
}

// ActiveOrders returns a snapshot of non-terminal orders
func (l *Ledger) ActiveOrders() []*core.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*core.Order, 0, len(l.active))
	for _, o := range l.active {
		copied := *o
		out = append(out, &copied)
	}
	return out
}

func (l *Ledger) persist(ctx context.Context, order *core.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
	}
	if err := l.store.Set(ctx, store.OrderKey(order.ID), data); err != nil {
		return fmt.Errorf("failed to persist order %s: %w", order.ID, err)
	}
	return nil
}

// releaseFill returns a claimed fill id to the pool after a failed
// application, so a replay of the same fill can still land.
func (l *Ledger) releaseFill(ctx context.Context, fillID string) {
	if err := l.store.Delete(ctx, store.FillKey(fillID)); err != nil {
		l.logger.Warn("failed to release fill claim", "fill_id", fillID, "error", err)
	}
}

// refreshActiveGauge recounts active orders for a symbol. Caller holds l.mu.
func (l *Ledger) refreshActiveGauge(symbol string) {
	var n int64
	for _, o := range l.active {
		if o.Symbol == symbol {
			n++
		}
	}
	telemetry.GetGlobalMetrics().SetActiveOrders(symbol, n)
}

func (l *Ledger) lockFor(orderID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.orderLocks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		l.orderLocks[orderID] = lock
	}
	return lock
}
