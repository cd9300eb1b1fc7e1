package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_lifecycle/internal/core"
	"order_lifecycle/internal/mock"
	"order_lifecycle/internal/store"
	apperrors "order_lifecycle/pkg/errors"
	"order_lifecycle/pkg/telemetry"
)

type capturingBalances struct {
	mu    sync.Mutex
	fills []*core.Fill
}

func (c *capturingBalances) ApplyFill(ctx context.Context, fill *core.Fill, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fills = append(c.fills, fill)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *capturingBalances) {
	t.Helper()
	balances := &capturingBalances{}
	l := New(store.NewMemoryStore(), balances, mock.NewLogger(), "sess1")
	return l, balances
}

func placeOrder(t *testing.T, l *Ledger, id string, amount string) *core.Order {
	t.Helper()
	order := &core.Order{
		ID:     id,
		Symbol: "BTCUSDT",
		Side:   core.OrderSideBuy,
		Type:   core.OrderTypeLimit,
		Price:  decimal.RequireFromString("50000"),
		Amount: decimal.RequireFromString(amount),
	}
	require.NoError(t, l.Place(context.Background(), order))
	return order
}

func fill(id, orderID, amount string) *core.Fill {
	return &core.Fill{
		FillID:    id,
		OrderID:   orderID,
		Side:      core.OrderSideBuy,
		Price:     decimal.RequireFromString("50000"),
		Amount:    decimal.RequireFromString(amount),
		Fee:       decimal.RequireFromString("0.1"),
		Timestamp: time.Now(),
	}
}

func TestPlaceSetsInitialState(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")

	got, err := l.Get(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusOpen, got.Status)
	assert.True(t, got.Remaining.Equal(got.Amount))
	assert.True(t, got.Filled.IsZero())
}

func TestPlaceRejectsInvalidParameters(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.Place(context.Background(), &core.Order{
		ID:     "O1",
		Symbol: "BTCUSDT",
		Side:   core.OrderSideBuy,
		Type:   core.OrderTypeLimit,
		Price:  decimal.RequireFromString("50000"),
		Amount: decimal.Zero,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderParameter)
}

func TestPartialFillThenClose(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))
	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusPartiallyFilled, got.Status)
	assert.True(t, got.Filled.Add(got.Remaining).Equal(got.Amount))

	require.NoError(t, l.RecordFill(ctx, fill("F2", "O1", "0.6")))
	got, err = l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusClosed, got.Status)
	assert.True(t, got.Remaining.IsZero())
}

func TestDuplicateFillIsNoOp(t *testing.T) {
	l, balances := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))
	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))

	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, got.Filled.Equal(decimal.RequireFromString("0.4")))
	assert.Len(t, balances.fills, 1)
}

func TestFillForUnknownOrderIsDroppedNotConsumed(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// unknown order: dropped without error
	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))

	// once the order exists, the same fill id still applies
	placeOrder(t, l, "O1", "1.0")
	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))

	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, got.Filled.Equal(decimal.RequireFromString("0.4")))
}

func TestOverfillClampedToAmount(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.8")))
	require.NoError(t, l.RecordFill(ctx, fill("F2", "O1", "0.8")))

	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, got.Filled.Equal(got.Amount))
	assert.True(t, got.Remaining.IsZero())
	assert.Equal(t, core.OrderStatusClosed, got.Status)
}

func TestCancelTerminalOrderFails(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "1.0")))
	err := l.Cancel(ctx, "O1", "manual")
	assert.ErrorIs(t, err, apperrors.ErrOrderTerminal)
}

func TestCancelRecordsReasonAndTimestamp(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	require.NoError(t, l.Cancel(ctx, "O1", "stale quote"))
	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusCanceled, got.Status)
	assert.Equal(t, "stale quote", got.CancelReason)
	require.NotNil(t, got.CanceledAt)
}

func TestConcurrentFillsOnSameOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "10.0")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.RecordFill(ctx, fill(fmt.Sprintf("F%d", i), "O1", "1.0"))
		}(i)
	}
	wg.Wait()

	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, got.Filled.Equal(decimal.RequireFromString("10.0")))
	assert.Equal(t, core.OrderStatusClosed, got.Status)
	assert.True(t, got.Filled.Add(got.Remaining).Equal(got.Amount))
}

func TestObserverSeesTransitions(t *testing.T) {
	l, _ := newTestLedger(t)
	var events []core.OrderEvent
	l.Subscribe(func(e core.OrderEvent) { events = append(events, e) })

	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()
	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "1.0")))

	require.Len(t, events, 1)
	assert.Equal(t, core.OrderStatusOpen, events[0].Previous)
	assert.Equal(t, core.OrderStatusClosed, events[0].Order.Status)
	require.NotNil(t, events[0].Fill)
	assert.Equal(t, "F1", events[0].Fill.FillID)
}

func TestHasFill(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	has, err := l.HasFill(ctx, "O1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.5")))
	has, err = l.HasFill(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestActiveOrdersDropsTerminal(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	placeOrder(t, l, "O2", "1.0")
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "1.0")))

	active := l.ActiveOrders()
	require.Len(t, active, 1)
	assert.Equal(t, "O2", active[0].ID)
}

type brokenOrderWrites struct {
	core.IKeyedStore
	mu        sync.Mutex
	remaining int
}

func (s *brokenOrderWrites) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	if s.remaining > 0 && key == store.OrderKey("O1") {
		s.remaining--
		s.mu.Unlock()
		return apperrors.ErrNetwork
	}
	s.mu.Unlock()
	return s.IKeyedStore.Set(ctx, key, value)
}

func TestFailedPersistReleasesFillForReplay(t *testing.T) {
	st := &brokenOrderWrites{IKeyedStore: store.NewMemoryStore()}
	l := New(st, nil, mock.NewLogger(), "sess1")
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	st.mu.Lock()
	st.remaining = 1
	st.mu.Unlock()

	// the write fails after the fill id was claimed; the claim must be
	// given back or the replayed fill dedups against a fill never applied
	require.Error(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))
	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, got.Filled.IsZero())

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))
	got, err = l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.True(t, got.Filled.Equal(decimal.RequireFromString("0.4")))
	assert.Equal(t, core.OrderStatusPartiallyFilled, got.Status)
}

func TestUpdateStatusRejectsBackwardMove(t *testing.T) {
	l, _ := newTestLedger(t)
	placeOrder(t, l, "O1", "1.0")
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, fill("F1", "O1", "0.4")))
	err := l.UpdateStatus(ctx, "O1", core.OrderStatusOpen)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrderParameter)

	got, err := l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusPartiallyFilled, got.Status)

	// forward moves still pass
	require.NoError(t, l.UpdateStatus(ctx, "O1", core.OrderStatusClosed))
	got, err = l.Get(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, core.OrderStatusClosed, got.Status)
}

func TestActiveOrderGaugeTracksLifecycle(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	symbol := "GAUGEUSDT"
	place := func(id string) {
		require.NoError(t, l.Place(ctx, &core.Order{
			ID:     id,
			Symbol: symbol,
			Side:   core.OrderSideBuy,
			Type:   core.OrderTypeLimit,
			Price:  decimal.RequireFromString("50000"),
			Amount: decimal.RequireFromString("1.0"),
		}))
	}

	place("G1")
	place("G2")
	assert.EqualValues(t, 2, telemetry.GetGlobalMetrics().ActiveOrders(symbol))

	require.NoError(t, l.RecordFill(ctx, fill("GF1", "G1", "1.0")))
	assert.EqualValues(t, 1, telemetry.GetGlobalMetrics().ActiveOrders(symbol))

	require.NoError(t, l.Cancel(ctx, "G2", "manual"))
	assert.EqualValues(t, 0, telemetry.GetGlobalMetrics().ActiveOrders(symbol))
}
