package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/core"
	apperrors "order_lifecycle/pkg/errors"
)

// Exchange is an in-memory exchange used in tests and for dry runs. It
// honors client order id idempotency the way a real venue does: resubmitting
// a known client order id returns the original order instead of a new one.
type Exchange struct {
	mu sync.Mutex

	orders         map[string]*core.Order
	clientOrderMap map[string]string // client order id -> exchange order id
	orderCounter   int

	streamBalances  map[string]core.StreamBalance
	accountBalances map[string]decimal.Decimal
	books           map[string]*core.OrderBook

	failures map[string]error // symbol -> injected create failure

	created []*core.Order
}

// NewExchange creates an empty mock exchange
func NewExchange() *Exchange {
	return &Exchange{
		orders:          make(map[string]*core.Order),
		clientOrderMap:  make(map[string]string),
		streamBalances:  make(map[string]core.StreamBalance),
		accountBalances: make(map[string]decimal.Decimal),
		books:           make(map[string]*core.OrderBook),
		failures:        make(map[string]error),
	}
}

func (e *Exchange) GetName() string { return "mock" }

func (e *Exchange) CheckHealth(ctx context.Context) error { return nil }

// SetOrderFailure injects an error for all future creates on a symbol.
// Pass nil to clear.
func (e *Exchange) SetOrderFailure(symbol string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, symbol)
		return
	}
	e.failures[symbol] = err
}

// SetStreamBalances replaces the push-feed balance snapshot
func (e *Exchange) SetStreamBalances(balances map[string]core.StreamBalance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamBalances = make(map[string]core.StreamBalance, len(balances))
	for k, v := range balances {
		e.streamBalances[k] = v
	}
}

// SetAccountBalances replaces the pull-API balance snapshot
func (e *Exchange) SetAccountBalances(balances map[string]decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accountBalances = make(map[string]decimal.Decimal, len(balances))
	for k, v := range balances {
		e.accountBalances[k] = v
	}
}

// SetOrderBook installs a book snapshot for a symbol
func (e *Exchange) SetOrderBook(symbol string, book *core.OrderBook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[symbol] = book
}

func (e *Exchange) CreateOrder(ctx context.Context, req *core.OrderRequest) (*core.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err, ok := e.failures[req.Symbol]; ok {
		return nil, err
	}

	if req.ClientOrderID != "" {
		if existingID, ok := e.clientOrderMap[req.ClientOrderID]; ok {
			copied := *e.orders[existingID]
			return &copied, nil
		}
	}

	e.orderCounter++
	order := &core.Order{
		ID:            fmt.Sprintf("MOCK-%d", e.orderCounter),
		ClientOrderID: req.ClientOrderID,
		ParentOrderID: req.ParentOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Amount:        req.Amount,
		Filled:        decimal.Zero,
		Remaining:     req.Amount,
		Status:        core.OrderStatusOpen,
		CreatedAt:     time.Now(),
		LastModified:  time.Now(),
	}
	e.orders[order.ID] = order
	if req.ClientOrderID != "" {
		e.clientOrderMap[req.ClientOrderID] = order.ID
	}

	copied := *order
	e.created = append(e.created, &copied)
	return &copied, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol, orderID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return apperrors.ErrOrderTerminal
	}
	now := time.Now()
	order.Status = core.OrderStatusCanceled
	order.CanceledAt = &now
	order.CancelReason = reason
	order.LastModified = now
	return nil
}

func (e *Exchange) GetOrderBook(ctx context.Context, symbol string) (*core.OrderBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	book, ok := e.books[symbol]
	if !ok {
		return &core.OrderBook{}, nil
	}
	return book, nil
}

func (e *Exchange) GetBalances(ctx context.Context) (map[string]core.StreamBalance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]core.StreamBalance, len(e.streamBalances))
	for k, v := range e.streamBalances {
		out[k] = v
	}
	return out, nil
}

func (e *Exchange) GetAccountBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(e.accountBalances))
	for k, v := range e.accountBalances {
		out[k] = v
	}
	return out, nil
}

// CreatedOrders returns every order created so far, in creation order
func (e *Exchange) CreatedOrders() []*core.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*core.Order, len(e.created))
	copy(out, e.created)
	return out
}
