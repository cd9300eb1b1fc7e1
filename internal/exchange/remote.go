package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"order_lifecycle/internal/core"
	apperrors "order_lifecycle/pkg/errors"
	httpclient "order_lifecycle/pkg/http"
)

// RemoteExchange talks to a connector service exposing a JSON order API.
// When a balance stream is attached, GetBalances serves from its cache;
// GetAccountBalance always hits the pull endpoint.
type RemoteExchange struct {
	name   string
	client *httpclient.Client
	stream *BalanceStream
	logger core.ILogger
}

// NewRemoteExchange creates a client for the connector at baseURL.
// stream may be nil when no push feed is configured.
func NewRemoteExchange(name, baseURL string, timeout time.Duration, stream *BalanceStream, logger core.ILogger) *RemoteExchange {
	return &RemoteExchange{
		name:   name,
		client: httpclient.NewClient(baseURL, timeout, nil),
		stream: stream,
		logger: logger,
	}
}

func (e *RemoteExchange) GetName() string { return e.name }

func (e *RemoteExchange) CheckHealth(ctx context.Context) error {
	_, err := e.client.Get(ctx, "/health", nil)
	return err
}

type wireOrder struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	Filled        decimal.Decimal `json:"filled"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (w *wireOrder) toOrder(req *core.OrderRequest) *core.Order {
	order := &core.Order{
		ID:            w.ID,
		ClientOrderID: w.ClientOrderID,
		Symbol:        w.Symbol,
		Side:          core.OrderSide(w.Side),
		Type:          core.OrderType(w.Type),
		Price:         w.Price,
		Amount:        w.Amount,
		Filled:        w.Filled,
		Remaining:     w.Amount.Sub(w.Filled),
		Status:        core.OrderStatus(w.Status),
		CreatedAt:     w.CreatedAt,
		LastModified:  w.CreatedAt,
	}
	if req != nil {
		order.ParentOrderID = req.ParentOrderID
	}
	if order.Status == "" {
		order.Status = core.OrderStatusOpen
	}
	return order
}

func (e *RemoteExchange) CreateOrder(ctx context.Context, req *core.OrderRequest) (*core.Order, error) {
	var out wireOrder
	err := e.client.PostJSON(ctx, "/orders", map[string]interface{}{
		"symbol":          req.Symbol,
		"side":            string(req.Side),
		"type":            string(req.Type),
		"price":           req.Price,
		"amount":          req.Amount,
		"client_order_id": req.ClientOrderID,
	}, &out)
	if err != nil {
		return nil, e.mapError(err)
	}
	return out.toOrder(req), nil
}

func (e *RemoteExchange) CancelOrder(ctx context.Context, symbol, orderID, reason string) error {
	_, err := e.client.Delete(ctx, "/orders/"+orderID, map[string]string{
		"symbol": symbol,
		"reason": reason,
	})
	return e.mapError(err)
}

func (e *RemoteExchange) GetOrderBook(ctx context.Context, symbol string) (*core.OrderBook, error) {
	var book core.OrderBook
	if err := e.client.GetJSON(ctx, "/depth", map[string]string{"symbol": symbol}, &book); err != nil {
		return nil, e.mapError(err)
	}
	return &book, nil
}

func (e *RemoteExchange) GetBalances(ctx context.Context) (map[string]core.StreamBalance, error) {
	if e.stream != nil {
		return e.stream.Balances(), nil
	}

	var out struct {
		Balances map[string]core.StreamBalance `json:"balances"`
	}
	if err := e.client.GetJSON(ctx, "/balances", nil, &out); err != nil {
		return nil, e.mapError(err)
	}
	return out.Balances, nil
}

func (e *RemoteExchange) GetAccountBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	var out struct {
		Balances map[string]decimal.Decimal `json:"balances"`
	}
	if err := e.client.GetJSON(ctx, "/account/balance", nil, &out); err != nil {
		return nil, e.mapError(err)
	}
	return out.Balances, nil
}

// mapError translates connector HTTP failures onto the shared error set
// so retry classification works across exchange implementations.
func (e *RemoteExchange) mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *httpclient.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, apiErr.Body)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateOrder, apiErr.Body)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", apperrors.ErrInsufficientFunds, apiErr.Body)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return fmt.Errorf("%w: %s", apperrors.ErrOrderRejected, apiErr.Body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", apperrors.ErrRateLimitExceeded, apiErr.Body)
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, apiErr)
	}
}
