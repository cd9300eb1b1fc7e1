// Package core defines the domain types and capability interfaces shared
// across the order lifecycle services.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IExchange is the capability interface concrete exchange clients implement.
// The core depends only on this boundary; both balance feeds it exposes are
// treated as potentially stale and never assumed authoritative a priori.
type IExchange interface {
	GetName() string
	CheckHealth(ctx context.Context) error

	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID, reason string) error
	GetOrderBook(ctx context.Context, symbol string) (*OrderBook, error)

	// GetBalances is the push/cache balance source
	GetBalances(ctx context.Context) (map[string]StreamBalance, error)
	// GetAccountBalance is the pull-based authoritative balance source
	GetAccountBalance(ctx context.Context) (map[string]decimal.Decimal, error)
}

// IOrderExecutor places and cancels orders with rate limiting and retries
type IOrderExecutor interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID, reason string) error
}

// IKeyedStore abstracts the shared, networked key/value store used for all
// persisted state and idempotency claims. Cross-worker coordination happens
// exclusively through its atomic primitives.
type IKeyedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent atomically claims a key. It returns false when the key is
	// already held.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error

	Push(ctx context.Context, key string, value []byte) error
	List(ctx context.Context, key string) ([][]byte, error)
	AddToSet(ctx context.Context, key, member string) error
	IsMember(ctx context.Context, key, member string) (bool, error)

	Close() error
}
