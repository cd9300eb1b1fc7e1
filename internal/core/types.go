package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the execution type of an order
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus represents the order lifecycle. Status only advances
// OPEN -> PARTIALLY_FILLED -> CLOSED, or OPEN/PARTIALLY_FILLED -> CANCELED.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusClosed          OrderStatus = "CLOSED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// IsTerminal reports whether no further mutation is allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusClosed || s == OrderStatusCanceled
}

// BalanceSource tags which feed a balance record came from
type BalanceSource string

const (
	BalanceSourceStream BalanceSource = "stream"
	BalanceSourcePull   BalanceSource = "pull-api"
)

// MaxClientOrderIDLen is the exchange limit for caller-assigned order ids
const MaxClientOrderIDLen = 18

// Order is the canonical order record owned by the ledger.
// Invariant: Filled + Remaining == Amount within a small epsilon.
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id"`
	ParentOrderID string          `json:"parent_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	LastModified  time.Time       `json:"last_modified"`
	CanceledAt    *time.Time      `json:"canceled_at,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
}

// Fill is an immutable execution record, unique by FillID
type Fill struct {
	FillID        string          `json:"fill_id"`
	OrderID       string          `json:"order_id"`
	Side          OrderSide       `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Timestamp     time.Time       `json:"timestamp"`
	ParentOrderID string          `json:"parent_order_id,omitempty"`
}

// Position is the open base exposure created by a filled buy order,
// pending an offsetting sell. Timestamp is the fill time, used for aging.
type Position struct {
	PositionID string          `json:"position_id"`
	BuyOrderID string          `json:"buy_order_id"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Balance is the single tagged balance shape; all producers normalize into it
type Balance struct {
	Asset     string          `json:"asset"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Source    BalanceSource   `json:"source"`
}

// StreamBalance is the shape the push/cache balance source reports
type StreamBalance struct {
	Available decimal.Decimal `json:"available"`
	Total     decimal.Decimal `json:"total"`
}

// BalanceCheck is the structured result of validating an asset balance.
// A missing asset means zero balance, not an error.
type BalanceCheck struct {
	Valid          bool            `json:"valid"`
	TotalAvailable decimal.Decimal `json:"total_available"`
	Deficit        decimal.Decimal `json:"deficit"`
	Variants       []string        `json:"variants"`
}

// OrderRequest is a proposed order handed to the gate and the exchange boundary
type OrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	ParentOrderID string          `json:"parent_order_id,omitempty"`
}

// AdmissionResult is the outcome of a pre-trade check. A rejection is not
// an error; strategy logic decides whether to wait or adjust.
type AdmissionResult struct {
	Allowed        bool            `json:"allowed"`
	RequiredAsset  string          `json:"required_asset"`
	RequiredAmount decimal.Decimal `json:"required_amount"`
	Available      decimal.Decimal `json:"available"`
	Deficit        decimal.Decimal `json:"deficit"`
	Reason         string          `json:"reason,omitempty"`
}

// PriceLevel is one level of an order book side
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook is a snapshot of the book for one symbol.
// Bids are sorted descending, asks ascending.
type OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// BestBid returns the top bid level
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// SessionContext carries per-session trading parameters into batch calls
type SessionContext struct {
	MakerFeeRate   decimal.Decimal `json:"maker_fee_rate"`
	ProfitPercent  decimal.Decimal `json:"profit_percent"`
	PricePrecision int             `json:"price_precision"`
	SizePrecision  int             `json:"size_precision"`
	AgingEnabled   bool            `json:"aging_enabled"`
}

// PairResult aggregates per-position outcomes for one trading pair.
// It always reports outcomes for every position handed in.
type PairResult struct {
	Created    int               `json:"created"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Orders     []string          `json:"orders"`
	Errors     map[string]string `json:"errors,omitempty"` // position id -> error
}

// BatchResult summarizes a batch take-profit call across all pairs
type BatchResult struct {
	Success    bool                   `json:"success"`
	TotalPairs int                    `json:"total_pairs"`
	Created    int                    `json:"created"`
	Duplicates int                    `json:"duplicates"`
	Failed     int                    `json:"failed"`
	Results    map[string]*PairResult `json:"results"`
}

// OrderEvent is published by the ledger to registered observers
type OrderEvent struct {
	Order    *Order      `json:"order"`
	Previous OrderStatus `json:"previous"`
	Fill     *Fill       `json:"fill,omitempty"`
}
