package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes market orders from limit orders.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeLimitMaker OrderType = "limit_maker"
)

// OrderSide indicates whether an order buys the base asset or sells it.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of an order.
//
// PENDING → OPEN → {FILLED, CANCELLED, FAILED}. PENDING is transient
// (balance not yet confirmed locked); FAILED orders never become active
// and are signalled by an empty order id from PlaceOrder.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderCandidate is an intent to trade, consumed by the simulator's
// PlaceOrder to produce an Order. It is immutable once constructed.
// Price is the limit price; it is ignored for market orders and may be
// zero in that case.
type OrderCandidate struct {
	TradingPair string
	Side        OrderSide
	Type        OrderType
	Amount      decimal.Decimal
	Price       decimal.Decimal
}

// Order is the live representation of an accepted order. It is owned by
// the simulator's active-order map while OPEN and removed once terminal;
// the core retains no order history.
type Order struct {
	ID           string
	TradingPair  string
	Side         OrderSide
	Type         OrderType
	Amount       decimal.Decimal
	Price        decimal.Decimal
	Status       OrderStatus
	FilledAmount decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RemainingAmount returns the unfilled portion of the order.
func (o *Order) RemainingAmount() decimal.Decimal {
	return o.Amount.Sub(o.FilledAmount)
}

// Fill is the record of a single execution against an order. Partial
// fills produce one record per tick; SlippageBps and MarketImpactBps are
// zero when the slippage layer is disabled.
type Fill struct {
	OrderID         string
	TradingPair     string
	Side            OrderSide
	Price           decimal.Decimal
	Amount          decimal.Decimal
	SlippageBps     decimal.Decimal
	MarketImpactBps decimal.Decimal
	Partial         bool
	Remaining       decimal.Decimal
	ExecutedAt      time.Time
}
