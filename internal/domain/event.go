package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType tags the market events emitted by the simulator.
type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderFilled    EventType = "order_filled"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderFailed    EventType = "order_failed"
	EventBalanceUpdated EventType = "balance_updated"
	EventPriceUpdated   EventType = "price_updated"
)

// Event is a market event. Events are transient: queued on the bus,
// dispatched to subscribers, and discarded. Only the fields relevant to
// the event type are populated; Order carries a snapshot of the order for
// lifecycle events so subscribers never depend on retained history.
type Event struct {
	Type        EventType
	TradingPair string
	OrderID     string
	Asset       string
	Side        OrderSide
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Balance     decimal.Decimal
	Timestamp   time.Time
	Order       *Order
}
