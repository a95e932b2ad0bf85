package sandbox

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/bus"
	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

// BalanceView is read access to the ledger.
type BalanceView interface {
	Balance(asset string) decimal.Decimal
	AvailableBalance(asset string) decimal.Decimal
	LockedBalance(asset string) decimal.Decimal
	AllBalances() map[string]decimal.Decimal
}

// MarketView is read access to market data.
type MarketView interface {
	Price(tradingPair string, priceType marketdata.PriceType) decimal.Decimal
	Book(tradingPair string) *marketdata.Book
	TradingPairs() []string
}

// OrderAccess places, cancels, and inspects orders.
type OrderAccess interface {
	PlaceOrder(c domain.OrderCandidate) (string, error)
	CancelOrder(orderID string) error
	Order(orderID string) (*domain.Order, error)
	OpenOrders(tradingPair string) []*domain.Order
}

// EventAccess subscribes to market events.
type EventAccess interface {
	Subscribe(eventType domain.EventType, h bus.Handler) string
	Unsubscribe(subscriptionID string) bool
}

// Sandbox is everything a strategy may touch. Strategies depend on this
// interface, never on the concrete Environment, so they stay testable
// with fakes.
type Sandbox interface {
	BalanceView
	MarketView
	OrderAccess
	EventAccess
	CurrentTime() time.Time
}

// Environment satisfies the full strategy-facing surface.
var _ Sandbox = (*Environment)(nil)

// Strategy is the contract the environment drives every tick. A strategy
// receives its Sandbox on Initialize and interacts with the market
// exclusively through it.
//
// Faults are isolated: an error or panic from any callback is logged by
// the environment and never halts the run or affects other strategies.
type Strategy interface {
	// Name identifies the strategy in logs and for removal.
	Name() string
	// Initialize is called once when the strategy is added.
	Initialize(ctx context.Context, sb Sandbox) error
	// OnTick is called once per simulation step, after the simulator has
	// processed the tick and before queued events are dispatched.
	OnTick(ctx context.Context, timestamp time.Time) error
	// OnOrderFilled is called for every fill, including fills of orders
	// placed by other strategies.
	OnOrderFilled(order *domain.Order)
	// OnBalanceUpdated is called whenever settlement changes an asset's
	// total balance.
	OnBalanceUpdated(asset string, balance decimal.Decimal)
	// Cleanup is called when the strategy is removed or the environment
	// shuts down.
	Cleanup(ctx context.Context) error
}
