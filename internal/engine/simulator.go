// Package engine implements the exchange simulator: the order lifecycle
// state machine that locks funds on admission, evaluates open orders for
// fills against the market data store, settles balances through the
// ledger, and emits market events on the bus.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/bus"
	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/ledger"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

// Placeholder book seeded on pair registration so price queries and fill
// logic always have something to act on: bid slightly below, ask slightly
// above an arbitrary reference price.
var (
	placeholderBid = decimal.NewFromInt(100)
	placeholderAsk = decimal.NewFromInt(101)
	placeholderQty = decimal.NewFromInt(1)

	// fallbackPrice estimates the quote lock for a market buy when no
	// book exists yet.
	fallbackPrice = decimal.NewFromInt(100)

	bpsDivisor = decimal.NewFromInt(10000)
)

// activeOrder pairs an open order with its exact lock bookkeeping. The
// simulator releases locked funds from lockedRemaining rather than
// recomputing from market prices, so it can never release more than was
// locked even after the book moves.
type activeOrder struct {
	order *domain.Order
	pair  domain.Pair

	lockAsset       string
	lockedRemaining decimal.Decimal
	// lockPerUnit is the locked amount per unit of base asset: the lock
	// price for buys, one for sells. Drives proportional release on
	// partial fills.
	lockPerUnit decimal.Decimal
}

// Statistics is an observational snapshot of the simulator's cumulative
// counters. It has no effect on behavior.
type Statistics struct {
	TotalOrders      int
	TotalFills       int
	PartialFills     int
	TotalVolume      decimal.Decimal
	ActiveOrders     int
	PendingOrders    int
	TotalSlippageBps decimal.Decimal
	AvgSlippageBps   decimal.Decimal
	FillRecords      int
}

// Simulator is the central order state machine. Exported methods are
// guarded by one mutex, so strategy calls made during a tick and HTTP
// calls from other goroutines see consistent state. The simulator never
// calls subscribers while holding the mutex: it only enqueues events on
// the non-blocking bus.
type Simulator struct {
	mu sync.Mutex

	ledger *ledger.Ledger
	events *bus.Bus
	store  *marketdata.Store
	logger *slog.Logger

	slippage *SlippageConfig
	dynamics *marketDynamics
	vol      *volTracker

	pairs   []string
	pairSet map[string]bool

	active   map[string]*activeOrder
	orderIDs []string // insertion order; Go map iteration is randomized
	pending  map[string]time.Time

	now time.Time

	orderCount   int
	fillCount    int
	partialCount int
	totalVolume  decimal.Decimal
	totalSlipBps decimal.Decimal
	fills        []domain.Fill
}

// Option configures optional simulator behavior.
type Option func(*Simulator)

// WithSlippage enables the slippage layer with the given configuration.
func WithSlippage(cfg SlippageConfig) Option {
	return func(s *Simulator) {
		s.slippage = &cfg
	}
}

// WithDynamics enables synthetic market dynamics (regimes, per-tick book
// perturbation, order latency) with the given configuration.
func WithDynamics(cfg DynamicsConfig) Option {
	return func(s *Simulator) {
		s.dynamics = newMarketDynamics(cfg)
	}
}

// New creates a Simulator over the given ledger, event bus, and market
// data store. Without options the simulator is the baseline engine:
// no slippage, no latency, no synthetic book movement, full-or-nothing
// fills.
func New(l *ledger.Ledger, events *bus.Bus, store *marketdata.Store, logger *slog.Logger, opts ...Option) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Simulator{
		ledger:  l,
		events:  events,
		store:   store,
		logger:  logger,
		vol:     newVolTracker(),
		pairSet: make(map[string]bool),
		active:  make(map[string]*activeOrder),
		pending: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTradingPair registers a trading pair. Registration is idempotent:
// re-adding is a no-op. A pair with no book yet is seeded with a 2-level
// placeholder so get-price and fill logic never face a nil book.
func (s *Simulator) AddTradingPair(tradingPair string) error {
	if _, err := domain.ParsePair(tradingPair); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pairSet[tradingPair] {
		return nil
	}
	s.pairSet[tradingPair] = true
	s.pairs = append(s.pairs, tradingPair)

	if s.store.Book(tradingPair) == nil {
		s.store.Update(tradingPair, marketdata.NewBook(
			tradingPair,
			[]marketdata.Level{{Price: placeholderBid, Amount: placeholderQty}},
			[]marketdata.Level{{Price: placeholderAsk, Amount: placeholderQty}},
			s.now,
		))
	}
	return nil
}

// UpdateOrderBook replaces the book snapshot for a pair wholesale.
func (s *Simulator) UpdateOrderBook(tradingPair string, book *marketdata.Book) {
	s.store.Update(tradingPair, book)
}

// TradingPairs returns the registered pairs in registration order.
func (s *Simulator) TradingPairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Price returns the requested derived price for a pair, zero when no
// data is available.
func (s *Simulator) Price(tradingPair string, priceType marketdata.PriceType) decimal.Decimal {
	return s.store.Price(tradingPair, priceType)
}

// Book returns the latest book snapshot for a pair, nil when none exists.
func (s *Simulator) Book(tradingPair string) *marketdata.Book {
	return s.store.Book(tradingPair)
}

// CurrentTimestamp returns the simulator's notion of current time, as set
// by the last ProcessTick.
func (s *Simulator) CurrentTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// PlaceOrder admits an order candidate. The required funds are locked
// before the order exists: on lock failure the candidate is rejected with
// domain.ErrInsufficientBalance, no order is created, no event is
// emitted, and no partial state is left behind. The lock-then-admit
// sequence is a single synchronous call, which is the engine's only
// overcommit protection.
func (s *Simulator) PlaceOrder(c domain.OrderCandidate) (string, error) {
	pair, err := domain.ParsePair(c.TradingPair)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var lockAsset string
	var lockAmount, lockPerUnit decimal.Decimal
	if c.Side == domain.OrderSideBuy {
		price := c.Price
		if c.Type == domain.OrderTypeMarket || price.IsZero() {
			price = decimal.Decimal{}
			if book := s.store.Book(c.TradingPair); book != nil {
				if ask, ok := book.BestAsk(); ok {
					price = ask
				}
			}
			if price.IsZero() {
				price = fallbackPrice
			}
		}
		lockAsset = pair.Quote
		lockAmount = c.Amount.Mul(price)
		lockPerUnit = price
	} else {
		lockAsset = pair.Base
		lockAmount = c.Amount
		lockPerUnit = decimal.NewFromInt(1)
	}

	if err := s.ledger.Lock(lockAsset, lockAmount); err != nil {
		return "", err
	}

	now := s.clock()
	order := &domain.Order{
		ID:          uuid.New().String(),
		TradingPair: c.TradingPair,
		Side:        c.Side,
		Type:        c.Type,
		Amount:      c.Amount,
		Price:       c.Price,
		Status:      domain.OrderStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.active[order.ID] = &activeOrder{
		order:           order,
		pair:            pair,
		lockAsset:       lockAsset,
		lockedRemaining: lockAmount,
		lockPerUnit:     lockPerUnit,
	}
	s.orderIDs = append(s.orderIDs, order.ID)
	s.orderCount++

	if s.dynamics != nil && s.dynamics.cfg.Latency > 0 {
		s.pending[order.ID] = now.Add(s.dynamics.cfg.Latency)
	}

	s.events.Emit(domain.Event{
		Type:        domain.EventOrderCreated,
		TradingPair: order.TradingPair,
		OrderID:     order.ID,
		Side:        order.Side,
		Amount:      order.Amount,
		Price:       order.Price,
		Timestamp:   now,
		Order:       snapshot(order),
	})
	return order.ID, nil
}

// CancelOrder cancels an active order, releasing exactly the funds still
// locked for it. It returns domain.ErrOrderNotFound for unknown or
// already-terminal order ids.
func (s *Simulator) CancelOrder(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ao, ok := s.active[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}

	ao.order.Status = domain.OrderStatusCancelled
	ao.order.UpdatedAt = s.clock()

	if ao.lockedRemaining.IsPositive() {
		if err := s.ledger.Unlock(ao.lockAsset, ao.lockedRemaining); err != nil {
			s.logger.Error("cancel unlock failed",
				slog.String("order_id", orderID),
				slog.String("asset", ao.lockAsset),
				slog.String("error", err.Error()))
		}
		ao.lockedRemaining = decimal.Decimal{}
	}

	s.events.Emit(domain.Event{
		Type:        domain.EventOrderCancelled,
		TradingPair: ao.order.TradingPair,
		OrderID:     orderID,
		Side:        ao.order.Side,
		Amount:      ao.order.Amount,
		Timestamp:   s.clock(),
		Order:       snapshot(ao.order),
	})

	s.removeOrder(orderID)
	return nil
}

// GetOrder returns an active order by id, or domain.ErrOrderNotFound.
// Terminal orders are not retained.
func (s *Simulator) GetOrder(orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ao, ok := s.active[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return snapshot(ao.order), nil
}

// OpenOrders returns the open orders in placement order, optionally
// filtered by trading pair (empty string means all pairs).
func (s *Simulator) OpenOrders(tradingPair string) []*domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Order, 0, len(s.orderIDs))
	for _, id := range s.orderIDs {
		ao, ok := s.active[id]
		if !ok || ao.order.Status != domain.OrderStatusOpen {
			continue
		}
		if tradingPair != "" && ao.order.TradingPair != tradingPair {
			continue
		}
		out = append(out, snapshot(ao.order))
	}
	return out
}

// ProcessTick advances the simulator to timestamp: market dynamics are
// applied first, matured latency holds are released, then every open
// order is evaluated for fill eligibility in placement order. There is no
// price-time priority across orders — the sandbox models one strategy's
// interaction with a synthetic book, not multi-participant competition.
func (s *Simulator) ProcessTick(timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = timestamp

	if s.dynamics != nil {
		for _, pair := range s.pairs {
			s.updateDynamics(pair)
		}
	}

	s.observePrices()
	s.releasePending()

	// Snapshot the id list: fills mutate it.
	ids := make([]string, len(s.orderIDs))
	copy(ids, s.orderIDs)
	for _, id := range ids {
		ao, ok := s.active[id]
		if !ok || ao.order.Status != domain.OrderStatusOpen {
			continue
		}
		if s.shouldFill(ao) {
			s.fill(ao)
		}
	}
}

// releasePending drops latency holds whose ready time has passed.
func (s *Simulator) releasePending() {
	for id, readyAt := range s.pending {
		if !s.now.Before(readyAt) {
			delete(s.pending, id)
		}
	}
}

// shouldFill reports whether an open order is eligible to fill this
// tick. Market orders fill whenever a book exists; limit orders fill
// when their price crosses the opposite best. Missing data means the
// order simply waits for the next tick.
func (s *Simulator) shouldFill(ao *activeOrder) bool {
	if _, held := s.pending[ao.order.ID]; held {
		return false
	}
	book := s.store.Book(ao.order.TradingPair)
	if book == nil {
		return false
	}

	switch ao.order.Type {
	case domain.OrderTypeMarket:
		return true
	case domain.OrderTypeLimit, domain.OrderTypeLimitMaker:
		if ao.order.Side == domain.OrderSideBuy {
			ask, ok := book.BestAsk()
			return ok && ao.order.Price.GreaterThanOrEqual(ask)
		}
		bid, ok := book.BestBid()
		return ok && ao.order.Price.LessThanOrEqual(bid)
	}
	return false
}

// fill executes an eligible order. The settlement sequence is fixed:
// unlock the locked amount, debit the outgoing asset, credit the
// incoming asset — in that order, so locked <= total holds at every
// intermediate point.
func (s *Simulator) fill(ao *activeOrder) {
	order := ao.order
	book := s.store.Book(order.TradingPair)

	var base decimal.Decimal
	if order.Type == domain.OrderTypeMarket {
		var ok bool
		if order.Side == domain.OrderSideBuy {
			base, ok = book.BestAsk()
		} else {
			base, ok = book.BestBid()
		}
		if !ok {
			return
		}
	} else {
		base = order.Price
	}
	if !base.IsPositive() {
		return
	}

	slippageBps := decimal.Decimal{}
	fillPrice := base
	if s.slippage != nil {
		slippageBps = s.calculateSlippage(order, book)
		fillPrice = applySlippage(base, slippageBps, order.Side)
	}

	fillAmount := order.RemainingAmount()
	partial := false
	if s.slippage != nil && s.slippage.EnablePartialFills {
		fillAmount, partial = s.partialFillAmount(order, book)
	}
	if !fillAmount.IsPositive() {
		return
	}

	marketImpact := fillPrice.Sub(base).Abs().Div(base).Mul(bpsDivisor)

	order.FilledAmount = order.FilledAmount.Add(fillAmount)
	order.UpdatedAt = s.now
	if partial {
		s.partialCount++
		if !order.RemainingAmount().IsPositive() {
			order.Status = domain.OrderStatusFilled
		}
	} else {
		order.Status = domain.OrderStatusFilled
	}

	s.settle(ao, fillAmount, fillPrice)

	s.fillCount++
	s.totalVolume = s.totalVolume.Add(fillAmount.Mul(fillPrice))
	s.totalSlipBps = s.totalSlipBps.Add(slippageBps)
	s.fills = append(s.fills, domain.Fill{
		OrderID:         order.ID,
		TradingPair:     order.TradingPair,
		Side:            order.Side,
		Price:           fillPrice,
		Amount:          fillAmount,
		SlippageBps:     slippageBps,
		MarketImpactBps: marketImpact,
		Partial:         partial,
		Remaining:       order.RemainingAmount(),
		ExecutedAt:      s.now,
	})

	s.events.Emit(domain.Event{
		Type:        domain.EventOrderFilled,
		TradingPair: order.TradingPair,
		OrderID:     order.ID,
		Side:        order.Side,
		Amount:      fillAmount,
		Price:       fillPrice,
		Timestamp:   s.now,
		Order:       snapshot(order),
	})

	if order.Status == domain.OrderStatusFilled {
		delete(s.pending, order.ID)
		s.removeOrder(order.ID)
	}
}

// settle moves funds for one fill: proportional unlock, debit, credit.
// Releases come out of the order's tracked lock, capped at what remains,
// so partial settlement never frees more than was locked.
func (s *Simulator) settle(ao *activeOrder, fillAmount, fillPrice decimal.Decimal) {
	order := ao.order

	release := decimal.Min(ao.lockedRemaining, fillAmount.Mul(ao.lockPerUnit))
	if order.Status == domain.OrderStatusFilled {
		// Terminal: also free any residue left by slippage or rounding.
		release = ao.lockedRemaining
	}
	if release.IsPositive() {
		if err := s.ledger.Unlock(ao.lockAsset, release); err != nil {
			s.logger.Error("settlement unlock failed",
				slog.String("order_id", order.ID),
				slog.String("asset", ao.lockAsset),
				slog.String("error", err.Error()))
		}
		ao.lockedRemaining = ao.lockedRemaining.Sub(release)
	}

	if order.Side == domain.OrderSideBuy {
		s.ledger.Update(ao.pair.Quote, fillAmount.Mul(fillPrice).Neg())
		s.ledger.Update(ao.pair.Base, fillAmount)
	} else {
		s.ledger.Update(ao.pair.Base, fillAmount.Neg())
		s.ledger.Update(ao.pair.Quote, fillAmount.Mul(fillPrice))
	}

	s.events.Emit(domain.Event{
		Type:      domain.EventBalanceUpdated,
		Asset:     ao.pair.Base,
		Balance:   s.ledger.Balance(ao.pair.Base),
		Timestamp: s.now,
	})
	s.events.Emit(domain.Event{
		Type:      domain.EventBalanceUpdated,
		Asset:     ao.pair.Quote,
		Balance:   s.ledger.Balance(ao.pair.Quote),
		Timestamp: s.now,
	})
}

// Statistics returns the cumulative order statistics.
func (s *Simulator) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := decimal.Decimal{}
	if s.fillCount > 0 {
		avg = s.totalSlipBps.Div(decimal.NewFromInt(int64(s.fillCount)))
	}
	return Statistics{
		TotalOrders:      s.orderCount,
		TotalFills:       s.fillCount,
		PartialFills:     s.partialCount,
		TotalVolume:      s.totalVolume,
		ActiveOrders:     len(s.active),
		PendingOrders:    len(s.pending),
		TotalSlippageBps: s.totalSlipBps,
		AvgSlippageBps:   avg,
		FillRecords:      len(s.fills),
	}
}

// Fills returns a copy of all fill records for this run.
func (s *Simulator) Fills() []domain.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

// Reset clears orders, books, pairs, counters, and cumulative volume.
// The ledger is reset independently by the owning environment.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pairs = nil
	s.pairSet = make(map[string]bool)
	s.active = make(map[string]*activeOrder)
	s.orderIDs = nil
	s.pending = make(map[string]time.Time)
	s.now = time.Time{}
	s.orderCount = 0
	s.fillCount = 0
	s.partialCount = 0
	s.totalVolume = decimal.Decimal{}
	s.totalSlipBps = decimal.Decimal{}
	s.fills = nil
	s.vol.reset()
	s.store.Reset()
	if s.dynamics != nil {
		s.dynamics.reset()
	}
}

func (s *Simulator) removeOrder(orderID string) {
	delete(s.active, orderID)
	for i, id := range s.orderIDs {
		if id == orderID {
			s.orderIDs = append(s.orderIDs[:i], s.orderIDs[i+1:]...)
			break
		}
	}
}

// clock returns simulated time once ticks have started, wall-clock time
// before that.
func (s *Simulator) clock() time.Time {
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func snapshot(o *domain.Order) *domain.Order {
	c := *o
	return &c
}
