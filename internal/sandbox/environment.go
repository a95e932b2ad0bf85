// Package sandbox is the outer control loop of the simulation: it
// composes the ledger, event bus, market data store, and exchange
// simulator, drives the tick loop, and is the only interface strategies
// interact with.
package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/bus"
	"github.com/efreitasn/tradesandbox/internal/data"
	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/engine"
	"github.com/efreitasn/tradesandbox/internal/ledger"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

// DefaultRunWindow bounds a run when neither the caller nor the
// configuration provides an end timestamp.
const DefaultRunWindow = 24 * time.Hour

// Config is the immutable simulation configuration: it drives the
// ledger's initial state and the simulator's registered pairs.
type Config struct {
	InitialBalances map[string]decimal.Decimal
	TradingPairs    []string
	Start           time.Time
	End             time.Time
	TickInterval    time.Duration
	// EnableDerivatives is accepted for configuration compatibility; the
	// engine trades spot only and logs a warning when it is set.
	EnableDerivatives bool
}

// RunOptions bounds a single run. Duration takes precedence over Until;
// with both zero the configured end timestamp applies, then
// DefaultRunWindow.
type RunOptions struct {
	Duration time.Duration
	Until    time.Time
}

// Metrics is the end-of-run performance snapshot. TotalPnL is the naive
// sum of per-asset balance deltas, deliberately not converted to a
// common unit.
type Metrics struct {
	Start           time.Time
	End             time.Time
	DurationSeconds float64
	InitialBalances map[string]decimal.Decimal
	FinalBalances   map[string]decimal.Decimal
	TotalPnL        decimal.Decimal
	Orders          engine.Statistics
}

// Environment owns the simulation components and the tick loop.
//
// Lifecycle: uninitialized → initialized → running → stopped. Initialize
// is idempotent; Run and Step initialize on demand. One run at a time:
// Run returns domain.ErrSimulationRunning when a run is in flight.
type Environment struct {
	cfg      Config
	logger   *slog.Logger
	provider data.Provider

	ledger *ledger.Ledger
	events *bus.Bus
	store  *marketdata.Store
	sim    *engine.Simulator

	mu              sync.Mutex
	initialized     bool
	running         bool
	start           time.Time
	now             time.Time
	initialBalances map[string]decimal.Decimal
	strategies      []Strategy

	stopRequested atomic.Bool
}

// New creates an Environment. A nil provider defaults to
// data.NopProvider; simOpts configure the simulator's slippage and
// dynamics layers.
func New(cfg Config, provider data.Provider, logger *slog.Logger, simOpts ...engine.Option) *Environment {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if provider == nil {
		provider = data.NopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := ledger.New()
	events := bus.New(0, logger)
	store := marketdata.NewStore()
	e := &Environment{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		ledger:   l,
		events:   events,
		store:    store,
		sim:      engine.New(l, events, store, logger, simOpts...),
	}
	e.subscribeStrategyBridges()
	return e
}

// subscribeStrategyBridges wires bus events to the strategy callbacks.
// Re-run after every bus reset, which drops all subscriptions.
func (e *Environment) subscribeStrategyBridges() {
	e.events.Subscribe(domain.EventOrderFilled, func(ev domain.Event) {
		if ev.Order == nil {
			return
		}
		for _, s := range e.strategiesSnapshot() {
			order := *ev.Order
			e.callStrategy(s, "on_order_filled", func() {
				s.OnOrderFilled(&order)
			})
		}
	})
	e.events.Subscribe(domain.EventBalanceUpdated, func(ev domain.Event) {
		for _, s := range e.strategiesSnapshot() {
			e.callStrategy(s, "on_balance_updated", func() {
				s.OnBalanceUpdated(ev.Asset, ev.Balance)
			})
		}
	})
}

// Initialize seeds the ledger from configuration, registers the
// configured trading pairs, and initializes the data provider. Calling
// it again is a no-op.
func (e *Environment) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(ctx)
}

func (e *Environment) initializeLocked(ctx context.Context) error {
	if e.initialized {
		return nil
	}

	start := e.cfg.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}

	e.initialBalances = make(map[string]decimal.Decimal, len(e.cfg.InitialBalances))
	for asset, amount := range e.cfg.InitialBalances {
		e.ledger.Set(asset, amount)
		e.initialBalances[asset] = amount
	}
	for _, pair := range e.cfg.TradingPairs {
		if err := e.sim.AddTradingPair(pair); err != nil {
			return err
		}
	}
	if err := e.provider.Initialize(ctx); err != nil {
		return err
	}
	if e.cfg.EnableDerivatives {
		e.logger.Warn("derivatives flag set, engine trades spot only")
	}

	e.start = start
	e.now = start
	e.initialized = true
	e.logger.Info("environment initialized",
		slog.Int("trading_pairs", len(e.cfg.TradingPairs)),
		slog.Int("assets", len(e.initialBalances)),
		slog.Time("start", start))
	return nil
}

// Run executes the tick loop until the computed end timestamp, Stop, or
// context cancellation, then returns the performance metrics. Only one
// run may be in flight at a time.
func (e *Environment) Run(ctx context.Context, opts RunOptions) (Metrics, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Metrics{}, domain.ErrSimulationRunning
	}
	if err := e.initializeLocked(ctx); err != nil {
		e.mu.Unlock()
		return Metrics{}, err
	}
	end := e.endTimestampLocked(opts)
	e.running = true
	e.stopRequested.Store(false)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info("simulation run started", slog.Time("end", end))
	for {
		if e.stopRequested.Load() || ctx.Err() != nil {
			break
		}
		e.mu.Lock()
		now := e.now
		if !now.Before(end) {
			e.mu.Unlock()
			break
		}
		e.mu.Unlock()

		e.step(ctx, now)

		e.mu.Lock()
		e.now = now.Add(e.cfg.TickInterval)
		e.mu.Unlock()
	}

	metrics := e.Metrics()
	e.logger.Info("simulation run finished",
		slog.Float64("duration_seconds", metrics.DurationSeconds),
		slog.Int("total_orders", metrics.Orders.TotalOrders),
		slog.Int("total_fills", metrics.Orders.TotalFills))
	return metrics, nil
}

// endTimestampLocked resolves the run end: explicit duration, explicit
// until, configured end, 24h default — in that precedence order.
func (e *Environment) endTimestampLocked(opts RunOptions) time.Time {
	switch {
	case opts.Duration > 0:
		return e.now.Add(opts.Duration)
	case !opts.Until.IsZero():
		return opts.Until
	case !e.cfg.End.IsZero():
		return e.cfg.End
	default:
		return e.now.Add(DefaultRunWindow)
	}
}

// Step executes exactly one simulation step. A zero timestamp advances
// by the tick interval; a non-zero timestamp jumps simulated time there.
// Step cannot run concurrently with Run.
func (e *Environment) Step(ctx context.Context, timestamp time.Time) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.ErrSimulationRunning
	}
	if err := e.initializeLocked(ctx); err != nil {
		e.mu.Unlock()
		return err
	}
	if timestamp.IsZero() {
		timestamp = e.now.Add(e.cfg.TickInterval)
	}
	e.now = timestamp
	e.mu.Unlock()

	e.step(ctx, timestamp)
	return nil
}

// step is one simulation step at a fixed timestamp: refresh market data
// from the provider, advance the simulator, dispatch the tick to every
// strategy, then drain the event queue.
func (e *Environment) step(ctx context.Context, timestamp time.Time) {
	for _, pair := range e.sim.TradingPairs() {
		book, err := e.provider.OrderBookSnapshot(ctx, pair, timestamp)
		if err != nil {
			e.logger.Error("market data refresh failed",
				slog.String("trading_pair", pair),
				slog.String("error", err.Error()))
			continue
		}
		if book != nil {
			e.sim.UpdateOrderBook(pair, book)
		}
	}

	e.sim.ProcessTick(timestamp)

	for _, s := range e.strategiesSnapshot() {
		strat := s
		e.callStrategy(strat, "on_tick", func() {
			if err := strat.OnTick(ctx, timestamp); err != nil {
				e.logger.Error("strategy tick failed",
					slog.String("strategy", strat.Name()),
					slog.String("error", err.Error()))
			}
		})
	}

	e.events.Process()
}

// callStrategy isolates strategy faults: a panic in one strategy is
// logged and must not halt the run or starve the others.
func (e *Environment) callStrategy(s Strategy, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy panic",
				slog.String("strategy", s.Name()),
				slog.String("hook", hook),
				slog.Any("panic", r))
		}
	}()
	fn()
}

// Stop requests the current run to halt after the step in flight.
func (e *Environment) Stop() {
	e.stopRequested.Store(true)
}

// Running reports whether a run is in flight.
func (e *Environment) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CurrentTime returns the environment's simulated clock.
func (e *Environment) CurrentTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// AddStrategy initializes the strategy with this environment and
// registers it for tick dispatch.
func (e *Environment) AddStrategy(ctx context.Context, s Strategy) error {
	if err := s.Initialize(ctx, e); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = append(e.strategies, s)
	e.logger.Info("strategy added", slog.String("strategy", s.Name()))
	return nil
}

// RemoveStrategy unregisters a strategy by name and runs its cleanup.
// Returns domain.ErrStrategyNotFound for unknown names.
func (e *Environment) RemoveStrategy(ctx context.Context, name string) error {
	e.mu.Lock()
	var removed Strategy
	for i, s := range e.strategies {
		if s.Name() == name {
			removed = s
			e.strategies = append(e.strategies[:i], e.strategies[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if removed == nil {
		return domain.ErrStrategyNotFound
	}
	e.logger.Info("strategy removed", slog.String("strategy", name))
	return removed.Cleanup(ctx)
}

func (e *Environment) strategiesSnapshot() []Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// Reset halts any run, resets the simulated clock to the configured
// start, and cascades reset to the simulator, the event bus, and the
// ledger, then re-seeds balances and re-registers the configured pairs.
// Registered strategies stay registered.
func (e *Environment) Reset(ctx context.Context) error {
	e.stopRequested.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sim.Reset()
	e.events.Reset()
	e.ledger.Reset()

	e.initialBalances = make(map[string]decimal.Decimal, len(e.cfg.InitialBalances))
	for asset, amount := range e.cfg.InitialBalances {
		e.ledger.Set(asset, amount)
		e.initialBalances[asset] = amount
	}
	for _, pair := range e.cfg.TradingPairs {
		if err := e.sim.AddTradingPair(pair); err != nil {
			return err
		}
	}
	if err := e.provider.Initialize(ctx); err != nil {
		return err
	}

	// Bus reset dropped every subscription, including the strategy
	// bridges.
	e.subscribeStrategyBridges()

	start := e.cfg.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	e.start = start
	e.now = start
	e.logger.Info("environment reset", slog.Time("start", start))
	return nil
}

// Shutdown runs cleanup on every registered strategy. Used on process
// exit; the environment is not reusable afterwards.
func (e *Environment) Shutdown(ctx context.Context) {
	e.Stop()
	for _, s := range e.strategiesSnapshot() {
		strat := s
		e.callStrategy(strat, "cleanup", func() {
			if err := strat.Cleanup(ctx); err != nil {
				e.logger.Error("strategy cleanup failed",
					slog.String("strategy", strat.Name()),
					slog.String("error", err.Error()))
			}
		})
	}
}

// Metrics computes the performance snapshot as of now: simulated
// duration, initial vs. final balances, summed PnL, and the simulator's
// order statistics.
func (e *Environment) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	final := e.ledger.AllBalances()
	initial := make(map[string]decimal.Decimal, len(e.initialBalances))
	pnl := decimal.Decimal{}
	for asset, amount := range e.initialBalances {
		initial[asset] = amount
	}
	for asset, amount := range final {
		pnl = pnl.Add(amount.Sub(initial[asset]))
	}
	for asset, amount := range initial {
		if _, ok := final[asset]; !ok {
			pnl = pnl.Sub(amount)
		}
	}

	return Metrics{
		Start:           e.start,
		End:             e.now,
		DurationSeconds: e.now.Sub(e.start).Seconds(),
		InitialBalances: initial,
		FinalBalances:   final,
		TotalPnL:        pnl,
		Orders:          e.sim.Statistics(),
	}
}

// Balance, market, order, and event access for strategies and the HTTP
// layer. These delegate to the internally-synchronized components and
// are safe to call from strategy callbacks during a step.

// Balance returns the total balance for an asset.
func (e *Environment) Balance(asset string) decimal.Decimal {
	return e.ledger.Balance(asset)
}

// AvailableBalance returns total minus locked for an asset.
func (e *Environment) AvailableBalance(asset string) decimal.Decimal {
	return e.ledger.AvailableBalance(asset)
}

// LockedBalance returns the locked amount for an asset.
func (e *Environment) LockedBalance(asset string) decimal.Decimal {
	return e.ledger.LockedBalance(asset)
}

// AllBalances returns a snapshot of all total balances.
func (e *Environment) AllBalances() map[string]decimal.Decimal {
	return e.ledger.AllBalances()
}

// Price returns the requested derived price for a pair, zero when no
// data is available.
func (e *Environment) Price(tradingPair string, priceType marketdata.PriceType) decimal.Decimal {
	return e.sim.Price(tradingPair, priceType)
}

// Book returns the latest book snapshot for a pair, nil when none
// exists.
func (e *Environment) Book(tradingPair string) *marketdata.Book {
	return e.sim.Book(tradingPair)
}

// TradingPairs returns the simulator's registered pairs.
func (e *Environment) TradingPairs() []string {
	return e.sim.TradingPairs()
}

// PlaceOrder submits an order candidate to the simulator.
func (e *Environment) PlaceOrder(c domain.OrderCandidate) (string, error) {
	return e.sim.PlaceOrder(c)
}

// CancelOrder cancels an active order.
func (e *Environment) CancelOrder(orderID string) error {
	return e.sim.CancelOrder(orderID)
}

// Order returns an active order by id.
func (e *Environment) Order(orderID string) (*domain.Order, error) {
	return e.sim.GetOrder(orderID)
}

// OpenOrders returns open orders, optionally filtered by pair.
func (e *Environment) OpenOrders(tradingPair string) []*domain.Order {
	return e.sim.OpenOrders(tradingPair)
}

// Subscribe registers an event handler on the bus.
func (e *Environment) Subscribe(eventType domain.EventType, h bus.Handler) string {
	return e.events.Subscribe(eventType, h)
}

// Unsubscribe removes a bus subscription.
func (e *Environment) Unsubscribe(subscriptionID string) bool {
	return e.events.Unsubscribe(subscriptionID)
}

// Statistics returns the simulator's cumulative order statistics.
func (e *Environment) Statistics() engine.Statistics {
	return e.sim.Statistics()
}

// SlippageStatistics returns execution-quality aggregates.
func (e *Environment) SlippageStatistics() engine.SlippageStatistics {
	return e.sim.SlippageStatistics()
}

// MarketRegimes returns the per-pair market regime when dynamics are
// enabled.
func (e *Environment) MarketRegimes() map[string]engine.MarketRegime {
	return e.sim.MarketRegimes()
}

// Fills returns the fill records for this run.
func (e *Environment) Fills() []domain.Fill {
	return e.sim.Fills()
}
