package engine

import (
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

// MarketRegime labels the synthetic market's current behavior per pair.
type MarketRegime string

const (
	RegimeTrendingUp   MarketRegime = "trending_up"
	RegimeTrendingDown MarketRegime = "trending_down"
	RegimeSideways     MarketRegime = "sideways"
	RegimeVolatile     MarketRegime = "volatile"
)

var allRegimes = []MarketRegime{
	RegimeTrendingUp,
	RegimeTrendingDown,
	RegimeSideways,
	RegimeVolatile,
}

// DynamicsConfig tunes synthetic market behavior: per-tick price
// movement, regime switching, and order latency.
type DynamicsConfig struct {
	// PriceVolatility is the per-refresh standard deviation of the price
	// change, as a fraction of the mid price.
	PriceVolatility decimal.Decimal
	// TrendStrength biases the price change; scaled by PriceVolatility.
	TrendStrength decimal.Decimal
	// InitialRegime is the regime every pair starts in.
	InitialRegime MarketRegime
	// RegimeChangeProbability is the per-tick chance a pair switches to
	// a random other regime.
	RegimeChangeProbability decimal.Decimal
	// BookRefreshTicks is how many ticks pass between synthetic book
	// regenerations. Values below 1 refresh every tick.
	BookRefreshTicks int
	// Latency holds each new order for this long of simulated time
	// before it becomes fill-eligible.
	Latency time.Duration
	// RealisticSpreads widens the synthetic spread to 10bps of mid;
	// otherwise the spread is 1bps.
	RealisticSpreads bool
	// Seed fixes the random source for reproducible runs. Zero seeds
	// from the wall clock.
	Seed int64
}

// DefaultDynamicsConfig returns a quiet sideways market with no latency.
func DefaultDynamicsConfig() DynamicsConfig {
	return DynamicsConfig{
		PriceVolatility:         decimal.NewFromFloat(0.001),
		InitialRegime:           RegimeSideways,
		RegimeChangeProbability: decimal.NewFromFloat(0.01),
		BookRefreshTicks:        10,
		RealisticSpreads:        true,
	}
}

// marketDynamics is the per-simulator dynamics state: one random source,
// regime and refresh counters per pair.
type marketDynamics struct {
	cfg          DynamicsConfig
	rng          *rand.Rand
	regimes      map[string]MarketRegime
	sinceRefresh map[string]int
}

func newMarketDynamics(cfg DynamicsConfig) *marketDynamics {
	if cfg.InitialRegime == "" {
		cfg.InitialRegime = RegimeSideways
	}
	if cfg.BookRefreshTicks < 1 {
		cfg.BookRefreshTicks = 1
	}
	d := &marketDynamics{cfg: cfg}
	d.reset()
	return d
}

// reset reinitializes regime state and, when seeded, the random source,
// so a re-run with the same seed replays the same price path.
func (d *marketDynamics) reset() {
	seed := d.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d.rng = rand.New(rand.NewSource(seed))
	d.regimes = make(map[string]MarketRegime)
	d.sinceRefresh = make(map[string]int)
}

func (d *marketDynamics) regime(tradingPair string) MarketRegime {
	if r, ok := d.regimes[tradingPair]; ok {
		return r
	}
	d.regimes[tradingPair] = d.cfg.InitialRegime
	return d.cfg.InitialRegime
}

// MarketRegimes returns the current regime per pair. Empty when dynamics
// are disabled.
func (s *Simulator) MarketRegimes() map[string]MarketRegime {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]MarketRegime)
	if s.dynamics == nil {
		return out
	}
	for _, pair := range s.pairs {
		out[pair] = s.dynamics.regime(pair)
	}
	return out
}

// updateDynamics advances the synthetic market for one pair: a possible
// regime switch, then a book refresh when the refresh interval has
// elapsed.
func (s *Simulator) updateDynamics(tradingPair string) {
	d := s.dynamics
	regime := d.regime(tradingPair)

	if prob, _ := d.cfg.RegimeChangeProbability.Float64(); d.rng.Float64() < prob {
		next := allRegimes[d.rng.Intn(len(allRegimes))]
		for next == regime {
			next = allRegimes[d.rng.Intn(len(allRegimes))]
		}
		d.regimes[tradingPair] = next
		regime = next
		s.logger.Debug("market regime changed",
			slog.String("trading_pair", tradingPair),
			slog.String("regime", string(next)))
	}

	d.sinceRefresh[tradingPair]++
	if d.sinceRefresh[tradingPair] >= d.cfg.BookRefreshTicks {
		d.sinceRefresh[tradingPair] = 0
		s.refreshBook(tradingPair, regime)
	}
}

// Synthetic books carry three levels per side with growing size away
// from the touch.
var syntheticLevels = []struct {
	priceStep float64 // multiplicative distance from the touch
	amount    int64
}{
	{0, 10},
	{0.001, 25},
	{0.002, 50},
}

// refreshBook regenerates a pair's book around a randomly-walked mid
// price. The walk is gaussian with the configured volatility, biased by
// trend strength and the current regime.
func (s *Simulator) refreshBook(tradingPair string, regime MarketRegime) {
	book := s.store.Book(tradingPair)
	if book == nil {
		return
	}
	mid, ok := book.MidPrice()
	if !ok || !mid.IsPositive() {
		return
	}

	vol, _ := s.dynamics.cfg.PriceVolatility.Float64()
	trendStrength, _ := s.dynamics.cfg.TrendStrength.Float64()

	random := s.dynamics.rng.NormFloat64() * vol
	trend := trendStrength * vol
	switch regime {
	case RegimeTrendingUp:
		trend = math.Abs(trend) * 2
	case RegimeTrendingDown:
		trend = -math.Abs(trend) * 2
	case RegimeVolatile:
		random *= 3
	default:
		trend = 0
	}

	newMid := mid.Mul(decimal.NewFromFloat(1 + random + trend))
	if !newMid.IsPositive() {
		return
	}

	spread := 0.0001
	if s.dynamics.cfg.RealisticSpreads {
		spread = 0.001
	}
	halfSpread := newMid.Mul(decimal.NewFromFloat(spread / 2))
	bestBid := newMid.Sub(halfSpread)
	bestAsk := newMid.Add(halfSpread)

	bids := make([]marketdata.Level, 0, len(syntheticLevels))
	asks := make([]marketdata.Level, 0, len(syntheticLevels))
	for _, lvl := range syntheticLevels {
		step := decimal.NewFromFloat(lvl.priceStep)
		amount := decimal.NewFromInt(lvl.amount)
		bids = append(bids, marketdata.Level{
			Price:  bestBid.Mul(decimal.NewFromInt(1).Sub(step)),
			Amount: amount,
		})
		asks = append(asks, marketdata.Level{
			Price:  bestAsk.Mul(decimal.NewFromInt(1).Add(step)),
			Amount: amount,
		})
	}
	s.store.Update(tradingPair, marketdata.NewBook(tradingPair, bids, asks, s.now))

	s.events.Emit(domain.Event{
		Type:        domain.EventPriceUpdated,
		TradingPair: tradingPair,
		Price:       newMid,
		Timestamp:   s.now,
	})
}
