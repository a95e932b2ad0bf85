package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

// SlippageModel selects the depth-impact curve.
type SlippageModel string

const (
	SlippageLinear      SlippageModel = "linear"
	SlippageLogarithmic SlippageModel = "logarithmic"
	SlippageSquareRoot  SlippageModel = "square_root"
)

// SlippageConfig tunes the execution-cost layer. All slippage figures are
// in basis points of the reference price.
type SlippageConfig struct {
	Model SlippageModel
	// BaseSlippageBps is paid on every fill regardless of size.
	BaseSlippageBps decimal.Decimal
	// MaxSlippageBps caps the total per-fill slippage.
	MaxSlippageBps decimal.Decimal
	// DepthImpactFactor scales the order-size-to-book-depth ratio into
	// basis points.
	DepthImpactFactor decimal.Decimal
	// VolatilityMultiplier scales recent realized volatility into basis
	// points.
	VolatilityMultiplier decimal.Decimal
	// EnablePartialFills limits fills to the visible depth of the
	// opposite book side.
	EnablePartialFills bool
}

// DefaultSlippageConfig returns a moderate configuration: linear model,
// 1bps base, 100bps cap.
func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{
		Model:                SlippageLinear,
		BaseSlippageBps:      decimal.NewFromInt(1),
		MaxSlippageBps:       decimal.NewFromInt(100),
		DepthImpactFactor:    decimal.NewFromInt(10),
		VolatilityMultiplier: decimal.NewFromFloat(0.5),
	}
}

// The linear model considers only near-touch depth; the curved models
// look deeper into the book.
const (
	linearDepthLevels = 5
	curvedDepthLevels = 10
)

// defaultVolatility is assumed when fewer than two prices have been
// observed for a pair.
var defaultVolatility = decimal.NewFromFloat(0.001)

const volatilityWindow = 20

// volTracker maintains per-pair mid-price history and a realized
// volatility cache. History is capped at 100 observations; the cache is
// invalidated every volatilityWindow observations so volatility tracks
// the market with bounded recomputation.
type volTracker struct {
	history      map[string][]decimal.Decimal
	cache        map[string]decimal.Decimal
	observations map[string]int
}

func newVolTracker() *volTracker {
	return &volTracker{
		history:      make(map[string][]decimal.Decimal),
		cache:        make(map[string]decimal.Decimal),
		observations: make(map[string]int),
	}
}

func (v *volTracker) observe(tradingPair string, price decimal.Decimal) {
	const maxHistory = 100

	h := append(v.history[tradingPair], price)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	v.history[tradingPair] = h

	v.observations[tradingPair]++
	if v.observations[tradingPair]%volatilityWindow == 0 {
		delete(v.cache, tradingPair)
	}
}

// volatility returns the standard deviation of returns over the last
// volatilityWindow observed prices.
func (v *volTracker) volatility(tradingPair string) decimal.Decimal {
	if cached, ok := v.cache[tradingPair]; ok {
		return cached
	}

	h := v.history[tradingPair]
	if len(h) > volatilityWindow {
		h = h[len(h)-volatilityWindow:]
	}
	if len(h) < 2 {
		return defaultVolatility
	}

	returns := make([]float64, 0, len(h)-1)
	for i := 1; i < len(h); i++ {
		prev, _ := h[i-1].Float64()
		cur, _ := h[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	if len(returns) == 0 {
		return defaultVolatility
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	vol := decimal.NewFromFloat(math.Sqrt(variance))
	v.cache[tradingPair] = vol
	return vol
}

func (v *volTracker) reset() {
	v.history = make(map[string][]decimal.Decimal)
	v.cache = make(map[string]decimal.Decimal)
	v.observations = make(map[string]int)
}

// observePrices feeds current mid prices into the volatility tracker.
// Called once per tick before fill evaluation.
func (s *Simulator) observePrices() {
	if s.slippage == nil {
		return
	}
	for _, pair := range s.pairs {
		if mid := s.store.Price(pair, marketdata.PriceTypeMid); mid.IsPositive() {
			s.vol.observe(pair, mid)
		}
	}
}

// calculateSlippage computes total slippage in basis points for a fill:
// base cost, plus depth impact from the configured model, plus a
// volatility component, capped at MaxSlippageBps.
func (s *Simulator) calculateSlippage(order *domain.Order, book *marketdata.Book) decimal.Decimal {
	cfg := s.slippage

	levels := curvedDepthLevels
	if cfg.Model == SlippageLinear {
		levels = linearDepthLevels
	}
	var depth decimal.Decimal
	if order.Side == domain.OrderSideBuy {
		depth = book.AskDepth(levels)
	} else {
		depth = book.BidDepth(levels)
	}

	total := cfg.BaseSlippageBps

	if depth.IsPositive() {
		ratio, _ := order.RemainingAmount().Div(depth).Float64()
		factor, _ := cfg.DepthImpactFactor.Float64()
		var impact float64
		switch cfg.Model {
		case SlippageLogarithmic:
			impact = math.Log1p(ratio) * factor * 10
		case SlippageSquareRoot:
			impact = math.Sqrt(ratio) * factor * 5
		default:
			impact = ratio * factor
		}
		total = total.Add(decimal.NewFromFloat(impact))
	}

	volImpact := s.vol.volatility(order.TradingPair).
		Mul(cfg.VolatilityMultiplier).
		Mul(bpsDivisor)
	total = total.Add(volImpact)

	if total.GreaterThan(cfg.MaxSlippageBps) {
		total = cfg.MaxSlippageBps
	}
	if total.IsNegative() {
		total = decimal.Decimal{}
	}
	return total
}

// applySlippage shifts a price against the taker: up for buys, down for
// sells.
func applySlippage(price, slippageBps decimal.Decimal, side domain.OrderSide) decimal.Decimal {
	factor := slippageBps.Div(bpsDivisor)
	if side == domain.OrderSideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}

// partialFillAmount bounds a fill by the visible depth of the opposite
// book side. For limit orders only levels within the limit price count
// as available. A constrained fill takes at most 80% of the remaining
// amount, modeling that sweeping the entire visible book in one tick is
// unrealistic.
func (s *Simulator) partialFillAmount(order *domain.Order, book *marketdata.Book) (amount decimal.Decimal, partial bool) {
	remaining := order.RemainingAmount()

	available := decimal.Decimal{}
	accumulate := func(lvl marketdata.Level) bool {
		if order.Type != domain.OrderTypeMarket {
			if order.Side == domain.OrderSideBuy && lvl.Price.GreaterThan(order.Price) {
				return false
			}
			if order.Side == domain.OrderSideSell && lvl.Price.LessThan(order.Price) {
				return false
			}
		}
		available = available.Add(lvl.Amount)
		return available.LessThan(remaining)
	}
	if order.Side == domain.OrderSideBuy {
		book.WalkAsks(accumulate)
	} else {
		book.WalkBids(accumulate)
	}

	if available.GreaterThanOrEqual(remaining) {
		return remaining, false
	}

	sweepCap := remaining.Mul(decimal.NewFromFloat(0.8))
	return decimal.Min(available, sweepCap), true
}

// SlippageStatistics aggregates execution-quality figures across all
// fill records.
type SlippageStatistics struct {
	Fills              int
	PartialFills       int
	AvgSlippageBps     decimal.Decimal
	MaxSlippageBps     decimal.Decimal
	AvgMarketImpactBps decimal.Decimal
	MaxMarketImpactBps decimal.Decimal
}

// SlippageStatistics summarizes slippage and market impact over the
// fills recorded so far.
func (s *Simulator) SlippageStatistics() SlippageStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SlippageStatistics{Fills: len(s.fills)}
	if len(s.fills) == 0 {
		return stats
	}

	var slipSum, impactSum decimal.Decimal
	for _, f := range s.fills {
		if f.Partial {
			stats.PartialFills++
		}
		slipSum = slipSum.Add(f.SlippageBps)
		impactSum = impactSum.Add(f.MarketImpactBps)
		if f.SlippageBps.GreaterThan(stats.MaxSlippageBps) {
			stats.MaxSlippageBps = f.SlippageBps
		}
		if f.MarketImpactBps.GreaterThan(stats.MaxMarketImpactBps) {
			stats.MaxMarketImpactBps = f.MarketImpactBps
		}
	}
	n := decimal.NewFromInt(int64(len(s.fills)))
	stats.AvgSlippageBps = slipSum.Div(n)
	stats.AvgMarketImpactBps = impactSum.Div(n)
	return stats
}
