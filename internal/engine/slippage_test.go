package engine

import (
	"testing"
	"time"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name  string
		price string
		bps   string
		side  domain.OrderSide
		want  string
	}{
		{"buy pays up", "100", "50", domain.OrderSideBuy, "100.5"},
		{"sell receives less", "100", "50", domain.OrderSideSell, "99.5"},
		{"zero bps is exact", "100", "0", domain.OrderSideBuy, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applySlippage(dec(tt.price), dec(tt.bps), tt.side)
			if !got.Equal(dec(tt.want)) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func testBook(askAmount string) *marketdata.Book {
	return marketdata.NewBook("BTC-USDT",
		[]marketdata.Level{{Price: dec("100"), Amount: dec(askAmount)}},
		[]marketdata.Level{{Price: dec("101"), Amount: dec(askAmount)}},
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

func TestCalculateSlippage_CappedAtMax(t *testing.T) {
	cfg := DefaultSlippageConfig()
	cfg.MaxSlippageBps = dec("25")
	s, _, _ := newTestSimulator(WithSlippage(cfg))

	// An order a thousand times the visible depth pushes every model
	// past the cap.
	order := &domain.Order{
		TradingPair: "BTC-USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeMarket,
		Amount:      dec("1000"),
	}
	for _, model := range []SlippageModel{SlippageLinear, SlippageLogarithmic, SlippageSquareRoot} {
		s.slippage.Model = model
		got := s.calculateSlippage(order, testBook("1"))
		if !got.Equal(dec("25")) {
			t.Fatalf("model %s: expected cap 25, got %s", model, got)
		}
	}
}

func TestCalculateSlippage_GrowsWithOrderSize(t *testing.T) {
	cfg := DefaultSlippageConfig()
	cfg.VolatilityMultiplier = dec("0")
	s, _, _ := newTestSimulator(WithSlippage(cfg))
	book := testBook("100")

	small := s.calculateSlippage(&domain.Order{
		TradingPair: "BTC-USDT", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeMarket, Amount: dec("1"),
	}, book)
	large := s.calculateSlippage(&domain.Order{
		TradingPair: "BTC-USDT", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeMarket, Amount: dec("50"),
	}, book)

	if !large.GreaterThan(small) {
		t.Fatalf("expected slippage to grow with size, got small=%s large=%s", small, large)
	}
	if small.LessThan(cfg.BaseSlippageBps) {
		t.Fatalf("expected at least the base slippage, got %s", small)
	}
}

func TestVolTracker_DefaultWithoutHistory(t *testing.T) {
	v := newVolTracker()
	if got := v.volatility("BTC-USDT"); !got.Equal(defaultVolatility) {
		t.Fatalf("expected default volatility, got %s", got)
	}

	v.observe("BTC-USDT", dec("100"))
	if got := v.volatility("BTC-USDT"); !got.Equal(defaultVolatility) {
		t.Fatalf("expected default volatility with one price, got %s", got)
	}
}

func TestVolTracker_ConstantPricesHaveZeroVolatility(t *testing.T) {
	v := newVolTracker()
	for i := 0; i < 30; i++ {
		v.observe("BTC-USDT", dec("100"))
	}
	if got := v.volatility("BTC-USDT"); !got.IsZero() {
		t.Fatalf("expected zero volatility for a flat price, got %s", got)
	}
}

func TestVolTracker_HistoryCapped(t *testing.T) {
	v := newVolTracker()
	for i := 0; i < 500; i++ {
		v.observe("BTC-USDT", dec("100"))
	}
	if got := len(v.history["BTC-USDT"]); got != 100 {
		t.Fatalf("expected history capped at 100, got %d", got)
	}
}

func TestPartialFillAmount_LimitPriceBoundsDepth(t *testing.T) {
	cfg := DefaultSlippageConfig()
	cfg.EnablePartialFills = true
	s, _, _ := newTestSimulator(WithSlippage(cfg))

	book := marketdata.NewBook("BTC-USDT",
		[]marketdata.Level{{Price: dec("100"), Amount: dec("5")}},
		[]marketdata.Level{
			{Price: dec("101"), Amount: dec("2")},
			{Price: dec("102"), Amount: dec("3")},
			{Price: dec("110"), Amount: dec("50")},
		},
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	)

	// A limit buy at 102 only sees the 101 and 102 levels: 5 available
	// against 10 wanted, capped at 80% of remaining.
	order := &domain.Order{
		TradingPair: "BTC-USDT",
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeLimit,
		Amount:      dec("10"),
		Price:       dec("102"),
	}
	amount, partial := s.partialFillAmount(order, book)
	if !partial {
		t.Fatal("expected a partial fill")
	}
	if !amount.Equal(dec("5")) {
		t.Fatalf("expected fill of 5, got %s", amount)
	}

	// With depth to spare the fill is whole.
	order.Amount = dec("2")
	amount, partial = s.partialFillAmount(order, book)
	if partial || !amount.Equal(dec("2")) {
		t.Fatalf("expected full fill of 2, got %s (partial=%v)", amount, partial)
	}
}
