package engine

import (
	"testing"
	"time"
)

func seededDynamicsConfig(seed int64) DynamicsConfig {
	cfg := DefaultDynamicsConfig()
	cfg.PriceVolatility = dec("0.01")
	cfg.BookRefreshTicks = 1
	cfg.RegimeChangeProbability = dec("0.05")
	cfg.Seed = seed
	return cfg
}

func TestDynamics_SeededRunsAreReproducible(t *testing.T) {
	run := func() []string {
		s, _, _ := newTestSimulator(WithDynamics(seededDynamicsConfig(42)))
		if err := s.AddTradingPair("BTC-USDT"); err != nil {
			t.Fatalf("add pair: %v", err)
		}
		var mids []string
		for i := 0; i < 50; i++ {
			s.ProcessTick(t0.Add(time.Duration(i) * time.Second))
			mid, ok := s.Book("BTC-USDT").MidPrice()
			if !ok {
				t.Fatal("expected a two-sided book")
			}
			mids = append(mids, mid.String())
		}
		return mids
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("tick %d: price paths diverged, %s vs %s", i, first[i], second[i])
		}
	}
}

func TestDynamics_BookRefreshReplacesSnapshot(t *testing.T) {
	s, _, _ := newTestSimulator(WithDynamics(seededDynamicsConfig(7)))
	if err := s.AddTradingPair("BTC-USDT"); err != nil {
		t.Fatalf("add pair: %v", err)
	}

	s.ProcessTick(t0)

	book := s.Book("BTC-USDT")
	if got := len(book.Bids()); got != 3 {
		t.Fatalf("expected 3 synthetic bid levels, got %d", got)
	}
	if got := len(book.Asks()); got != 3 {
		t.Fatalf("expected 3 synthetic ask levels, got %d", got)
	}
	if !book.Timestamp().Equal(t0) {
		t.Fatalf("expected snapshot stamped with tick time, got %v", book.Timestamp())
	}

	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	if !ask.GreaterThan(bid) {
		t.Fatalf("expected positive spread, got bid=%s ask=%s", bid, ask)
	}
}

func TestDynamics_RefreshIntervalRespected(t *testing.T) {
	cfg := seededDynamicsConfig(7)
	cfg.BookRefreshTicks = 10
	cfg.RegimeChangeProbability = dec("0")
	s, _, _ := newTestSimulator(WithDynamics(cfg))
	if err := s.AddTradingPair("BTC-USDT"); err != nil {
		t.Fatalf("add pair: %v", err)
	}

	original := s.Book("BTC-USDT")
	for i := 0; i < 9; i++ {
		s.ProcessTick(t0.Add(time.Duration(i) * time.Second))
	}
	if s.Book("BTC-USDT") != original {
		t.Fatal("expected no refresh before the interval elapses")
	}

	s.ProcessTick(t0.Add(9 * time.Second))
	if s.Book("BTC-USDT") == original {
		t.Fatal("expected a refresh on the tenth tick")
	}
}

func TestDynamics_InitialRegimeReported(t *testing.T) {
	cfg := DefaultDynamicsConfig()
	cfg.InitialRegime = RegimeTrendingUp
	cfg.RegimeChangeProbability = dec("0")
	cfg.Seed = 1
	s, _, _ := newTestSimulator(WithDynamics(cfg))
	if err := s.AddTradingPair("BTC-USDT"); err != nil {
		t.Fatalf("add pair: %v", err)
	}

	s.ProcessTick(t0)

	regimes := s.MarketRegimes()
	if regimes["BTC-USDT"] != RegimeTrendingUp {
		t.Fatalf("expected trending_up, got %s", regimes["BTC-USDT"])
	}
}

func TestDynamics_DisabledReportsNoRegimes(t *testing.T) {
	s, _, _ := newTestSimulator()
	if err := s.AddTradingPair("BTC-USDT"); err != nil {
		t.Fatalf("add pair: %v", err)
	}
	if got := len(s.MarketRegimes()); got != 0 {
		t.Fatalf("expected no regimes without dynamics, got %d", got)
	}
}
