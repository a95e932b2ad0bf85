package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEnv(balances map[string]string) *sandbox.Environment {
	initial := make(map[string]decimal.Decimal, len(balances))
	for asset, amount := range balances {
		initial[asset] = dec(amount)
	}
	return sandbox.New(sandbox.Config{
		InitialBalances: initial,
		TradingPairs:    []string{"BTC-USDT"},
		Start:           t0,
		TickInterval:    time.Second,
	}, nil, discardLogger())
}

func TestThresholdBuyer_BuysBelowThreshold(t *testing.T) {
	env := newTestEnv(map[string]string{"USDT": "10000"})
	ctx := context.Background()

	// Placeholder book mid is 100.5, below the threshold from tick one.
	buyer := NewThresholdBuyer("BTC-USDT", dec("101"), dec("1"), 2, discardLogger())
	if err := env.AddStrategy(ctx, buyer); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	if _, err := env.Run(ctx, sandbox.RunOptions{Duration: 5 * time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Capped at two buys of one BTC each, filled at the 101 ask.
	if got := env.Balance("BTC"); !got.Equal(dec("2")) {
		t.Fatalf("expected 2 BTC, got %s", got)
	}
	if got := env.Balance("USDT"); !got.Equal(dec("9798")) {
		t.Fatalf("expected 9798 USDT, got %s", got)
	}
}

func TestThresholdBuyer_AbstainsAboveThreshold(t *testing.T) {
	env := newTestEnv(map[string]string{"USDT": "10000"})
	ctx := context.Background()

	buyer := NewThresholdBuyer("BTC-USDT", dec("50"), dec("1"), 5, discardLogger())
	if err := env.AddStrategy(ctx, buyer); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	if _, err := env.Run(ctx, sandbox.RunOptions{Duration: 5 * time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := env.Balance("BTC"); !got.IsZero() {
		t.Fatalf("expected no buys above threshold, got %s BTC", got)
	}
}

func TestThresholdBuyer_RunsOutOfFundsGracefully(t *testing.T) {
	// Enough for one buy at 101, not two.
	env := newTestEnv(map[string]string{"USDT": "150"})
	ctx := context.Background()

	buyer := NewThresholdBuyer("BTC-USDT", dec("101"), dec("1"), 10, discardLogger())
	if err := env.AddStrategy(ctx, buyer); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	if _, err := env.Run(ctx, sandbox.RunOptions{Duration: 5 * time.Second}); err != nil {
		t.Fatalf("expected graceful run, got %v", err)
	}
	if got := env.Balance("BTC"); !got.Equal(dec("1")) {
		t.Fatalf("expected exactly 1 BTC, got %s", got)
	}
}

func TestNaiveMarketMaker_KeepsTwoQuotes(t *testing.T) {
	env := newTestEnv(map[string]string{"USDT": "10000", "BTC": "10"})
	ctx := context.Background()

	// 1% half-spread around the 100.5 placeholder mid keeps both quotes
	// away from the touch, so they rest instead of filling.
	mm := NewNaiveMarketMaker("BTC-USDT", dec("0.01"), dec("1"), discardLogger())
	if err := env.AddStrategy(ctx, mm); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	if _, err := env.Run(ctx, sandbox.RunOptions{Duration: 5 * time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}

	open := env.OpenOrders("BTC-USDT")
	if len(open) != 2 {
		t.Fatalf("expected exactly 2 resting quotes after re-quoting, got %d", len(open))
	}
	sides := map[string]int{}
	for _, o := range open {
		sides[string(o.Side)]++
	}
	if sides["buy"] != 1 || sides["sell"] != 1 {
		t.Fatalf("expected one quote per side, got %v", sides)
	}

	// Cleanup pulls both quotes.
	if err := env.RemoveStrategy(ctx, mm.Name()); err != nil {
		t.Fatalf("remove strategy: %v", err)
	}
	if got := len(env.OpenOrders("BTC-USDT")); got != 0 {
		t.Fatalf("expected no quotes after cleanup, got %d", got)
	}
}

func TestNaiveMarketMaker_SkipsUnfundableSide(t *testing.T) {
	// No BTC: the ask side can never be funded.
	env := newTestEnv(map[string]string{"USDT": "10000"})
	ctx := context.Background()

	mm := NewNaiveMarketMaker("BTC-USDT", dec("0.01"), dec("1"), discardLogger())
	if err := env.AddStrategy(ctx, mm); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	if _, err := env.Run(ctx, sandbox.RunOptions{Duration: 3 * time.Second}); err != nil {
		t.Fatalf("run: %v", err)
	}

	open := env.OpenOrders("BTC-USDT")
	if len(open) != 1 || open[0].Side != "buy" {
		t.Fatalf("expected only the bid to rest, got %d orders", len(open))
	}
}
