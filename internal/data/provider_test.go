package data

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func snap(pair string, ts time.Time, bid, ask string) Snapshot {
	return Snapshot{
		TradingPair: pair,
		Timestamp:   ts,
		Bids:        []marketdata.Level{{Price: dec(bid), Amount: dec("1")}},
		Asks:        []marketdata.Level{{Price: dec(ask), Amount: dec("1")}},
	}
}

func TestNopProvider(t *testing.T) {
	var p NopProvider
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	book, err := p.OrderBookSnapshot(context.Background(), "BTC-USDT", t0)
	if err != nil || book != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", book, err)
	}
}

func TestReplayProvider_DeliversInOrder(t *testing.T) {
	// Constructed out of order on purpose.
	p := NewReplayProvider([]Snapshot{
		snap("BTC-USDT", t0.Add(10*time.Second), "110", "111"),
		snap("BTC-USDT", t0, "100", "101"),
	})
	ctx := context.Background()

	// Before the first snapshot matures: nothing.
	book, err := p.OrderBookSnapshot(ctx, "BTC-USDT", t0.Add(-time.Second))
	if err != nil || book != nil {
		t.Fatalf("expected no data yet, got (%v, %v)", book, err)
	}

	book, err = p.OrderBookSnapshot(ctx, "BTC-USDT", t0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	bid, _ := book.BestBid()
	if !bid.Equal(dec("100")) {
		t.Fatalf("expected first snapshot, got bid %s", bid)
	}

	// Same snapshot is not delivered twice.
	book, err = p.OrderBookSnapshot(ctx, "BTC-USDT", t0.Add(time.Second))
	if err != nil || book != nil {
		t.Fatalf("expected no redelivery, got (%v, %v)", book, err)
	}

	book, err = p.OrderBookSnapshot(ctx, "BTC-USDT", t0.Add(10*time.Second))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	bid, _ = book.BestBid()
	if !bid.Equal(dec("110")) {
		t.Fatalf("expected second snapshot, got bid %s", bid)
	}
}

func TestReplayProvider_TimeJumpSkipsToLatest(t *testing.T) {
	p := NewReplayProvider([]Snapshot{
		snap("BTC-USDT", t0, "100", "101"),
		snap("BTC-USDT", t0.Add(time.Second), "102", "103"),
		snap("BTC-USDT", t0.Add(2*time.Second), "104", "105"),
	})

	// A jump past all three yields only the most recent book.
	book, err := p.OrderBookSnapshot(context.Background(), "BTC-USDT", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	bid, _ := book.BestBid()
	if !bid.Equal(dec("104")) {
		t.Fatalf("expected the latest snapshot, got bid %s", bid)
	}
}

func TestReplayProvider_PairsAreIndependent(t *testing.T) {
	p := NewReplayProvider([]Snapshot{
		snap("BTC-USDT", t0, "100", "101"),
		snap("ETH-USDT", t0, "2000", "2001"),
	})
	ctx := context.Background()

	book, err := p.OrderBookSnapshot(ctx, "BTC-USDT", t0)
	if err != nil || book == nil {
		t.Fatalf("expected BTC book, got (%v, %v)", book, err)
	}
	book, err = p.OrderBookSnapshot(ctx, "ETH-USDT", t0)
	if err != nil || book == nil {
		t.Fatalf("expected ETH book, got (%v, %v)", book, err)
	}
	if book.TradingPair() != "ETH-USDT" {
		t.Fatalf("expected ETH-USDT, got %s", book.TradingPair())
	}
}

func TestReplayProvider_InitializeRewinds(t *testing.T) {
	p := NewReplayProvider([]Snapshot{snap("BTC-USDT", t0, "100", "101")})
	ctx := context.Background()

	if book, _ := p.OrderBookSnapshot(ctx, "BTC-USDT", t0); book == nil {
		t.Fatal("expected first delivery")
	}
	if book, _ := p.OrderBookSnapshot(ctx, "BTC-USDT", t0); book != nil {
		t.Fatal("expected snapshot consumed")
	}

	if err := p.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if book, _ := p.OrderBookSnapshot(ctx, "BTC-USDT", t0); book == nil {
		t.Fatal("expected redelivery after rewind")
	}
}
