// Package marketdata holds the latest known order book snapshot per
// trading pair and answers price queries. Books are value objects:
// a new snapshot fully replaces the previous one for a pair, there is
// no incremental patching.
package marketdata

import (
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// Level is an aggregated price level in a book snapshot. OrderCount is
// informational and may be zero when the data source does not track it.
type Level struct {
	Price      decimal.Decimal
	Amount     decimal.Decimal
	OrderCount int
}

// bidLess orders the bid side price-descending, so Min() is the best bid.
func bidLess(a, b Level) bool {
	return a.Price.GreaterThan(b.Price)
}

// askLess orders the ask side price-ascending, so Min() is the best ask.
func askLess(a, b Level) bool {
	return a.Price.LessThan(b.Price)
}

// Book is an immutable order book snapshot for a single trading pair.
// Sorting (bids descending, asks ascending) is enforced at construction,
// not at query time; levels with equal prices are merged.
type Book struct {
	tradingPair string
	bids        *btree.BTreeG[Level]
	asks        *btree.BTreeG[Level]
	timestamp   time.Time
}

// NewBook builds a Book from unordered bid and ask levels. A zero
// timestamp is replaced with the current wall-clock time.
func NewBook(tradingPair string, bids, asks []Level, timestamp time.Time) *Book {
	const degree = 16
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	b := &Book{
		tradingPair: tradingPair,
		bids:        btree.NewG(degree, bidLess),
		asks:        btree.NewG(degree, askLess),
		timestamp:   timestamp,
	}
	for _, lvl := range bids {
		insertLevel(b.bids, lvl)
	}
	for _, lvl := range asks {
		insertLevel(b.asks, lvl)
	}
	return b
}

// insertLevel merges levels at the same price instead of replacing them.
func insertLevel(tree *btree.BTreeG[Level], lvl Level) {
	if existing, ok := tree.Get(lvl); ok {
		lvl.Amount = lvl.Amount.Add(existing.Amount)
		lvl.OrderCount += existing.OrderCount
	}
	tree.ReplaceOrInsert(lvl)
}

// TradingPair returns the pair this snapshot belongs to.
func (b *Book) TradingPair() string {
	return b.tradingPair
}

// Timestamp returns the snapshot time.
func (b *Book) Timestamp() time.Time {
	return b.timestamp
}

// BestBid returns the highest bid price. ok is false when the bid side
// is empty.
func (b *Book) BestBid() (price decimal.Decimal, ok bool) {
	lvl, ok := b.bids.Min()
	return lvl.Price, ok
}

// BestAsk returns the lowest ask price. ok is false when the ask side
// is empty.
func (b *Book) BestAsk() (price decimal.Decimal, ok bool) {
	lvl, ok := b.asks.Min()
	return lvl.Price, ok
}

// MidPrice returns the average of best bid and best ask. ok is false
// when either side is empty.
func (b *Book) MidPrice() (price decimal.Decimal, ok bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Bids returns the bid levels, price descending.
func (b *Book) Bids() []Level {
	return collect(b.bids)
}

// Asks returns the ask levels, price ascending.
func (b *Book) Asks() []Level {
	return collect(b.asks)
}

func collect(tree *btree.BTreeG[Level]) []Level {
	out := make([]Level, 0, tree.Len())
	tree.Ascend(func(lvl Level) bool {
		out = append(out, lvl)
		return true
	})
	return out
}

// WalkBids iterates bid levels best-first (highest price first). The
// callback returns true to continue, false to stop.
func (b *Book) WalkBids(fn func(Level) bool) {
	b.bids.Ascend(fn)
}

// WalkAsks iterates ask levels best-first (lowest price first). The
// callback returns true to continue, false to stop.
func (b *Book) WalkAsks(fn func(Level) bool) {
	b.asks.Ascend(fn)
}

// BidDepth sums the amounts of the top n bid levels. n <= 0 sums the
// whole side.
func (b *Book) BidDepth(n int) decimal.Decimal {
	return depth(b.bids, n)
}

// AskDepth sums the amounts of the top n ask levels. n <= 0 sums the
// whole side.
func (b *Book) AskDepth(n int) decimal.Decimal {
	return depth(b.asks, n)
}

func depth(tree *btree.BTreeG[Level], n int) decimal.Decimal {
	total := decimal.Decimal{}
	count := 0
	tree.Ascend(func(lvl Level) bool {
		total = total.Add(lvl.Amount)
		count++
		return n <= 0 || count < n
	})
	return total
}
