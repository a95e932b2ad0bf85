// Package data defines the market data provider contract and the
// built-in providers used by the simulation environment.
package data

import (
	"context"
	"sort"
	"time"

	"github.com/efreitasn/tradesandbox/internal/marketdata"
)

// Provider supplies order book snapshots to the simulation environment.
// OrderBookSnapshot returning (nil, nil) means no new data for that pair
// this tick; the environment keeps the previous book.
type Provider interface {
	Initialize(ctx context.Context) error
	OrderBookSnapshot(ctx context.Context, tradingPair string, timestamp time.Time) (*marketdata.Book, error)
}

// NopProvider supplies no market data. The simulator's placeholder books
// and, when enabled, its synthetic market dynamics are the only price
// sources in that case.
type NopProvider struct{}

func (NopProvider) Initialize(context.Context) error {
	return nil
}

func (NopProvider) OrderBookSnapshot(context.Context, string, time.Time) (*marketdata.Book, error) {
	return nil, nil
}

// Snapshot is one pre-recorded order book state.
type Snapshot struct {
	TradingPair string
	Timestamp   time.Time
	Bids        []marketdata.Level
	Asks        []marketdata.Level
}

// ReplayProvider serves pre-recorded snapshots in timestamp order. Each
// snapshot is delivered exactly once: the first query at or after its
// timestamp returns it, later queries return nil until the next snapshot
// matures. Queries for different pairs advance independent cursors.
type ReplayProvider struct {
	byPair  map[string][]Snapshot
	cursors map[string]int
}

// NewReplayProvider builds a ReplayProvider from unordered snapshots.
func NewReplayProvider(snapshots []Snapshot) *ReplayProvider {
	byPair := make(map[string][]Snapshot)
	for _, snap := range snapshots {
		byPair[snap.TradingPair] = append(byPair[snap.TradingPair], snap)
	}
	for pair := range byPair {
		series := byPair[pair]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
	return &ReplayProvider{
		byPair:  byPair,
		cursors: make(map[string]int),
	}
}

// Initialize rewinds all cursors so a provider can be replayed across
// environment resets.
func (p *ReplayProvider) Initialize(context.Context) error {
	p.cursors = make(map[string]int)
	return nil
}

// OrderBookSnapshot returns the latest undelivered snapshot for the pair
// with a timestamp at or before the query timestamp. Snapshots skipped
// over by a large time jump are dropped, not queued: only the most
// recent matured book is relevant.
func (p *ReplayProvider) OrderBookSnapshot(_ context.Context, tradingPair string, timestamp time.Time) (*marketdata.Book, error) {
	series := p.byPair[tradingPair]
	cursor := p.cursors[tradingPair]

	matured := -1
	for cursor < len(series) && !series[cursor].Timestamp.After(timestamp) {
		matured = cursor
		cursor++
	}
	p.cursors[tradingPair] = cursor

	if matured < 0 {
		return nil, nil
	}
	snap := series[matured]
	return marketdata.NewBook(snap.TradingPair, snap.Bids, snap.Asks, snap.Timestamp), nil
}
