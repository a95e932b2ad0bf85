package marketdata

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PriceType selects which derived price a query returns.
type PriceType string

const (
	PriceTypeBid PriceType = "bid"
	PriceTypeAsk PriceType = "ask"
	PriceTypeMid PriceType = "mid"
)

// Store is a thread-safe map of trading pair → latest Book snapshot.
type Store struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		books: make(map[string]*Book),
	}
}

// Update replaces the book for a pair wholesale.
func (s *Store) Update(tradingPair string, book *Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[tradingPair] = book
}

// Book returns the latest snapshot for a pair, or nil if none exists.
func (s *Store) Book(tradingPair string) *Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[tradingPair]
}

// Price returns the requested derived price for a pair. Unknown pairs
// and empty book sides yield zero, never an error: callers treat zero
// as "no data" and abstain.
func (s *Store) Price(tradingPair string, priceType PriceType) decimal.Decimal {
	book := s.Book(tradingPair)
	if book == nil {
		return decimal.Decimal{}
	}

	var price decimal.Decimal
	var ok bool
	switch priceType {
	case PriceTypeBid:
		price, ok = book.BestBid()
	case PriceTypeAsk:
		price, ok = book.BestAsk()
	default:
		price, ok = book.MidPrice()
	}
	if !ok {
		return decimal.Decimal{}
	}
	return price
}

// Pairs returns the pairs that currently have a book snapshot.
func (s *Store) Pairs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.books))
	for pair := range s.books {
		out = append(out, pair)
	}
	return out
}

// Reset drops all book snapshots.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = make(map[string]*Book)
}
