// Package ledger holds per-asset balances for the sandbox. It is the
// single source of truth for totals and locked amounts; it knows nothing
// about orders or markets and never emits events.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
)

// Ledger tracks total and locked balances per asset symbol. Balances are
// created implicitly on first reference and default to zero. The invariant
// locked <= total holds after every operation as long as callers settle
// through Unlock before Update, which is what the simulator does.
type Ledger struct {
	mu     sync.RWMutex
	totals map[string]decimal.Decimal
	locked map[string]decimal.Decimal
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		totals: make(map[string]decimal.Decimal),
		locked: make(map[string]decimal.Decimal),
	}
}

// Balance returns the total balance for an asset, zero for unknown assets.
func (l *Ledger) Balance(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals[asset]
}

// AvailableBalance returns total minus locked for an asset.
func (l *Ledger) AvailableBalance(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals[asset].Sub(l.locked[asset])
}

// LockedBalance returns the currently locked amount for an asset.
func (l *Ledger) LockedBalance(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locked[asset]
}

// AllBalances returns a snapshot copy of all total balances.
func (l *Ledger) AllBalances() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(l.totals))
	for asset, amount := range l.totals {
		out[asset] = amount
	}
	return out
}

// Lock reserves amount of an asset for trading. It returns
// domain.ErrInsufficientBalance when amount exceeds the available balance,
// leaving state unchanged. This is the admission-control gate for order
// placement: the check and the reservation happen under one lock.
func (l *Ledger) Lock(asset string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.totals[asset].Sub(l.locked[asset])
	if available.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	l.locked[asset] = l.locked[asset].Add(amount)
	return nil
}

// Unlock releases a previously locked amount. It returns
// domain.ErrInsufficientLocked when amount exceeds the currently locked
// amount for the asset, leaving state unchanged.
func (l *Ledger) Unlock(asset string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked[asset].LessThan(amount) {
		return domain.ErrInsufficientLocked
	}
	l.locked[asset] = l.locked[asset].Sub(amount)
	return nil
}

// Update adds delta (positive or negative) to the total balance of an
// asset. There is no bounds check: settlement always unlocks before
// debiting, so a correct caller can never drive locked above total here.
func (l *Ledger) Update(asset string, delta decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals[asset] = l.totals[asset].Add(delta)
}

// Set assigns an absolute total balance. Used only at initialization and
// reset.
func (l *Ledger) Set(asset string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals[asset] = amount
}

// Reset clears all balances and locks.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals = make(map[string]decimal.Decimal)
	l.locked = make(map[string]decimal.Decimal)
}
