package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestUnknownAssetIsZero(t *testing.T) {
	l := New()
	if !l.Balance("BTC").IsZero() {
		t.Fatalf("expected zero balance, got %s", l.Balance("BTC"))
	}
	if !l.AvailableBalance("BTC").IsZero() {
		t.Fatalf("expected zero available, got %s", l.AvailableBalance("BTC"))
	}
	if !l.LockedBalance("BTC").IsZero() {
		t.Fatalf("expected zero locked, got %s", l.LockedBalance("BTC"))
	}
}

func TestLock(t *testing.T) {
	l := New()
	l.Set("USDT", dec("100"))

	if err := l.Lock("USDT", dec("60")); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if got := l.AvailableBalance("USDT"); !got.Equal(dec("40")) {
		t.Fatalf("expected available=40, got %s", got)
	}
	if got := l.Balance("USDT"); !got.Equal(dec("100")) {
		t.Fatalf("lock must not change the total, got %s", got)
	}

	// A second lock beyond the remaining available fails without
	// changing state.
	if err := l.Lock("USDT", dec("41")); err != domain.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.LockedBalance("USDT"); !got.Equal(dec("60")) {
		t.Fatalf("failed lock must not change locked, got %s", got)
	}
}

func TestUnlock(t *testing.T) {
	l := New()
	l.Set("USDT", dec("100"))
	if err := l.Lock("USDT", dec("60")); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := l.Unlock("USDT", dec("25")); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if got := l.LockedBalance("USDT"); !got.Equal(dec("35")) {
		t.Fatalf("expected locked=35, got %s", got)
	}

	if err := l.Unlock("USDT", dec("36")); err != domain.ErrInsufficientLocked {
		t.Fatalf("expected ErrInsufficientLocked, got %v", err)
	}
	if got := l.LockedBalance("USDT"); !got.Equal(dec("35")) {
		t.Fatalf("failed unlock must not change locked, got %s", got)
	}
}

func TestUpdate(t *testing.T) {
	l := New()
	l.Set("USDT", dec("100"))

	l.Update("USDT", dec("-30.5"))
	if got := l.Balance("USDT"); !got.Equal(dec("69.5")) {
		t.Fatalf("expected total=69.5, got %s", got)
	}

	// Update on an unknown asset creates it.
	l.Update("BTC", dec("2"))
	if got := l.Balance("BTC"); !got.Equal(dec("2")) {
		t.Fatalf("expected total=2, got %s", got)
	}
}

func TestAllBalancesIsASnapshot(t *testing.T) {
	l := New()
	l.Set("USDT", dec("100"))

	all := l.AllBalances()
	all["USDT"] = dec("0")

	if got := l.Balance("USDT"); !got.Equal(dec("100")) {
		t.Fatalf("mutating the snapshot must not affect the ledger, got %s", got)
	}
}

func TestReset(t *testing.T) {
	l := New()
	l.Set("USDT", dec("100"))
	if err := l.Lock("USDT", dec("40")); err != nil {
		t.Fatalf("lock: %v", err)
	}

	l.Reset()

	if !l.Balance("USDT").IsZero() || !l.LockedBalance("USDT").IsZero() {
		t.Fatalf("expected empty ledger after reset, got total=%s locked=%s",
			l.Balance("USDT"), l.LockedBalance("USDT"))
	}
	if len(l.AllBalances()) != 0 {
		t.Fatalf("expected no assets after reset, got %d", len(l.AllBalances()))
	}
}
