package domain

import "strings"

// Pair identifies a trading pair as base and quote asset symbols.
// The wire form is "BASE-QUOTE", e.g. "BTC-USDT".
type Pair struct {
	Base  string
	Quote string
}

// ParsePair splits a "BASE-QUOTE" string into a Pair. It returns
// ErrInvalidPair when the string does not contain exactly two
// non-empty asset symbols.
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(s, "-")
	if !ok || base == "" || quote == "" {
		return Pair{}, ErrInvalidPair
	}
	return Pair{Base: base, Quote: quote}, nil
}

// String returns the "BASE-QUOTE" form of the pair.
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}
