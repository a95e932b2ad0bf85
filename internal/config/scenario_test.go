package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/data"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

const fullScenario = `
initial_balances:
  USDT: "10000"
  BTC: "0.5"
trading_pairs:
  - BTC-USDT
start: 2025-01-01T00:00:00Z
end: 2025-01-02T00:00:00Z
tick_interval: 1s
slippage:
  enabled: true
  model: square_root
  base_slippage_bps: "2"
  max_slippage_bps: "50"
  partial_fills: true
dynamics:
  enabled: true
  price_volatility: "0.002"
  initial_regime: trending_up
  book_refresh_ticks: 5
  latency: 250ms
  realistic_spreads: true
  seed: 42
snapshots:
  - trading_pair: BTC-USDT
    timestamp: 2025-01-01T00:00:10Z
    bids:
      - {price: "99", amount: "3"}
    asks:
      - {price: "100", amount: "3"}
`

func TestLoadScenario_Full(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, fullScenario))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	cfg := sc.EnvironmentConfig()
	if got := cfg.InitialBalances["USDT"]; !got.Equal(dec("10000")) {
		t.Fatalf("expected 10000 USDT, got %s", got)
	}
	if got := cfg.InitialBalances["BTC"]; !got.Equal(dec("0.5")) {
		t.Fatalf("expected 0.5 BTC, got %s", got)
	}
	if len(cfg.TradingPairs) != 1 || cfg.TradingPairs[0] != "BTC-USDT" {
		t.Fatalf("unexpected pairs %v", cfg.TradingPairs)
	}
	if cfg.TickInterval != time.Second {
		t.Fatalf("expected 1s tick interval, got %v", cfg.TickInterval)
	}
	if !cfg.Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", cfg.Start)
	}
	if !cfg.End.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", cfg.End)
	}

	// Both engine layers enabled.
	if got := len(sc.SimulatorOptions()); got != 2 {
		t.Fatalf("expected slippage and dynamics options, got %d", got)
	}

	if _, ok := sc.Provider().(*data.ReplayProvider); !ok {
		t.Fatalf("expected a replay provider, got %T", sc.Provider())
	}
}

func TestLoadScenario_MinimalDefaults(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, `
initial_balances:
  USDT: "1000"
trading_pairs: [BTC-USDT]
`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := len(sc.SimulatorOptions()); got != 0 {
		t.Fatalf("expected baseline engine without options, got %d", got)
	}
	if _, ok := sc.Provider().(data.NopProvider); !ok {
		t.Fatalf("expected the nop provider, got %T", sc.Provider())
	}
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no pairs", `initial_balances: {USDT: "1"}`},
		{"bad amount", "initial_balances: {USDT: abc}\ntrading_pairs: [BTC-USDT]"},
		{"bad duration", "trading_pairs: [BTC-USDT]\ntick_interval: soon"},
		{"bad model", "trading_pairs: [BTC-USDT]\nslippage: {enabled: true, model: cubic}"},
		{"bad regime", "trading_pairs: [BTC-USDT]\ndynamics: {enabled: true, initial_regime: sideways_up}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadScenario(writeScenario(t, tt.content)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestScenario_SlippageOverrides(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, `
trading_pairs: [BTC-USDT]
slippage:
  enabled: true
  model: logarithmic
  max_slippage_bps: "7"
`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := len(sc.SimulatorOptions()); got != 1 {
		t.Fatalf("expected one option, got %d", got)
	}
	if sc.Slippage.Model != "logarithmic" {
		t.Fatalf("unexpected model %q", sc.Slippage.Model)
	}
	if !sc.Slippage.MaxSlippageBps.Equal(dec("7")) {
		t.Fatalf("expected max 7 bps, got %s", sc.Slippage.MaxSlippageBps)
	}
}
