package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/tradesandbox/internal/data"
	"github.com/efreitasn/tradesandbox/internal/engine"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

// Amount is a decimal that unmarshals from YAML scalars. Amounts are
// written as strings in scenario files to avoid float precision loss.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", value.Value, err)
	}
	a.Decimal = d
	return nil
}

// Duration unmarshals Go duration strings ("1s", "100ms") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// SlippageSection configures the simulator's slippage layer.
type SlippageSection struct {
	Enabled              bool   `yaml:"enabled"`
	Model                string `yaml:"model"`
	BaseSlippageBps      Amount `yaml:"base_slippage_bps"`
	MaxSlippageBps       Amount `yaml:"max_slippage_bps"`
	DepthImpactFactor    Amount `yaml:"depth_impact_factor"`
	VolatilityMultiplier Amount `yaml:"volatility_multiplier"`
	PartialFills         bool   `yaml:"partial_fills"`
}

// DynamicsSection configures synthetic market dynamics.
type DynamicsSection struct {
	Enabled                 bool     `yaml:"enabled"`
	PriceVolatility         Amount   `yaml:"price_volatility"`
	TrendStrength           Amount   `yaml:"trend_strength"`
	InitialRegime           string   `yaml:"initial_regime"`
	RegimeChangeProbability Amount   `yaml:"regime_change_probability"`
	BookRefreshTicks        int      `yaml:"book_refresh_ticks"`
	Latency                 Duration `yaml:"latency"`
	RealisticSpreads        bool     `yaml:"realistic_spreads"`
	Seed                    int64    `yaml:"seed"`
}

// LevelSection is one order book level in a replay snapshot.
type LevelSection struct {
	Price  Amount `yaml:"price"`
	Amount Amount `yaml:"amount"`
}

// SnapshotSection is one pre-recorded order book in a replay scenario.
type SnapshotSection struct {
	TradingPair string         `yaml:"trading_pair"`
	Timestamp   time.Time      `yaml:"timestamp"`
	Bids        []LevelSection `yaml:"bids"`
	Asks        []LevelSection `yaml:"asks"`
}

// Scenario is a complete simulation description loaded from YAML: the
// environment configuration, the optional slippage and dynamics layers,
// and optional replay market data.
type Scenario struct {
	InitialBalances   map[string]Amount `yaml:"initial_balances"`
	TradingPairs      []string          `yaml:"trading_pairs"`
	Start             time.Time         `yaml:"start"`
	End               time.Time         `yaml:"end"`
	TickInterval      Duration          `yaml:"tick_interval"`
	EnableDerivatives bool              `yaml:"enable_derivatives"`
	Slippage          *SlippageSection  `yaml:"slippage"`
	Dynamics          *DynamicsSection  `yaml:"dynamics"`
	Snapshots         []SnapshotSection `yaml:"snapshots"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if len(sc.TradingPairs) == 0 {
		return fmt.Errorf("at least one trading pair is required")
	}
	if sc.Slippage != nil && sc.Slippage.Enabled {
		switch engine.SlippageModel(sc.Slippage.Model) {
		case engine.SlippageLinear, engine.SlippageLogarithmic, engine.SlippageSquareRoot, "":
		default:
			return fmt.Errorf("unknown slippage model %q", sc.Slippage.Model)
		}
	}
	if sc.Dynamics != nil && sc.Dynamics.Enabled {
		switch engine.MarketRegime(sc.Dynamics.InitialRegime) {
		case engine.RegimeTrendingUp, engine.RegimeTrendingDown, engine.RegimeSideways, engine.RegimeVolatile, "":
		default:
			return fmt.Errorf("unknown market regime %q", sc.Dynamics.InitialRegime)
		}
	}
	return nil
}

// EnvironmentConfig translates the scenario into a sandbox configuration.
func (sc *Scenario) EnvironmentConfig() sandbox.Config {
	balances := make(map[string]decimal.Decimal, len(sc.InitialBalances))
	for asset, amount := range sc.InitialBalances {
		balances[asset] = amount.Decimal
	}
	return sandbox.Config{
		InitialBalances:   balances,
		TradingPairs:      sc.TradingPairs,
		Start:             sc.Start,
		End:               sc.End,
		TickInterval:      time.Duration(sc.TickInterval),
		EnableDerivatives: sc.EnableDerivatives,
	}
}

// SimulatorOptions translates the optional slippage and dynamics
// sections into engine options.
func (sc *Scenario) SimulatorOptions() []engine.Option {
	var opts []engine.Option
	if s := sc.Slippage; s != nil && s.Enabled {
		cfg := engine.DefaultSlippageConfig()
		if s.Model != "" {
			cfg.Model = engine.SlippageModel(s.Model)
		}
		if !s.BaseSlippageBps.IsZero() {
			cfg.BaseSlippageBps = s.BaseSlippageBps.Decimal
		}
		if !s.MaxSlippageBps.IsZero() {
			cfg.MaxSlippageBps = s.MaxSlippageBps.Decimal
		}
		if !s.DepthImpactFactor.IsZero() {
			cfg.DepthImpactFactor = s.DepthImpactFactor.Decimal
		}
		if !s.VolatilityMultiplier.IsZero() {
			cfg.VolatilityMultiplier = s.VolatilityMultiplier.Decimal
		}
		cfg.EnablePartialFills = s.PartialFills
		opts = append(opts, engine.WithSlippage(cfg))
	}
	if d := sc.Dynamics; d != nil && d.Enabled {
		cfg := engine.DefaultDynamicsConfig()
		if !d.PriceVolatility.IsZero() {
			cfg.PriceVolatility = d.PriceVolatility.Decimal
		}
		cfg.TrendStrength = d.TrendStrength.Decimal
		if d.InitialRegime != "" {
			cfg.InitialRegime = engine.MarketRegime(d.InitialRegime)
		}
		if !d.RegimeChangeProbability.IsZero() {
			cfg.RegimeChangeProbability = d.RegimeChangeProbability.Decimal
		}
		if d.BookRefreshTicks > 0 {
			cfg.BookRefreshTicks = d.BookRefreshTicks
		}
		cfg.Latency = time.Duration(d.Latency)
		cfg.RealisticSpreads = d.RealisticSpreads
		cfg.Seed = d.Seed
		opts = append(opts, engine.WithDynamics(cfg))
	}
	return opts
}

// Provider builds the scenario's data provider: a replay provider when
// snapshots are present, otherwise none (caller falls back to
// data.NopProvider).
func (sc *Scenario) Provider() data.Provider {
	if len(sc.Snapshots) == 0 {
		return data.NopProvider{}
	}
	snapshots := make([]data.Snapshot, 0, len(sc.Snapshots))
	for _, s := range sc.Snapshots {
		snapshots = append(snapshots, data.Snapshot{
			TradingPair: s.TradingPair,
			Timestamp:   s.Timestamp,
			Bids:        levels(s.Bids),
			Asks:        levels(s.Asks),
		})
	}
	return data.NewReplayProvider(snapshots)
}

func levels(in []LevelSection) []marketdata.Level {
	out := make([]marketdata.Level, 0, len(in))
	for _, lvl := range in {
		out = append(out, marketdata.Level{
			Price:  lvl.Price.Decimal,
			Amount: lvl.Amount.Decimal,
		})
	}
	return out
}
