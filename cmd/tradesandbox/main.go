package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/config"
	"github.com/efreitasn/tradesandbox/internal/data"
	"github.com/efreitasn/tradesandbox/internal/engine"
	"github.com/efreitasn/tradesandbox/internal/handler"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
	"github.com/efreitasn/tradesandbox/internal/service"
	"github.com/efreitasn/tradesandbox/internal/strategy"
)

// defaultConfig is the environment used when no scenario file is
// configured: one pair, a quote balance to trade with, and the baseline
// engine.
func defaultConfig() sandbox.Config {
	return sandbox.Config{
		InitialBalances: map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
		},
		TradingPairs: []string{"BTC-USDT"},
	}
}

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Build the environment from the scenario file when one is
	// configured, otherwise from the built-in defaults.
	envCfg := defaultConfig()
	var provider data.Provider
	var simOpts []engine.Option
	if cfg.ScenarioPath != "" {
		scenario, err := config.LoadScenario(cfg.ScenarioPath)
		if err != nil {
			logger.Error("failed to load scenario", slog.String("path", cfg.ScenarioPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		envCfg = scenario.EnvironmentConfig()
		provider = scenario.Provider()
		simOpts = scenario.SimulatorOptions()
		logger.Info("scenario loaded",
			slog.String("path", cfg.ScenarioPath),
			slog.Int("trading_pairs", len(envCfg.TradingPairs)),
		)
	}

	env := sandbox.New(envCfg, provider, logger, simOpts...)
	if err := env.Initialize(context.Background()); err != nil {
		logger.Error("failed to initialize environment", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Without a scenario, register the example strategy so a run started
	// over the API has something to show.
	if cfg.ScenarioPath == "" {
		buyer := strategy.NewThresholdBuyer("BTC-USDT",
			decimal.NewFromInt(101), decimal.NewFromFloat(0.1), 3, logger)
		if err := env.AddStrategy(context.Background(), buyer); err != nil {
			logger.Error("failed to register strategy", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	runner := service.NewRunner(env, logger)

	// Router.
	router := handler.NewRouter(env, runner, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, then stop any in-flight run
	// and let the strategies clean up.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	env.Shutdown(shutdownCtx)

	logger.Info("server stopped")
}
