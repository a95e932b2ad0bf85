package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// sleeper paces the tick loop so tests can observe a run in flight.
type sleeper struct{}

func (sleeper) Name() string                                     { return "sleeper" }
func (sleeper) Initialize(context.Context, sandbox.Sandbox) error { return nil }
func (sleeper) OnOrderFilled(*domain.Order)                      {}
func (sleeper) OnBalanceUpdated(string, decimal.Decimal)         {}
func (sleeper) Cleanup(context.Context) error                    { return nil }

func (sleeper) OnTick(context.Context, time.Time) error {
	time.Sleep(2 * time.Millisecond)
	return nil
}

func newTestRunner() (*Runner, *sandbox.Environment) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := sandbox.New(sandbox.Config{
		InitialBalances: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)},
		TradingPairs:    []string{"BTC-USDT"},
		Start:           t0,
		TickInterval:    time.Second,
	}, nil, logger)
	return NewRunner(env, logger), env
}

func TestRunner_StartAndWait(t *testing.T) {
	r, _ := newTestRunner()

	if err := r.Start(sandbox.RunOptions{Duration: 3 * time.Second}); err != nil {
		t.Fatalf("start: %v", err)
	}
	metrics, err := r.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if metrics.DurationSeconds != 3 {
		t.Fatalf("expected 3 simulated seconds, got %v", metrics.DurationSeconds)
	}

	status := r.Status()
	if status.Running {
		t.Fatal("expected runner idle after wait")
	}
	if status.LastMetrics == nil {
		t.Fatal("expected last metrics retained")
	}
}

func TestRunner_StopWithoutRun(t *testing.T) {
	r, _ := newTestRunner()
	if err := r.Stop(); err != domain.ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestRunner_WaitWithoutRun(t *testing.T) {
	r, _ := newTestRunner()
	if _, err := r.Wait(context.Background()); err != domain.ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestRunner_DoubleStart(t *testing.T) {
	r, env := newTestRunner()
	if err := env.AddStrategy(context.Background(), sleeper{}); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	// A long run that we stop explicitly.
	if err := r.Start(sandbox.RunOptions{Duration: time.Hour}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(sandbox.RunOptions{Duration: time.Second}); err != domain.ErrSimulationRunning {
		t.Fatalf("expected ErrSimulationRunning, got %v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := r.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestRunner_StepAndReset(t *testing.T) {
	r, env := newTestRunner()
	ctx := context.Background()

	if err := r.Step(ctx, time.Time{}); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := env.CurrentTime(); !got.Equal(t0.Add(time.Second)) {
		t.Fatalf("expected clock advanced, got %v", got)
	}

	if err := r.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := env.CurrentTime(); !got.Equal(t0) {
		t.Fatalf("expected clock back at start, got %v", got)
	}
	if r.Status().LastMetrics != nil {
		t.Fatal("expected last metrics cleared by reset")
	}
}

func TestRunner_StepRefusedWhileRunning(t *testing.T) {
	r, env := newTestRunner()
	if err := env.AddStrategy(context.Background(), sleeper{}); err != nil {
		t.Fatalf("add strategy: %v", err)
	}

	if err := r.Start(sandbox.RunOptions{Duration: time.Hour}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		_ = r.Stop()
		_, _ = r.Wait(context.Background())
	}()

	if err := r.Step(context.Background(), time.Time{}); err != domain.ErrSimulationRunning {
		t.Fatalf("expected ErrSimulationRunning, got %v", err)
	}
	if err := r.Reset(context.Background()); err != domain.ErrSimulationRunning {
		t.Fatalf("expected ErrSimulationRunning, got %v", err)
	}
}
