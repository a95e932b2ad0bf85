// Package service coordinates simulation runs: one background run at a
// time, with stop/step/reset control and access to the last result.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

// Status describes the runner for inspection endpoints.
type Status struct {
	Running     bool
	CurrentTime time.Time
	LastMetrics *sandbox.Metrics
	LastError   error
}

// Runner owns background execution of the environment's run loop.
type Runner struct {
	env    *sandbox.Environment
	logger *slog.Logger

	mu          sync.Mutex
	running     bool
	done        chan struct{}
	lastMetrics *sandbox.Metrics
	lastErr     error
}

// NewRunner creates a Runner over an environment.
func NewRunner(env *sandbox.Environment, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{env: env, logger: logger}
}

// Start launches a run in the background. It returns
// domain.ErrSimulationRunning when a run is already in flight.
func (r *Runner) Start(opts sandbox.RunOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return domain.ErrSimulationRunning
	}

	r.running = true
	done := make(chan struct{})
	r.done = done

	go func() {
		metrics, err := r.env.Run(context.Background(), opts)
		if err != nil {
			r.logger.Error("simulation run failed", slog.String("error", err.Error()))
		}
		r.mu.Lock()
		r.running = false
		r.lastMetrics = &metrics
		r.lastErr = err
		r.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop requests the in-flight run to halt. It returns
// domain.ErrNotRunning when nothing is running.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return domain.ErrNotRunning
	}
	r.env.Stop()
	return nil
}

// Wait blocks until the current run finishes (or the context is done)
// and returns its metrics. With no run started it returns
// domain.ErrNotRunning.
func (r *Runner) Wait(ctx context.Context) (sandbox.Metrics, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return sandbox.Metrics{}, domain.ErrNotRunning
	}

	select {
	case <-done:
	case <-ctx.Done():
		return sandbox.Metrics{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.lastMetrics, r.lastErr
}

// Step executes one simulation step. Refused while a run is in flight.
func (r *Runner) Step(ctx context.Context, timestamp time.Time) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return domain.ErrSimulationRunning
	}
	r.mu.Unlock()
	return r.env.Step(ctx, timestamp)
}

// Reset resets the environment. Refused while a run is in flight.
func (r *Runner) Reset(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return domain.ErrSimulationRunning
	}
	r.lastMetrics = nil
	r.lastErr = nil
	r.mu.Unlock()
	return r.env.Reset(ctx)
}

// Status returns the runner state and the last run's result, if any.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Running:     r.running,
		CurrentTime: r.env.CurrentTime(),
		LastMetrics: r.lastMetrics,
		LastError:   r.lastErr,
	}
}
