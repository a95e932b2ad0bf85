package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/sandbox"
	"github.com/efreitasn/tradesandbox/internal/service"
)

// SimulationHandler handles HTTP requests for simulation control and
// inspection endpoints.
type SimulationHandler struct {
	env    *sandbox.Environment
	runner *service.Runner
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(env *sandbox.Environment, runner *service.Runner) *SimulationHandler {
	return &SimulationHandler{env: env, runner: runner}
}

// runRequest is the JSON request body for POST /simulation/run. Both
// fields are optional; duration takes precedence.
type runRequest struct {
	Duration string `json:"duration"`
	Until    string `json:"until"`
}

// Run handles POST /simulation/run: starts a background run.
func (h *SimulationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var opts sandbox.RunOptions
	if r.ContentLength != 0 {
		var req runRequest
		if err := ParseJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if req.Duration != "" {
			d, err := time.ParseDuration(req.Duration)
			if err != nil || d <= 0 {
				WriteError(w, http.StatusBadRequest, "validation_error", "duration must be a positive Go duration string")
				return
			}
			opts.Duration = d
		}
		if req.Until != "" {
			until, err := time.Parse(time.RFC3339, req.Until)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "validation_error", "until must be a valid RFC 3339 timestamp")
				return
			}
			opts.Until = until
		}
	}

	if err := h.runner.Start(opts); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "running"})
}

// stepRequest is the JSON request body for POST /simulation/step.
type stepRequest struct {
	Timestamp string `json:"timestamp"`
}

// Step handles POST /simulation/step: executes exactly one tick.
func (h *SimulationHandler) Step(w http.ResponseWriter, r *http.Request) {
	var ts time.Time
	if r.ContentLength != 0 {
		var req stepRequest
		if err := ParseJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if req.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "validation_error", "timestamp must be a valid RFC 3339 timestamp")
				return
			}
			ts = parsed
		}
	}

	if err := h.runner.Step(r.Context(), ts); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"current_time": h.env.CurrentTime().Format(time.RFC3339),
	})
}

// Stop handles POST /simulation/stop.
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Stop(); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// Reset handles POST /simulation/reset.
func (h *SimulationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Reset(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// metricsResponse is the JSON representation of performance metrics.
type metricsResponse struct {
	Running         bool              `json:"running"`
	Start           string            `json:"start"`
	End             string            `json:"end"`
	DurationSeconds float64           `json:"duration_seconds"`
	InitialBalances map[string]string `json:"initial_balances"`
	FinalBalances   map[string]string `json:"final_balances"`
	TotalPnL        string            `json:"total_pnl"`
	TotalOrders     int               `json:"total_orders"`
	TotalFills      int               `json:"total_fills"`
	TotalVolume     string            `json:"total_volume"`
	ActiveOrders    int               `json:"active_orders"`
}

func balanceStrings(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for asset, amount := range in {
		out[asset] = amount.String()
	}
	return out
}

// Metrics handles GET /simulation/metrics.
func (h *SimulationHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m := h.env.Metrics()
	WriteJSON(w, http.StatusOK, metricsResponse{
		Running:         h.runner.Status().Running,
		Start:           m.Start.Format(time.RFC3339),
		End:             m.End.Format(time.RFC3339),
		DurationSeconds: m.DurationSeconds,
		InitialBalances: balanceStrings(m.InitialBalances),
		FinalBalances:   balanceStrings(m.FinalBalances),
		TotalPnL:        m.TotalPnL.String(),
		TotalOrders:     m.Orders.TotalOrders,
		TotalFills:      m.Orders.TotalFills,
		TotalVolume:     m.Orders.TotalVolume.String(),
		ActiveOrders:    m.Orders.ActiveOrders,
	})
}

// statisticsResponse aggregates order, slippage, and market-regime
// statistics.
type statisticsResponse struct {
	TotalOrders        int               `json:"total_orders"`
	TotalFills         int               `json:"total_fills"`
	PartialFills       int               `json:"partial_fills"`
	ActiveOrders       int               `json:"active_orders"`
	PendingOrders      int               `json:"pending_orders"`
	TotalVolume        string            `json:"total_volume"`
	AvgSlippageBps     string            `json:"avg_slippage_bps"`
	MaxSlippageBps     string            `json:"max_slippage_bps"`
	AvgMarketImpactBps string            `json:"avg_market_impact_bps"`
	MarketRegimes      map[string]string `json:"market_regimes,omitempty"`
}

// Statistics handles GET /simulation/statistics.
func (h *SimulationHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats := h.env.Statistics()
	slip := h.env.SlippageStatistics()

	regimes := make(map[string]string)
	for pair, regime := range h.env.MarketRegimes() {
		regimes[pair] = string(regime)
	}

	WriteJSON(w, http.StatusOK, statisticsResponse{
		TotalOrders:        stats.TotalOrders,
		TotalFills:         stats.TotalFills,
		PartialFills:       stats.PartialFills,
		ActiveOrders:       stats.ActiveOrders,
		PendingOrders:      stats.PendingOrders,
		TotalVolume:        stats.TotalVolume.String(),
		AvgSlippageBps:     slip.AvgSlippageBps.String(),
		MaxSlippageBps:     slip.MaxSlippageBps.String(),
		AvgMarketImpactBps: slip.AvgMarketImpactBps.String(),
		MarketRegimes:      regimes,
	})
}
