package handler

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

// BalanceHandler handles HTTP requests for balance endpoints.
type BalanceHandler struct {
	env *sandbox.Environment
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(env *sandbox.Environment) *BalanceHandler {
	return &BalanceHandler{env: env}
}

// balanceResponse is one asset's balance breakdown. Amounts are decimal
// strings.
type balanceResponse struct {
	Asset     string `json:"asset"`
	Total     string `json:"total"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

func (h *BalanceHandler) balance(asset string) balanceResponse {
	return balanceResponse{
		Asset:     asset,
		Total:     h.env.Balance(asset).String(),
		Available: h.env.AvailableBalance(asset).String(),
		Locked:    h.env.LockedBalance(asset).String(),
	}
}

// List handles GET /balances.
func (h *BalanceHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.env.AllBalances()
	assets := make([]string, 0, len(all))
	for asset := range all {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	balances := make([]balanceResponse, 0, len(assets))
	for _, asset := range assets {
		balances = append(balances, h.balance(asset))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

// Get handles GET /balances/{asset}. Unknown assets report zero, as in
// the ledger itself.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	WriteJSON(w, http.StatusOK, h.balance(asset))
}
