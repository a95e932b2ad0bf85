package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradesandbox/internal/marketdata"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

// MarketHandler handles HTTP requests for market data endpoints.
type MarketHandler struct {
	env *sandbox.Environment
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(env *sandbox.Environment) *MarketHandler {
	return &MarketHandler{env: env}
}

// ListPairs handles GET /markets.
func (h *MarketHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"trading_pairs": h.env.TradingPairs(),
	})
}

// levelResponse is one book level; amounts are decimal strings.
type levelResponse struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// bookResponse is the JSON representation of an order book snapshot.
type bookResponse struct {
	TradingPair string          `json:"trading_pair"`
	Bids        []levelResponse `json:"bids"`
	Asks        []levelResponse `json:"asks"`
	Timestamp   string          `json:"timestamp"`
}

func buildLevels(levels []marketdata.Level) []levelResponse {
	out := make([]levelResponse, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, levelResponse{
			Price:  lvl.Price.String(),
			Amount: lvl.Amount.String(),
		})
	}
	return out
}

// GetBook handles GET /markets/{pair}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	pair := chi.URLParam(r, "pair")
	book := h.env.Book(pair)
	if book == nil {
		WriteError(w, http.StatusNotFound, "pair_not_found", "No order book for that trading pair")
		return
	}
	WriteJSON(w, http.StatusOK, bookResponse{
		TradingPair: book.TradingPair(),
		Bids:        buildLevels(book.Bids()),
		Asks:        buildLevels(book.Asks()),
		Timestamp:   book.Timestamp().Format(time.RFC3339),
	})
}

// GetPrice handles GET /markets/{pair}/price?type=bid|ask|mid. A zero
// price means no data, matching the store's sentinel convention.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	pair := chi.URLParam(r, "pair")

	priceType := marketdata.PriceType(r.URL.Query().Get("type"))
	switch priceType {
	case marketdata.PriceTypeBid, marketdata.PriceTypeAsk, marketdata.PriceTypeMid:
	case "":
		priceType = marketdata.PriceTypeMid
	default:
		WriteError(w, http.StatusBadRequest, "validation_error", "type must be bid, ask, or mid")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"trading_pair": pair,
		"type":         string(priceType),
		"price":        h.env.Price(pair, priceType).String(),
	})
}
