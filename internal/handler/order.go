package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	env *sandbox.Environment
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(env *sandbox.Environment) *OrderHandler {
	return &OrderHandler{env: env}
}

// placeOrderRequest is the JSON request body for POST /orders. Amount
// and price are decimal strings; price is required for limit orders and
// ignored for market orders.
type placeOrderRequest struct {
	TradingPair string `json:"trading_pair"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Price       string `json:"price"`
}

// orderResponse is the JSON representation of an order.
type orderResponse struct {
	OrderID      string `json:"order_id"`
	TradingPair  string `json:"trading_pair"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Price        string `json:"price,omitempty"`
	Status       string `json:"status"`
	FilledAmount string `json:"filled_amount"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:      o.ID,
		TradingPair:  o.TradingPair,
		Side:         string(o.Side),
		Type:         string(o.Type),
		Amount:       o.Amount.String(),
		Status:       string(o.Status),
		FilledAmount: o.FilledAmount.String(),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    o.UpdatedAt.Format(time.RFC3339),
	}
	if !o.Price.IsZero() {
		resp.Price = o.Price.String()
	}
	return resp
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	candidate, err := buildCandidate(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id, err := h.env.PlaceOrder(candidate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	order, err := h.env.Order(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

func buildCandidate(req placeOrderRequest) (domain.OrderCandidate, error) {
	switch domain.OrderSide(req.Side) {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return domain.OrderCandidate{}, &domain.ValidationError{Message: "side must be buy or sell"}
	}
	orderType := domain.OrderType(req.Type)
	switch orderType {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeLimitMaker:
	default:
		return domain.OrderCandidate{}, &domain.ValidationError{Message: "type must be market, limit, or limit_maker"}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return domain.OrderCandidate{}, &domain.ValidationError{Message: "amount must be a positive decimal string"}
	}

	price := decimal.Decimal{}
	if orderType != domain.OrderTypeMarket {
		price, err = decimal.NewFromString(req.Price)
		if err != nil || !price.IsPositive() {
			return domain.OrderCandidate{}, &domain.ValidationError{Message: "price must be a positive decimal string for limit orders"}
		}
	}

	return domain.OrderCandidate{
		TradingPair: req.TradingPair,
		Side:        domain.OrderSide(req.Side),
		Type:        orderType,
		Amount:      amount,
		Price:       price,
	}, nil
}

// ListOpen handles GET /orders, optionally filtered by ?trading_pair=.
func (h *OrderHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("trading_pair")
	open := h.env.OpenOrders(pair)

	orders := make([]orderResponse, 0, len(open))
	for _, o := range open {
		orders = append(orders, buildOrderResponse(o))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.env.Order(chi.URLParam(r, "order_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	if err := h.env.CancelOrder(orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"order_id": orderID,
		"status":   string(domain.OrderStatusCancelled),
	})
}
