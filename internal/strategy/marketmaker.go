package strategy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/tradesandbox/internal/domain"
	"github.com/efreitasn/tradesandbox/internal/marketdata"
	"github.com/efreitasn/tradesandbox/internal/sandbox"
)

// NaiveMarketMaker keeps one resting bid and one resting ask around the
// mid price, re-quoting every tick. It carries no inventory management:
// a side that cannot be funded is simply skipped until it can.
type NaiveMarketMaker struct {
	tradingPair string
	// spread is the half-distance from mid to each quote, as a fraction
	// (0.01 = quote 1% away on each side).
	spread decimal.Decimal
	amount decimal.Decimal
	logger *slog.Logger

	sb    sandbox.Sandbox
	bidID string
	askID string
}

func NewNaiveMarketMaker(tradingPair string, spread, amount decimal.Decimal, logger *slog.Logger) *NaiveMarketMaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NaiveMarketMaker{
		tradingPair: tradingPair,
		spread:      spread,
		amount:      amount,
		logger:      logger,
	}
}

func (s *NaiveMarketMaker) Name() string {
	return "naive_market_maker"
}

func (s *NaiveMarketMaker) Initialize(_ context.Context, sb sandbox.Sandbox) error {
	s.sb = sb
	s.bidID = ""
	s.askID = ""
	return nil
}

func (s *NaiveMarketMaker) OnTick(_ context.Context, _ time.Time) error {
	mid := s.sb.Price(s.tradingPair, marketdata.PriceTypeMid)
	if mid.IsZero() {
		return nil
	}

	s.cancelQuote(&s.bidID)
	s.cancelQuote(&s.askID)

	one := decimal.NewFromInt(1)
	s.bidID = s.quote(domain.OrderSideBuy, mid.Mul(one.Sub(s.spread)))
	s.askID = s.quote(domain.OrderSideSell, mid.Mul(one.Add(s.spread)))
	return nil
}

// cancelQuote pulls a resting quote. An unknown id means the quote
// filled since the last tick, which is fine.
func (s *NaiveMarketMaker) cancelQuote(id *string) {
	if *id == "" {
		return
	}
	if err := s.sb.CancelOrder(*id); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		s.logger.Error("cancel quote failed",
			slog.String("order_id", *id),
			slog.String("error", err.Error()))
	}
	*id = ""
}

// quote places one side of the spread. An unfundable side is skipped.
func (s *NaiveMarketMaker) quote(side domain.OrderSide, price decimal.Decimal) string {
	id, err := s.sb.PlaceOrder(domain.OrderCandidate{
		TradingPair: s.tradingPair,
		Side:        side,
		Type:        domain.OrderTypeLimit,
		Amount:      s.amount,
		Price:       price,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			s.logger.Error("quote failed",
				slog.String("side", string(side)),
				slog.String("error", err.Error()))
		}
		return ""
	}
	return id
}

func (s *NaiveMarketMaker) OnOrderFilled(order *domain.Order) {
	switch order.ID {
	case s.bidID:
		s.bidID = ""
	case s.askID:
		s.askID = ""
	}
}

func (s *NaiveMarketMaker) OnBalanceUpdated(string, decimal.Decimal) {}

// Cleanup pulls any quotes still resting.
func (s *NaiveMarketMaker) Cleanup(context.Context) error {
	s.cancelQuote(&s.bidID)
	s.cancelQuote(&s.askID)
	return nil
}
