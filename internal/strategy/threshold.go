// Package strategy ships example strategies used by the demo binary and
// as templates for writing real ones against the sandbox interfaces.
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

// ThresholdBuyer market-buys a fixed amount whenever the mid price is at
// or below a threshold, up to a maximum number of buys.
type ThresholdBuyer struct {
	tradingPair string
	threshold   decimal.Decimal
	amount      decimal.Decimal
	maxBuys     int
	logger      *slog.Logger

	sb   sandbox.Sandbox
	buys int
}

func NewThresholdBuyer(tradingPair string, threshold, amount decimal.Decimal, maxBuys int, logger *slog.Logger) *ThresholdBuyer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdBuyer{
		tradingPair: tradingPair,
		threshold:   threshold,
		amount:      amount,
		maxBuys:     maxBuys,
		logger:      logger,
	}
}

func (s *ThresholdBuyer) Name() string {
	return "threshold_buyer"
}

func (s *ThresholdBuyer) Initialize(_ context.Context, sb sandbox.Sandbox) error {
	s.sb = sb
	s.buys = 0
	return nil
}

func (s *ThresholdBuyer) OnTick(_ context.Context, _ time.Time) error {
	if s.buys >= s.maxBuys {
		return nil
	}
	mid := s.sb.Price(s.tradingPair, marketdata.PriceTypeMid)
	if mid.IsZero() || mid.GreaterThan(s.threshold) {
		return nil
	}

	_, err := s.sb.PlaceOrder(domain.OrderCandidate{
		TradingPair: s.tradingPair,
		Side:        domain.OrderSideBuy,
		Type:        domain.OrderTypeMarket,
		Amount:      s.amount,
	})
	if errors.Is(err, domain.ErrInsufficientBalance) {
		// Out of funds is an expected end state, not a strategy fault.
		s.logger.Debug("threshold buyer out of funds",
			slog.String("trading_pair", s.tradingPair))
		return nil
	}
	if err != nil {
		return err
	}
	s.buys++
	return nil
}

func (s *ThresholdBuyer) OnOrderFilled(order *domain.Order) {
	if order.TradingPair != s.tradingPair {
		return
	}
	s.logger.Info("threshold buy filled",
		slog.String("order_id", order.ID),
		slog.String("amount", order.FilledAmount.String()))
}

func (s *ThresholdBuyer) OnBalanceUpdated(string, decimal.Decimal) {}

func (s *ThresholdBuyer) Cleanup(context.Context) error {
	return nil
}
