package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"brokercore/internal/domain/models"
	repositoryErrors "brokercore/internal/errors/repository"
	serviceErrors "brokercore/internal/errors/service"
	"brokercore/internal/pricing"
)

// resolution is the validated, fully resolved form of a market order:
// a concrete share quantity, the execution price, the caller's current
// cash balance, and (for sells) the pre-trade holding.
type resolution struct {
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Cash     decimal.Decimal
	Holding  *models.Holding
}

// checkSizing validates the quantity/amount pair before any backend call.
// Exactly one of the two must be set, and it must be positive.
func checkSizing(quantity, amount decimal.Decimal) error {
	quantitySet := !quantity.IsZero()
	amountSet := !amount.IsZero()

	switch {
	case quantitySet && amountSet:
		return fmt.Errorf("%w: quantity and amount are mutually exclusive", serviceErrors.ErrInvalidQuantity)
	case quantitySet:
		if quantity.IsNegative() {
			return serviceErrors.ErrInvalidQuantity
		}
	case amountSet:
		if amount.IsNegative() {
			return serviceErrors.ErrInvalidAmount
		}
	default:
		return fmt.Errorf("%w: quantity or amount required", serviceErrors.ErrInvalidQuantity)
	}

	return nil
}

// resolve turns a sized request into a resolution. It must run under the
// (user, symbol) lock: the balances it reads are the ones the ledger
// mutation will be computed from.
func (s *Service) resolve(ctx context.Context, req PlaceOrderRequest) (resolution, error) {
	price, err := s.prices.CurrentPrice(ctx, req.Symbol)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrNoPrice):
			return resolution{}, fmt.Errorf("%w: %s", serviceErrors.ErrPriceUnavailable, req.Symbol)
		default:
			return resolution{}, mapBackendError(err)
		}
	}
	if !price.IsPositive() {
		return resolution{}, fmt.Errorf("%w: %s", serviceErrors.ErrPriceUnavailable, req.Symbol)
	}

	quantity := req.Quantity
	if quantity.IsZero() {
		quantity = req.Amount.Div(price).Round(quantityPrecision)
		if !quantity.IsPositive() {
			return resolution{}, fmt.Errorf("%w: amount %s buys no shares at %s",
				serviceErrors.ErrInvalidQuantity, req.Amount, price)
		}
	}

	cash, err := s.store.GetCashBalance(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrAccountNotFound) {
			return resolution{}, serviceErrors.ErrAccountNotFound
		}
		return resolution{}, mapBackendError(err)
	}

	res := resolution{
		Quantity: quantity,
		Price:    price,
		Cash:     cash,
	}

	switch req.Side {
	case models.SideBuy:
		cost := quantity.Mul(price)
		if cost.Sub(cash).GreaterThan(epsilon) {
			return resolution{}, fmt.Errorf("%w: need %s, have %s",
				serviceErrors.ErrInsufficientFunds, cost, cash)
		}

		// An existing position feeds the weighted-average cost.
		holding, err := s.store.GetHolding(ctx, req.UserID, req.Symbol)
		switch {
		case err == nil:
			res.Holding = &holding
		case errors.Is(err, repositoryErrors.ErrHoldingNotFound):
			// First lot in this symbol.
		default:
			return resolution{}, mapBackendError(err)
		}
	case models.SideSell:
		holding, err := s.store.GetHolding(ctx, req.UserID, req.Symbol)
		if err != nil {
			if errors.Is(err, repositoryErrors.ErrHoldingNotFound) {
				return resolution{}, fmt.Errorf("%w: %s", serviceErrors.ErrNoPosition, req.Symbol)
			}
			return resolution{}, mapBackendError(err)
		}
		if quantity.Sub(holding.Quantity).GreaterThan(epsilon) {
			return resolution{}, fmt.Errorf("%w: want %s, hold %s",
				serviceErrors.ErrInsufficientShares, quantity, holding.Quantity)
		}
		res.Holding = &holding
	}

	return res, nil
}

// mapBackendError translates infrastructure failures into the service error
// taxonomy. Deadline overruns become ErrBackendTimeout; an open price
// breaker becomes ErrBackendUnavailable.
func mapBackendError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", serviceErrors.ErrBackendTimeout, err)
	case errors.Is(err, pricing.ErrBreakerOpen):
		return fmt.Errorf("%w: %w", serviceErrors.ErrBackendUnavailable, err)
	default:
		return err
	}
}
