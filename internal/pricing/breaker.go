package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"brokercore/internal/config"
)

// BreakerProvider wraps a Provider with a circuit breaker so a failing
// market-data backend sheds load instead of stalling every order.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
}

// ErrBreakerOpen marks a lookup rejected because the breaker is open.
var ErrBreakerOpen = errors.New("price lookup breaker open")

func NewBreakerProvider(inner Provider, cfg config.CircuitBreakerConfig) *BreakerProvider {
	breaker := gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
		Name:        "priceProvider",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A missing price is an answer, not a backend failure.
			return err == nil || errors.Is(err, ErrNoPrice)
		},
	})

	return &BreakerProvider{
		inner:   inner,
		breaker: breaker,
	}
}

func (p *BreakerProvider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := p.breaker.Execute(func() (decimal.Decimal, error) {
		return p.inner.CurrentPrice(ctx, symbol)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return decimal.Zero, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
		}

		return decimal.Zero, err
	}

	return price, nil
}
