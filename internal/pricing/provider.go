// Package pricing resolves current instrument prices. The service only ever
// reads prices; nothing here writes back to the market-data source.
package pricing

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrNoPrice marks an instrument with no price on record.
var ErrNoPrice = errors.New("no price for symbol")

// Provider resolves the current price per share for a symbol.
type Provider interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// StaticProvider serves prices from a fixed table. Used in tests and local
// runs without a market-data backend.
type StaticProvider struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticProvider(prices map[string]decimal.Decimal) *StaticProvider {
	if prices == nil {
		prices = make(map[string]decimal.Decimal)
	}
	return &StaticProvider{prices: prices}
}

func (p *StaticProvider) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.RLock()
	price, found := p.prices[symbol]
	p.mu.RUnlock()

	if !found {
		return decimal.Zero, ErrNoPrice
	}

	return price, nil
}

func (p *StaticProvider) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}
