package pricing

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokercore/internal/logger"
)

// Cache is the read-through price cache surface. The redis implementation
// lives in internal/repository/redis.
type Cache interface {
	Get(ctx context.Context, symbol string) (decimal.Decimal, error)
	Set(ctx context.Context, symbol string, price decimal.Decimal) error
}

// CachedProvider serves prices from the cache and falls back to the inner
// provider on a miss. Cache failures degrade to a direct fetch; they never
// fail the lookup.
type CachedProvider struct {
	inner Provider
	cache Cache
}

func NewCachedProvider(inner Provider, cache Cache) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache,
	}
}

func (p *CachedProvider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, err := p.cache.Get(ctx, symbol); err == nil {
		return price, nil
	}

	price, err := p.inner.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := p.cache.Set(ctx, symbol, price); err != nil {
		logger.Warn(ctx, "price cache write failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	return price, nil
}
