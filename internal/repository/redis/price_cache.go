package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	repositoryErrors "brokercore/internal/errors/repository"
)

const priceCachePrefix = "price:"

// PriceCache keeps last-known instrument prices with a TTL so bursts of
// orders for the same symbol do not hammer the market-data provider.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *PriceCache) Get(ctx context.Context, symbol string) (decimal.Decimal, error) {
	value, err := c.client.Get(ctx, priceCachePrefix+symbol).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, fmt.Errorf("price cache get: %w", repositoryErrors.ErrPriceCacheMiss)
		}

		return decimal.Zero, fmt.Errorf("price cache get: %w", err)
	}

	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price cache parse %q: %w", value, err)
	}

	return price, nil
}

func (c *PriceCache) Set(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := c.client.Set(ctx, priceCachePrefix+symbol, price.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("price cache set: %w", err)
	}

	return nil
}
