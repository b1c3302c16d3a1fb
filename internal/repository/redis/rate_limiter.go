// Package redis holds the redis-backed order rate limiter and price cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const orderRateLimitPrefix = "rate:order:place:"

// OrderRateLimiter counts order placements per user in a fixed window.
// INCR atomically bumps the counter; the TTL is set only on the first
// request so the window does not slide.
type OrderRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewOrderRateLimiter(client *redis.Client, limit int64, window time.Duration) *OrderRateLimiter {
	return &OrderRateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (r *OrderRateLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := orderRateLimitPrefix + userID.String()

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limiter incr: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("rate limiter expire: %w", err)
		}
	}

	return count <= r.limit, nil
}
