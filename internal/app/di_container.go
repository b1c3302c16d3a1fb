package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"brokercore/internal/config"
	"brokercore/internal/httpapi"
	"brokercore/internal/metrics"
	"brokercore/internal/pricing"
	repoPostgres "brokercore/internal/repository/postgres"
	repoRedis "brokercore/internal/repository/redis"
	"brokercore/internal/service/execution"
)

// DiContainer builds the object graph lazily. Each accessor constructs its
// dependency once and memoizes it.
type DiContainer struct {
	cfg *config.Config

	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	publisher   execution.Publisher

	store         *repoPostgres.Store
	priceProvider pricing.Provider
	rateLimiter   execution.RateLimiter
	serviceMetric *metrics.Metrics
	service       *execution.Service
	httpServer    *httpapi.Server
}

func NewDiContainer(cfg *config.Config, dbPool *pgxpool.Pool, redisClient *redis.Client, publisher execution.Publisher) *DiContainer {
	if dbPool == nil {
		panic("dbPool is nil")
	}

	return &DiContainer{
		cfg:         cfg,
		dbPool:      dbPool,
		redisClient: redisClient,
		publisher:   publisher,
	}
}

func (d *DiContainer) Store(_ context.Context) *repoPostgres.Store {
	if d.store == nil {
		d.store = repoPostgres.NewStore(d.dbPool)
	}

	return d.store
}

// PriceProvider is the yahoo source behind a circuit breaker, with a redis
// read-through cache when redis is enabled.
func (d *DiContainer) PriceProvider() pricing.Provider {
	if d.priceProvider == nil {
		var provider pricing.Provider = pricing.NewYahooProvider(d.cfg.Price.BaseURL, d.cfg.Price.Timeout)
		provider = pricing.NewBreakerProvider(provider, d.cfg.CircuitBreaker)

		if d.redisClient != nil {
			cache := repoRedis.NewPriceCache(d.redisClient, d.cfg.Price.CacheTTL)
			provider = pricing.NewCachedProvider(provider, cache)
		}

		d.priceProvider = provider
	}

	return d.priceProvider
}

func (d *DiContainer) RateLimiter() execution.RateLimiter {
	if d.redisClient == nil {
		return nil
	}
	if d.rateLimiter == nil {
		d.rateLimiter = repoRedis.NewOrderRateLimiter(
			d.redisClient,
			d.cfg.RateLimit.Limit,
			d.cfg.RateLimit.Window,
		)
	}

	return d.rateLimiter
}

func (d *DiContainer) Metrics() *metrics.Metrics {
	if d.serviceMetric == nil {
		d.serviceMetric = metrics.New(prometheus.DefaultRegisterer)
	}

	return d.serviceMetric
}

func (d *DiContainer) ExecutionService(ctx context.Context) *execution.Service {
	if d.service == nil {
		d.service = execution.New(
			d.Store(ctx),
			d.PriceProvider(),
			d.RateLimiter(),
			d.publisher,
			d.Metrics(),
			d.cfg.ExecuteTimeout,
		)
	}

	return d.service
}

func (d *DiContainer) HTTPServer(ctx context.Context) *httpapi.Server {
	if d.httpServer == nil {
		d.httpServer = httpapi.New(
			d.ExecutionService(ctx),
			[]byte(d.cfg.Auth.JWTSecret),
			promhttp.Handler(),
		)
	}

	return d.httpServer
}
