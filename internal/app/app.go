// Package app assembles the process: configuration, logging, storage,
// redis, kafka, the execution service and the HTTP server, with shutdown
// handled by the closer in reverse construction order.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"brokercore/internal/closer"
	"brokercore/internal/config"
	"brokercore/internal/events"
	"brokercore/internal/infra/db"
	"brokercore/internal/logger"
	"brokercore/internal/service/execution"
	"brokercore/migrations"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type App struct {
	cfg *config.Config
	di  *DiContainer

	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	publisher   *events.KafkaPublisher

	httpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	steps := []func(context.Context) error{
		app.initLogger,
		app.initCloser,
		app.initDatabase,
		app.initRedis,
		app.initKafka,
		app.initHTTPServer,
	}

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}

	return app, nil
}

func (app *App) initLogger(_ context.Context) error {
	if err := logger.Init(app.cfg.LogLevel, app.cfg.LogFormat == "json"); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	closer.SetLogger(logger.With())
	closer.AddNamed("logger", func(context.Context) error {
		return logger.Sync()
	})

	return nil
}

func (app *App) initCloser(_ context.Context) error {
	closer.Configure(syscall.SIGINT, syscall.SIGTERM)
	return nil
}

func (app *App) initDatabase(ctx context.Context) error {
	pool, err := db.Setup(ctx, app.cfg.DBURI, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	app.dbPool = pool

	closer.AddNamed("postgres pool", func(context.Context) error {
		pool.Close()
		return nil
	})

	return nil
}

func (app *App) initRedis(ctx context.Context) error {
	if !app.cfg.Redis.Enabled {
		logger.Info(ctx, "redis disabled, running without rate limiter and price cache")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.cfg.Redis.Addr,
		Password: app.cfg.Redis.Password,
		DB:       app.cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", app.cfg.Redis.Addr, err)
	}
	app.redisClient = client

	closer.AddNamed("redis client", func(context.Context) error {
		return client.Close()
	})

	return nil
}

func (app *App) initKafka(ctx context.Context) error {
	if !app.cfg.Kafka.Enabled {
		logger.Info(ctx, "kafka disabled, execution events will not be published")
		return nil
	}

	publisher, err := events.NewKafkaPublisher(app.cfg.Kafka.Brokers, app.cfg.Kafka.Topic)
	if err != nil {
		return fmt.Errorf("create kafka publisher: %w", err)
	}
	app.publisher = publisher

	closer.AddNamed("kafka publisher", func(context.Context) error {
		return publisher.Close()
	})

	return nil
}

func (app *App) initHTTPServer(ctx context.Context) error {
	app.di = NewDiContainer(app.cfg, app.dbPool, app.redisClient, app.eventPublisher())

	app.httpServer = &http.Server{
		Addr:              app.cfg.HTTPAddress,
		Handler:           app.di.HTTPServer(ctx).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	closer.AddNamed("http server", func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return app.httpServer.Shutdown(shutdownCtx)
	})

	return nil
}

// eventPublisher avoids handing the container a typed nil interface when
// kafka is disabled.
func (app *App) eventPublisher() execution.Publisher {
	if app.publisher == nil {
		return nil
	}

	return app.publisher
}

// Run serves HTTP until shutdown. It blocks until the listener closes.
func (app *App) Run(ctx context.Context) error {
	logger.Info(ctx, "server listening", zap.String("address", app.cfg.HTTPAddress))

	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}

	return nil
}
