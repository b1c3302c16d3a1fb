//go:build integration

// Package suite boots a throwaway postgres container and wires the real
// store and execution service against it.
package suite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	pgContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"brokercore/internal/infra/db"
	"brokercore/internal/logger"
	"brokercore/internal/metrics"
	"brokercore/internal/pricing"
	repoPostgres "brokercore/internal/repository/postgres"
	"brokercore/internal/service/execution"
	"brokercore/migrations"
)

const (
	dbUser     = "test_user"
	dbPassword = "test_password"
	dbName     = "brokercore_test_db"

	executeTimeout = 5 * time.Second
	longTimeout    = 2 * time.Minute
	startupTimeout = 30 * time.Second
)

type Suite struct {
	Test    *testing.T
	Service *execution.Service
	Store   *repoPostgres.Store
	Prices  *pricing.StaticProvider
	Pool    *pgxpool.Pool
}

func New(test *testing.T) (context.Context, *Suite) {
	test.Helper()

	logger.SetNop()

	ctx, cancel := context.WithTimeout(context.Background(), longTimeout)
	test.Cleanup(cancel)

	container, err := pgContainer.Run(ctx,
		"postgres:17.0-alpine3.20",
		pgContainer.WithDatabase(dbName),
		pgContainer.WithUsername(dbUser),
		pgContainer.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		test.Fatalf("failed to start postgres container: %v", err)
	}
	test.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			test.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connection, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		test.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := db.Setup(ctx, connection, migrations.Migrations)
	if err != nil {
		test.Fatalf("failed to set up database: %v", err)
	}
	test.Cleanup(pool.Close)

	prices := pricing.NewStaticProvider(map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("150"),
		"MSFT": decimal.RequireFromString("300"),
	})

	store := repoPostgres.NewStore(pool)
	service := execution.New(store, prices, nil, nil, metrics.NewNop(), executeTimeout)

	return ctx, &Suite{
		Test:    test,
		Service: service,
		Store:   store,
		Prices:  prices,
		Pool:    pool,
	}
}

// NewFundedUser creates an account with the given balance and returns its id.
func (s *Suite) NewFundedUser(ctx context.Context, cash string) uuid.UUID {
	s.Test.Helper()

	userID := uuid.New()
	if _, err := s.Store.Deposit(ctx, userID, decimal.RequireFromString(cash)); err != nil {
		s.Test.Fatalf("failed to fund user: %v", err)
	}

	return userID
}

func (s *Suite) CountRows(ctx context.Context, table string) int {
	s.Test.Helper()

	var count int
	if err := s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		s.Test.Fatalf("failed to count %s: %v", table, err)
	}

	return count
}
