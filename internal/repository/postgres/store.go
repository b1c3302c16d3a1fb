// Package postgres implements the durable stores on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"brokercore/internal/domain/models"
	repositoryErrors "brokercore/internal/errors/repository"
	"brokercore/internal/repository/postgres/dto"
)

const uniqueViolationCode = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func (s *Store) GetCashBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	const op = "postgres.Store.GetCashBalance"

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT cash_balance FROM accounts WHERE user_id = $1`,
		userID,
	).Scan(&balance)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
		}

		return decimal.Zero, fmt.Errorf("%s: scan: %w", op, err)
	}

	return balance, nil
}

// Deposit credits the account, creating it on first use, and returns the new
// balance.
func (s *Store) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "postgres.Store.Deposit"

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, cash_balance)
         VALUES ($1, $2)
         ON CONFLICT (user_id)
         DO UPDATE SET cash_balance = accounts.cash_balance + EXCLUDED.cash_balance,
                       updated_at   = now()
         RETURNING cash_balance`,
		userID,
		amount,
	).Scan(&balance)

	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: scan: %w", op, err)
	}

	return balance, nil
}

func (s *Store) GetHolding(ctx context.Context, userID uuid.UUID, symbol string) (models.Holding, error) {
	const op = "postgres.Store.GetHolding"

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity, avg_cost, updated_at
		 FROM holdings
		 WHERE user_id = $1 AND symbol = $2
		 LIMIT 1`,
		userID,
		symbol,
	)
	if err != nil {
		return models.Holding{}, fmt.Errorf("%s: query: %w", op, err)
	}

	holdingDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Holding])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Holding{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrHoldingNotFound)
		}

		return models.Holding{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	return holdingDTO.ToDomain(), nil
}

func (s *Store) ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error) {
	const op = "postgres.Store.ListHoldings"

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity, avg_cost, updated_at
		 FROM holdings
		 WHERE user_id = $1
		 ORDER BY symbol`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	holdingDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Holding])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	holdings := make([]models.Holding, 0, len(holdingDTOs))
	for _, h := range holdingDTOs {
		holdings = append(holdings, h.ToDomain())
	}

	return holdings, nil
}

func isDuplicateKey(err error) bool {
	var postgresErr *pgconn.PgError

	if errors.As(err, &postgresErr) {
		return postgresErr.Code == uniqueViolationCode
	}

	return false
}
