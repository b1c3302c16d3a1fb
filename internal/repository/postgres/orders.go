package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"brokercore/internal/domain/models"
	repositoryErrors "brokercore/internal/errors/repository"
	"brokercore/internal/repository/postgres/dto"
)

func (s *Store) SaveOrder(ctx context.Context, order models.Order) error {
	const op = "postgres.Store.SaveOrder"

	orderDTO := dto.OrderFromDomain(order)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, user_id, symbol, side, type, quantity, price, status, created_at, executed_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		orderDTO.ID,
		orderDTO.UserID,
		orderDTO.Symbol,
		orderDTO.Side,
		orderDTO.Type,
		orderDTO.Quantity,
		orderDTO.Price,
		orderDTO.Status,
		orderDTO.CreatedAt,
		orderDTO.ExecutedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderAlreadyExists)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "postgres.Store.GetOrder"

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, side, type, quantity, price, status, created_at, executed_at
		 FROM orders
		 WHERE id = $1
		 LIMIT 1`,
		id,
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: query: %w", op, err)
	}

	orderDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Order])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
		}

		return models.Order{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	return orderDTO.ToDomain(), nil
}

// CancelOrder flips a pending order to cancelled. It reports
// ErrStatusConflict when the order exists but is no longer pending.
func (s *Store) CancelOrder(ctx context.Context, id, userID uuid.UUID) error {
	const op = "postgres.Store.CancelOrder"

	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1
		 WHERE id = $2 AND user_id = $3 AND status = $4`,
		int16(models.StatusCancelled),
		id,
		userID,
		int16(models.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1 AND user_id = $2)`,
		id,
		userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: scan: %w", op, err)
	}

	if !exists {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}

	return fmt.Errorf("%s: %w", op, repositoryErrors.ErrStatusConflict)
}
