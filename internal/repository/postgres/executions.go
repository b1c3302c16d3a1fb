package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"brokercore/internal/domain/models"
	repositoryErrors "brokercore/internal/errors/repository"
	"brokercore/internal/repository/postgres/dto"
)

// ApplyExecution writes one completed order's full effect (order row,
// holding state, cash balance, transaction record) in a single database
// transaction. Either everything lands or nothing does.
func (s *Store) ApplyExecution(ctx context.Context, execution models.Execution) error {
	const op = "postgres.Store.ApplyExecution"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := insertOrder(ctx, tx, execution.Order); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if execution.CloseHolding {
		if err := deleteHolding(ctx, tx, execution.Order.UserID, execution.Order.Symbol); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	} else {
		if err := upsertHolding(ctx, tx, execution.Holding); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := setCashBalance(ctx, tx, execution.Order.UserID, execution); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := insertTransaction(ctx, tx, execution.Transaction); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, order models.Order) error {
	orderDTO := dto.OrderFromDomain(order)

	_, err := tx.Exec(ctx,
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
			return repositoryErrors.ErrOrderAlreadyExists
		}

		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func upsertHolding(ctx context.Context, tx pgx.Tx, holding models.Holding) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO holdings (user_id, symbol, quantity, avg_cost, updated_at)
         VALUES ($1, $2, $3, $4, now())
         ON CONFLICT (user_id, symbol)
         DO UPDATE SET quantity   = EXCLUDED.quantity,
                       avg_cost   = EXCLUDED.avg_cost,
                       updated_at = now()`,
		holding.UserID,
		holding.Symbol,
		holding.Quantity,
		holding.AvgCost,
	)
	if err != nil {
		return fmt.Errorf("upsert holding: %w", err)
	}

	return nil
}

func deleteHolding(ctx context.Context, tx pgx.Tx, userID uuid.UUID, symbol string) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`,
		userID,
		symbol,
	)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}

	return nil
}

func setCashBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, execution models.Execution) error {
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET cash_balance = $1, updated_at = now() WHERE user_id = $2`,
		execution.CashBalance,
		userID,
	)
	if err != nil {
		return fmt.Errorf("update cash balance: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repositoryErrors.ErrAccountNotFound
	}

	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, transaction models.Transaction) error {
	transactionDTO := dto.TransactionFromDomain(transaction)

	_, err := tx.Exec(ctx,
		`INSERT INTO transactions
             (id, order_id, user_id, symbol, side, quantity, price, total_amount, realized_pl, avg_cost_at_sale, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		transactionDTO.ID,
		transactionDTO.OrderID,
		transactionDTO.UserID,
		transactionDTO.Symbol,
		transactionDTO.Side,
		transactionDTO.Quantity,
		transactionDTO.Price,
		transactionDTO.TotalAmount,
		transactionDTO.RealizedPL,
		transactionDTO.AvgCostAtSale,
		transactionDTO.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return repositoryErrors.ErrDuplicateExecution
		}

		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	const op = "postgres.Store.ListTransactions"

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, user_id, symbol, side, quantity, price, total_amount, realized_pl, avg_cost_at_sale, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	transactionDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Transaction])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	transactions := make([]models.Transaction, 0, len(transactionDTOs))
	for _, t := range transactionDTOs {
		transactions = append(transactions, t.ToDomain())
	}

	return transactions, nil
}
