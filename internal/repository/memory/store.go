// Package memory implements the stores on plain maps. It backs unit tests
// and local runs without postgres. Unlike the postgres store it has no
// multi-write transaction, so ApplyExecution applies its writes in a fixed
// order (order, holding, cash, transaction) and reports
// ErrPartialApplication when a later write fails after an earlier one
// succeeded.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brokercore/internal/domain/models"
	repositoryErrors "brokercore/internal/errors/repository"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]decimal.Decimal
	holdings     map[uuid.UUID]map[string]models.Holding
	orders       map[uuid.UUID]models.Order
	transactions map[uuid.UUID]models.Transaction // keyed by order id
	history      []models.Transaction

	// cashWriteErr, when set, fails the next cash write. Test hook for the
	// partial-application path.
	cashWriteErr error
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]decimal.Decimal),
		holdings:     make(map[uuid.UUID]map[string]models.Holding),
		orders:       make(map[uuid.UUID]models.Order, 1024),
		transactions: make(map[uuid.UUID]models.Transaction, 1024),
	}
}

// FailNextCashWrite makes the next execution fail between the holding write
// and the cash write.
func (s *Store) FailNextCashWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashWriteErr = err
}

func (s *Store) GetCashBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	const op = "memory.Store.GetCashBalance"

	if err := ctx.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	balance, found := s.accounts[userID]
	s.mu.RUnlock()

	if !found {
		return decimal.Zero, fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}

	return balance, nil
}

func (s *Store) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "memory.Store.Deposit"

	if err := ctx.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.accounts[userID].Add(amount)
	s.accounts[userID] = balance

	return balance, nil
}

func (s *Store) GetHolding(ctx context.Context, userID uuid.UUID, symbol string) (models.Holding, error) {
	const op = "memory.Store.GetHolding"

	if err := ctx.Err(); err != nil {
		return models.Holding{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	holding, found := s.holdings[userID][symbol]
	s.mu.RUnlock()

	if !found {
		return models.Holding{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrHoldingNotFound)
	}

	return holding, nil
}

func (s *Store) ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error) {
	const op = "memory.Store.ListHoldings"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	holdings := make([]models.Holding, 0, len(s.holdings[userID]))
	for _, holding := range s.holdings[userID] {
		holdings = append(holdings, holding)
	}

	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Symbol < holdings[j].Symbol
	})

	return holdings, nil
}

func (s *Store) SaveOrder(ctx context.Context, order models.Order) error {
	const op = "memory.Store.SaveOrder"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.orders[order.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderAlreadyExists)
	}

	s.orders[order.ID] = order
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "memory.Store.GetOrder"

	if err := ctx.Err(); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	order, found := s.orders[id]
	s.mu.RUnlock()

	if !found {
		return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}

	return order, nil
}

func (s *Store) CancelOrder(ctx context.Context, id, userID uuid.UUID) error {
	const op = "memory.Store.CancelOrder"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, found := s.orders[id]
	if !found || order.UserID != userID {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}

	if order.Status != models.StatusPending {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrStatusConflict)
	}

	order.Status = models.StatusCancelled
	s.orders[id] = order
	return nil
}

func (s *Store) ApplyExecution(ctx context.Context, execution models.Execution) error {
	const op = "memory.Store.ApplyExecution"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order := execution.Order

	if _, found := s.orders[order.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderAlreadyExists)
	}
	if _, found := s.transactions[order.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrDuplicateExecution)
	}

	// First write. Failures past this point are partial applications.
	s.orders[order.ID] = order

	if execution.CloseHolding {
		delete(s.holdings[order.UserID], order.Symbol)
	} else {
		if s.holdings[order.UserID] == nil {
			s.holdings[order.UserID] = make(map[string]models.Holding)
		}
		s.holdings[order.UserID][order.Symbol] = execution.Holding
	}

	if s.cashWriteErr != nil {
		err := s.cashWriteErr
		s.cashWriteErr = nil
		return fmt.Errorf("%s: %w: cash write: %w", op, repositoryErrors.ErrPartialApplication, err)
	}
	if _, found := s.accounts[order.UserID]; !found {
		return fmt.Errorf("%s: %w: %w", op, repositoryErrors.ErrPartialApplication, repositoryErrors.ErrAccountNotFound)
	}
	s.accounts[order.UserID] = execution.CashBalance

	s.transactions[order.ID] = execution.Transaction
	s.history = append(s.history, execution.Transaction)

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	const op = "memory.Store.ListTransactions"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	transactions := make([]models.Transaction, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(transactions) < limit; i-- {
		if s.history[i].UserID == userID {
			transactions = append(transactions, s.history[i])
		}
	}

	return transactions, nil
}
