// Package execution implements the order execution core: sizing and funds
// validation, the ledger mutation for fills, and the read surface over
// orders, holdings, transactions and cash.
//
// Market orders fill immediately at the current price. The whole
// validate-compute-apply sequence for one (user, symbol) runs under a keyed
// lock, so concurrent orders against the same position serialize and each
// one validates against the balances the previous one left behind.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokercore/internal/domain/models"
	repositoryErrors "brokercore/internal/errors/repository"
	serviceErrors "brokercore/internal/errors/service"
	"brokercore/internal/logger"
	"brokercore/internal/metrics"
	"brokercore/internal/pricing"
)

// Store is the persistence surface the service needs. Implemented by the
// postgres and memory stores.
type Store interface {
	GetCashBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	GetHolding(ctx context.Context, userID uuid.UUID, symbol string) (models.Holding, error)
	ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error)
	SaveOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	CancelOrder(ctx context.Context, id, userID uuid.UUID) error
	ApplyExecution(ctx context.Context, execution models.Execution) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
}

// RateLimiter bounds the per-user order placement rate.
type RateLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Publisher emits an event for every executed order. Delivery is best
// effort: a publish failure is logged, never surfaced to the caller.
type Publisher interface {
	PublishExecution(ctx context.Context, transaction models.Transaction) error
}

type Service struct {
	store     Store
	prices    pricing.Provider
	limiter   RateLimiter
	publisher Publisher
	metrics   *metrics.Metrics
	locks     *keyedMutex
	timeout   time.Duration
}

const defaultExecuteTimeout = 10 * time.Second

func New(
	store Store,
	prices pricing.Provider,
	limiter RateLimiter,
	publisher Publisher,
	m *metrics.Metrics,
	executeTimeout time.Duration,
) *Service {
	if executeTimeout <= 0 {
		executeTimeout = defaultExecuteTimeout
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Service{
		store:     store,
		prices:    prices,
		limiter:   limiter,
		publisher: publisher,
		metrics:   m,
		locks:     newKeyedMutex(),
		timeout:   executeTimeout,
	}
}

type PlaceOrderRequest struct {
	UserID uuid.UUID
	Symbol string
	Side   models.Side
	Type   models.Type

	// Exactly one of Quantity and Amount must be set. Amount is a cash
	// amount converted to shares at the execution price.
	Quantity decimal.Decimal
	Amount   decimal.Decimal

	// LimitPrice is required for limit orders and ignored otherwise.
	LimitPrice decimal.Decimal
}

type PlaceOrderResult struct {
	OrderID     uuid.UUID
	Status      models.Status
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	CashBalance decimal.Decimal

	// RealizedPL is set for completed sells.
	RealizedPL *decimal.Decimal
}

// PlaceOrder validates and executes one order. Market orders come back
// StatusCompleted with their full ledger effect applied; limit orders are
// parked as StatusPending and never fill on their own (there is no matching
// engine behind them, only Cancel).
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	const op = "execution.Service.PlaceOrder"

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.checkRateLimit(ctx, req.UserID); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if req.Symbol == "" {
		return PlaceOrderResult{}, fmt.Errorf("%s: %w: symbol is required", op, serviceErrors.ErrInvalidOrder)
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return PlaceOrderResult{}, fmt.Errorf("%s: %w: side must be buy or sell", op, serviceErrors.ErrInvalidOrder)
	}

	if err := checkSizing(req.Quantity, req.Amount); err != nil {
		s.metrics.ObserveOrder(req.Side.String(), "rejected", time.Since(start))
		return PlaceOrderResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if req.Type == models.TypeLimit {
		result, err := s.placeLimitOrder(ctx, req)
		if err != nil {
			return PlaceOrderResult{}, fmt.Errorf("%s: %w", op, err)
		}
		s.metrics.ObserveOrder(req.Side.String(), result.Status.String(), time.Since(start))
		return result, nil
	}

	unlock := s.locks.Lock(req.UserID, req.Symbol)
	defer unlock()

	res, err := s.resolve(ctx, req)
	if err != nil {
		s.metrics.ObserveOrder(req.Side.String(), rejectionStatus(err), time.Since(start))
		return PlaceOrderResult{}, fmt.Errorf("%s: %w", op, err)
	}

	execution := s.buildExecution(req, res)

	if err := s.store.ApplyExecution(ctx, execution); err != nil {
		if errors.Is(err, repositoryErrors.ErrPartialApplication) {
			s.metrics.IncPartialApplication()
			logger.Error(ctx, "ledger mutation partially applied",
				zap.String("order_id", execution.Order.ID.String()),
				zap.String("symbol", req.Symbol),
				zap.Error(err),
			)
			s.metrics.ObserveOrder(req.Side.String(), "failed", time.Since(start))
			return PlaceOrderResult{}, fmt.Errorf("%s: %w: %w", op, serviceErrors.ErrPartialApplication, err)
		}

		s.metrics.ObserveOrder(req.Side.String(), "failed", time.Since(start))
		return PlaceOrderResult{}, fmt.Errorf("%s: %w", op, mapBackendError(err))
	}

	s.publish(ctx, execution.Transaction)
	s.metrics.ObserveOrder(req.Side.String(), "completed", time.Since(start))

	logger.Info(ctx, "order executed",
		zap.String("order_id", execution.Order.ID.String()),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side.String()),
		zap.String("quantity", res.Quantity.String()),
		zap.String("price", res.Price.String()),
	)

	return PlaceOrderResult{
		OrderID:     execution.Order.ID,
		Status:      models.StatusCompleted,
		Price:       res.Price,
		Quantity:    res.Quantity,
		CashBalance: execution.CashBalance,
		RealizedPL:  execution.Transaction.RealizedPL,
	}, nil
}

// buildExecution computes the full ledger effect of a resolved market
// order. Pure: every balance it writes derives from the resolution taken
// under the keyed lock.
func (s *Service) buildExecution(req PlaceOrderRequest, res resolution) models.Execution {
	now := time.Now().UTC()
	executedAt := now

	order := models.Order{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       models.TypeMarket,
		Quantity:   res.Quantity,
		Price:      res.Price,
		Status:     models.StatusCompleted,
		CreatedAt:  now,
		ExecutedAt: &executedAt,
	}

	transaction := models.Transaction{
		ID:          uuid.New(),
		OrderID:     order.ID,
		UserID:      req.UserID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    res.Quantity,
		Price:       res.Price,
		TotalAmount: res.Quantity.Mul(res.Price),
		CreatedAt:   now,
	}

	execution := models.Execution{
		Order:       order,
		Transaction: transaction,
	}

	switch req.Side {
	case models.SideBuy:
		effect := applyBuy(res.Holding, res.Cash, res.Quantity, res.Price, req.UserID, req.Symbol, now)
		execution.Holding = effect.Holding
		execution.CashBalance = effect.Cash
	case models.SideSell:
		effect := applySell(*res.Holding, res.Cash, res.Quantity, res.Price, now)
		execution.Holding = effect.Holding
		execution.CloseHolding = effect.Close
		execution.CashBalance = effect.Cash
		execution.Transaction.RealizedPL = &effect.RealizedPL
		execution.Transaction.AvgCostAtSale = &effect.AvgCostAtSale
	}

	return execution
}

// placeLimitOrder parks a limit order as pending. Funds are not reserved;
// the order is only ever cancelled or listed.
func (s *Service) placeLimitOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	if req.Quantity.IsZero() {
		return PlaceOrderResult{}, fmt.Errorf("%w: limit orders require an explicit quantity",
			serviceErrors.ErrInvalidQuantity)
	}
	if !req.LimitPrice.IsPositive() {
		return PlaceOrderResult{}, fmt.Errorf("%w: limit price must be positive",
			serviceErrors.ErrInvalidAmount)
	}

	order := models.Order{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      models.TypeLimit,
		Quantity:  req.Quantity,
		Price:     req.LimitPrice,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.SaveOrder(ctx, order); err != nil {
		return PlaceOrderResult{}, mapBackendError(err)
	}

	logger.Info(ctx, "limit order accepted",
		zap.String("order_id", order.ID.String()),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side.String()),
	)

	return PlaceOrderResult{
		OrderID:  order.ID,
		Status:   models.StatusPending,
		Price:    req.LimitPrice,
		Quantity: req.Quantity,
	}, nil
}

// CancelOrder moves a pending order owned by userID to cancelled.
func (s *Service) CancelOrder(ctx context.Context, id, userID uuid.UUID) error {
	const op = "execution.Service.CancelOrder"

	if err := s.store.CancelOrder(ctx, id, userID); err != nil {
		switch {
		case errors.Is(err, repositoryErrors.ErrOrderNotFound):
			return fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
		case errors.Is(err, repositoryErrors.ErrStatusConflict):
			return fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotCancellable)
		default:
			return fmt.Errorf("%s: %w", op, mapBackendError(err))
		}
	}

	logger.Info(ctx, "order cancelled", zap.String("order_id", id.String()))
	return nil
}

// GetOrder returns one order. Orders of other users are reported as not
// found, not as forbidden.
func (s *Service) GetOrder(ctx context.Context, id, userID uuid.UUID) (models.Order, error) {
	const op = "execution.Service.GetOrder"

	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrOrderNotFound) {
			return models.Order{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
		}
		return models.Order{}, fmt.Errorf("%s: %w", op, mapBackendError(err))
	}

	if order.UserID != userID {
		return models.Order{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
	}

	return order, nil
}

// ListHoldings returns the user's open positions ordered by symbol.
func (s *Service) ListHoldings(ctx context.Context, userID uuid.UUID) ([]models.Holding, error) {
	const op = "execution.Service.ListHoldings"

	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapBackendError(err))
	}

	return holdings, nil
}

// ListTransactions returns the user's transaction history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	const op = "execution.Service.ListTransactions"

	transactions, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapBackendError(err))
	}

	return transactions, nil
}

// GetCashBalance returns the user's free cash.
func (s *Service) GetCashBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	const op = "execution.Service.GetCashBalance"

	balance, err := s.store.GetCashBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrAccountNotFound) {
			return decimal.Zero, fmt.Errorf("%s: %w", op, serviceErrors.ErrAccountNotFound)
		}
		return decimal.Zero, fmt.Errorf("%s: %w", op, mapBackendError(err))
	}

	return balance, nil
}

// Deposit credits cash to the user's account, creating it on first use.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "execution.Service.Deposit"

	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidAmount)
	}

	balance, err := s.store.Deposit(ctx, userID, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, mapBackendError(err))
	}

	logger.Info(ctx, "deposit applied",
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)

	return balance, nil
}

func (s *Service) checkRateLimit(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}

	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// A broken limiter must not take order placement down with it.
		logger.Warn(ctx, "rate limiter unavailable, allowing request", zap.Error(err))
		return nil
	}
	if !allowed {
		return serviceErrors.ErrRateLimitExceeded
	}

	return nil
}

func (s *Service) publish(ctx context.Context, transaction models.Transaction) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.PublishExecution(ctx, transaction); err != nil {
		logger.Error(ctx, "execution event publish failed",
			zap.String("transaction_id", transaction.ID.String()),
			zap.Error(err),
		)
	}
}

// rejectionStatus classifies a resolve failure for the orders metric.
func rejectionStatus(err error) string {
	switch {
	case errors.Is(err, serviceErrors.ErrBackendTimeout),
		errors.Is(err, serviceErrors.ErrBackendUnavailable):
		return "failed"
	default:
		return "rejected"
	}
}
