package execution

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokercore/internal/domain/models"
	serviceErrors "brokercore/internal/errors/service"
	"brokercore/internal/logger"
	"brokercore/internal/metrics"
	"brokercore/internal/pricing"
	"brokercore/internal/repository/memory"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	os.Exit(m.Run())
}

type testEnv struct {
	service *Service
	store   *memory.Store
	prices  *pricing.StaticProvider
	userID  uuid.UUID
}

func newTestEnv(t *testing.T, cash string) *testEnv {
	t.Helper()

	store := memory.NewStore()
	prices := pricing.NewStaticProvider(map[string]decimal.Decimal{
		"AAPL": dec("150"),
		"MSFT": dec("300"),
	})

	service := New(store, prices, nil, nil, metrics.NewNop(), 5*time.Second)

	userID := uuid.New()
	if cash != "" {
		_, err := store.Deposit(context.Background(), userID, dec(cash))
		require.NoError(t, err)
	}

	return &testEnv{
		service: service,
		store:   store,
		prices:  prices,
		userID:  userID,
	}
}

func (e *testEnv) buy(t *testing.T, symbol, quantity string) PlaceOrderResult {
	t.Helper()

	result, err := e.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   e.userID,
		Symbol:   symbol,
		Side:     models.SideBuy,
		Type:     models.TypeMarket,
		Quantity: dec(quantity),
	})
	require.NoError(t, err)
	return result
}

func TestPlaceOrder_MarketBuy(t *testing.T) {
	env := newTestEnv(t, "10000")

	result := env.buy(t, "AAPL", "10")

	assert.Equal(t, models.StatusCompleted, result.Status)
	assertDecimal(t, dec("150"), result.Price, "price")
	assertDecimal(t, dec("10"), result.Quantity, "quantity")
	assertDecimal(t, dec("8500"), result.CashBalance, "cash")
	assert.Nil(t, result.RealizedPL)

	order, err := env.service.GetOrder(context.Background(), result.OrderID, env.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, order.Status)
	require.NotNil(t, order.ExecutedAt)

	holdings, err := env.service.ListHoldings(context.Background(), env.userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, dec("10"), holdings[0].Quantity, "held quantity")
	assertDecimal(t, dec("150"), holdings[0].AvgCost, "avg cost")

	transactions, err := env.service.ListTransactions(context.Background(), env.userID, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assertDecimal(t, dec("1500"), transactions[0].TotalAmount, "total amount")
	assert.Nil(t, transactions[0].RealizedPL)
}

func TestPlaceOrder_AmountSizedBuy(t *testing.T) {
	env := newTestEnv(t, "10000")

	result, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: env.userID,
		Symbol: "AAPL",
		Side:   models.SideBuy,
		Amount: dec("500"),
	})
	require.NoError(t, err)

	// 500 / 150, rounded to eight decimal places.
	assertDecimal(t, dec("3.33333333"), result.Quantity, "quantity")
}

func TestPlaceOrder_SellRealizesPL(t *testing.T) {
	env := newTestEnv(t, "10000")
	env.buy(t, "AAPL", "10")

	env.prices.SetPrice("AAPL", dec("180"))

	result, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideSell,
		Quantity: dec("4"),
	})
	require.NoError(t, err)

	require.NotNil(t, result.RealizedPL)
	assertDecimal(t, dec("120"), *result.RealizedPL, "realized pl")
	assertDecimal(t, dec("9220"), result.CashBalance, "cash")

	holdings, err := env.service.ListHoldings(context.Background(), env.userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assertDecimal(t, dec("6"), holdings[0].Quantity, "remaining quantity")
	assertDecimal(t, dec("150"), holdings[0].AvgCost, "avg cost unchanged")

	transactions, err := env.service.ListTransactions(context.Background(), env.userID, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	require.NotNil(t, transactions[0].AvgCostAtSale)
	assertDecimal(t, dec("150"), *transactions[0].AvgCostAtSale, "avg cost at sale")
}

func TestPlaceOrder_SellAllClosesPosition(t *testing.T) {
	env := newTestEnv(t, "10000")
	env.buy(t, "AAPL", "10")

	result, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideSell,
		Quantity: dec("10"),
	})
	require.NoError(t, err)
	assertDecimal(t, dec("10000"), result.CashBalance, "cash restored")

	holdings, err := env.service.ListHoldings(context.Background(), env.userID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestPlaceOrder_ValidationFailures(t *testing.T) {
	env := newTestEnv(t, "1000")
	env.buy(t, "AAPL", "2")

	tests := []struct {
		name    string
		request PlaceOrderRequest
		wantErr error
	}{
		{
			name: "insufficient funds",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "AAPL",
				Side:     models.SideBuy,
				Quantity: dec("100"),
			},
			wantErr: serviceErrors.ErrInsufficientFunds,
		},
		{
			name: "no position",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "MSFT",
				Side:     models.SideSell,
				Quantity: dec("1"),
			},
			wantErr: serviceErrors.ErrNoPosition,
		},
		{
			name: "insufficient shares",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "AAPL",
				Side:     models.SideSell,
				Quantity: dec("3"),
			},
			wantErr: serviceErrors.ErrInsufficientShares,
		},
		{
			name: "unknown symbol",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "NOPE",
				Side:     models.SideBuy,
				Quantity: dec("1"),
			},
			wantErr: serviceErrors.ErrPriceUnavailable,
		},
		{
			name: "missing symbol",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Side:     models.SideBuy,
				Quantity: dec("1"),
			},
			wantErr: serviceErrors.ErrInvalidOrder,
		},
		{
			name: "missing side",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "AAPL",
				Quantity: dec("1"),
			},
			wantErr: serviceErrors.ErrInvalidOrder,
		},
		{
			name: "quantity and amount together",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "AAPL",
				Side:     models.SideBuy,
				Quantity: dec("1"),
				Amount:   dec("100"),
			},
			wantErr: serviceErrors.ErrInvalidQuantity,
		},
		{
			name: "neither quantity nor amount",
			request: PlaceOrderRequest{
				UserID: env.userID,
				Symbol: "AAPL",
				Side:   models.SideBuy,
			},
			wantErr: serviceErrors.ErrInvalidQuantity,
		},
		{
			name: "negative quantity",
			request: PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "AAPL",
				Side:     models.SideBuy,
				Quantity: dec("-1"),
			},
			wantErr: serviceErrors.ErrInvalidQuantity,
		},
		{
			name: "negative amount",
			request: PlaceOrderRequest{
				UserID: env.userID,
				Symbol: "AAPL",
				Side:   models.SideBuy,
				Amount: dec("-100"),
			},
			wantErr: serviceErrors.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.PlaceOrder(context.Background(), tt.request)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlaceOrder_NoAccount(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrAccountNotFound)
}

func TestPlaceOrder_PartialApplicationSurfaces(t *testing.T) {
	env := newTestEnv(t, "10000")

	env.store.FailNextCashWrite(errors.New("disk on fire"))

	_, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrPartialApplication)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (l *stubLimiter) Allow(context.Context, uuid.UUID) (bool, error) {
	return l.allowed, l.err
}

func TestPlaceOrder_RateLimited(t *testing.T) {
	env := newTestEnv(t, "10000")
	limited := New(env.store, env.prices, &stubLimiter{allowed: false}, nil, metrics.NewNop(), time.Second)

	_, err := limited.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrRateLimitExceeded)
}

func TestPlaceOrder_BrokenLimiterFailsOpen(t *testing.T) {
	env := newTestEnv(t, "10000")
	limited := New(env.store, env.prices, &stubLimiter{err: errors.New("redis down")}, nil, metrics.NewNop(), time.Second)

	_, err := limited.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("1"),
	})
	assert.NoError(t, err)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []models.Transaction
	err    error
}

func (p *stubPublisher) PublishExecution(_ context.Context, transaction models.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, transaction)
	return p.err
}

func TestPlaceOrder_PublishesExecutionEvent(t *testing.T) {
	env := newTestEnv(t, "10000")
	publisher := &stubPublisher{}
	service := New(env.store, env.prices, nil, publisher, metrics.NewNop(), time.Second)

	result, err := service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("1"),
	})
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, result.OrderID, publisher.events[0].OrderID)
}

func TestPlaceOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	env := newTestEnv(t, "10000")
	publisher := &stubPublisher{err: errors.New("broker unreachable")}
	service := New(env.store, env.prices, nil, publisher, metrics.NewNop(), time.Second)

	_, err := service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("1"),
	})
	assert.NoError(t, err)
}

func TestLimitOrder_Lifecycle(t *testing.T) {
	env := newTestEnv(t, "10000")

	result, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:     env.userID,
		Symbol:     "AAPL",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Quantity:   dec("5"),
		LimitPrice: dec("140"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, result.Status)

	// No ledger effect until a fill, and there is no matching engine.
	balance, err := env.service.GetCashBalance(context.Background(), env.userID)
	require.NoError(t, err)
	assertDecimal(t, dec("10000"), balance, "cash untouched")

	require.NoError(t, env.service.CancelOrder(context.Background(), result.OrderID, env.userID))

	order, err := env.service.GetOrder(context.Background(), result.OrderID, env.userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.Status)

	err = env.service.CancelOrder(context.Background(), result.OrderID, env.userID)
	assert.ErrorIs(t, err, serviceErrors.ErrOrderNotCancellable)
}

func TestLimitOrder_RequiresQuantityAndPrice(t *testing.T) {
	env := newTestEnv(t, "10000")

	_, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: env.userID,
		Symbol: "AAPL",
		Side:   models.SideBuy,
		Type:   models.TypeLimit,
		Amount: dec("500"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrInvalidQuantity)

	_, err = env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:   env.userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Type:     models.TypeLimit,
		Quantity: dec("5"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrInvalidAmount)
}

func TestCancelOrder_OtherUsersOrderIsNotFound(t *testing.T) {
	env := newTestEnv(t, "10000")

	result, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:     env.userID,
		Symbol:     "AAPL",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Quantity:   dec("5"),
		LimitPrice: dec("140"),
	})
	require.NoError(t, err)

	err = env.service.CancelOrder(context.Background(), result.OrderID, uuid.New())
	assert.ErrorIs(t, err, serviceErrors.ErrOrderNotFound)
}

func TestCancelOrder_CompletedOrderIsNotCancellable(t *testing.T) {
	env := newTestEnv(t, "10000")
	result := env.buy(t, "AAPL", "1")

	err := env.service.CancelOrder(context.Background(), result.OrderID, env.userID)
	assert.ErrorIs(t, err, serviceErrors.ErrOrderNotCancellable)
}

func TestGetOrder_OtherUsersOrderIsNotFound(t *testing.T) {
	env := newTestEnv(t, "10000")
	result := env.buy(t, "AAPL", "1")

	_, err := env.service.GetOrder(context.Background(), result.OrderID, uuid.New())
	assert.ErrorIs(t, err, serviceErrors.ErrOrderNotFound)
}

func TestDeposit(t *testing.T) {
	env := newTestEnv(t, "")

	amount := decimal.NewFromFloat(gofakeit.Price(100, 10000)).Round(2)

	balance, err := env.service.Deposit(context.Background(), env.userID, amount)
	require.NoError(t, err)
	assertDecimal(t, amount, balance, "balance after first deposit")

	balance, err = env.service.Deposit(context.Background(), env.userID, amount)
	require.NoError(t, err)
	assertDecimal(t, amount.Add(amount), balance, "balance after second deposit")

	_, err = env.service.Deposit(context.Background(), env.userID, dec("0"))
	assert.ErrorIs(t, err, serviceErrors.ErrInvalidAmount)
}

func TestGetCashBalance_NoAccount(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.service.GetCashBalance(context.Background(), env.userID)
	assert.ErrorIs(t, err, serviceErrors.ErrAccountNotFound)
}

func TestPlaceOrder_ConcurrentSellsNeverOversell(t *testing.T) {
	env := newTestEnv(t, "10000")
	env.buy(t, "AAPL", "10")

	const attempts = 20

	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.service.PlaceOrder(context.Background(), PlaceOrderRequest{
				UserID:   env.userID,
				Symbol:   "AAPL",
				Side:     models.SideSell,
				Quantity: dec("1"),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, serviceErrors.ErrInsufficientShares), errors.Is(err, serviceErrors.ErrNoPosition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 10, succeeded, "exactly the held quantity can be sold")
	assert.Equal(t, attempts-10, rejected)

	holdings, err := env.service.ListHoldings(context.Background(), env.userID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}
