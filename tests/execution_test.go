//go:build integration

package tests

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokercore/internal/domain/models"
	serviceErrors "brokercore/internal/errors/service"
	"brokercore/internal/service/execution"
	"brokercore/tests/suite"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestBuySellRoundTripAgainstPostgres(t *testing.T) {
	ctx, s := suite.New(t)
	userID := s.NewFundedUser(ctx, "10000")

	buy, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, buy.Status)
	assert.True(t, dec("8500").Equal(buy.CashBalance), "cash after buy: %s", buy.CashBalance)

	holdings, err := s.Service.ListHoldings(ctx, userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, dec("10").Equal(holdings[0].Quantity))
	assert.True(t, dec("150").Equal(holdings[0].AvgCost))

	s.Prices.SetPrice("AAPL", dec("180"))

	sell, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "AAPL",
		Side:     models.SideSell,
		Quantity: dec("10"),
	})
	require.NoError(t, err)
	require.NotNil(t, sell.RealizedPL)
	assert.True(t, dec("300").Equal(*sell.RealizedPL), "realized pl: %s", sell.RealizedPL)
	assert.True(t, dec("10300").Equal(sell.CashBalance), "cash after sell: %s", sell.CashBalance)

	// Position fully closed, row gone.
	holdings, err = s.Service.ListHoldings(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	transactions, err := s.Service.ListTransactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, models.SideSell, transactions[0].Side)
	require.NotNil(t, transactions[0].AvgCostAtSale)
	assert.True(t, dec("150").Equal(*transactions[0].AvgCostAtSale))
}

func TestAveragingAcrossLotsAgainstPostgres(t *testing.T) {
	ctx, s := suite.New(t)
	userID := s.NewFundedUser(ctx, "10000")

	_, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("10"),
	})
	require.NoError(t, err)

	s.Prices.SetPrice("AAPL", dec("170"))

	_, err = s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("10"),
	})
	require.NoError(t, err)

	holdings, err := s.Service.ListHoldings(ctx, userID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, dec("20").Equal(holdings[0].Quantity))
	assert.True(t, dec("160").Equal(holdings[0].AvgCost), "avg cost: %s", holdings[0].AvgCost)
}

func TestRejectionsLeaveNoRows(t *testing.T) {
	ctx, s := suite.New(t)
	userID := s.NewFundedUser(ctx, "100")

	_, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "AAPL",
		Side:     models.SideBuy,
		Quantity: dec("10"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrInsufficientFunds)

	_, err = s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "AAPL",
		Side:     models.SideSell,
		Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, serviceErrors.ErrNoPosition)

	assert.Equal(t, 0, s.CountRows(ctx, "orders"))
	assert.Equal(t, 0, s.CountRows(ctx, "transactions"))

	balance, err := s.Service.GetCashBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(balance), "balance untouched: %s", balance)
}

func TestLimitOrderLifecycleAgainstPostgres(t *testing.T) {
	ctx, s := suite.New(t)
	userID := s.NewFundedUser(ctx, "10000")

	placed, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:     userID,
		Symbol:     "AAPL",
		Side:       models.SideBuy,
		Type:       models.TypeLimit,
		Quantity:   dec("5"),
		LimitPrice: dec("140"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, placed.Status)

	order, err := s.Service.GetOrder(ctx, placed.OrderID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Nil(t, order.ExecutedAt)

	require.NoError(t, s.Service.CancelOrder(ctx, placed.OrderID, userID))

	err = s.Service.CancelOrder(ctx, placed.OrderID, userID)
	assert.ErrorIs(t, err, serviceErrors.ErrOrderNotCancellable)

	order, err = s.Service.GetOrder(ctx, placed.OrderID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.Status)
}

func TestConcurrentSellsAgainstPostgres(t *testing.T) {
	ctx, s := suite.New(t)
	userID := s.NewFundedUser(ctx, "10000")

	_, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   "MSFT",
		Side:     models.SideBuy,
		Quantity: dec("5"),
	})
	require.NoError(t, err)

	const attempts = 10

	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := s.Service.PlaceOrder(ctx, execution.PlaceOrderRequest{
				UserID:   userID,
				Symbol:   "MSFT",
				Side:     models.SideSell,
				Quantity: dec("1"),
			})
			errs <- err
		}()
	}

	var succeeded int
	for i := 0; i < attempts; i++ {
		if err := <-errs; err == nil {
			succeeded++
		}
	}

	assert.Equal(t, 5, succeeded, "exactly the held quantity can be sold")

	holdings, err := s.Service.ListHoldings(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}
