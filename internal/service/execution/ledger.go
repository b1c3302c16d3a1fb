package execution

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brokercore/internal/domain/models"
)

// quantityPrecision is the decimal-place precision for share quantities
// derived from a cash amount. All quantity rounding happens here, once,
// before validation; the ledger arithmetic itself never rounds.
const quantityPrecision = 8

// epsilon absorbs residue from amount-to-quantity conversion. A remainder
// at or below it closes the position, and a sell may exceed the held
// quantity by at most this much.
var epsilon = decimal.New(1, -quantityPrecision)

// buyEffect is the ledger outcome of a buy: the post-trade holding and the
// new cash balance.
type buyEffect struct {
	Holding models.Holding
	Cash    decimal.Decimal
}

// applyBuy debits cost from cash and folds the lot into the holding at a
// weighted-average cost. existing is nil when the user holds no position.
func applyBuy(existing *models.Holding, cash, quantity, price decimal.Decimal, userID uuid.UUID, symbol string, now time.Time) buyEffect {
	cost := quantity.Mul(price)

	newCash := cash.Sub(cost)
	if newCash.IsNegative() {
		// Validation bounds cost by the balance; anything below zero here is
		// conversion residue within epsilon.
		newCash = decimal.Zero
	}

	holding := models.Holding{
		UserID:    userID,
		Symbol:    symbol,
		Quantity:  quantity,
		AvgCost:   price,
		UpdatedAt: now,
	}
	if existing != nil {
		newQuantity := existing.Quantity.Add(quantity)
		oldCost := existing.Quantity.Mul(existing.AvgCost)
		holding.Quantity = newQuantity
		holding.AvgCost = oldCost.Add(cost).Div(newQuantity)
	}

	return buyEffect{Holding: holding, Cash: newCash}
}

// sellEffect is the ledger outcome of a sell. Close is set when the
// remaining quantity is within epsilon of zero; Holding is meaningless in
// that case. RealizedPL and AvgCostAtSale use the pre-trade average cost.
type sellEffect struct {
	Holding       models.Holding
	Close         bool
	Cash          decimal.Decimal
	RealizedPL    decimal.Decimal
	AvgCostAtSale decimal.Decimal
}

// applySell credits proceeds to cash and reduces the holding. The average
// cost of the remainder is unchanged; selling realizes P&L, it does not
// re-price the position.
func applySell(existing models.Holding, cash, quantity, price decimal.Decimal, now time.Time) sellEffect {
	proceeds := quantity.Mul(price)
	realized := price.Sub(existing.AvgCost).Mul(quantity)

	remainder := existing.Quantity.Sub(quantity)

	effect := sellEffect{
		Cash:          cash.Add(proceeds),
		RealizedPL:    realized,
		AvgCostAtSale: existing.AvgCost,
	}

	if remainder.LessThanOrEqual(epsilon) {
		effect.Close = true
		return effect
	}

	effect.Holding = models.Holding{
		UserID:    existing.UserID,
		Symbol:    existing.Symbol,
		Quantity:  remainder,
		AvgCost:   existing.AvgCost,
		UpdatedAt: now,
	}
	return effect
}
