package models

import "github.com/shopspring/decimal"

// Execution is the full effect of one completed order on the ledger:
// the order row, the post-trade holding state, the new cash balance, and
// the transaction record. A store applies all of it as one logical unit.
type Execution struct {
	Order Order

	// Holding is the post-trade position. Ignored when CloseHolding is set.
	Holding Holding

	// CloseHolding deletes the (user, symbol) holding instead of writing it.
	CloseHolding bool

	CashBalance decimal.Decimal
	Transaction Transaction
}
