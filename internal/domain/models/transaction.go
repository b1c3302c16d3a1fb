package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable historical record of one executed order.
// RealizedPL and AvgCostAtSale are set for sells only.
type Transaction struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	UserID        uuid.UUID
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TotalAmount   decimal.Decimal
	RealizedPL    *decimal.Decimal
	AvgCostAtSale *decimal.Decimal
	CreatedAt     time.Time
}
