package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is a user's position in one instrument. At most one live record
// exists per (user, symbol); a holding whose quantity reaches zero is
// deleted, never kept as a zero-quantity row.
type Holding struct {
	UserID    uuid.UUID
	Symbol    string
	Quantity  decimal.Decimal
	AvgCost   decimal.Decimal
	UpdatedAt time.Time
}
