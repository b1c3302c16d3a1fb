package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a single user-submitted instruction against one instrument.
// Price and Quantity are immutable once the order reaches StatusCompleted.
type Order struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Symbol     string
	Side       Side
	Type       Type
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	ExecutedAt *time.Time
}

type Side uint8

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

// ParseSide maps the wire representation to a Side.
func ParseSide(s string) Side {
	switch s {
	case "buy":
		return SideBuy
	case "sell":
		return SideSell
	default:
		return SideUnspecified
	}
}

type Type uint8

const (
	TypeUnspecified Type = iota
	TypeMarket
	TypeLimit
)

func (t Type) String() string {
	switch t {
	case TypeMarket:
		return "market"
	case TypeLimit:
		return "limit"
	default:
		return "unspecified"
	}
}

func ParseType(s string) Type {
	switch s {
	case "", "market":
		return TypeMarket
	case "limit":
		return TypeLimit
	default:
		return TypeUnspecified
	}
}

type Status uint8

const (
	StatusUnspecified Status = iota
	StatusPending
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// Terminal reports whether the order can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}
