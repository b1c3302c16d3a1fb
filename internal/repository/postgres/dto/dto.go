// Package dto maps between domain models and the postgres row layout.
package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brokercore/internal/domain/models"
)

type Order struct {
	ID         uuid.UUID       `db:"id"`
	UserID     uuid.UUID       `db:"user_id"`
	Symbol     string          `db:"symbol"`
	Side       int16           `db:"side"`
	Type       int16           `db:"type"`
	Quantity   decimal.Decimal `db:"quantity"`
	Price      decimal.Decimal `db:"price"`
	Status     int16           `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
	ExecutedAt *time.Time      `db:"executed_at"`
}

func (o Order) ToDomain() models.Order {
	return models.Order{
		ID:         o.ID,
		UserID:     o.UserID,
		Symbol:     o.Symbol,
		Side:       models.Side(o.Side),
		Type:       models.Type(o.Type),
		Quantity:   o.Quantity,
		Price:      o.Price,
		Status:     models.Status(o.Status),
		CreatedAt:  o.CreatedAt,
		ExecutedAt: o.ExecutedAt,
	}
}

func OrderFromDomain(order models.Order) Order {
	return Order{
		ID:         order.ID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       int16(order.Side),
		Type:       int16(order.Type),
		Quantity:   order.Quantity,
		Price:      order.Price,
		Status:     int16(order.Status),
		CreatedAt:  order.CreatedAt,
		ExecutedAt: order.ExecutedAt,
	}
}

type Holding struct {
	UserID    uuid.UUID       `db:"user_id"`
	Symbol    string          `db:"symbol"`
	Quantity  decimal.Decimal `db:"quantity"`
	AvgCost   decimal.Decimal `db:"avg_cost"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (h Holding) ToDomain() models.Holding {
	return models.Holding{
		UserID:    h.UserID,
		Symbol:    h.Symbol,
		Quantity:  h.Quantity,
		AvgCost:   h.AvgCost,
		UpdatedAt: h.UpdatedAt,
	}
}

type Transaction struct {
	ID            uuid.UUID           `db:"id"`
	OrderID       uuid.UUID           `db:"order_id"`
	UserID        uuid.UUID           `db:"user_id"`
	Symbol        string              `db:"symbol"`
	Side          int16               `db:"side"`
	Quantity      decimal.Decimal     `db:"quantity"`
	Price         decimal.Decimal     `db:"price"`
	TotalAmount   decimal.Decimal     `db:"total_amount"`
	RealizedPL    decimal.NullDecimal `db:"realized_pl"`
	AvgCostAtSale decimal.NullDecimal `db:"avg_cost_at_sale"`
	CreatedAt     time.Time           `db:"created_at"`
}

func (t Transaction) ToDomain() models.Transaction {
	out := models.Transaction{
		ID:          t.ID,
		OrderID:     t.OrderID,
		UserID:      t.UserID,
		Symbol:      t.Symbol,
		Side:        models.Side(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		TotalAmount: t.TotalAmount,
		CreatedAt:   t.CreatedAt,
	}
	if t.RealizedPL.Valid {
		pl := t.RealizedPL.Decimal
		out.RealizedPL = &pl
	}
	if t.AvgCostAtSale.Valid {
		avg := t.AvgCostAtSale.Decimal
		out.AvgCostAtSale = &avg
	}
	return out
}

func TransactionFromDomain(tx models.Transaction) Transaction {
	out := Transaction{
		ID:          tx.ID,
		OrderID:     tx.OrderID,
		UserID:      tx.UserID,
		Symbol:      tx.Symbol,
		Side:        int16(tx.Side),
		Quantity:    tx.Quantity,
		Price:       tx.Price,
		TotalAmount: tx.TotalAmount,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.RealizedPL != nil {
		out.RealizedPL = decimal.NullDecimal{Decimal: *tx.RealizedPL, Valid: true}
	}
	if tx.AvgCostAtSale != nil {
		out.AvgCostAtSale = decimal.NullDecimal{Decimal: *tx.AvgCostAtSale, Valid: true}
	}
	return out
}
