package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses все статусы заказа
var OrderStatuses = []OrderStatus{OrderPending, OrderConfirmed, OrderCompleted, OrderCancelled}

// Valid проверяет, что статус входит в перечисление
func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// RecyclableOrder представляет заказ покупателя на объявление
type RecyclableOrder struct {
	ID              uuid.UUID       `json:"id"`
	RecyclableID    uuid.UUID       `json:"recyclable_id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	QuantityOrdered int             `json:"quantity_ordered"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	BuyerNotes      string          `json:"buyer_notes,omitempty"`
	SellerNotes     string          `json:"seller_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Дополнительные поля для API
	Recyclable    *Recyclable      `json:"recyclables,omitempty"`
	BuyerProfile  *ProfileSnapshot `json:"buyer_profile,omitempty"`
	SellerProfile *ProfileSnapshot `json:"seller_profile,omitempty"`
}

// CreateOrderInput данные для создания заказа; buyer_id берется из личности вызывающего
type CreateOrderInput struct {
	RecyclableID    uuid.UUID       `json:"recyclable_id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	QuantityOrdered int             `json:"quantity_ordered"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BuyerNotes      string          `json:"buyer_notes,omitempty"`
}
