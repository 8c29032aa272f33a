package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderHistory is one observed status/quantity change of an order.
// Rows are only ever inserted.
type OrderHistory struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	Status           OrderStatus     `gorm:"size:20;not null" json:"status"`
	ExecutedQuantity decimal.Decimal `gorm:"type:decimal(32,12);not null;default:0" json:"executed_quantity"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (OrderHistory) TableName() string {
	return "order_history"
}

// Same reports whether the record already describes the given observation.
func (h *OrderHistory) Same(status OrderStatus, executed decimal.Decimal) bool {
	return h.Status == status && h.ExecutedQuantity.Equal(executed)
}

// SignalHistory is one signal status transition.
type SignalHistory struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	SignalID   uint         `gorm:"not null;index" json:"signal_id"`
	FromStatus SignalStatus `gorm:"size:20;not null" json:"from_status"`
	ToStatus   SignalStatus `gorm:"size:20;not null" json:"to_status"`
	Reason     string       `gorm:"size:255" json:"reason"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (SignalHistory) TableName() string {
	return "signal_history"
}
