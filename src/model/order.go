package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNotSent   OrderStatus = "NOT_SENT"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusNotExists OrderStatus = "NOT_EXISTS"
	OrderStatusUnknown   OrderStatus = "UNKNOWN"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderKind string

const (
	OrderKindEntry      OrderKind = "entry"
	OrderKindTakeProfit OrderKind = "take_profit"
	OrderKindStopLoss   OrderKind = "stop_loss"
	OrderKindMarket     OrderKind = "market"
)

// ErrPairingInvariant marks a violation of the take-profit/stop-loss pairing
// contract or an attempt to send a record that only exists to record intent.
var ErrPairingInvariant = errors.New("pairing invariant violated")

// OpenOrderStatuses are the statuses an order can still move from.
var OpenOrderStatuses = []OrderStatus{
	OrderStatusNotSent,
	OrderStatusSent,
	OrderStatusPartial,
	OrderStatusNotExists,
	OrderStatusUnknown,
}

// PollableOrderStatuses are open statuses the exchange already knows about.
var PollableOrderStatuses = []OrderStatus{
	OrderStatusSent,
	OrderStatusPartial,
	OrderStatusNotExists,
	OrderStatusUnknown,
}

func (s OrderStatus) IsOpen() bool {
	for _, open := range OpenOrderStatuses {
		if s == open {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// Order is a Buy or Sell order of a signal. Take-profit and stop-loss sell rows
// reference each other through PairedOrderID.
type Order struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	SignalID         uint            `gorm:"not null;index:idx_orders_signal_side,priority:1" json:"signal_id"`
	Side             OrderSide       `gorm:"size:10;not null;index:idx_orders_signal_side,priority:2" json:"side"`
	Kind             OrderKind       `gorm:"size:20;not null" json:"kind"`
	Symbol           string          `gorm:"size:50;not null" json:"symbol"`
	Quantity         decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"quantity"`
	Price            decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"price"`
	StopLoss         decimal.Decimal `gorm:"type:decimal(32,12);not null;default:0" json:"stop_loss"`
	ExecutedQuantity decimal.Decimal `gorm:"type:decimal(32,12);not null;default:0" json:"executed_quantity"`
	ClientOrderID    string          `gorm:"size:100;not null;uniqueIndex" json:"client_order_id"`
	ExchangeOrderID  string          `gorm:"size:100" json:"exchange_order_id"`
	Status           OrderStatus     `gorm:"size:20;not null;index;default:NOT_SENT" json:"status"`
	Index            int             `gorm:"not null;default:0" json:"index"`
	Suffix           int             `gorm:"not null;default:0" json:"suffix"`
	HandledWorked    bool            `gorm:"not null;default:false" json:"handled_worked"`
	LocalCanceled    bool            `gorm:"not null;default:false" json:"local_canceled"`
	LocalCanceledAt  *time.Time      `json:"local_canceled_at,omitempty"`
	NoNeedPush       bool            `gorm:"not null;default:false" json:"no_need_push"`
	PairedOrderID    *uint           `gorm:"index" json:"paired_order_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	History []OrderHistory `gorm:"foreignKey:OrderID" json:"history,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// ClientID builds the idempotent identifier the exchange sees for an order.
func ClientID(signalID uint, side OrderSide, kind OrderKind, index, suffix int) string {
	return fmt.Sprintf("sig%d-%s-%s-%d-%d", signalID, side, kind, index, suffix)
}

// IsWorked reports whether the order filled, fully or before being canceled.
func (o *Order) IsWorked() bool {
	if o.Status == OrderStatusCompleted {
		return true
	}
	return o.Status == OrderStatusCanceled && o.ExecutedQuantity.IsPositive()
}

// IsFilled reports whether the whole quantity executed. A take-profit counts
// as a reached target only when filled.
func (o *Order) IsFilled() bool {
	if o.Status == OrderStatusCompleted {
		return true
	}
	return o.ExecutedQuantity.IsPositive() && o.ExecutedQuantity.GreaterThanOrEqual(o.Quantity)
}

// IsOpen is false for terminal orders.
func (o *Order) IsOpen() bool {
	return o.Status.IsOpen()
}

// RemainingQuantity is the part of the order the exchange has not filled yet.
func (o *Order) RemainingQuantity() decimal.Decimal {
	rest := o.Quantity.Sub(o.ExecutedQuantity)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// MarkLocalCanceled records our decision to cancel; exchange confirmation
// arrives later through the status.
func (o *Order) MarkLocalCanceled(now time.Time) {
	if o.LocalCanceled {
		return
	}
	o.LocalCanceled = true
	o.LocalCanceledAt = &now
}

// CopyForward returns an unsaved NOT_SENT replacement of o carrying its terms and
// the next identifier suffix. o itself is never edited here.
func (o *Order) CopyForward() *Order {
	next := &Order{
		SignalID:   o.SignalID,
		Side:       o.Side,
		Kind:       o.Kind,
		Symbol:     o.Symbol,
		Quantity:   o.Quantity,
		Price:      o.Price,
		StopLoss:   o.StopLoss,
		Status:     OrderStatusNotSent,
		Index:      o.Index,
		Suffix:     o.Suffix + 1,
		NoNeedPush: o.NoNeedPush,
	}
	next.ClientOrderID = ClientID(next.SignalID, next.Side, next.Kind, next.Index, next.Suffix)
	return next
}

// CheckPushable rejects orders that must never reach the exchange directly.
func (o *Order) CheckPushable() error {
	if o.NoNeedPush {
		return fmt.Errorf("order %s is intent-only: %w", o.ClientOrderID, ErrPairingInvariant)
	}
	return nil
}

// PairOrders links a take-profit with its stop-loss. Both rows must already be
// persisted and neither may have another partner.
func PairOrders(tp, sl *Order) error {
	if tp.Kind != OrderKindTakeProfit || sl.Kind != OrderKindStopLoss {
		return fmt.Errorf("pair %s/%s with kinds %s/%s: %w", tp.ClientOrderID, sl.ClientOrderID, tp.Kind, sl.Kind, ErrPairingInvariant)
	}
	if tp.ID == 0 || sl.ID == 0 {
		return fmt.Errorf("pair unsaved orders %s/%s: %w", tp.ClientOrderID, sl.ClientOrderID, ErrPairingInvariant)
	}
	if tp.PairedOrderID != nil && *tp.PairedOrderID != sl.ID {
		return fmt.Errorf("take-profit %s already paired with %d: %w", tp.ClientOrderID, *tp.PairedOrderID, ErrPairingInvariant)
	}
	if sl.PairedOrderID != nil && *sl.PairedOrderID != tp.ID {
		return fmt.Errorf("stop-loss %s already paired with %d: %w", sl.ClientOrderID, *sl.PairedOrderID, ErrPairingInvariant)
	}
	tpID, slID := tp.ID, sl.ID
	tp.PairedOrderID = &slID
	sl.PairedOrderID = &tpID
	return nil
}
