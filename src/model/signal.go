package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type SignalStatus string

const (
	SignalStatusNew       SignalStatus = "NEW"
	SignalStatusFormed    SignalStatus = "FORMED"
	SignalStatusPushed    SignalStatus = "PUSHED"
	SignalStatusBought    SignalStatus = "BOUGHT"
	SignalStatusSold      SignalStatus = "SOLD"
	SignalStatusCanceling SignalStatus = "CANCELING"
	SignalStatusClosed    SignalStatus = "CLOSED"
	SignalStatusError     SignalStatus = "ERROR"
)

type Position string

const (
	PositionLong  Position = "long"
	PositionShort Position = "short"
)

// Signal is one trading opportunity tracked through its own lifecycle.
// Entry points and take-profits never change after creation; only status,
// income, amount and all_targets are mutated by the engine.
type Signal struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SourceID    string          `gorm:"size:100;not null;uniqueIndex" json:"source_id"`
	Symbol      string          `gorm:"size:50;not null;index" json:"symbol"`
	Market      string          `gorm:"size:50;not null;default:binance" json:"market"`
	StopLoss    decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"stop_loss"`
	Leverage    int             `gorm:"not null;default:1" json:"leverage"`
	Position    Position        `gorm:"size:10;not null" json:"position"`
	Status      SignalStatus    `gorm:"size:20;not null;index;default:NEW" json:"status"`
	Income      decimal.Decimal `gorm:"type:decimal(32,12);not null;default:0" json:"income"`
	Amount      decimal.Decimal `gorm:"type:decimal(32,12);not null;default:0" json:"amount"`
	AllTargets  bool            `gorm:"not null;default:true" json:"all_targets"`
	MessageDate time.Time       `json:"message_date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	EntryPoints []EntryPoint `gorm:"foreignKey:SignalID;constraint:OnDelete:CASCADE" json:"entry_points,omitempty"`
	TakeProfits []TakeProfit `gorm:"foreignKey:SignalID;constraint:OnDelete:CASCADE" json:"take_profits,omitempty"`
}

func (Signal) TableName() string {
	return "signals"
}

type EntryPoint struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	SignalID uint            `gorm:"not null;uniqueIndex:ux_entry_point_signal_value,priority:1" json:"signal_id"`
	Value    decimal.Decimal `gorm:"type:decimal(32,12);not null;uniqueIndex:ux_entry_point_signal_value,priority:2" json:"value"`
}

func (EntryPoint) TableName() string {
	return "signal_entry_points"
}

type TakeProfit struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	SignalID uint            `gorm:"not null;uniqueIndex:ux_take_profit_signal_value,priority:1" json:"signal_id"`
	Value    decimal.Decimal `gorm:"type:decimal(32,12);not null;uniqueIndex:ux_take_profit_signal_value,priority:2" json:"value"`
}

func (TakeProfit) TableName() string {
	return "signal_take_profits"
}

// EntryValues returns the entry prices ordered ascending.
func (s *Signal) EntryValues() []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(s.EntryPoints))
	for _, ep := range s.EntryPoints {
		values = append(values, ep.Value)
	}
	sortAsc(values)
	return values
}

// TakeProfitValues returns the take-profit prices ordered ascending.
func (s *Signal) TakeProfitValues() []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(s.TakeProfits))
	for _, tp := range s.TakeProfits {
		values = append(values, tp.Value)
	}
	sortAsc(values)
	return values
}

// MaxEntry is zero when the signal has no entry points.
func (s *Signal) MaxEntry() decimal.Decimal {
	values := s.EntryValues()
	if len(values) == 0 {
		return decimal.Zero
	}
	return values[len(values)-1]
}

// MinTakeProfit is zero when the signal has no take-profits.
func (s *Signal) MinTakeProfit() decimal.Decimal {
	values := s.TakeProfitValues()
	if len(values) == 0 {
		return decimal.Zero
	}
	return values[0]
}

func sortAsc(values []decimal.Decimal) {
	sort.Slice(values, func(i, j int) bool {
		return values[i].LessThan(values[j])
	})
}
