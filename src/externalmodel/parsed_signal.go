package externalmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParsedSignal is a row written by the ingestion pipeline after a channel
// message was parsed. Levels are stored as comma separated prices.
type ParsedSignal struct {
	ID          uint            `gorm:"primaryKey;column:id" json:"id"`
	SourceID    string          `gorm:"column:source_id" json:"source_id"`
	Symbol      string          `gorm:"column:symbol" json:"symbol"`
	EntryPoints string          `gorm:"column:entry_points" json:"entry_points"`
	TakeProfits string          `gorm:"column:take_profits" json:"take_profits"`
	StopLoss    decimal.Decimal `gorm:"column:stop_loss;type:numeric" json:"stop_loss"`
	Leverage    int             `gorm:"column:leverage" json:"leverage"`
	MessageDate *time.Time      `gorm:"column:message_date" json:"message_date,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (ParsedSignal) TableName() string {
	return "parsed_signals"
}
