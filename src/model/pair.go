package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pair holds the exchange trading rules of one symbol. It is refreshed out of
// band and read-only to the engine.
type Pair struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Symbol       string          `gorm:"size:50;not null;uniqueIndex:ux_pairs_symbol_market,priority:1" json:"symbol"`
	Market       string          `gorm:"size:50;not null;uniqueIndex:ux_pairs_symbol_market,priority:2" json:"market"`
	BaseAsset    string          `gorm:"size:20" json:"base_asset"`
	QuoteAsset   string          `gorm:"size:20" json:"quote_asset"`
	MinPrice     decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"min_price"`
	StepPrice    decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"step_price"`
	StepQuantity decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"step_quantity"`
	MinQuantity  decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"min_quantity"`
	MinAmount    decimal.Decimal `gorm:"type:decimal(32,12);not null" json:"min_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Pair) TableName() string {
	return "pairs"
}
