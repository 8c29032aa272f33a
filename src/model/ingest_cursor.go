package model

import "time"

// IngestCursor remembers the last external parsed-signal row that was turned
// into a Signal.
type IngestCursor struct {
	Name      string    `gorm:"primaryKey;size:100" json:"name"`
	LastID    uint      `gorm:"not null;default:0" json:"last_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IngestCursor) TableName() string {
	return "ingest_cursors"
}
