package model

import "time"

// Exception is a persisted operation failure. Workers never surface errors to
// their caller, so this table is where failed signal operations end up.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Service string `gorm:"size:100;index" json:"service"` // e.g. "fleet"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "push"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "PushOrders"

	SignalID *uint `gorm:"index" json:"signal_id,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	// JSON encoded extra fields
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
