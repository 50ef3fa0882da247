// internal/storage/models/buyback_event.go
package models

import (
	"encoding/json"
	"time"
)

// BuybackEvent is one append-only record per execution attempt that moved or
// intended to move funds. TransactionSignature is unique: replaying the same
// purchase is a no-op.
type BuybackEvent struct {
	ID                   uint      `gorm:"primarykey"`
	CreatedAt            time.Time `gorm:"index;default:CURRENT_TIMESTAMP"`
	TransactionSignature string    `gorm:"uniqueIndex;not null;type:varchar(96)"`
	Mode                 string    `gorm:"not null;type:varchar(20)"`
	DryRun               bool      `gorm:"not null"`
	Success              bool      `gorm:"not null;index"`
	SpentLamports        uint64    `gorm:"not null"`
	TokensBought         uint64    `gorm:"not null"`
	TokensBurned         uint64    `gorm:"not null"`
	BurnSignature        string    `gorm:"type:varchar(96)"`
	ErrorMessage         string    `gorm:"type:text"`

	QuotePayload json.RawMessage `gorm:"type:jsonb"`
	SwapPayload  json.RawMessage `gorm:"type:jsonb"`
}

func (BuybackEvent) TableName() string {
	return "buyback_events"
}
