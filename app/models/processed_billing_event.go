package models

import "time"

// ProcessedBillingEvent marks a payment provider event as applied. The
// primary key is the provider event id, so a second insert of the same event
// is rejected by the database.
type ProcessedBillingEvent struct {
	ID        string    `gorm:"type:varchar(191);primaryKey" json:"id"`
	Type      string    `gorm:"type:varchar(100);not null;index" json:"type"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
