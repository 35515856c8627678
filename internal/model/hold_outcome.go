package model

import "time"

// HoldOutcome archives how a hold's countdown ended.
type HoldOutcome struct {
	HoldID     string    `gorm:"primaryKey;size:64"`
	VenueID    string    `gorm:"size:64;not null;index"`
	UserID     string    `gorm:"size:64;not null;index"`
	State      string    `gorm:"size:16;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	FinishedAt time.Time `gorm:"not null;index"`
}
