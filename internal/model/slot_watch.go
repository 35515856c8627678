package model

// SlotWatch asks for a push message when one grid cell of a court becomes free.
type SlotWatch struct {
	ID        int64  `gorm:"primaryKey"`
	Endpoint  string `gorm:"index;not null"`
	VenueID   string `gorm:"size:64;not null;index:idx_slot_watch_slot,priority:1"`
	Date      string `gorm:"size:10;not null;index:idx_slot_watch_slot,priority:2"`
	CourtID   string `gorm:"size:64;not null;index:idx_slot_watch_slot,priority:3"`
	StartTime string `gorm:"size:5;not null;index:idx_slot_watch_slot,priority:4"`
}
