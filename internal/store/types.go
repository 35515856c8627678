package store

import "errors"

// ErrNotFound is returned when a subscription does not exist.
var ErrNotFound = errors.New("not found")

// Slot names one grid cell of one court on one date.
type Slot struct {
	VenueID   string
	Date      string
	CourtID   string
	StartTime string
}
