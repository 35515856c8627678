// Package slots projects confirmed bookings and pending holds onto the fixed hourly
// grid of a court.
package slots

import (
	"fmt"

	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/parse"
)

// The grid covers [GridStartHour, GridEndHour) in one-hour steps.
const (
	GridStartHour = 6
	GridEndHour   = 22
	GridSize      = GridEndHour - GridStartHour
)

// Status is the display status of a slot.
type Status string

const (
	StatusFree       Status = "free"
	StatusBooked     Status = "booked"
	StatusPending    Status = "pending"
	StatusOwnPending Status = "own_pending"
)

// View is the derived state of one grid slot for one court.
type View struct {
	ID            string `json:"id"`
	CourtID       string `json:"courtId"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	Price         int64  `json:"price"`
	IsBooked      bool   `json:"isBooked"`
	IsPending     bool   `json:"isPending"`
	IsOwnPending  bool   `json:"isOwnPending"`
	PendingHoldID string `json:"pendingHoldId,omitempty"`
}

// Bookable reports whether the viewer may click the slot. Own pending slots stay
// clickable so payment can be resumed.
func (v View) Bookable() bool {
	if v.IsBooked {
		return false
	}
	return !v.IsPending || v.IsOwnPending
}

// Status collapses the flags into one value; booked wins over pending.
func (v View) Status() Status {
	switch {
	case v.IsBooked:
		return StatusBooked
	case v.IsOwnPending:
		return StatusOwnPending
	case v.IsPending:
		return StatusPending
	default:
		return StatusFree
	}
}

// Overlaps is the half-open interval test: touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// Compute returns the 16 slot views of courtID, in ascending hour order. A missing
// venue, court id or unknown court yields an empty result.
func Compute(venue *booking.Venue, courtID string, bookings []booking.ConfirmedBooking, holds []booking.PendingHold, viewerID string) []View {
	if _, ok := venue.Court(courtID); !ok {
		return []View{}
	}

	views := make([]View, 0, GridSize)
	for hour := GridStartHour; hour < GridEndHour; hour++ {
		slotStart, slotEnd := hour*60, (hour+1)*60
		start, end := parse.FormatClock(slotStart), parse.FormatClock(slotEnd)

		v := View{
			ID:        slotID(courtID, start),
			CourtID:   courtID,
			StartTime: start,
			EndTime:   end,
			Price:     venue.BasePrice,
			IsBooked:  bookedAt(bookings, courtID, slotStart, slotEnd),
		}

		if hold, ok := holdAt(holds, courtID, slotStart, slotEnd); ok {
			v.IsPending = true
			v.IsOwnPending = viewerID != "" && hold.UserID == viewerID
			v.PendingHoldID = hold.ID
		}
		views = append(views, v)
	}
	return views
}

func slotID(courtID, start string) string {
	return fmt.Sprintf("%s-%s", courtID, start)
}

func bookedAt(bookings []booking.ConfirmedBooking, courtID string, slotStart, slotEnd int) bool {
	for _, b := range bookings {
		if b.CourtID != courtID {
			continue
		}
		if intervalOverlaps(b.StartTime, b.EndTime, slotStart, slotEnd) {
			return true
		}
	}
	return false
}

// holdAt returns the first overlapping hold. At most one active hold per slot is a
// server-side invariant; no tie-break is applied here.
func holdAt(holds []booking.PendingHold, courtID string, slotStart, slotEnd int) (booking.PendingHold, bool) {
	for _, h := range holds {
		if h.CourtID != courtID {
			continue
		}
		if intervalOverlaps(h.StartTime, h.EndTime, slotStart, slotEnd) {
			return h, true
		}
	}
	return booking.PendingHold{}, false
}

// intervalOverlaps treats an unparsable interval as overlapping nothing.
func intervalOverlaps(rawStart, rawEnd string, slotStart, slotEnd int) bool {
	start, err := parse.ParseClock(rawStart)
	if err != nil {
		return false
	}
	end, err := parse.ParseClock(rawEnd)
	if err != nil {
		return false
	}
	return Overlaps(start, end, slotStart, slotEnd)
}
