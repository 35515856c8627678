package slots

import (
	"sort"

	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/parse"
)

// Key identifies one grid cell of one court.
type Key struct {
	CourtID   string
	StartTime string
}

// Freed lists the grid cells that were occupied (booked or held) in the previous
// lists and are free in the next ones. Results are ordered by court, then hour.
func Freed(prevBookings []booking.ConfirmedBooking, prevHolds []booking.PendingHold, nextBookings []booking.ConfirmedBooking, nextHolds []booking.PendingHold) []Key {
	courts := make(map[string]struct{})
	for _, b := range prevBookings {
		courts[b.CourtID] = struct{}{}
	}
	for _, h := range prevHolds {
		courts[h.CourtID] = struct{}{}
	}

	courtIDs := make([]string, 0, len(courts))
	for id := range courts {
		courtIDs = append(courtIDs, id)
	}
	sort.Strings(courtIDs)

	var freed []Key
	for _, courtID := range courtIDs {
		for hour := GridStartHour; hour < GridEndHour; hour++ {
			slotStart, slotEnd := hour*60, (hour+1)*60
			if !occupied(prevBookings, prevHolds, courtID, slotStart, slotEnd) {
				continue
			}
			if occupied(nextBookings, nextHolds, courtID, slotStart, slotEnd) {
				continue
			}
			freed = append(freed, Key{CourtID: courtID, StartTime: parse.FormatClock(slotStart)})
		}
	}
	return freed
}

func occupied(bookings []booking.ConfirmedBooking, holds []booking.PendingHold, courtID string, slotStart, slotEnd int) bool {
	if bookedAt(bookings, courtID, slotStart, slotEnd) {
		return true
	}
	_, held := holdAt(holds, courtID, slotStart, slotEnd)
	return held
}
