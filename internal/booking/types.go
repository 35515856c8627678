package booking

import (
	"errors"
	"fmt"
	"time"

	"court-booking-backend/internal/parse"
)

// Court is one bookable playing surface inside a venue.
type Court struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Venue is the venue detail as served by the booking API.
type Venue struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	BasePrice int64   `json:"basePrice"`
	Courts    []Court `json:"courts"`
}

// Court returns the court with the given id, if the venue has one.
func (v *Venue) Court(id string) (Court, bool) {
	if v == nil || id == "" {
		return Court{}, false
	}
	for _, c := range v.Courts {
		if c.ID == id {
			return c, true
		}
	}
	return Court{}, false
}

// ConfirmedBooking is an interval that has already been paid for.
type ConfirmedBooking struct {
	CourtID   string `json:"courtId"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// PendingHold is a temporary reservation created when a user starts checkout.
// ExpiresAt is owned by the server and may be absent.
type PendingHold struct {
	ID        string     `json:"id"`
	CourtID   string     `json:"courtId"`
	UserID    string     `json:"userId"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Extra is an add-on purchased with a booking (racket rental, shuttlecocks...).
type Extra struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// CreateHoldRequest is the payload sent to the booking API to start checkout.
type CreateHoldRequest struct {
	VenueID    string  `json:"venueId"`
	CourtID    string  `json:"courtId"`
	Date       string  `json:"date"`
	StartTime  string  `json:"startTime"`
	EndTime    string  `json:"endTime"`
	TotalPrice int64   `json:"totalPrice"`
	Extras     []Extra `json:"extras"`
}

// Hold is the booking API's answer to a create request.
type Hold struct {
	ID        string     `json:"holdId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

var ErrInvalidRange = errors.New("start time must be before end time")

// Validate checks identifiers, the date and the time range of the request.
func (r CreateHoldRequest) Validate() error {
	if r.VenueID == "" || r.CourtID == "" {
		return errors.New("venue and court are required")
	}
	if _, err := parse.ParseDate(r.Date); err != nil {
		return err
	}
	start, end, err := r.Minutes()
	if err != nil {
		return err
	}
	if start >= end {
		return ErrInvalidRange
	}
	for _, e := range r.Extras {
		if e.Quantity < 0 || e.Price < 0 {
			return fmt.Errorf("invalid extra %q", e.Name)
		}
	}
	return nil
}

// Minutes returns the start and end of the request as minutes since midnight.
func (r CreateHoldRequest) Minutes() (int, int, error) {
	start, err := parse.ParseClock(r.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := parse.ParseClock(r.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// TotalPrice prices a booking at a flat rate per started hour plus extras.
func TotalPrice(basePrice int64, minutes int, extras []Extra) int64 {
	hours := int64((minutes + 59) / 60)
	total := basePrice * hours
	for _, e := range extras {
		total += e.Price * int64(e.Quantity)
	}
	return total
}
