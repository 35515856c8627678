package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"court-booking-backend/internal/parse"
	"court-booking-backend/internal/session"
	"court-booking-backend/internal/slots"
)

// GetVenue handles GET /api/venues/:venue_id.
func (h *Handler) GetVenue(c *gin.Context) {
	venue, err := h.Backend.Venue(c.Request.Context(), c.Param("venue_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

type slotResponse struct {
	slots.View
	Status   slots.Status `json:"status"`
	Bookable bool         `json:"bookable"`
}

type slotsResponse struct {
	VenueID   string         `json:"venueId"`
	Date      string         `json:"date"`
	CourtID   string         `json:"courtId"`
	Ready     bool           `json:"ready"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
	Slots     []slotResponse `json:"slots"`
}

// GetSlots handles GET /api/venues/:venue_id/slots?date=&court_id=.
//
// The first request for a venue and date starts a watcher; later requests read its
// latest lists. Own pending holds are tracked so the payment page can resume.
func (h *Handler) GetSlots(c *gin.Context) {
	venueID := c.Param("venue_id")
	date := c.Query("date")
	if _, err := parse.ParseDate(date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	venue, err := h.Backend.Venue(c.Request.Context(), venueID)
	if err != nil {
		writeError(c, err)
		return
	}

	refresher, err := h.Registry.Get(venueID, date)
	if err != nil {
		writeError(c, err)
		return
	}

	viewer := session.From(c).UserID
	courtID := c.Query("court_id")
	views, snap := refresher.Views(venue, courtID, viewer)

	if viewer != "" && h.Holds != nil {
		for _, hold := range snap.Holds {
			if hold.UserID == viewer {
				h.Holds.Track(hold.ID, venueID, viewer, hold.ExpiresAt)
			}
		}
	}

	resp := slotsResponse{
		VenueID: venueID,
		Date:    date,
		CourtID: courtID,
		Ready:   snap.Ready(),
		Slots:   make([]slotResponse, len(views)),
	}
	if !snap.UpdatedAt.IsZero() {
		updated := snap.UpdatedAt
		resp.UpdatedAt = &updated
	}
	for i, v := range views {
		resp.Slots[i] = slotResponse{View: v, Status: v.Status(), Bookable: v.Bookable()}
	}
	c.JSON(http.StatusOK, resp)
}
