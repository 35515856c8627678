package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/checkout"
	"court-booking-backend/internal/events"
	"court-booking-backend/internal/model"
	"court-booking-backend/internal/parse"
	"court-booking-backend/internal/session"
	"court-booking-backend/internal/slots"
	"court-booking-backend/internal/store"
)

type createHoldRequest struct {
	VenueID   string          `json:"venue_id" binding:"required"`
	CourtID   string          `json:"court_id" binding:"required"`
	Date      string          `json:"date" binding:"required"`
	StartTime string          `json:"start_time" binding:"required"`
	EndTime   string          `json:"end_time" binding:"required"`
	Extras    []booking.Extra `json:"extras"`
}

type holdResponse struct {
	HoldID           string         `json:"hold_id"`
	VenueID          string         `json:"venue_id"`
	State            checkout.State `json:"state"`
	ExpiresAt        time.Time      `json:"expires_at"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Remaining        string         `json:"remaining"`
	TotalPrice       int64          `json:"total_price,omitempty"`
}

func newHoldResponse(cd *checkout.Countdown, state checkout.State, remaining int) holdResponse {
	return holdResponse{
		HoldID:           cd.HoldID,
		VenueID:          cd.VenueID,
		State:            state,
		ExpiresAt:        cd.ExpiresAt,
		RemainingSeconds: remaining,
		Remaining:        checkout.FormatRemaining(remaining),
	}
}

// CreateHold handles POST /api/holds. The price is computed here from the venue
// rate; the booking API decides whether the slot can still be held.
func (h *Handler) CreateHold(c *gin.Context) {
	var req createHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hold := booking.CreateHoldRequest{
		VenueID:   req.VenueID,
		CourtID:   req.CourtID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Extras:    req.Extras,
	}
	if err := hold.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	venue, err := h.Backend.Venue(ctx, req.VenueID)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, ok := venue.Court(req.CourtID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown court"})
		return
	}

	sess := session.From(c)
	if !h.rangeBookable(venue, hold, sess.UserID) {
		c.JSON(http.StatusConflict, gin.H{"error": "slot is no longer available"})
		return
	}

	start, end, _ := hold.Minutes()
	hold.TotalPrice = booking.TotalPrice(venue.BasePrice, end-start, hold.Extras)

	created, err := h.Backend.CreateHold(ctx, sess.Token, hold)
	if err != nil {
		writeError(c, err)
		return
	}

	cd := h.Holds.Track(created.ID, req.VenueID, sess.UserID, created.ExpiresAt)
	h.publish(ctx, req.VenueID, created.ID, events.KindCreated)

	state, remaining := cd.Tick(h.Clock())
	resp := newHoldResponse(cd, state, remaining)
	resp.TotalPrice = hold.TotalPrice
	c.JSON(http.StatusCreated, resp)
}

// rangeBookable checks the requested range against the latest known lists, when
// they are loaded. The booking API stays the authority.
func (h *Handler) rangeBookable(venue *booking.Venue, req booking.CreateHoldRequest, viewer string) bool {
	if h.Registry == nil {
		return true
	}
	refresher, err := h.Registry.Get(req.VenueID, req.Date)
	if err != nil {
		return true
	}
	views, snap := refresher.Views(venue, req.CourtID, viewer)
	if !snap.Ready() {
		return true
	}

	start, end, err := req.Minutes()
	if err != nil {
		return false
	}
	for _, v := range views {
		vStart, _ := parse.ParseClock(v.StartTime)
		vEnd, _ := parse.ParseClock(v.EndTime)
		if slots.Overlaps(start, end, vStart, vEnd) && !v.Bookable() {
			return false
		}
	}
	return true
}

// countdown loads the hold named in the path, hiding holds of other users.
func (h *Handler) countdown(c *gin.Context) (*checkout.Countdown, bool) {
	cd, err := h.Holds.Get(c.Param("hold_id"))
	if err == nil && cd.UserID != session.From(c).UserID {
		err = checkout.ErrUnknownHold
	}
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return cd, true
}

// GetHold handles GET /api/holds/:hold_id.
func (h *Handler) GetHold(c *gin.Context) {
	cd, ok := h.countdown(c)
	if !ok {
		return
	}
	state, remaining := cd.Tick(h.Clock())
	c.JSON(http.StatusOK, newHoldResponse(cd, state, remaining))
}

// StreamHold handles GET /api/holds/:hold_id/stream, sending one "tick" event per
// interval until the hold leaves pending or the client goes away.
func (h *Handler) StreamHold(c *gin.Context) {
	cd, ok := h.countdown(c)
	if !ok {
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	cd.Run(c.Request.Context(), h.Tick, func(state checkout.State, remaining int) {
		c.SSEvent("tick", newHoldResponse(cd, state, remaining))
		c.Writer.Flush()
	})
}

// ConfirmHold handles POST /api/holds/:hold_id/confirm ("I have paid").
func (h *Handler) ConfirmHold(c *gin.Context) {
	cd, ok := h.countdown(c)
	if !ok {
		return
	}
	if err := cd.Confirm(c.Request.Context(), session.From(c).Token); err != nil {
		writeError(c, err)
		return
	}
	state, remaining := cd.Tick(h.Clock())
	c.JSON(http.StatusOK, newHoldResponse(cd, state, remaining))
}

// CancelHold handles POST /api/holds/:hold_id/cancel.
func (h *Handler) CancelHold(c *gin.Context) {
	cd, ok := h.countdown(c)
	if !ok {
		return
	}
	if err := cd.Cancel(c.Request.Context(), session.From(c).Token); err != nil {
		writeError(c, err)
		return
	}
	state, remaining := cd.Tick(h.Clock())
	c.JSON(http.StatusOK, newHoldResponse(cd, state, remaining))
}

var terminalKinds = map[checkout.State]events.Kind{
	checkout.StateConfirmed: events.KindConfirmed,
	checkout.StateCancelled: events.KindCancelled,
	checkout.StateExpired:   events.KindExpired,
}

// HoldFinished archives a finished countdown and tells every watcher of the venue
// to re-fetch.
func HoldFinished(s store.Store, channel events.Channel, topicPrefix string, logger *zap.Logger) checkout.TerminalFunc {
	return func(cd *checkout.Countdown, state checkout.State) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		now := time.Now()
		if s != nil {
			err := s.RecordHoldOutcome(ctx, model.HoldOutcome{
				HoldID:     cd.HoldID,
				VenueID:    cd.VenueID,
				UserID:     cd.UserID,
				State:      string(state),
				ExpiresAt:  cd.ExpiresAt,
				FinishedAt: now,
			})
			if err != nil {
				logger.Error("recording hold outcome failed", zap.String("hold_id", cd.HoldID), zap.Error(err))
			}
		}

		if channel == nil {
			return
		}
		event := events.Event{VenueID: cd.VenueID, HoldID: cd.HoldID, Kind: terminalKinds[state], At: now}
		if err := channel.Publish(ctx, events.VenueTopic(topicPrefix, cd.VenueID), event); err != nil {
			logger.Warn("publishing hold event failed", zap.String("hold_id", cd.HoldID), zap.Error(err))
		}
	}
}
