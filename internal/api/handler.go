package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"court-booking-backend/internal/availability"
	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/bookingapi"
	"court-booking-backend/internal/checkout"
	"court-booking-backend/internal/events"
	"court-booking-backend/internal/store"
)

// Backend is the part of the booking API the handlers call directly.
type Backend interface {
	Venue(ctx context.Context, venueID string) (*booking.Venue, error)
	CreateHold(ctx context.Context, token string, req booking.CreateHoldRequest) (*booking.Hold, error)
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Store    store.Store
	WebPush  *webpush.Options
	Backend  Backend
	Registry *availability.Registry
	Holds    *checkout.Manager
	Channel  events.Channel
	Logger   *zap.Logger

	TopicPrefix string
	// Tick is the interval of countdown stream updates.
	Tick time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.Tick <= 0 {
		deps.Tick = time.Second
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{Deps: deps}
}

func (h *Handler) publish(ctx context.Context, venueID, holdID string, kind events.Kind) {
	if h.Channel == nil {
		return
	}
	event := events.Event{VenueID: venueID, HoldID: holdID, Kind: kind, At: h.Clock()}
	if err := h.Channel.Publish(ctx, events.VenueTopic(h.TopicPrefix, venueID), event); err != nil {
		h.Logger.Warn("publishing hold event failed",
			zap.String("venue_id", venueID),
			zap.String("hold_id", holdID),
			zap.Error(err),
		)
	}
}

// writeError maps domain and backend errors onto HTTP answers.
func writeError(c *gin.Context, err error) {
	var apiErr *bookingapi.APIError
	switch {
	case errors.Is(err, bookingapi.ErrNotFound), errors.Is(err, checkout.ErrUnknownHold):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, checkout.ErrHoldExpired):
		c.JSON(http.StatusGone, gin.H{"error": checkout.ErrHoldExpired.Error()})
	case errors.Is(err, checkout.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		if apiErr.StatusCode == http.StatusConflict || apiErr.StatusCode == http.StatusUnprocessableEntity {
			status = apiErr.StatusCode
		}
		msg := apiErr.Message
		if msg == "" {
			msg = "booking service error"
		}
		c.JSON(status, gin.H{"error": msg})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
