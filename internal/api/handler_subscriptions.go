package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"court-booking-backend/internal/model"
	"court-booking-backend/internal/parse"
	"court-booking-backend/internal/session"
	"court-booking-backend/internal/slots"
	"court-booking-backend/internal/store"
)

type slotWatch struct {
	VenueID   string `json:"venue_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
	CourtID   string `json:"court_id" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
}

type putSubscriptionRequest struct {
	Endpoint string      `json:"endpoint" binding:"required"`
	P256DH   string      `json:"p256dh" binding:"required"`
	Auth     string      `json:"auth" binding:"required"`
	Watches  []slotWatch `json:"watches" binding:"dive"`
}

// validWatch accepts grid-aligned start times only.
func validWatch(w slotWatch) bool {
	if _, err := parse.ParseDate(w.Date); err != nil {
		return false
	}
	start, err := parse.ParseClock(w.StartTime)
	if err != nil || start%60 != 0 {
		return false
	}
	hour := start / 60
	return hour >= slots.GridStartHour && hour < slots.GridEndHour
}

// PutSubscription handles the creation or replacement of a subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	watches := make([]model.SlotWatch, 0, len(req.Watches))
	for _, w := range req.Watches {
		if !validWatch(w) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid watch"})
			return
		}
		start, _ := parse.ParseClock(w.StartTime)
		watches = append(watches, model.SlotWatch{
			VenueID:   w.VenueID,
			Date:      w.Date,
			CourtID:   w.CourtID,
			StartTime: parse.FormatClock(start),
		})
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   session.From(c).UserID,
	}
	if err := h.Store.PutSubscription(c.Request.Context(), subscription, watches); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.Store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a query value without decoding it. Push endpoints carry
// escaped characters that must be matched as registered.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	watches, err := h.Store.SubscriptionWatches(c.Request.Context(), raw)
	if errors.Is(err, store.ErrNotFound) {
		// Older clients send the endpoint escaped once more.
		if decoded, decErr := url.QueryUnescape(raw); decErr == nil && decoded != raw {
			watches, err = h.Store.SubscriptionWatches(c.Request.Context(), decoded)
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]slotWatch, len(watches))
	for i, w := range watches {
		resp[i] = slotWatch{VenueID: w.VenueID, Date: w.Date, CourtID: w.CourtID, StartTime: w.StartTime}
	}
	c.JSON(http.StatusOK, gin.H{"watches": resp})
}
