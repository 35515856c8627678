// Package bookingapi talks to the remote booking REST API.
package bookingapi

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"court-booking-backend/config"
	"court-booking-backend/internal/booking"
)

// Client is a thin typed wrapper over the booking REST API.
type Client struct {
	http   *resty.Client
	venues *cache.Cache
	logger *zap.Logger
}

// NewClient creates a client for cfg.BaseURL. Venue details are cached for
// cfg.VenueCacheTTL.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		venues: cache.New(cfg.VenueCacheTTL, 2*cfg.VenueCacheTTL),
		logger: logger.Named("bookingapi"),
	}
}

// Venue fetches venue detail, including its courts and base price.
func (c *Client) Venue(ctx context.Context, venueID string) (*booking.Venue, error) {
	if cached, found := c.venues.Get(venueID); found {
		return cached.(*booking.Venue), nil
	}

	var venue booking.Venue
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("venueId", venueID).
		SetResult(&venue).
		SetError(&errorBody{}).
		Get("/venues/{venueId}")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch venue %s: %w", venueID, err)
	}

	c.venues.SetDefault(venueID, &venue)
	return &venue, nil
}

// ConfirmedBookings lists paid bookings of a venue on a date.
func (c *Client) ConfirmedBookings(ctx context.Context, venueID, date string) ([]booking.ConfirmedBooking, error) {
	var out []booking.ConfirmedBooking
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("venueId", venueID).
		SetQueryParam("date", date).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/venues/{venueId}/bookings")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch bookings for venue %s on %s: %w", venueID, date, err)
	}
	return out, nil
}

// PendingHolds lists the active holds of a venue on a date.
func (c *Client) PendingHolds(ctx context.Context, venueID, date string) ([]booking.PendingHold, error) {
	var out []booking.PendingHold
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("venueId", venueID).
		SetQueryParam("date", date).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/venues/{venueId}/pending-holds")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to fetch pending holds for venue %s on %s: %w", venueID, date, err)
	}
	return out, nil
}

// CreateHold asks the API to reserve the slot. The API decides whether the slot is
// still free.
func (c *Client) CreateHold(ctx context.Context, token string, req booking.CreateHoldRequest) (*booking.Hold, error) {
	var hold booking.Hold
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(req).
		SetResult(&hold).
		SetError(&errorBody{}).
		Post("/holds")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to create hold on court %s: %w", req.CourtID, err)
	}
	if hold.ID == "" {
		return nil, fmt.Errorf("failed to create hold on court %s: empty hold id in response", req.CourtID)
	}
	return &hold, nil
}

// ConfirmHold turns the hold into a booking ("I have paid").
func (c *Client) ConfirmHold(ctx context.Context, token, holdID string) error {
	return c.holdAction(ctx, token, holdID, "/holds/confirm")
}

// CancelHold releases the slot.
func (c *Client) CancelHold(ctx context.Context, token, holdID string) error {
	return c.holdAction(ctx, token, holdID, "/holds/cancel")
}

func (c *Client) holdAction(ctx context.Context, token, holdID, path string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"holdId": holdID}).
		SetError(&errorBody{}).
		Post(path)
	if err := check(resp, err); err != nil {
		c.logger.Warn("hold action failed", zap.String("path", path), zap.String("hold_id", holdID), zap.Error(err))
		return fmt.Errorf("hold %s: %w", holdID, err)
	}
	return nil
}

// check turns transport failures and non-2xx answers into errors.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok {
		apiErr.Message = body.text()
	}
	return apiErr
}

