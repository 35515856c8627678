package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/model"
	"court-booking-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// VenueLookup resolves court names for the message text.
type VenueLookup interface {
	Venue(ctx context.Context, venueID string) (*booking.Venue, error)
}

// Message is the push payload for a freed slot.
type Message struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	VenueID   string `json:"venue_id"`
	Date      string `json:"date"`
	CourtID   string `json:"court_id"`
	StartTime string `json:"start_time"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan store.Slot
	store   store.Store
	venues  VenueLookup
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool. venues may be nil, in which case
// messages name courts by id.
func NewWorkerPool(size int, s store.Store, venues VenueLookup, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan store.Slot, size*16),
		store:   s,
		venues:  venues,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// SetSender replaces the push transport. Call it before Start.
func (wp *WorkerPool) SetSender(sender NotificationSender) {
	wp.sender = sender
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case slot := <-wp.jobs:
			wp.notifySlot(ctx, slot)
		case <-ctx.Done():
			wp.logger.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a freed slot. It never blocks: when the queue is full the slot is
// dropped and false is returned.
func (wp *WorkerPool) Dispatch(slot store.Slot) bool {
	select {
	case wp.jobs <- slot:
		return true
	default:
		wp.logger.Warn("notification queue full, dropping slot",
			zap.String("venue_id", slot.VenueID),
			zap.String("court_id", slot.CourtID),
			zap.String("start_time", slot.StartTime),
		)
		return false
	}
}

func (wp *WorkerPool) notifySlot(ctx context.Context, slot store.Slot) {
	subscriptions, err := wp.store.SubscriptionsForSlot(ctx, slot)
	if err != nil {
		wp.logger.Error("fetching subscriptions failed", zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(wp.message(ctx, slot))
	if err != nil {
		wp.logger.Error("encoding push message failed", zap.Error(err))
		return
	}

	wp.logger.Info("sending slot notifications",
		zap.Int("count", len(subscriptions)),
		zap.String("venue_id", slot.VenueID),
		zap.String("date", slot.Date),
		zap.String("court_id", slot.CourtID),
		zap.String("start_time", slot.StartTime),
	)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) message(ctx context.Context, slot store.Slot) Message {
	courtLabel := slot.CourtID
	if wp.venues != nil {
		venue, err := wp.venues.Venue(ctx, slot.VenueID)
		if err != nil {
			wp.logger.Warn("venue lookup failed", zap.String("venue_id", slot.VenueID), zap.Error(err))
		} else if court, ok := venue.Court(slot.CourtID); ok && court.Name != "" {
			courtLabel = court.Name
		}
	}

	return Message{
		Title:     "Court available",
		Body:      fmt.Sprintf("%s is free at %s on %s", courtLabel, slot.StartTime, slot.Date),
		VenueID:   slot.VenueID,
		Date:      slot.Date,
		CourtID:   slot.CourtID,
		StartTime: slot.StartTime,
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("push send failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Error("deleting expired subscription failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
