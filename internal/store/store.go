package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"court-booking-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	PutSubscription(ctx context.Context, sub model.PushSubscription, watches []model.SlotWatch) error
	SubscriptionWatches(ctx context.Context, endpoint string) ([]model.SlotWatch, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForSlot(ctx context.Context, slot Slot) ([]model.PushSubscription, error)
	RecordHoldOutcome(ctx context.Context, outcome model.HoldOutcome) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// PutSubscription creates or refreshes a subscription and replaces its watches.
func (s *gormStore) PutSubscription(ctx context.Context, sub model.PushSubscription, watches []model.SlotWatch) error {
	sub.Watches = nil
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id"}),
		}).Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.SlotWatch{}).Error; err != nil {
			return fmt.Errorf("failed to clear watches for %s: %w", sub.Endpoint, err)
		}

		if len(watches) == 0 {
			return nil
		}
		rows := make([]model.SlotWatch, len(watches))
		for i, w := range watches {
			w.ID = 0
			w.Endpoint = sub.Endpoint
			rows[i] = w
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to save watches for %s: %w", sub.Endpoint, err)
		}
		return nil
	})
}

// SubscriptionWatches returns the watches of endpoint, or ErrNotFound when the
// subscription does not exist.
func (s *gormStore) SubscriptionWatches(ctx context.Context, endpoint string) ([]model.SlotWatch, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).
		Preload("Watches", func(db *gorm.DB) *gorm.DB {
			return db.Order("venue_id, date, court_id, start_time")
		}).
		First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub.Watches, nil
}

// DeleteSubscription removes a subscription and its watches.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.SlotWatch{}).Error; err != nil {
			return fmt.Errorf("failed to delete watches for %s: %w", endpoint, err)
		}
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
			return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
		}
		return nil
	})
}

// SubscriptionsForSlot returns every subscription watching slot.
func (s *gormStore) SubscriptionsForSlot(ctx context.Context, slot Slot) ([]model.PushSubscription, error) {
	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Distinct("push_subscriptions.*").
		Joins("JOIN slot_watches sw ON sw.endpoint = push_subscriptions.endpoint").
		Where("sw.venue_id = ? AND sw.date = ? AND sw.court_id = ? AND sw.start_time = ?",
			slot.VenueID, slot.Date, slot.CourtID, slot.StartTime).
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for slot: %w", err)
	}
	return subscriptions, nil
}

// RecordHoldOutcome archives a finished countdown. A later outcome for the same
// hold replaces the earlier one.
func (s *gormStore) RecordHoldOutcome(ctx context.Context, outcome model.HoldOutcome) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hold_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "finished_at"}),
	}).Create(&outcome).Error
	if err != nil {
		return fmt.Errorf("failed to archive hold %s: %w", outcome.HoldID, err)
	}
	return nil
}
