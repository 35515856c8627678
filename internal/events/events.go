// Package events carries "a pending hold changed" notifications per venue. Payloads
// are advisory: receivers re-fetch instead of patching state.
package events

import (
	"context"
	"fmt"
	"time"
)

// Kind describes what happened to a hold.
type Kind string

const (
	KindCreated   Kind = "created"
	KindConfirmed Kind = "confirmed"
	KindCancelled Kind = "cancelled"
	KindExpired   Kind = "expired"
)

// Event is the payload published on a venue topic.
type Event struct {
	VenueID string    `json:"venueId"`
	HoldID  string    `json:"holdId,omitempty"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
}

// Handler receives events of one subscription.
type Handler func(Event)

// Subscription is returned by Subscribe; Unsubscribe is safe to call twice.
type Subscription interface {
	Unsubscribe() error
}

// Channel is the publish/subscribe capability injected into watchers and handlers.
type Channel interface {
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
	Publish(ctx context.Context, topic string, event Event) error
}

// VenueTopic names the topic carrying hold changes of one venue.
func VenueTopic(prefix, venueID string) string {
	return fmt.Sprintf("%s:venue:%s:holds", prefix, venueID)
}
