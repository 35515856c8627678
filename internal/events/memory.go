package events

import (
	"context"
	"sync"
)

// Hub is an in-process Channel. Handlers run synchronously on the publisher's
// goroutine, outside the hub lock.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	topics map[string]map[int]Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[int]Handler)}
}

type hubSubscription struct {
	hub   *Hub
	topic string
	id    int
	once  sync.Once
}

func (s *hubSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.topics[s.topic], s.id)
		if len(s.hub.topics[s.topic]) == 0 {
			delete(s.hub.topics, s.topic)
		}
	})
	return nil
}

// Subscribe registers handler on topic.
func (h *Hub) Subscribe(_ context.Context, topic string, handler Handler) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[int]Handler)
	}
	h.topics[topic][h.nextID] = handler
	return &hubSubscription{hub: h, topic: topic, id: h.nextID}, nil
}

// Publish delivers event to every current subscriber of topic.
func (h *Hub) Publish(_ context.Context, topic string, event Event) error {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.topics[topic]))
	for _, handler := range h.topics[topic] {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
