package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannel implements Channel on redis pub/sub.
type RedisChannel struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisChannel wraps an existing redis client.
func NewRedisChannel(client *redis.Client, logger *zap.Logger) *RedisChannel {
	return &RedisChannel{client: client, logger: logger.Named("events")}
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}

// Subscribe waits for redis to confirm the subscription, then delivers decoded
// events to handler on a dedicated goroutine until Unsubscribe.
func (c *RedisChannel) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	pubsub := c.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	messages := pubsub.Channel()
	go func() {
		defer close(sub.done)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				// Undecodable payloads still reach the handler as a zero Event.
				c.logger.Warn("undecodable event payload", zap.String("topic", msg.Channel), zap.Error(err))
			}
			handler(event)
		}
	}()
	return sub, nil
}

// Publish encodes event as JSON and publishes it on topic.
func (c *RedisChannel) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
