package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestVenueTopic(t *testing.T) {
	assert.Equal(t, "courtbook:venue:v1:holds", VenueTopic("courtbook", "v1"))
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	var got []Event
	sub, err := hub.Subscribe(ctx, "venue-a", func(e Event) { got = append(got, e) })
	require.NoError(t, err)

	var other int
	_, err = hub.Subscribe(ctx, "venue-b", func(Event) { other++ })
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, "venue-a", Event{VenueID: "a", HoldID: "h1", Kind: KindCreated}))
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].HoldID)
	assert.Equal(t, 0, other)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, hub.Subscribers("venue-a"))

	require.NoError(t, hub.Publish(ctx, "venue-a", Event{VenueID: "a"}))
	assert.Len(t, got, 1)
}

func TestHub_HandlerMayPublish(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	var echoed int
	_, err := hub.Subscribe(ctx, "in", func(e Event) {
		hub.Publish(ctx, "out", e)
	})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "out", func(Event) { echoed++ })
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, "in", Event{Kind: KindCancelled}))
	assert.Equal(t, 1, echoed)
}

func TestRedisChannel_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	channel := NewRedisChannel(client, zaptest.NewLogger(t))
	ctx := context.Background()
	topic := VenueTopic("test", "v1")

	var mu sync.Mutex
	var got []Event
	sub, err := channel.Subscribe(ctx, topic, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, channel.Publish(ctx, topic, Event{VenueID: "v1", HoldID: "h1", Kind: KindConfirmed, At: at}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, KindConfirmed, got[0].Kind)
	assert.True(t, at.Equal(got[0].At))
	mu.Unlock()

	require.NoError(t, sub.Unsubscribe())
	assert.NoError(t, sub.Unsubscribe())
}

func TestRedisChannel_GarbledPayloadStillDelivered(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	channel := NewRedisChannel(client, zaptest.NewLogger(t))
	ctx := context.Background()

	delivered := make(chan Event, 1)
	sub, err := channel.Subscribe(ctx, "raw", func(e Event) { delivered <- e })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, client.Publish(ctx, "raw", "not json").Err())

	select {
	case e := <-delivered:
		assert.Equal(t, Event{}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
