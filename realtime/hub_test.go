package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubDeliversToTopicOnly(t *testing.T) {
	hub := NewHub(nil)

	var competitive, casual int
	hub.Subscribe(QueueTopic("competitive"), func() { competitive++ })
	hub.Subscribe(QueueTopic("casual"), func() { casual++ })

	require.NoError(t, hub.Publish(context.Background(), QueueTopic("competitive")))
	require.NoError(t, hub.Publish(context.Background(), QueueTopic("competitive")))

	require.Equal(t, 2, competitive)
	require.Equal(t, 0, casual)
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(nil)
	topic := TeamTopic("t1")

	var calls int
	unsubscribe := hub.Subscribe(topic, func() { calls++ })
	require.Equal(t, 1, hub.SubscriberCount(topic))

	unsubscribe()
	unsubscribe() // idempotent
	hub.Broadcast(topic)

	require.Zero(t, calls)
	require.Zero(t, hub.SubscriberCount(topic))
	require.Empty(t, hub.Topics())
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub(nil)

	fired := map[string]int{}
	for _, topic := range []string{QueueTopic("casual"), TeamTopic("a")} {
		topic := topic
		hub.Subscribe(topic, func() { fired[topic]++ })
	}

	hub.BroadcastAll()

	require.Equal(t, map[string]int{"queue:casual": 1, "team:a": 1}, fired)
	require.Equal(t, []string{"queue:casual", "team:a"}, hub.Topics())
}

func TestHubHandlerMaySubscribe(t *testing.T) {
	hub := NewHub(nil)
	topic := QueueTopic("wingman")

	var nested bool
	hub.Subscribe(topic, func() {
		hub.Subscribe(topic, func() { nested = true })
	})

	hub.Broadcast(topic)
	require.False(t, nested)
	require.Equal(t, 2, hub.SubscriberCount(topic))
}
