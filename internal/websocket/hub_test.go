package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:     "test-client",
		hub:    hub,
		send:   make(chan []byte, 16),
		levels: make(map[int]bool),
		logger: testLogger(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubBroadcastReachesLevelSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	subscriber := newTestClient(hub)
	other := newTestClient(hub)

	hub.Register(subscriber)
	hub.Register(other)
	hub.Subscribe(subscriber, 1)
	hub.Subscribe(other, 2)
	waitFor(t, func() bool { return hub.GetSubscriberCount(1) == 1 && hub.GetSubscriberCount(2) == 1 })

	hub.BroadcastScoreUpdate(ScoreUpdate{
		Username: "alice",
		Score:    500,
		LevelID:  1,
		Rank:     3,
	})

	select {
	case raw := <-subscriber.send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, MessageTypeScoreUpdate, msg.Type)
		assert.Equal(t, 1, msg.LevelID)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the update")
	}

	select {
	case <-other.send:
		t.Fatal("client subscribed to another level received the update")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterRemovesSubscriptions(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	client := newTestClient(hub)
	hub.Register(client)
	hub.Subscribe(client, 1)
	waitFor(t, func() bool { return hub.GetSubscriberCount(1) == 1 })
	assert.Equal(t, 1, hub.GetTotalConnections())

	hub.Unregister(client)
	waitFor(t, func() bool { return hub.GetTotalConnections() == 0 })
	assert.Equal(t, 0, hub.GetSubscriberCount(1))

	// send is closed on unregister
	_, open := <-client.send
	assert.False(t, open)
}

func TestHubUnsubscribeKeepsConnection(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	client := newTestClient(hub)
	hub.Register(client)
	hub.Subscribe(client, 1)
	waitFor(t, func() bool { return hub.GetSubscriberCount(1) == 1 })

	hub.Unsubscribe(client, 1)
	waitFor(t, func() bool { return hub.GetSubscriberCount(1) == 0 })
	assert.Equal(t, 1, hub.GetTotalConnections())
}
