package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHubBroadcastReachesClients(t *testing.T) {
	hub := NewStatusHub()
	go hub.Run()
	defer hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)

	hub.Broadcast("p1", "processing", "events.csv")

	select {
	case raw := <-client.SendChan:
		var event StatusEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, "p1", event.ProjectID)
		assert.Equal(t, "processing", event.Status)
		assert.Equal(t, "events.csv", event.Detail)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestStatusHubDropsSlowClient(t *testing.T) {
	hub := NewStatusHub()
	go hub.Run()
	defer hub.Stop()

	// Unbuffered channel with no reader: the first delivered event has
	// nowhere to go and the client gets disconnected.
	slow := &MockClient{SendChan: make(chan []byte)}
	hub.Register(slow)

	hub.Broadcast("p1", "processing", "")

	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatusHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewStatusHub()
	// Hub not running: the internal queue fills and extra events drop.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast("p1", "processing", "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full queue")
	}
}
