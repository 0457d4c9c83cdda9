package handlers

import (
	"testing"
	"time"

	"care-alert/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleBroadcastEvictsFullClientWithoutBlocking(t *testing.T) {
	h := NewWebSocketHandler(zap.NewNop())
	// An unbuffered, never-read send channel models a client whose write pump
	// has stalled: every broadcast attempt hits its full-buffer path.
	stalled := &Client{send: make(chan []byte), caregiverEmail: "stalled@example.com"}
	healthy := &Client{send: make(chan []byte, 8), caregiverEmail: "sarah@example.com"}
	h.addClient(stalled)
	h.addClient(healthy)

	go h.HandleBroadcast()

	h.SendAlertEvent(&services.AlertEvent{AlertID: "a1"})
	h.SendAlertEvent(&services.AlertEvent{AlertID: "a2"})

	for i := 0; i < 2; i++ {
		select {
		case <-healthy.send:
		case <-time.After(2 * time.Second):
			t.Fatalf("broadcast loop stalled: message %d never delivered", i+1)
		}
	}

	h.mu.RLock()
	_, stillRegistered := h.clients["stalled@example.com"]
	h.mu.RUnlock()
	assert.False(t, stillRegistered, "full client should have been evicted")
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	h := NewWebSocketHandler(zap.NewNop())
	old := &Client{send: make(chan []byte, 1), caregiverEmail: "sarah@example.com"}
	h.addClient(old)

	replacement := &Client{send: make(chan []byte, 1), caregiverEmail: "sarah@example.com"}
	h.addClient(replacement)

	// The superseded connection's channel is closed so its write pump exits.
	_, open := <-old.send
	assert.False(t, open)

	// The old connection's pump exiting must not tear down the replacement.
	h.removeClient(old)

	h.mu.RLock()
	current := h.clients["sarah@example.com"]
	h.mu.RUnlock()
	require.Same(t, replacement, current)

	h.SendToCaregiver("sarah@example.com", WebSocketMessage{Type: "alert"})
	select {
	case msg, open := <-replacement.send:
		require.True(t, open, "replacement channel must still be open")
		assert.NotEmpty(t, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("replacement client never received the message")
	}
}
