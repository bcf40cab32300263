package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case raw := <-c.send:
			var e Envelope
			if json.Unmarshal(raw, &e) == nil {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func hubClient(hub *Hub, userID int64) *Client {
	c := newClient(nil, hub, nil)
	c.bind(userID)
	return c
}

func TestHub_SubscribeMovesBetweenRooms(t *testing.T) {
	hub := NewHub()
	c := hubClient(hub, 1)

	hub.Subscribe(10, c)
	hub.Subscribe(10, c)
	assert.Equal(t, 1, hub.Subscribers(10))

	hub.Subscribe(20, c)
	assert.Equal(t, 0, hub.Subscribers(10))
	assert.Equal(t, 1, hub.Subscribers(20))

	roomID, ok := hub.RoomOf(c)
	require.True(t, ok)
	assert.Equal(t, int64(20), roomID)

	hub.Unsubscribe(c)
	_, ok = hub.RoomOf(c)
	assert.False(t, ok)
}

func TestHub_BroadcastSkipsExcludedUser(t *testing.T) {
	hub := NewHub()
	a, b, outsider := hubClient(hub, 1), hubClient(hub, 2), hubClient(hub, 3)
	hub.Subscribe(10, a)
	hub.Subscribe(10, b)
	hub.Subscribe(11, outsider)

	hub.Broadcast(10, TypeChatMessage, chatMessageView{Message: "hi"}, 1)
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(outsider))
	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, TypeChatMessage, got[0].Type)

	hub.Broadcast(10, TypeChatMessage, chatMessageView{Message: "all"}, 0)
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestHub_UnsubscribeUser(t *testing.T) {
	hub := NewHub()
	a, b := hubClient(hub, 1), hubClient(hub, 2)
	hub.Subscribe(10, a)
	hub.Subscribe(10, b)

	hub.UnsubscribeUser(10, 1)
	assert.Equal(t, 1, hub.Subscribers(10))
	_, ok := hub.RoomOf(a)
	assert.False(t, ok)
}

func TestHub_CloseTerminatesSubscribers(t *testing.T) {
	hub := NewHub()
	a, b := hubClient(hub, 1), hubClient(hub, 2)
	hub.Subscribe(10, a)
	hub.Subscribe(11, b)

	hub.Close("server shutting down")

	for _, c := range []*Client{a, b} {
		assert.True(t, c.Closed())
		got := drain(c)
		require.Len(t, got, 1)
		assert.Equal(t, TypeSessionTerminated, got[0].Type)
	}
	assert.Equal(t, 0, hub.Subscribers(10))

	// frames queued after termination are dropped
	hub.Subscribe(10, a)
	hub.Broadcast(10, TypeChatMessage, chatMessageView{Message: "late"}, 0)
	assert.Empty(t, drain(a))
}
