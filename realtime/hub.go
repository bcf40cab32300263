package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Hub keeps the room channels. A client is subscribed to at most one room.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[int64]map[string]*Client // roomID -> connID -> client
	clientRoom map[string]int64
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[int64]map[string]*Client),
		clientRoom: make(map[string]int64),
	}
}

// Subscribe moves c into the channel of roomID. The subscription is in place
// when Subscribe returns, so a Broadcast issued afterwards reaches c.
func (h *Hub) Subscribe(roomID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clientRoom[c.ID()]; ok {
		if current == roomID {
			return
		}
		h.removeLocked(current, c.ID())
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID()] = c
	h.clientRoom[c.ID()] = roomID
}

// Unsubscribe drops c from its room channel
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if roomID, ok := h.clientRoom[c.ID()]; ok {
		h.removeLocked(roomID, c.ID())
	}
}

// UnsubscribeUser drops every connection of userID from the channel of roomID
func (h *Hub) UnsubscribeUser(roomID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for connID, c := range h.rooms[roomID] {
		if c.UserID() == userID {
			h.removeLocked(roomID, connID)
		}
	}
}

func (h *Hub) removeLocked(roomID int64, connID string) {
	delete(h.clientRoom, connID)
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Broadcast sends a message to every subscriber of roomID except the
// connections of exceptUserID. Pass 0 to reach everyone.
func (h *Hub) Broadcast(roomID int64, msgType string, data any, exceptUserID int64) {
	message, err := encode(msgType, data)
	if err != nil {
		log.WithFields(log.Fields{
			"room_id": roomID,
			"type":    msgType,
		}).WithError(err).Error("Failed to encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[roomID] {
		if exceptUserID != 0 && c.UserID() == exceptUserID {
			continue
		}
		c.enqueue(message)
	}
}

// Subscribers returns the number of connections in a room channel
func (h *Hub) Subscribers(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomOf returns the room channel a connection is subscribed to
func (h *Hub) RoomOf(c *Client) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomID, ok := h.clientRoom[c.ID()]
	return roomID, ok
}

// Close terminates every subscribed connection
func (h *Hub) Close(reason string) {
	h.mu.Lock()
	var clients []*Client
	for _, conns := range h.rooms {
		for _, c := range conns {
			clients = append(clients, c)
		}
	}
	h.rooms = make(map[int64]map[string]*Client)
	h.clientRoom = make(map[string]int64)
	h.mu.Unlock()

	for _, c := range clients {
		c.Terminate(reason)
	}
	log.WithField("connections", len(clients)).Info("Hub closed")
}
