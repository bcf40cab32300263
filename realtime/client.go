package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// writeWait bounds a single frame write
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent, pings included
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait
	pingPeriod = 54 * time.Second

	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Client is one websocket connection. Only the write pump writes to conn;
// everything else queues frames on send.
type Client struct {
	id         string
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	hub        *Hub
	dispatcher *Dispatcher

	userID    atomic.Int64
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, hub *Hub, dispatcher *Dispatcher) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		hub:        hub,
		dispatcher: dispatcher,
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// UserID returns the user bound by user_connect, 0 before that
func (c *Client) UserID() int64 {
	return c.userID.Load()
}

func (c *Client) bind(userID int64) {
	c.userID.Store(userID)
}

// Send queues a message for the client
func (c *Client) Send(msgType string, data any) {
	message, err := encode(msgType, data)
	if err != nil {
		log.WithFields(log.Fields{
			"conn_id": c.id,
			"type":    msgType,
		}).WithError(err).Error("Failed to encode message")
		return
	}
	c.enqueue(message)
}

func (c *Client) enqueue(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		log.WithFields(log.Fields{
			"conn_id": c.id,
			"user_id": c.UserID(),
		}).Warn("Send buffer full, dropping message")
		return false
	}
}

// Terminate tells the client why it is being closed, drops its room
// subscription and closes the connection. Queued frames are flushed first.
func (c *Client) Terminate(reason string) {
	c.Send(TypeSessionTerminated, terminatedMessage{Reason: reason})
	c.hub.Unsubscribe(c)
	c.close()
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether the connection was terminated
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump handles inbound frames inline, so one connection's messages are
// processed in the order they arrived
func (c *Client) readPump() {
	defer func() {
		c.dispatcher.Disconnect(context.Background(), c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.WithError(err).Warn("Failed to set read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithFields(log.Fields{
					"conn_id": c.id,
					"user_id": c.UserID(),
				}).WithError(err).Warn("Websocket read error")
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.dispatcher.Handle(context.Background(), c, message)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
