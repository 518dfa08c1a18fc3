package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"choicetube/internal/enforce"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size
	maxMessageSize = 4096

	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Inbound message types
const (
	MessageUnlock = "unlock"
)

// Message is sent by the browser over the stream
type Message struct {
	Type     string `json:"type"`
	Password string `json:"password,omitempty"`
}

// Client is one connected browser tab. It owns a policy monitor and a prayer
// monitor whose events are written to the socket.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	UserID string

	send      chan enforce.Event
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc

	policy *enforce.PolicyMonitor
	prayer *enforce.PrayerMonitor
	logger *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		UserID: userID,
		send:   make(chan enforce.Event, sendBuffer),
		done:   make(chan struct{}),
		cancel: func() {},
		logger: logger.With("component", "stream", "user_id", userID),
	}
}

// Publish queues an event for the socket. Events for a slow or closed
// client are dropped.
func (c *Client) Publish(ev enforce.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		c.logger.Warn("Send buffer full, dropping event", "type", ev.Type)
	}
}

// Close stops the monitors and signals WritePump to close the socket.
// Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// ReadPump reads browser messages until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.logger.Debug("Stream connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Stream read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("Ignoring malformed message", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case MessageUnlock:
		if !c.hub.allowUnlock(c.UserID) {
			c.Publish(enforce.Event{Type: enforce.EventUnlockFailed, Error: "too many attempts", At: time.Now()})
			return
		}
		decision, err := c.policy.Unlock(msg.Password)
		c.hub.unlocked(c.UserID, decision, err)
	default:
		c.logger.Debug("Ignoring unknown message", "type", msg.Type)
	}
}

// WritePump writes queued events and keepalive pings to the socket
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Warn("Stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
