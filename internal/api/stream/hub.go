// Package stream pushes live screen-time and prayer events to connected
// browsers over WebSocket.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"choicetube/internal/core"
	"choicetube/internal/metrics"
)

// UnlockListener observes every unlock attempt made through the stream or the hub
type UnlockListener func(userID string, decision core.Decision, err error)

// Limiter bounds unlock attempts per user
type Limiter interface {
	Allow(key string) bool
}

// Hub tracks connected clients by user
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once

	onUnlock UnlockListener
	limiter  Limiter
	logger   *slog.Logger
}

// NewHub creates a hub; call Run to start it
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "stream-hub"),
	}
}

// OnUnlock sets the unlock listener. Call before Run.
func (h *Hub) OnUnlock(fn UnlockListener) {
	h.onUnlock = fn
}

// SetLimiter bounds unlock attempts arriving over the stream. Call before Run.
func (h *Hub) SetLimiter(l Limiter) {
	h.limiter = l
}

// Run processes registrations until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.UserID]; !ok {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			metrics.StreamConnected(1)
			h.logger.Info("Stream client connected", "user_id", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			removed := false
			if set, ok := h.clients[client.UserID]; ok && set[client] {
				delete(set, client)
				if len(set) == 0 {
					delete(h.clients, client.UserID)
				}
				removed = true
			}
			h.mu.Unlock()
			if removed {
				metrics.StreamConnected(-1)
				h.logger.Info("Stream client disconnected", "user_id", client.UserID)
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, set := range all {
		for client := range set {
			metrics.StreamConnected(-1)
			client.Close()
		}
	}
}

// Register adds a client; it returns false once the hub has stopped
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client; it never blocks after the hub has stopped
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connected returns the number of clients for userID
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) clientsOf(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.clients[userID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// Trigger re-evaluates the screen-time policy on every client of userID
func (h *Hub) Trigger(userID string) {
	for _, c := range h.clientsOf(userID) {
		c.policy.Trigger()
	}
}

// Reload makes every client of userID reload prayer settings
func (h *Hub) Reload(userID string) {
	for _, c := range h.clientsOf(userID) {
		c.prayer.Reload()
	}
}

// Decision returns the live decision for userID. When several clients are
// connected the least restrictive one wins, so a bypass granted on any of
// them holds. ok is false when no client has evaluated yet.
func (h *Hub) Decision(userID string) (decision core.Decision, ok bool) {
	for _, c := range h.clientsOf(userID) {
		if !c.policy.Evaluated() {
			continue
		}
		d := c.policy.Decision()
		if !ok || !d.Locked() {
			decision, ok = d, true
		}
		if !d.Locked() {
			break
		}
	}
	return decision, ok
}

// Unlock applies a parent password on every client of userID. found is
// false when the user has no connected clients.
func (h *Hub) Unlock(userID, password string) (decision core.Decision, found bool, err error) {
	clients := h.clientsOf(userID)
	if len(clients) == 0 {
		return core.Decision{}, false, nil
	}

	unlockedAny := false
	for _, c := range clients {
		d, uerr := c.policy.Unlock(password)
		if uerr == nil {
			decision, unlockedAny = d, true
			continue
		}
		if !unlockedAny {
			decision, err = d, uerr
		}
	}
	if unlockedAny {
		err = nil
	}
	h.unlocked(userID, decision, err)
	return decision, true, err
}

func (h *Hub) allowUnlock(userID string) bool {
	return h.limiter == nil || h.limiter.Allow(userID)
}

func (h *Hub) unlocked(userID string, decision core.Decision, err error) {
	if h.onUnlock != nil {
		h.onUnlock(userID, decision, err)
	}
}
