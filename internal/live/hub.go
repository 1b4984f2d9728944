// Package live pushes session snapshots to connected browser tabs over
// websocket or server-sent events.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/session"
	"github.com/ashureev/cloud-runner/internal/view"
)

// Frame is the payload pushed on every change.
type Frame struct {
	Type    string              `json:"type"`
	Version int64               `json:"version"`
	State   domain.SessionState `json:"state"`
	View    view.View           `json:"view"`
}

// NewFrame renders snap for the wire.
func NewFrame(snap session.Snapshot) Frame {
	return Frame{
		Type:    "snapshot",
		Version: snap.Version,
		State:   snap.State,
		View:    view.Project(snap.State),
	}
}

// Sessions resolves the session behind a connection.
type Sessions interface {
	Get(ctx context.Context, userID, sessionID string) (*session.Session, error)
}

// Client is one connected tab. Only the newest snapshot is kept; a slow
// reader skips intermediate versions instead of stalling the session.
type Client struct {
	mu     sync.Mutex
	latest *session.Snapshot
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newClient() *Client {
	return &Client{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (c *Client) offer(snap session.Snapshot) {
	c.mu.Lock()
	if c.latest == nil || snap.Version > c.latest.Version {
		c.latest = &snap
	}
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Next returns the pending snapshot, if any.
func (c *Client) Next() (session.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return session.Snapshot{}, false
	}
	snap := *c.latest
	c.latest = nil
	return snap, true
}

// Wake fires when a snapshot is pending.
func (c *Client) Wake() <-chan struct{} { return c.wake }

// Done is closed when the hub drops the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans snapshots out to the clients registered for a session key.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[*Client]struct{})}
}

// Register adds a client for userID and sessionID.
func (h *Hub) Register(userID, sessionID string) *Client {
	key := session.Key(userID, sessionID)
	c := newClient()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[key]; !ok {
		h.active[key] = make(map[*Client]struct{})
	}
	h.active[key][c] = struct{}{}
	slog.Info("Live client registered", "user_id", userID, "session_id", sessionID, "clients", len(h.active[key]))
	return c
}

// Unregister removes c. Unknown clients are ignored.
func (h *Hub) Unregister(userID, sessionID string, c *Client) {
	key := session.Key(userID, sessionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.active[key]
	if !ok {
		return
	}
	if _, exists := clients[c]; !exists {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.active, key)
	}
	c.close()
	slog.Info("Live client unregistered", "user_id", userID, "session_id", sessionID)
}

// Count returns the number of clients for a session.
func (h *Hub) Count(userID, sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[session.Key(userID, sessionID)])
}

// Publish delivers snap to every client of its session. It never blocks,
// so it can be subscribed directly as a session.Observer.
func (h *Hub) Publish(snap session.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.active[snap.Key] {
		c.offer(snap)
	}
}

// Close drops every client so their handlers return.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, clients := range h.active {
		for c := range clients {
			c.close()
		}
		delete(h.active, key)
	}
}
