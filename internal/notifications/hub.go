package notifications

import (
	"context"
	"errors"
	"sync"

	"tribune/internal/middleware"
	"tribune/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull      = errors.New("server connection limit reached")
	ErrUserLimit       = errors.New("user connection limit reached")
	ErrHubShuttingDown = errors.New("hub is shutting down")
)

// Hub fans feed events out to every connected live-feed client.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewHub creates an empty live-feed hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[uint]map[*Client]struct{}),
		log:   observability.NewWSLogger("feed"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "feed" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubShuttingDown
	}
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserLimit
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	total := h.totalConns
	h.mu.Unlock()

	middleware.ActiveWebSockets.Inc()
	h.log.LogConnect(context.Background(), userID, total)
	return client, nil
}

// UnregisterClient removes a client. Calling it twice is harmless.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		middleware.ActiveWebSockets.Dec()
		h.log.LogDisconnect(context.Background(), client.UserID, "unregistered")
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(message)
		}
	}
}

// Dispatch encodes ev and sends it to local clients.
func (h *Hub) Dispatch(ev FeedEvent) {
	data, err := ev.Encode()
	if err != nil {
		h.log.LogError(context.Background(), 0, err, ev.Type)
		return
	}
	h.BroadcastAll(data)
}

// Publish delivers ev to local clients and, when n is enabled, to sibling
// instances through Redis.
func (h *Hub) Publish(ctx context.Context, n *Notifier, ev FeedEvent) {
	h.Dispatch(ev)
	if err := n.PublishFeedEvent(ctx, ev); err != nil {
		h.log.LogError(ctx, 0, err, ev.Type)
	}
}

// StartWiring subscribes to the feed channel. Events from other instances are
// handed to onRemote (typically a store refresh) and then fanned out locally;
// this instance's own events were already dispatched by Publish.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier, onRemote func(context.Context, FeedEvent)) error {
	return n.StartFeedSubscriber(ctx, func(ev FeedEvent) {
		if ev.Origin == n.Origin() {
			return
		}
		if onRemote != nil && ev.Mutates() {
			onRemote(ctx, ev)
		}
		h.Dispatch(ev)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	for userID, userConns := range conns {
		for client := range userConns {
			middleware.ActiveWebSockets.Dec()
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				h.log.LogError(context.Background(), userID, err, "close_message")
			}
			if err := client.Conn.Close(); err != nil {
				h.log.LogError(context.Background(), userID, err, "close")
			}
		}
	}
	return nil
}
