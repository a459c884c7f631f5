package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const DefaultSendBuffer = 64

// PresenceFunc is told when a user gains a first or loses a last local connection.
type PresenceFunc func(userID string, online bool)

// Hub groups local connections by user id.
type Hub struct {
	mu       sync.RWMutex
	groups   map[string]*group
	log      *zap.Logger
	presence PresenceFunc
}

type group struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		groups: make(map[string]*group),
		log:    log.Named("realtime.hub"),
	}
}

// OnPresence installs fn; it must not call back into the hub.
func (h *Hub) OnPresence(fn PresenceFunc) {
	h.mu.Lock()
	h.presence = fn
	h.mu.Unlock()
}

func (h *Hub) Register(client *Client) {
	userID := strings.TrimSpace(client.UserID)
	h.mu.Lock()
	g := h.groups[userID]
	first := g == nil
	if first {
		g = &group{clients: make(map[string]*Client)}
		h.groups[userID] = g
	}
	g.mu.Lock()
	g.clients[client.ID] = client
	g.mu.Unlock()
	presence := h.presence
	h.mu.Unlock()

	h.log.Debug("client registered", zap.String("user_id", userID), zap.String("client_id", client.ID))
	if first && presence != nil {
		presence(userID, true)
	}
}

func (h *Hub) Unregister(client *Client) {
	userID := strings.TrimSpace(client.UserID)
	h.mu.Lock()
	g := h.groups[userID]
	if g == nil {
		h.mu.Unlock()
		return
	}
	g.mu.Lock()
	delete(g.clients, client.ID)
	empty := len(g.clients) == 0
	g.mu.Unlock()
	if empty {
		delete(h.groups, userID)
	}
	presence := h.presence
	h.mu.Unlock()

	h.log.Debug("client unregistered", zap.String("user_id", userID), zap.String("client_id", client.ID))
	if empty && presence != nil {
		presence(userID, false)
	}
}

// Connections returns the number of local connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	g := h.groups[strings.TrimSpace(userID)]
	h.mu.RUnlock()
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// SendToUser fails with ErrUserOffline when the user has no local connection
// or every connection's queue is full.
func (h *Hub) SendToUser(ctx context.Context, userID, method string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := encode(method, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	if h.deliver(userID, msg) == 0 {
		return ErrUserOffline
	}
	return nil
}

// deliver queues an encoded frame and returns how many connections took it.
func (h *Hub) deliver(userID string, msg []byte) int {
	h.mu.RLock()
	g := h.groups[strings.TrimSpace(userID)]
	h.mu.RUnlock()
	if g == nil {
		return 0
	}

	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	delivered := 0
	for _, c := range clients {
		if c.TrySend(msg) {
			delivered++
		} else {
			h.log.Warn("client send buffer full, dropping message",
				zap.String("user_id", userID),
				zap.String("client_id", c.ID),
			)
		}
	}
	return delivered
}
