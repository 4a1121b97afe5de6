package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a realtime change notification for an organisation's clients.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients per organisation. Messages never cross
// organisations.
type Hub struct {
	mu     sync.RWMutex
	orgs   map[int64]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		orgs:   make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.orgs[c.orgID]
	if !ok {
		set = make(map[*Client]struct{})
		h.orgs[c.orgID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.orgs[c.orgID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.orgs, c.orgID)
	}
}

// Broadcast sends msg to every client of orgID.
func (h *Hub) Broadcast(orgID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}
	h.deliver(data, func(c *Client) bool { return c.orgID == orgID })
}

// SendToUser sends msg to every connection of one user.
func (h *Hub) SendToUser(userID int64, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal user message", "user_id", userID, "error", err)
		return
	}
	h.deliver(data, func(c *Client) bool { return c.userID == userID })
}

func (h *Hub) deliver(data []byte, match func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.orgs {
		for c := range set {
			if !match(c) {
				continue
			}
			select {
			case c.send <- data:
			default:
				h.logger.Warn("websocket client buffer full, dropping message", "user_id", c.userID)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.orgs {
		n += len(set)
	}
	return n
}
