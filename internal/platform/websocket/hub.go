// Package websocket pushes live data to connected clients. A hub tracks
// every connection and the topics it listens on; each connection also owns
// a live scope whose subscriptions it streams as events.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/domain/session"
)

// Event types pushed to clients.
const (
	EventSession         = "session"
	EventSnapshot        = "snapshot"
	EventPermissionError = "permission-error"
	EventRoleUpdated     = "role.updated"
	EventError           = "error"
)

// Event is a message sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event carrying data as JSON.
func NewEvent(typ, id string, data any) (Event, error) {
	ev := Event{Type: typ, ID: id, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ev, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// UserTopic is the topic every connection of uid listens on.
func UserTopic(uid string) string {
	return "user:" + uid
}

// EventPublisher publishes events to subscribers of their topic.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	hub    *Hub

	// onEvent, when set, is told about every event broadcast to the
	// client. It runs under the hub's read lock and must not block.
	onEvent func(Event)

	lagged     chan struct{}
	laggedOnce sync.Once
}

// Lagged is closed once an event could not be buffered for the client.
// Events after that are dropped, so the connection must be closed and the
// client must reconnect to get fresh snapshots.
func (c *Client) Lagged() <-chan struct{} {
	return c.lagged
}

func (c *Client) isLagged() bool {
	select {
	case <-c.lagged:
		return true
	default:
		return false
	}
}

func (c *Client) markLagged() bool {
	first := false
	c.laggedOnce.Do(func() {
		close(c.lagged)
		first = true
	})
	return first
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.hub = h
	if client.lagged == nil {
		client.lagged = make(chan struct{})
	}
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client from the hub and every topic, and closes its
// Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		if _, ok := h.clients[topic][client]; ok {
			continue
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Broadcast sends an event to all clients subscribed to topic.
func (h *Hub) Broadcast(topic string, event Event) {
	event.Topic = topic
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		h.deliverLocked(client, data)
		if client.onEvent != nil {
			client.onEvent(event)
		}
	}
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.all {
		h.deliverLocked(client, data)
	}
}

// Send delivers an event to one client. It reports false when the client is
// no longer registered or is lagged.
func (h *Hub) Send(client *Client, event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.all[client]; !ok {
		return false
	}
	return h.deliverLocked(client, data)
}

// deliverLocked buffers data for client. A full buffer marks the client as
// lagged; it gets nothing more from the hub.
func (h *Hub) deliverLocked(client *Client, data []byte) bool {
	if client.isLagged() {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		if client.markLagged() {
			h.logger.Warn().Str("client", client.ID).Int("buffered", len(client.Send)).Msg("client buffer full, closing slow connection")
		}
		return false
	}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// PublishRole tells every connection of uid that its role changed. The
// connections reload their session, which re-evaluates their
// subscriptions.
func (h *Hub) PublishRole(uid string, role session.Role) {
	ev, err := NewEvent(EventRoleUpdated, "", map[string]string{"uid": uid, "role": string(role)})
	if err != nil {
		return
	}
	h.Broadcast(UserTopic(uid), ev)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
