// Package hub fans queue change events out to realtime subscribers.
// Payloads are thin change notices; clients re-fetch state over the
// HTTP API when they receive one.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/notify"
)

type Subscription struct {
	ServiceID  string
	BookingIDs []string
}

// Client is the handle returned by Register. The subscriber owns it and
// must call Close when done; closing releases the send channel and
// removes the client from the hub.
type Client struct {
	ID         string
	Send       chan []byte
	Dispatcher *notify.Dispatcher

	mu  sync.Mutex
	sub Subscription
	hub *Hub
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action     string   `json:"action"`
	ServiceID  string   `json:"service_id"`
	BookingIDs []string `json:"booking_ids"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(id string) *Client {
	client := &Client{
		ID:         id,
		Send:       make(chan []byte, 16),
		Dispatcher: notify.NewDispatcher(),
		hub:        h,
	}
	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	return client
}

func (c *Client) Close() {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.Send)
}

func (c *Client) Update(sub Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

func (c *Client) Subscription() Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// Watched returns the booking IDs this client declared, as a set.
func (c *Client) Watched() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sub.BookingIDs) == 0 {
		return nil
	}
	watched := make(map[string]bool, len(c.sub.BookingIDs))
	for _, id := range c.sub.BookingIDs {
		watched[id] = true
	}
	return watched
}

func (c *Client) send(payload []byte) {
	select {
	case c.Send <- payload:
	default:
		log.Printf("drop message for client %s", c.ID)
	}
}

// Broadcast delivers a change notice to every client whose subscription
// matches the event's service, plus any client watching the booking the
// event concerns regardless of its service filter.
func (h *Hub) Broadcast(payload []byte, serviceID, bookingID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client, serviceID, bookingID) {
			continue
		}
		client.send(payload)
	}
}

// Each runs fn for every registered client. fn must not block.
func (h *Hub) Each(fn func(*Client)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		fn(client)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func match(client *Client, serviceID, bookingID string) bool {
	sub := client.Subscription()
	if bookingID != "" {
		for _, id := range sub.BookingIDs {
			if id == bookingID {
				return true
			}
		}
	}
	return sub.ServiceID == "" || sub.ServiceID == serviceID
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
