package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is a game event pushed to connected clients: screen changes, new
// transcript entries, attached images, save confirmations.
type Event struct {
	Type      string      `json:"type"`
	ProfileID string      `json:"profile"`
	Data      interface{} `json:"data,omitempty"`
	Time      int64       `json:"time"`
}

// Event types.
const (
	EventStateChanged = "state_changed"
	EventScene        = "scene"
	EventImage        = "image"
	EventSaved        = "saved"
)

// Client is one WebSocket subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	hub  *EventHub

	mu     sync.Mutex
	closed bool
}

// EventHub fans game events out to connected clients.
type EventHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	events     chan Event
	mu         sync.RWMutex
	log        zerolog.Logger
}

// NewEventHub creates a hub; call Run on its own goroutine.
func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		events:     make(chan Event, 256),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Run drives the hub's event loop.
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.events:
			h.broadcastEvent(event)
		}
	}
}

// Publish queues an event for broadcast; a full queue drops the event
// rather than blocking gameplay.
func (h *EventHub) Publish(eventType, profileID string, data interface{}) {
	event := Event{
		Type:      eventType,
		ProfileID: profileID,
		Data:      data,
		Time:      time.Now().Unix(),
	}
	select {
	case h.events <- event:
	default:
		h.log.Warn().Str("type", eventType).Msg("event queue full, dropping")
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.log.Debug().Str("client", client.ID).Int("total", len(h.clients)).Msg("client connected")
	go client.writePump()
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		h.log.Debug().Str("client", client.ID).Int("total", len(h.clients)).Msg("client disconnected")
	}
}

func (h *EventHub) broadcastEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// client buffer full, skip
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.Conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}
