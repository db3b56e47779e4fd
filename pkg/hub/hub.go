package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/linefollow/internal/log"
)

// Option configures a Hub
type Option func(*Hub)

// WithReplay makes the hub send the most recent message to every client
// as it connects.
func WithReplay() Option {
	return func(h *Hub) { h.replay = true }
}

// WithHandler answers control frames sent by clients
func WithHandler(fn Handler) Option {
	return func(h *Hub) { h.handler = fn }
}

// WithLogger sets the hub logger
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name string
	log  *slog.Logger

	// Owned by Run
	clients map[*Client]bool
	last    *Message
	replay  bool
	handler Handler

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	replies    chan addressed
	done       chan struct{}

	count   atomic.Int32
	dropped atomic.Uint64

	mu      sync.Mutex
	running bool
}

// New creates a hub. name appears in log lines.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		replies:    make(chan addressed, 16),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = log.Or(h.log).With("hub", name)
	return h
}

// Run owns the client set until ctx is cancelled, then closes every client.
// A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int32(len(h.clients)))
			if h.replay && h.last != nil {
				h.deliver(client, *h.last)
			}
			h.log.Debug("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
			}
			h.log.Debug("client disconnected", "clients", len(h.clients))

		case r := <-h.replies:
			if h.clients[r.client] {
				h.deliver(r.client, r.message)
			}

		case message := <-h.broadcast:
			if h.replay {
				m := message
				h.last = &m
			}
			for client := range h.clients {
				h.deliver(client, message)
			}
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// addressed is a message for a single client
type addressed struct {
	client  *Client
	message Message
}

// reply queues message for one client. It gives up once the hub has stopped.
func (h *Hub) reply(c *Client, message Message) {
	select {
	case h.replies <- addressed{client: c, message: message}:
	case <-h.done:
	}
}

// deliver queues message for client, dropping the client if it is too slow
func (h *Hub) deliver(client *Client, message Message) {
	select {
	case client.send <- message:
	default:
		h.remove(client)
		h.log.Warn("dropped slow client")
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	h.count.Store(int32(len(h.clients)))
	close(client.send)
}

// Broadcast sends a message to all connected clients. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.log.Debug("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data (camera frames)
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Dropped returns the number of broadcasts discarded because the hub was
// saturated
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}
