package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/agentgen/internal/logging"
)

const writeWait = 5 * time.Second

// Socket is the part of *websocket.Conn a Client writes through.
type Socket interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one event-stream subscriber.
type Client struct {
	ConnID      string
	Remote      string
	Socket      Socket
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a freshly upgraded connection.
func NewClient(sock Socket, remote string) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Remote:      remote,
		Socket:      sock,
		ConnectedAt: time.Now(),
	}
}

// Send writes a frame. Safe for concurrent use.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if err := c.Socket.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Socket.WriteJSON(f)
}

// Close closes the connection once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// ClientRegistry tracks connected subscribers.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a subscriber.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("remote", c.Remote).Msg("subscriber connected")
}

// Remove unregisters a subscriber by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[connID]; !ok {
		return
	}
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("subscriber disconnected")
}

// Count returns the number of subscribers.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends f to every subscriber. A failed send closes that
// subscriber; its read loop then removes it.
func (r *ClientRegistry) Broadcast(f Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if err := c.Send(f); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", f.Event).Msg("broadcast send failed")
			c.Close()
		}
	}
}

// CloseAll closes and forgets every subscriber.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
