// Package ws provides WebSocket connection handling and message routing.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/train-control-panel/backend/internal/model"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeSpeed    MessageType = "speed"
	MessageTypeSpeedAll MessageType = "speed_all"
	MessageTypeStop     MessageType = "stop"
	MessageTypeStopAll  MessageType = "stop_all"
	MessageTypePing     MessageType = "ping"

	// Server -> Client message types
	MessageTypeInit  MessageType = "init"
	MessageTypeState MessageType = "state"
	MessageTypePong  MessageType = "pong"
	MessageTypeError MessageType = "error"
)

// Message represents a WebSocket message.
type Message struct {
	Type  MessageType         `json:"type"`
	HubID string              `json:"hub_id,omitempty"`
	Speed *int                `json:"speed,omitempty"`
	Hub   *model.HubSnapshot  `json:"hub,omitempty"`
	Hubs  []model.HubSnapshot `json:"hubs,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Client represents a WebSocket client connection.
type Client struct {
	pool   *Pool
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(pool *Pool, conn *websocket.Conn) *Client {
	return &Client{
		pool: pool,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Pool manages the WebSocket clients watching the control panel.
// Every client sees every hub, so there is a single broadcast group.
type Pool struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	// Callbacks
	onMessage func(client *Client, msg *Message)
}

// NewPool creates an empty client pool.
func NewPool() *Pool {
	return &Pool{
		clients: make(map[*Client]bool),
	}
}

// SetOnMessage sets the callback for incoming messages.
func (p *Pool) SetOnMessage(callback func(client *Client, msg *Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMessage = callback
}

// Register adds a client to the pool.
func (p *Pool) Register(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[client] = true
}

// Unregister removes a client from the pool.
func (p *Pool) Unregister(client *Client) {
	p.mu.Lock()
	delete(p.clients, client)
	p.mu.Unlock()

	client.Close()
}

// Broadcast sends raw data to all connected clients.
func (p *Pool) Broadcast(data []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for client := range p.clients {
		client.Send(data)
	}
}

// BroadcastMessage sends a Message to all connected clients.
func (p *Pool) BroadcastMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (p *Pool) ClientCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// HandleMessage processes an incoming message from a client.
func (p *Pool) HandleMessage(client *Client, msg *Message) {
	p.mu.RLock()
	callback := p.onMessage
	p.mu.RUnlock()

	if callback != nil {
		callback(client, msg)
	}
}

// Close closes all client connections.
func (p *Pool) Close() {
	p.mu.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for client := range p.clients {
		clients = append(clients, client)
	}
	p.clients = make(map[*Client]bool)
	p.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
