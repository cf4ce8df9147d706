// Package hub implements the device session manager: per-hub
// connections, session state, the registry, and the command dispatcher.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/transport"
)

// frameQueueSize bounds how many undispatched telemetry frames a
// connection will hold before dropping new ones. Telemetry is advisory.
const frameQueueSize = 64

// Connection owns one wireless link to a single hub. It tracks the
// link state machine and forwards inbound frames, in arrival order, to
// a handler running on its own dispatch goroutine so that handlers may
// issue sends without re-entering the transport's delivery context.
//
// A fresh connection reports StateDiscovered until its first connect
// attempt. Reconnecting after a failure or disconnect is a new attempt,
// not a resume.
type Connection struct {
	id string
	tr transport.Transport

	mu      sync.RWMutex
	state   model.ConnectionState
	link    transport.Link
	frames  chan []byte
	done    chan struct{}
	onFrame func(frame []byte)
	onState func(state model.ConnectionState)
}

// NewConnection creates an unconnected connection for the given hub.
func NewConnection(id string, tr transport.Transport) *Connection {
	return &Connection{
		id:    id,
		tr:    tr,
		state: model.StateDiscovered,
	}
}

// ID returns the hub's link-layer address.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current link state.
func (c *Connection) State() model.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetFrameHandler registers the handler invoked once per inbound frame.
// Must be set before Connect.
func (c *Connection) SetFrameHandler(handler func(frame []byte)) {
	c.mu.Lock()
	c.onFrame = handler
	c.mu.Unlock()
}

// SetStateListener registers a callback invoked after every state
// transition.
func (c *Connection) SetStateListener(listener func(state model.ConnectionState)) {
	c.mu.Lock()
	c.onState = listener
	c.mu.Unlock()
}

// Connect establishes the link and subscribes to hub notifications.
// It is a no-op if the connection is already live. On timeout the
// state moves to StateFailed and ErrConnectTimeout is returned; any
// other transport rejection yields ErrConnectFailed.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case model.StateConnected:
		c.mu.Unlock()
		return nil
	case model.StateConnecting:
		c.mu.Unlock()
		return fmt.Errorf("hub %s: connection attempt already running", c.id)
	}
	c.state = model.StateConnecting
	c.mu.Unlock()
	c.notifyState(model.StateConnecting)

	link, err := c.tr.Connect(ctx, c.id)
	if err != nil {
		c.setState(model.StateFailed)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("hub %s: %w", c.id, model.ErrConnectTimeout)
		}
		return fmt.Errorf("hub %s: %w: %v", c.id, model.ErrConnectFailed, err)
	}

	frames := make(chan []byte, frameQueueSize)
	done := make(chan struct{})

	c.mu.Lock()
	c.link = link
	c.frames = frames
	c.done = done
	c.state = model.StateConnected
	c.mu.Unlock()

	go c.dispatchLoop(frames, done)

	link.SetDisconnectHandler(func() {
		log.Printf("Hub %s: link dropped", c.id)
		c.teardown(model.StateDisconnected)
	})

	if err := link.Subscribe(c.enqueue); err != nil {
		c.teardown(model.StateFailed)
		return fmt.Errorf("hub %s: %w: %v", c.id, model.ErrConnectFailed, err)
	}

	c.notifyState(model.StateConnected)
	return nil
}

// Send writes a command frame to the hub. Delivery is fire-and-forget;
// the hub protocol carries no application-level acknowledgement.
func (c *Connection) Send(frame []byte) error {
	c.mu.RLock()
	state, link := c.state, c.link
	c.mu.RUnlock()

	if state != model.StateConnected || link == nil {
		return fmt.Errorf("hub %s: %w", c.id, model.ErrNotConnected)
	}
	if err := link.Write(frame); err != nil {
		return fmt.Errorf("hub %s: send failed: %w", c.id, err)
	}
	return nil
}

// Disconnect tears the link down. It is idempotent and always ends in
// StateDisconnected, except for a connection that was never attempted,
// which stays in StateDiscovered.
func (c *Connection) Disconnect() {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	if state == model.StateDiscovered {
		return
	}
	c.teardown(model.StateDisconnected)
}

// enqueue runs on the transport's delivery context. It hands the frame
// to the dispatch goroutine without blocking.
func (c *Connection) enqueue(frame []byte) {
	c.mu.RLock()
	frames := c.frames
	state := c.state
	c.mu.RUnlock()

	if state != model.StateConnected || frames == nil {
		return
	}
	select {
	case frames <- frame:
	default:
		log.Printf("Hub %s: telemetry queue full, dropping frame", c.id)
	}
}

func (c *Connection) dispatchLoop(frames <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-frames:
			c.mu.RLock()
			handler := c.onFrame
			c.mu.RUnlock()
			if handler != nil {
				handler(frame)
			}
		}
	}
}

func (c *Connection) teardown(final model.ConnectionState) {
	c.mu.Lock()
	if c.state == final && c.link == nil {
		c.mu.Unlock()
		return
	}
	link := c.link
	done := c.done
	c.link = nil
	c.frames = nil
	c.done = nil
	c.state = final
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if link != nil {
		link.Close()
	}
	c.notifyState(final)
}

func (c *Connection) setState(state model.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notifyState(state)
}

func (c *Connection) notifyState(state model.ConnectionState) {
	c.mu.RLock()
	listener := c.onState
	c.mu.RUnlock()
	if listener != nil {
		listener(state)
	}
}
