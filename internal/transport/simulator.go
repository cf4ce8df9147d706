package transport

import (
	"context"
	"fmt"
	"sync"
)

// Simulator implements Transport entirely in memory. It backs the unit
// tests and the hardware-free development mode of the server.
type Simulator struct {
	mu    sync.Mutex
	hubs  map[string]*SimHub
	order []string
}

// NewSimulator creates an empty simulated transport.
func NewSimulator() *Simulator {
	return &Simulator{hubs: make(map[string]*SimHub)}
}

// AddHub registers a simulated hub that scans will discover.
func (s *Simulator) AddHub(id, name string) *SimHub {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hub, ok := s.hubs[id]; ok {
		return hub
	}
	hub := &SimHub{id: id, name: name, reachable: true}
	s.hubs[id] = hub
	s.order = append(s.order, id)
	return hub
}

// Hub returns a previously added hub, or nil.
func (s *Simulator) Hub(id string) *SimHub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hubs[id]
}

// Scan reports every registered hub once, then blocks until ctx is
// done, mirroring a radio scan running for its full duration.
func (s *Simulator) Scan(ctx context.Context, found func(DiscoveredHub)) error {
	s.mu.Lock()
	hubs := make([]*SimHub, 0, len(s.order))
	for _, id := range s.order {
		hubs = append(hubs, s.hubs[id])
	}
	s.mu.Unlock()

	for _, hub := range hubs {
		found(DiscoveredHub{ID: hub.id, Name: hub.name, RSSI: -60})
	}

	<-ctx.Done()
	return nil
}

// Connect establishes a simulated link, honoring ctx cancellation.
func (s *Simulator) Connect(ctx context.Context, id string) (Link, error) {
	s.mu.Lock()
	hub := s.hubs[id]
	s.mu.Unlock()

	if hub == nil {
		return nil, fmt.Errorf("hub %s not found", id)
	}

	hub.mu.Lock()
	reachable := hub.reachable
	blocks := hub.connectBlocks
	hub.mu.Unlock()

	if blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !reachable {
		return nil, fmt.Errorf("hub %s rejected the connection", id)
	}

	link := &simLink{hub: hub}
	hub.mu.Lock()
	hub.link = link
	hub.mu.Unlock()
	return link, nil
}

// SimHub is one simulated physical hub.
type SimHub struct {
	id   string
	name string

	mu            sync.Mutex
	reachable     bool
	connectBlocks bool
	link          *simLink
	sent          [][]byte
}

// SetReachable controls whether future connection attempts succeed.
func (h *SimHub) SetReachable(reachable bool) {
	h.mu.Lock()
	h.reachable = reachable
	h.mu.Unlock()
}

// SetConnectBlocks makes future connection attempts hang until the
// caller's context expires, simulating a hub out of radio range.
func (h *SimHub) SetConnectBlocks(blocks bool) {
	h.mu.Lock()
	h.connectBlocks = blocks
	h.mu.Unlock()
}

// PushFrame delivers a telemetry frame to the connected link's
// subscriber, returning false if nothing is connected or subscribed.
func (h *SimHub) PushFrame(frame []byte) bool {
	h.mu.Lock()
	link := h.link
	h.mu.Unlock()
	if link == nil {
		return false
	}
	return link.deliver(frame)
}

// DropLink simulates a link-layer drop (hub powered off, out of range).
func (h *SimHub) DropLink() {
	h.mu.Lock()
	link := h.link
	h.link = nil
	h.mu.Unlock()
	if link != nil {
		link.drop()
	}
}

// Connected reports whether a live link to the hub exists.
func (h *SimHub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.link != nil && !h.link.isClosed()
}

// SentFrames returns a copy of every frame written to the hub so far.
func (h *SimHub) SentFrames() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.sent))
	for i, f := range h.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// LastFrame returns the most recently written frame, or nil.
func (h *SimHub) LastFrame() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sent) == 0 {
		return nil
	}
	return append([]byte(nil), h.sent[len(h.sent)-1]...)
}

type simLink struct {
	hub *SimHub

	mu           sync.Mutex
	closed       bool
	handler      FrameHandler
	onDisconnect func()
}

func (l *simLink) Write(frame []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return fmt.Errorf("link to %s is closed", l.hub.id)
	}

	l.hub.mu.Lock()
	l.hub.sent = append(l.hub.sent, append([]byte(nil), frame...))
	l.hub.mu.Unlock()
	return nil
}

func (l *simLink) Subscribe(handler FrameHandler) error {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
	return nil
}

func (l *simLink) SetDisconnectHandler(handler func()) {
	l.mu.Lock()
	l.onDisconnect = handler
	l.mu.Unlock()
}

func (l *simLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.hub.mu.Lock()
	if l.hub.link == l {
		l.hub.link = nil
	}
	l.hub.mu.Unlock()
	return nil
}

func (l *simLink) deliver(frame []byte) bool {
	l.mu.Lock()
	handler := l.handler
	closed := l.closed
	l.mu.Unlock()
	if closed || handler == nil {
		return false
	}
	handler(append([]byte(nil), frame...))
	return true
}

func (l *simLink) drop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	handler := l.onDisconnect
	l.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (l *simLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
