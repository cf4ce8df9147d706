package ws

import (
	"github.com/train-control-panel/backend/internal/hub"
	"github.com/train-control-panel/backend/internal/model"
)

// Service wires the WebSocket layer to the hub registry: session state
// changes flow out to every connected panel, and panel commands flow in
// through the dispatcher.
type Service struct {
	pool    *Pool
	handler *Handler
}

// NewService creates the WebSocket service and subscribes it to
// registry state changes.
func NewService(registry *hub.Registry, dispatcher *hub.Dispatcher) *Service {
	pool := NewPool()
	handler := NewHandler(pool, registry, dispatcher)

	registry.SetOnChange(func(snap model.HubSnapshot) {
		handler.BroadcastState(snap)
	})

	return &Service{
		pool:    pool,
		handler: handler,
	}
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Pool returns the client pool.
func (s *Service) Pool() *Pool {
	return s.pool
}

// ClientCount returns the number of connected panel clients.
func (s *Service) ClientCount() int {
	return s.pool.ClientCount()
}

// Close closes all WebSocket connections.
func (s *Service) Close() {
	s.pool.Close()
}
