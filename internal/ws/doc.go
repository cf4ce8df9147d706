// Package ws provides WebSocket connection handling and message routing
// for the train control panel.
//
// The package implements:
//   - Pool: Manages the WebSocket clients watching the panel
//   - Handler: Handles WebSocket message processing (speed, stop, ping)
//   - Service: Wires the pool to the hub registry and dispatcher
//
// Key features:
//   - Live state push: every hub state change is broadcast to all clients
//   - Initial sync: a fresh client receives the full hub list on connect
//   - Command routing: speed and stop messages go through the dispatcher,
//     so WebSocket and REST clients share validation and fan-out rules
package ws
