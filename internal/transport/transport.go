// Package transport abstracts the wireless link to Powered Up hubs.
package transport

import "context"

// FrameHandler receives one inbound notification frame.
type FrameHandler func(frame []byte)

// DiscoveredHub describes a hub seen during a scan.
type DiscoveredHub struct {
	ID   string // link-layer address, stable per physical hub
	Name string // advertised local name
	RSSI int
}

// Transport is the capability surface the connection logic needs from
// the wireless layer. It is implemented by the BLE adapter and by the
// in-memory simulator used in tests and hardware-free development.
type Transport interface {
	// Scan runs discovery until ctx is done, invoking found for every
	// hub seen. The same hub may be reported more than once.
	Scan(ctx context.Context, found func(DiscoveredHub)) error

	// Connect establishes a link to the hub with the given address.
	// It honors ctx cancellation and deadline.
	Connect(ctx context.Context, id string) (Link, error)
}

// Link is one established connection to a single hub.
type Link interface {
	// Write sends a command frame. Delivery is unacknowledged.
	Write(frame []byte) error

	// Subscribe registers the handler invoked once per inbound frame,
	// in arrival order, on the transport's delivery context.
	Subscribe(handler FrameHandler) error

	// SetDisconnectHandler registers the callback fired when the
	// transport observes the link dropping.
	SetDisconnectHandler(handler func())

	// Close tears the link down. Safe to call more than once.
	Close() error
}
