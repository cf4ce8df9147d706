package transport

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/train-control-panel/backend/internal/protocol"
)

// Advertised name fragments that identify a Powered Up train hub.
var hubNameKeywords = []string{"TRAIN", "HUB", "MOVE", "CITY", "LEGO"}

// BLE implements Transport on top of the system Bluetooth adapter.
type BLE struct {
	adapter *bluetooth.Adapter

	mu    sync.Mutex
	links map[string]*bleLink
}

// NewBLE enables the default Bluetooth adapter and returns a transport
// backed by it.
func NewBLE() (*BLE, error) {
	adapter := bluetooth.DefaultAdapter
	if adapter == nil {
		return nil, fmt.Errorf("no BLE adapter available")
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	b := &BLE{
		adapter: adapter,
		links:   make(map[string]*bleLink),
	}

	// Route link drops observed by the adapter to the affected link.
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		b.mu.Lock()
		link := b.links[device.Address.String()]
		b.mu.Unlock()
		if link != nil {
			link.notifyDisconnect()
		}
	})

	return b, nil
}

// IsHubName reports whether an advertised name looks like a train hub.
func IsHubName(name string) bool {
	upper := strings.ToUpper(name)
	for _, keyword := range hubNameKeywords {
		if strings.Contains(upper, keyword) {
			return true
		}
	}
	return false
}

// Scan runs BLE discovery until ctx is done, reporting every
// advertisement whose name matches the hub keywords.
func (b *BLE) Scan(ctx context.Context, found func(DiscoveredHub)) error {
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if !IsHubName(name) {
				return
			}
			found(DiscoveredHub{
				ID:   result.Address.String(),
				Name: name,
				RSSI: int(result.RSSI),
			})
		})
	}()

	select {
	case <-ctx.Done():
		if err := b.adapter.StopScan(); err != nil {
			log.Printf("Failed to stop BLE scan: %v", err)
		}
		<-scanErr
		return nil
	case err := <-scanErr:
		return err
	}
}

// Connect locates the hub by address, connects, and resolves the
// Powered Up command characteristic.
func (b *BLE) Connect(ctx context.Context, id string) (Link, error) {
	target, err := b.findDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	device, err := b.adapter.Connect(target.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", id, err)
	}

	char, err := b.resolveCommandCharacteristic(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	link := &bleLink{
		transport: b,
		id:        id,
		device:    device,
		char:      char,
	}

	b.mu.Lock()
	b.links[id] = link
	b.mu.Unlock()

	return link, nil
}

// findDevice scans for the advertisement matching the given address.
func (b *BLE) findDevice(ctx context.Context, id string) (bluetooth.ScanResult, error) {
	var (
		target bluetooth.ScanResult
		found  bool
		mu     sync.Mutex
	)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.Address.String() != id {
				return
			}
			mu.Lock()
			target = result
			found = true
			mu.Unlock()
			cancel()
		})
	}()

	<-scanCtx.Done()
	if err := b.adapter.StopScan(); err != nil {
		log.Printf("Failed to stop BLE scan: %v", err)
	}
	<-scanErr

	mu.Lock()
	defer mu.Unlock()
	if !found {
		if err := ctx.Err(); err != nil {
			return bluetooth.ScanResult{}, err
		}
		return bluetooth.ScanResult{}, fmt.Errorf("hub %s not found", id)
	}
	return target, nil
}

// resolveCommandCharacteristic discovers the Powered Up service and its
// single command/notification characteristic.
func (b *BLE) resolveCommandCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var zero bluetooth.DeviceCharacteristic

	serviceUUID, err := bluetooth.ParseUUID(protocol.ServiceUUID)
	if err != nil {
		return zero, fmt.Errorf("bad service UUID: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(protocol.CharacteristicUUID)
	if err != nil {
		return zero, fmt.Errorf("bad characteristic UUID: %w", err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return zero, fmt.Errorf("hub service discovery failed: %w", err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		return zero, fmt.Errorf("hub characteristic discovery failed: %w", err)
	}

	return chars[0], nil
}

func (b *BLE) removeLink(id string) {
	b.mu.Lock()
	delete(b.links, id)
	b.mu.Unlock()
}

// bleLink is one live connection to a physical hub.
type bleLink struct {
	transport *BLE
	id        string
	device    bluetooth.Device
	char      bluetooth.DeviceCharacteristic

	mu           sync.Mutex
	closed       bool
	onDisconnect func()
}

func (l *bleLink) Write(frame []byte) error {
	if _, err := l.char.WriteWithoutResponse(frame); err != nil {
		return fmt.Errorf("failed to write frame to %s: %w", l.id, err)
	}
	return nil
}

func (l *bleLink) Subscribe(handler FrameHandler) error {
	if err := l.char.EnableNotifications(func(buf []byte) {
		// The notification buffer is reused by the stack; copy before
		// handing the frame off.
		frame := make([]byte, len(buf))
		copy(frame, buf)
		handler(frame)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s notifications: %w", l.id, err)
	}
	return nil
}

func (l *bleLink) SetDisconnectHandler(handler func()) {
	l.mu.Lock()
	l.onDisconnect = handler
	l.mu.Unlock()
}

func (l *bleLink) notifyDisconnect() {
	l.mu.Lock()
	handler := l.onDisconnect
	closed := l.closed
	l.closed = true
	l.mu.Unlock()

	l.transport.removeLink(l.id)
	if !closed && handler != nil {
		handler()
	}
}

func (l *bleLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.transport.removeLink(l.id)
	if err := l.device.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", l.id, err)
	}
	return nil
}
