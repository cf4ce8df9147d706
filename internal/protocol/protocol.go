// Package protocol encodes and decodes LEGO Powered Up (LWP3) wire frames.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/train-control-panel/backend/internal/model"
)

// CharacteristicUUID is the Powered Up characteristic used for both
// outgoing commands and incoming notifications.
const CharacteristicUUID = "00001624-1212-efde-1623-785feabcd123"

// ServiceUUID is the Powered Up hub GATT service.
const ServiceUUID = "00001623-1212-efde-1623-785feabcd123"

// DrivePort is the output port the train motor is attached to (port A).
const DrivePort byte = 0x00

// LWP3 message types used by the decoder.
const (
	msgHubProperties byte = 0x01
	msgAttachedIO    byte = 0x04
	msgPortOutput    byte = 0x81
)

// Hub property and operation ids for the battery level message.
const (
	propBatteryPercent byte = 0x06
	opEnableUpdates    byte = 0x02
	opUpdate           byte = 0x06
)

// Attached I/O event ids.
const (
	ioDetached        byte = 0x00
	ioAttached        byte = 0x01
	ioAttachedVirtual byte = 0x02
)

// EncodeSpeedCommand builds the fixed-format motor command frame for the
// given output port and speed percentage. Speed must lie in
// [model.MinSpeed, model.MaxSpeed]; 0 stops the motor.
//
// Frame layout: length, hub id, port output command (0x81), port,
// write-direct-mode-data (0x11), execute immediately (0x01), signed
// speed byte, max power (0x64), use profile (0x7f).
func EncodeSpeedCommand(port byte, speed int) ([]byte, error) {
	if speed < model.MinSpeed || speed > model.MaxSpeed {
		return nil, fmt.Errorf("speed %d: %w", speed, model.ErrInvalidCommand)
	}
	return []byte{0x08, 0x00, msgPortOutput, port, 0x11, 0x01, byte(int8(speed)), 0x64, 0x7f}, nil
}

// EncodeBatteryRequest builds the hub-property message that subscribes
// to battery percentage updates.
func EncodeBatteryRequest() []byte {
	return []byte{0x05, 0x00, msgHubProperties, propBatteryPercent, opEnableUpdates}
}

// Telemetry is a decoded inbound frame. Exactly one of the concrete
// types below is returned by DecodeTelemetry.
type Telemetry interface {
	// Summary renders a short human-readable description for event logs.
	Summary() string
}

// Battery reports the hub battery charge percentage.
type Battery struct {
	Percent int
}

func (b Battery) Summary() string {
	return fmt.Sprintf("battery %d%%", b.Percent)
}

// PortEvent reports a device being attached to or detached from a port.
type PortEvent struct {
	Port       byte
	Attached   bool
	DeviceType uint16
}

func (e PortEvent) Summary() string {
	if e.Attached {
		return fmt.Sprintf("port 0x%02x: %s attached", e.Port, DeviceTypeName(e.DeviceType))
	}
	return fmt.Sprintf("port 0x%02x: device detached", e.Port)
}

// Unknown wraps frames the decoder does not recognize. Telemetry is
// advisory, so unrecognized input is preserved rather than rejected.
type Unknown struct {
	Raw []byte
}

func (u Unknown) Summary() string {
	return fmt.Sprintf("unrecognized frame (%d bytes)", len(u.Raw))
}

// DecodeTelemetry decodes an inbound notification frame. It is total:
// any byte sequence, including empty or truncated ones, decodes to a
// value; malformed input yields Unknown.
func DecodeTelemetry(data []byte) Telemetry {
	if len(data) < 3 {
		return Unknown{Raw: data}
	}
	switch data[2] {
	case msgHubProperties:
		// [len, hub, 0x01, property, operation, payload...]
		if len(data) >= 6 && data[3] == propBatteryPercent && data[4] == opUpdate {
			return Battery{Percent: int(data[5])}
		}
	case msgAttachedIO:
		// [len, hub, 0x04, port, event, typeLow, typeHigh, ...]
		if len(data) >= 5 {
			port, event := data[3], data[4]
			switch event {
			case ioDetached:
				return PortEvent{Port: port}
			case ioAttached, ioAttachedVirtual:
				if len(data) >= 7 {
					return PortEvent{
						Port:       port,
						Attached:   true,
						DeviceType: binary.LittleEndian.Uint16(data[5:7]),
					}
				}
			}
		}
	}
	return Unknown{Raw: data}
}

// DeviceTypeName maps an LWP3 I/O type id to a display name.
func DeviceTypeName(deviceType uint16) string {
	switch deviceType {
	case 0x0001:
		return "motor"
	case 0x0002:
		return "train motor"
	case 0x0005:
		return "button"
	case 0x0008:
		return "light"
	case 0x0014:
		return "voltage sensor"
	case 0x0015:
		return "current sensor"
	case 0x0016:
		return "piezo speaker"
	case 0x0017:
		return "RGB light"
	case 0x0022:
		return "tilt sensor"
	case 0x0023:
		return "motion sensor"
	default:
		return fmt.Sprintf("device 0x%04x", deviceType)
	}
}
