package model

import "time"

// ConnectionState represents the link state of a hub session.
type ConnectionState string

const (
	StateDiscovered   ConnectionState = "discovered"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

// Speed bounds for the drive motor, in percent. 0 means stopped.
const (
	MinSpeed = -100
	MaxSpeed = 100
)

// MaxNameLength is the longest display name a hub may be given.
const MaxNameLength = 64

// EventDirection marks whether an event log entry was sent to the hub
// or received from it.
type EventDirection string

const (
	DirectionIn  EventDirection = "in"
	DirectionOut EventDirection = "out"
)

// CommandRecord captures the last motion command issued to a hub.
type CommandRecord struct {
	Speed    int       `json:"speed"`
	IssuedAt time.Time `json:"issuedAt"`
}

// EventLogEntry is one entry in a session's bounded diagnostic log.
type EventLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Direction EventDirection `json:"direction"`
	Raw       []byte         `json:"-"`
	RawHex    string         `json:"raw"`
	Summary   string         `json:"summary"`
}

// HubSnapshot is a point-in-time copy of a session's user-visible state.
type HubSnapshot struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	State          ConnectionState `json:"state"`
	CurrentSpeed   int             `json:"currentSpeed"`
	BatteryPercent *int            `json:"batteryPercent,omitempty"`
}

// DebugInfo is the diagnostic view of a session.
type DebugInfo struct {
	Address     string          `json:"address"`
	LastCommand *CommandRecord  `json:"lastCommand,omitempty"`
	EventLog    []EventLogEntry `json:"eventLog"`
}

// FrameRecord is one archived wire frame, persisted for diagnostics.
type FrameRecord struct {
	ID         string         `json:"id"`
	HubID      string         `json:"hubId"`
	Direction  EventDirection `json:"direction"`
	PayloadHex string         `json:"payload"`
	Summary    string         `json:"summary"`
	CreatedAt  time.Time      `json:"createdAt"`
}
