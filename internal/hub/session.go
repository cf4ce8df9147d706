package hub

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/train-control-panel/backend/internal/buffer"
	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/protocol"
)

// FrameSink receives a copy of every wire frame a session logs, for
// out-of-band archival. Implementations must not block.
type FrameSink interface {
	Record(rec model.FrameRecord)
}

// Session is the in-memory record of one hub: identity, link state, and
// last-known values. It owns the hub's Connection and serializes all
// state mutation behind its own lock, so concurrent commands and
// telemetry for the same hub never interleave into a torn state.
type Session struct {
	id   string
	conn *Connection

	mu          sync.Mutex
	name        string
	speed       int
	battery     *int
	lastCommand *model.CommandRecord
	events      *buffer.EventLog
	sink        FrameSink
	onChange    func(snap model.HubSnapshot)
}

// newSession is called by the registry when a scan discovers a hub.
func newSession(id, name string, conn *Connection, eventCap int) *Session {
	s := &Session{
		id:     id,
		conn:   conn,
		name:   name,
		events: buffer.NewEventLog(eventCap),
	}
	conn.SetFrameHandler(s.HandleFrame)
	conn.SetStateListener(func(model.ConnectionState) {
		s.notifyChange()
	})
	return s
}

// ID returns the hub identifier. Immutable after creation.
func (s *Session) ID() string {
	return s.id
}

// Name returns the current display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// State returns the link state.
func (s *Session) State() model.ConnectionState {
	return s.conn.State()
}

// Connect establishes the hub link and subscribes to battery updates.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}

	// Battery telemetry only flows once requested.
	req := protocol.EncodeBatteryRequest()
	if err := s.conn.Send(req); err != nil {
		log.Printf("Hub %s: battery request failed: %v", s.id, err)
	} else {
		s.logEvent(model.DirectionOut, req, "battery updates requested")
	}
	return nil
}

// Disconnect closes the hub link. The session itself is retained so the
// hub stays listed and can be reconnected.
func (s *Session) Disconnect() {
	s.conn.Disconnect()
}

// ApplyCommand validates the speed, records it, and sends the encoded
// motor frame. The recorded speed is the requested one: the protocol is
// unacknowledged, so session state reflects intent, and a send failure
// is surfaced without rolling the request back.
func (s *Session) ApplyCommand(speed int) error {
	frame, err := protocol.EncodeSpeedCommand(protocol.DrivePort, speed)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.speed = speed
	s.lastCommand = &model.CommandRecord{Speed: speed, IssuedAt: time.Now()}
	s.mu.Unlock()

	s.logEvent(model.DirectionOut, frame, fmt.Sprintf("set speed %d", speed))
	sendErr := s.conn.Send(frame)
	s.notifyChange()
	return sendErr
}

// HandleFrame processes one inbound telemetry frame. It never fails:
// unrecognized frames are logged and kept as diagnostics.
func (s *Session) HandleFrame(frame []byte) {
	tel := protocol.DecodeTelemetry(frame)

	if battery, ok := tel.(protocol.Battery); ok {
		percent := battery.Percent
		s.mu.Lock()
		s.battery = &percent
		s.mu.Unlock()
	}

	s.logEvent(model.DirectionIn, frame, tel.Summary())
	s.notifyChange()
}

// Rename sets the display name. The name is trimmed and must be
// non-empty and at most model.MaxNameLength runes. Local only; no wire
// traffic.
func (s *Session) Rename(newName string) error {
	trimmed := strings.TrimSpace(newName)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > model.MaxNameLength {
		return fmt.Errorf("%q: %w", newName, model.ErrInvalidName)
	}

	s.mu.Lock()
	s.name = trimmed
	s.mu.Unlock()

	s.notifyChange()
	return nil
}

// Snapshot returns a consistent copy of the user-visible state.
func (s *Session) Snapshot() model.HubSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.HubSnapshot{
		ID:           s.id,
		Name:         s.name,
		State:        s.conn.State(),
		CurrentSpeed: s.speed,
	}
	if s.battery != nil {
		percent := *s.battery
		snap.BatteryPercent = &percent
	}
	return snap
}

// DebugInfo returns the diagnostic view: address, last command, and the
// bounded event log.
func (s *Session) DebugInfo() model.DebugInfo {
	s.mu.Lock()
	var last *model.CommandRecord
	if s.lastCommand != nil {
		cmd := *s.lastCommand
		last = &cmd
	}
	s.mu.Unlock()

	return model.DebugInfo{
		Address:     s.id,
		LastCommand: last,
		EventLog:    s.events.Snapshot(),
	}
}

func (s *Session) setFrameSink(sink FrameSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Session) setOnChange(onChange func(model.HubSnapshot)) {
	s.mu.Lock()
	s.onChange = onChange
	s.mu.Unlock()
}

func (s *Session) logEvent(direction model.EventDirection, raw []byte, summary string) {
	entry := model.EventLogEntry{
		Timestamp: time.Now(),
		Direction: direction,
		Raw:       append([]byte(nil), raw...),
		RawHex:    hex.EncodeToString(raw),
		Summary:   summary,
	}
	s.events.Append(entry)

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.Record(model.FrameRecord{
			HubID:      s.id,
			Direction:  direction,
			PayloadHex: entry.RawHex,
			Summary:    summary,
			CreatedAt:  entry.Timestamp,
		})
	}
}

func (s *Session) notifyChange() {
	s.mu.Lock()
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange(s.Snapshot())
	}
}
