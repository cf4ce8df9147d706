// Package buffer provides the bounded event log used for session diagnostics.
package buffer

import (
	"sync"

	"github.com/train-control-panel/backend/internal/model"
)

// EventLog is a thread-safe bounded log that keeps the most recent
// entries up to a fixed capacity. When the log is full, the oldest
// entry is evicted to make room for a new one.
//
// Sessions use it to retain the last N wire frames (in both directions)
// for the debug view without growing without bound.
type EventLog struct {
	entries []model.EventLogEntry
	cap     int
	mu      sync.RWMutex
}

// NewEventLog creates an EventLog with the given capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventLog{
		entries: make([]model.EventLogEntry, 0, capacity),
		cap:     capacity,
	}
}

// Append adds an entry, evicting the oldest entry if the log is full.
func (l *EventLog) Append(entry model.EventLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == l.cap {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
		return
	}
	l.entries = append(l.entries, entry)
}

// Snapshot returns a copy of the current entries, oldest first.
func (l *EventLog) Snapshot() []model.EventLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.EventLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries currently held.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Cap returns the log capacity.
func (l *EventLog) Cap() int {
	return l.cap
}
