package hub

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/transport"
)

// DefaultEventLogCap is the per-session event log capacity used when
// the config leaves it unset.
const DefaultEventLogCap = 100

// DefaultConnectTimeout bounds a single link establishment attempt
// when the config leaves it unset. A hub out of radio range must end
// in StateFailed, not pin the attempt forever.
const DefaultConnectTimeout = 10 * time.Second

// Config holds configuration for the registry.
type Config struct {
	EventLogCap    int
	ConnectTimeout time.Duration
}

// Registry is the process-wide table of every hub ever discovered,
// in first-seen order. Entries are never removed: a disconnected hub is
// recorded as state, not deleted, so clients never lose a device they
// have seen. At most one scan runs at a time.
type Registry struct {
	tr             transport.Transport
	eventCap       int
	connectTimeout time.Duration

	sink     FrameSink
	onChange func(snap model.HubSnapshot)

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	scanning bool
}

// NewRegistry creates an empty registry on top of the given transport.
func NewRegistry(tr transport.Transport, config Config) *Registry {
	if config.EventLogCap <= 0 {
		config.EventLogCap = DefaultEventLogCap
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	return &Registry{
		tr:             tr,
		eventCap:       config.EventLogCap,
		connectTimeout: config.ConnectTimeout,
		sessions:       make(map[string]*Session),
	}
}

// SetFrameSink attaches the frame archive. It applies to sessions
// created afterwards, so call it before the first scan.
func (r *Registry) SetFrameSink(sink FrameSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// SetOnChange attaches the listener notified with a fresh snapshot on
// every session state change. Call it before the first scan.
func (r *Registry) SetOnChange(onChange func(snap model.HubSnapshot)) {
	r.mu.Lock()
	r.onChange = onChange
	r.mu.Unlock()
}

// Scan runs discovery for the given duration and inserts a session for
// every hub identifier not seen before, preserving first-seen order.
// Already-known identifiers are left untouched. It returns the ids
// newly added by this call. A scan requested while one is running
// fails immediately with ErrScanInProgress.
func (r *Registry) Scan(ctx context.Context, duration time.Duration) ([]string, error) {
	r.mu.Lock()
	if r.scanning {
		r.mu.Unlock()
		return nil, model.ErrScanInProgress
	}
	r.scanning = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.scanning = false
		r.mu.Unlock()
	}()

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var (
		newMu  sync.Mutex
		newIDs []string
	)

	err := r.tr.Scan(scanCtx, func(d transport.DiscoveredHub) {
		if r.add(d.ID) {
			log.Printf("Hub discovered: %s (%q)", d.ID, d.Name)
			newMu.Lock()
			newIDs = append(newIDs, d.ID)
			newMu.Unlock()
		}
	})
	if err != nil {
		return newIDs, fmt.Errorf("scan failed: %w", err)
	}
	return newIDs, nil
}

// add inserts a session for a newly seen identifier, reporting whether
// the identifier was new.
func (r *Registry) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return false
	}

	name := fmt.Sprintf("Train %d", len(r.order)+1)
	sess := newSession(id, name, NewConnection(id, r.tr), r.eventCap)
	if r.sink != nil {
		sess.setFrameSink(r.sink)
	}
	if r.onChange != nil {
		sess.setOnChange(r.onChange)
	}

	r.sessions[id] = sess
	r.order = append(r.order, id)
	return true
}

// Get returns the session for the identifier, or nil if never seen.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// List returns all sessions in first-seen order.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Snapshots returns snapshots of all sessions in first-seen order.
func (r *Registry) Snapshots() []model.HubSnapshot {
	sessions := r.List()
	out := make([]model.HubSnapshot, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Snapshot()
	}
	return out
}

// Connect establishes the link for one hub. The attempt is bounded by
// the configured connect timeout; a hub that never completes link
// establishment ends in StateFailed with ErrConnectTimeout.
func (r *Registry) Connect(ctx context.Context, id string) error {
	sess := r.Get(id)
	if sess == nil {
		return fmt.Errorf("hub %s: %w", id, model.ErrUnknownHub)
	}

	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	return sess.Connect(connectCtx)
}

// ConnectAll attempts to connect every known hub concurrently. One hub
// failing neither blocks nor rolls back the others; the result maps
// each id to its own outcome.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	sessions := r.List()

	var (
		wg      sync.WaitGroup
		outMu   sync.Mutex
		results = make(map[string]error, len(sessions))
	)

	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()

			// Each hub gets its own deadline, so one slow hub does not
			// eat the others' budget.
			connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
			defer cancel()

			err := sess.Connect(connectCtx)
			outMu.Lock()
			results[sess.ID()] = err
			outMu.Unlock()
		}(sess)
	}
	wg.Wait()
	return results
}

// Close disconnects every session. The registry itself stays usable.
func (r *Registry) Close() {
	for _, sess := range r.List() {
		sess.Disconnect()
	}
}
