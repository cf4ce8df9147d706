package hub

import (
	"fmt"

	"github.com/train-control-panel/backend/internal/model"
)

// Dispatcher is the command entry point sitting above the registry. It
// resolves hub identifiers, fans group commands out across sessions,
// and keeps one hub's failure from aborting the rest.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Outcome is the per-hub result of a group command.
type Outcome struct {
	OK      bool
	Skipped bool
	Err     error
}

// Command sets the drive speed of a single hub.
func (d *Dispatcher) Command(id string, speed int) error {
	sess := d.registry.Get(id)
	if sess == nil {
		return fmt.Errorf("hub %s: %w", id, model.ErrUnknownHub)
	}
	return sess.ApplyCommand(speed)
}

// Stop halts a single hub. Equivalent to a speed-zero command.
func (d *Dispatcher) Stop(id string) error {
	return d.Command(id, 0)
}

// CommandAll sends the speed to every connected hub. The speed is
// validated once up front; an invalid value touches no hub. Hubs not
// currently connected are skipped, not failed; a send error on one hub
// does not stop delivery to the rest. The result maps each known id to
// its outcome.
func (d *Dispatcher) CommandAll(speed int) (map[string]Outcome, error) {
	if speed < model.MinSpeed || speed > model.MaxSpeed {
		return nil, fmt.Errorf("speed %d: %w", speed, model.ErrInvalidCommand)
	}

	results := make(map[string]Outcome)
	for _, sess := range d.registry.List() {
		if sess.State() != model.StateConnected {
			results[sess.ID()] = Outcome{Skipped: true}
			continue
		}
		if err := sess.ApplyCommand(speed); err != nil {
			results[sess.ID()] = Outcome{Err: err}
			continue
		}
		results[sess.ID()] = Outcome{OK: true}
	}
	return results, nil
}

// StopAll halts every connected hub.
func (d *Dispatcher) StopAll() map[string]Outcome {
	results, _ := d.CommandAll(0)
	return results
}

// Rename changes a hub's display name.
func (d *Dispatcher) Rename(id, name string) error {
	sess := d.registry.Get(id)
	if sess == nil {
		return fmt.Errorf("hub %s: %w", id, model.ErrUnknownHub)
	}
	return sess.Rename(name)
}

// DebugInfo returns the diagnostic view of a hub.
func (d *Dispatcher) DebugInfo(id string) (model.DebugInfo, error) {
	sess := d.registry.Get(id)
	if sess == nil {
		return model.DebugInfo{}, fmt.Errorf("hub %s: %w", id, model.ErrUnknownHub)
	}
	return sess.DebugInfo(), nil
}
