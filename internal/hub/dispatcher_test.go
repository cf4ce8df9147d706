package hub

import (
	"context"
	"errors"
	"testing"

	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/protocol"
	"github.com/train-control-panel/backend/internal/transport"
)

func newTestDispatcher(t *testing.T, sim *transport.Simulator) (*Dispatcher, *Registry) {
	t.Helper()
	reg := NewRegistry(sim, Config{})
	if _, err := reg.Scan(context.Background(), scanWindow); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	return NewDispatcher(reg), reg
}

func TestDispatcherCommand(t *testing.T) {
	t.Run("unknown hub", func(t *testing.T) {
		disp, _ := newTestDispatcher(t, transport.NewSimulator())
		err := disp.Command("no:such", 50)
		if !errors.Is(err, model.ErrUnknownHub) {
			t.Errorf("expected ErrUnknownHub, got: %v", err)
		}
	})

	t.Run("routes to the right hub", func(t *testing.T) {
		sim := transport.NewSimulator()
		first := sim.AddHub("aa:01", "Train Hub")
		second := sim.AddHub("aa:02", "City Hub")

		disp, reg := newTestDispatcher(t, sim)
		reg.ConnectAll(context.Background())

		if err := disp.Command("aa:02", 60); err != nil {
			t.Fatalf("command failed: %v", err)
		}
		// One battery request each from connect; only aa:02 got the
		// motor frame.
		if got := len(first.SentFrames()); got != 1 {
			t.Errorf("aa:01 received %d frames, expected 1", got)
		}
		want, _ := protocol.EncodeSpeedCommand(protocol.DrivePort, 60)
		if string(second.LastFrame()) != string(want) {
			t.Errorf("aa:02 frame: expected %x, got %x", want, second.LastFrame())
		}
	})

	t.Run("stop is speed zero", func(t *testing.T) {
		sim := transport.NewSimulator()
		hub := sim.AddHub("aa:01", "Train Hub")

		disp, reg := newTestDispatcher(t, sim)
		reg.ConnectAll(context.Background())

		if err := disp.Stop("aa:01"); err != nil {
			t.Fatalf("stop failed: %v", err)
		}
		want, _ := protocol.EncodeSpeedCommand(protocol.DrivePort, 0)
		if string(hub.LastFrame()) != string(want) {
			t.Errorf("expected stop frame %x, got %x", want, hub.LastFrame())
		}
	})
}

func TestDispatcherCommandAll(t *testing.T) {
	t.Run("skips unconnected hubs", func(t *testing.T) {
		sim := transport.NewSimulator()
		sim.AddHub("aa:01", "Train Hub")
		sim.AddHub("aa:02", "City Hub")

		disp, reg := newTestDispatcher(t, sim)
		if err := reg.Connect(context.Background(), "aa:01"); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		results, err := disp.CommandAll(40)
		if err != nil {
			t.Fatalf("command-all failed: %v", err)
		}
		if !results["aa:01"].OK {
			t.Errorf("aa:01 outcome: %+v", results["aa:01"])
		}
		if !results["aa:02"].Skipped {
			t.Errorf("aa:02 should be skipped: %+v", results["aa:02"])
		}
		// Skipped hubs keep their state untouched.
		if snap := reg.Get("aa:02").Snapshot(); snap.CurrentSpeed != 0 {
			t.Errorf("skipped hub speed changed: %d", snap.CurrentSpeed)
		}
	})

	t.Run("invalid speed touches no hub", func(t *testing.T) {
		sim := transport.NewSimulator()
		hub := sim.AddHub("aa:01", "Train Hub")

		disp, reg := newTestDispatcher(t, sim)
		reg.ConnectAll(context.Background())
		before := len(hub.SentFrames())

		_, err := disp.CommandAll(101)
		if !errors.Is(err, model.ErrInvalidCommand) {
			t.Fatalf("expected ErrInvalidCommand, got: %v", err)
		}
		if got := len(hub.SentFrames()); got != before {
			t.Errorf("invalid group command reached the hub: %d -> %d", before, got)
		}
	})

	t.Run("one failure does not stop the rest", func(t *testing.T) {
		sim := transport.NewSimulator()
		sim.AddHub("aa:01", "Train Hub")
		flaky := sim.AddHub("aa:02", "City Hub")
		third := sim.AddHub("aa:03", "Move Hub")

		disp, reg := newTestDispatcher(t, sim)
		reg.ConnectAll(context.Background())

		flaky.DropLink()
		waitFor(t, func() bool {
			return reg.Get("aa:02").State() == model.StateDisconnected
		}, "aa:02 disconnect")

		results, err := disp.CommandAll(25)
		if err != nil {
			t.Fatalf("command-all failed: %v", err)
		}
		if !results["aa:01"].OK {
			t.Errorf("aa:01 outcome: %+v", results["aa:01"])
		}
		if !results["aa:02"].Skipped {
			t.Errorf("aa:02 should be skipped after disconnect: %+v", results["aa:02"])
		}
		if !results["aa:03"].OK {
			t.Errorf("aa:03 outcome: %+v", results["aa:03"])
		}
		want, _ := protocol.EncodeSpeedCommand(protocol.DrivePort, 25)
		if string(third.LastFrame()) != string(want) {
			t.Errorf("aa:03 did not receive the group command")
		}
	})

	t.Run("stop all", func(t *testing.T) {
		sim := transport.NewSimulator()
		hub := sim.AddHub("aa:01", "Train Hub")

		disp, reg := newTestDispatcher(t, sim)
		reg.ConnectAll(context.Background())
		if err := disp.Command("aa:01", 80); err != nil {
			t.Fatalf("command failed: %v", err)
		}

		results := disp.StopAll()
		if !results["aa:01"].OK {
			t.Fatalf("stop-all outcome: %+v", results["aa:01"])
		}
		if snap := reg.Get("aa:01").Snapshot(); snap.CurrentSpeed != 0 {
			t.Errorf("expected speed 0 after stop-all, got %d", snap.CurrentSpeed)
		}
		want, _ := protocol.EncodeSpeedCommand(protocol.DrivePort, 0)
		if string(hub.LastFrame()) != string(want) {
			t.Errorf("expected stop frame last, got %x", hub.LastFrame())
		}
	})
}

func TestDispatcherRenameAndDebug(t *testing.T) {
	sim := transport.NewSimulator()
	sim.AddHub("aa:01", "Train Hub")
	disp, _ := newTestDispatcher(t, sim)

	if err := disp.Rename("no:such", "x"); !errors.Is(err, model.ErrUnknownHub) {
		t.Errorf("expected ErrUnknownHub, got: %v", err)
	}
	if err := disp.Rename("aa:01", "Express"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	if _, err := disp.DebugInfo("no:such"); !errors.Is(err, model.ErrUnknownHub) {
		t.Errorf("expected ErrUnknownHub, got: %v", err)
	}
	info, err := disp.DebugInfo("aa:01")
	if err != nil {
		t.Fatalf("debug info failed: %v", err)
	}
	if info.Address != "aa:01" {
		t.Errorf("expected address aa:01, got %s", info.Address)
	}
}
