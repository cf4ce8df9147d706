package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/protocol"
	"github.com/train-control-panel/backend/internal/transport"
)

func newTestSession(t *testing.T, sim *transport.Simulator, id string) *Session {
	t.Helper()
	return newSession(id, "Train 1", NewConnection(id, sim), 10)
}

func TestSessionConnectRequestsBattery(t *testing.T) {
	sim := transport.NewSimulator()
	hub := sim.AddHub("aa:01", "Train Hub")
	sess := newTestSession(t, sim, "aa:01")

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	frames := hub.SentFrames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame after connect, got %d", len(frames))
	}
	want := protocol.EncodeBatteryRequest()
	if string(frames[0]) != string(want) {
		t.Errorf("expected battery request %x, got %x", want, frames[0])
	}
}

func TestSessionApplyCommand(t *testing.T) {
	t.Run("sends motor frame and records intent", func(t *testing.T) {
		sim := transport.NewSimulator()
		hub := sim.AddHub("aa:01", "Train Hub")
		sess := newTestSession(t, sim, "aa:01")

		if err := sess.Connect(context.Background()); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if err := sess.ApplyCommand(70); err != nil {
			t.Fatalf("command failed: %v", err)
		}

		frame := hub.LastFrame()
		want, _ := protocol.EncodeSpeedCommand(protocol.DrivePort, 70)
		if string(frame) != string(want) {
			t.Errorf("expected frame %x, got %x", want, frame)
		}

		snap := sess.Snapshot()
		if snap.CurrentSpeed != 70 {
			t.Errorf("expected speed 70, got %d", snap.CurrentSpeed)
		}
		info := sess.DebugInfo()
		if info.LastCommand == nil || info.LastCommand.Speed != 70 {
			t.Errorf("last command not recorded: %+v", info.LastCommand)
		}
	})

	t.Run("invalid speed touches nothing", func(t *testing.T) {
		sim := transport.NewSimulator()
		hub := sim.AddHub("aa:01", "Train Hub")
		sess := newTestSession(t, sim, "aa:01")

		if err := sess.Connect(context.Background()); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if err := sess.ApplyCommand(40); err != nil {
			t.Fatalf("setup command failed: %v", err)
		}
		before := len(hub.SentFrames())

		err := sess.ApplyCommand(150)
		if !errors.Is(err, model.ErrInvalidCommand) {
			t.Fatalf("expected ErrInvalidCommand, got: %v", err)
		}
		if snap := sess.Snapshot(); snap.CurrentSpeed != 40 {
			t.Errorf("speed changed on invalid command: %d", snap.CurrentSpeed)
		}
		if got := len(hub.SentFrames()); got != before {
			t.Errorf("frame sent for invalid command: %d -> %d", before, got)
		}
	})

	t.Run("records intent even when send fails", func(t *testing.T) {
		sim := transport.NewSimulator()
		sim.AddHub("aa:01", "Train Hub")
		sess := newTestSession(t, sim, "aa:01")

		err := sess.ApplyCommand(30)
		if !errors.Is(err, model.ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got: %v", err)
		}
		snap := sess.Snapshot()
		if snap.CurrentSpeed != 30 {
			t.Errorf("expected requested speed 30 recorded, got %d", snap.CurrentSpeed)
		}
	})
}

func TestSessionHandleFrame(t *testing.T) {
	t.Run("battery update", func(t *testing.T) {
		sim := transport.NewSimulator()
		sess := newTestSession(t, sim, "aa:01")

		sess.HandleFrame([]byte{0x06, 0x00, 0x01, 0x06, 0x06, 0x2d})

		snap := sess.Snapshot()
		if snap.BatteryPercent == nil || *snap.BatteryPercent != 45 {
			t.Fatalf("expected battery 45, got %v", snap.BatteryPercent)
		}
	})

	t.Run("unknown frame is kept as diagnostics", func(t *testing.T) {
		sim := transport.NewSimulator()
		sess := newTestSession(t, sim, "aa:01")

		sess.HandleFrame([]byte{0x03, 0x00, 0x99})

		info := sess.DebugInfo()
		if len(info.EventLog) != 1 {
			t.Fatalf("expected 1 event, got %d", len(info.EventLog))
		}
		if info.EventLog[0].Direction != model.DirectionIn {
			t.Errorf("expected inbound event, got %s", info.EventLog[0].Direction)
		}
	})
}

func TestSessionRename(t *testing.T) {
	sim := transport.NewSimulator()
	hub := sim.AddHub("aa:01", "Train Hub")
	sess := newTestSession(t, sim, "aa:01")

	t.Run("trims and applies", func(t *testing.T) {
		if err := sess.Rename("  Blue Express  "); err != nil {
			t.Fatalf("rename failed: %v", err)
		}
		if got := sess.Name(); got != "Blue Express" {
			t.Errorf("expected %q, got %q", "Blue Express", got)
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		err := sess.Rename("   ")
		if !errors.Is(err, model.ErrInvalidName) {
			t.Errorf("expected ErrInvalidName, got: %v", err)
		}
	})

	t.Run("rejects overlong", func(t *testing.T) {
		long := make([]byte, model.MaxNameLength+1)
		for i := range long {
			long[i] = 'x'
		}
		err := sess.Rename(string(long))
		if !errors.Is(err, model.ErrInvalidName) {
			t.Errorf("expected ErrInvalidName, got: %v", err)
		}
	})

	t.Run("no wire traffic", func(t *testing.T) {
		if got := len(hub.SentFrames()); got != 0 {
			t.Errorf("rename wrote %d frames to the hub", got)
		}
	})
}

func TestSessionEventLogIsBounded(t *testing.T) {
	sim := transport.NewSimulator()
	sess := newSession("aa:01", "Train 1", NewConnection("aa:01", sim), 5)

	for i := 0; i < 12; i++ {
		sess.HandleFrame([]byte{0x03, 0x00, byte(i)})
	}

	info := sess.DebugInfo()
	if len(info.EventLog) != 5 {
		t.Fatalf("expected 5 events, got %d", len(info.EventLog))
	}
	// Oldest entries evicted first.
	if info.EventLog[0].Raw[2] != 7 {
		t.Errorf("expected oldest retained frame 7, got %d", info.EventLog[0].Raw[2])
	}
}

func TestSessionChangeNotifications(t *testing.T) {
	sim := transport.NewSimulator()
	sim.AddHub("aa:01", "Train Hub")
	sess := newTestSession(t, sim, "aa:01")

	var (
		mu    sync.Mutex
		snaps []model.HubSnapshot
	)
	sess.setOnChange(func(snap model.HubSnapshot) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) == 0 {
		t.Fatal("expected change notifications during connect")
	}
	last := snaps[len(snaps)-1]
	if last.State != model.StateConnected {
		t.Errorf("expected last snapshot connected, got %s", last.State)
	}
}
