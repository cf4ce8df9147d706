package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/train-control-panel/backend/internal/db"
	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/repository"
)

func newTestRecorder(t *testing.T) (*Recorder, *repository.FrameRepository) {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	repo := repository.NewFrameRepository(testDB)
	return New(repo), repo
}

func TestRecorderArchivesFrames(t *testing.T) {
	rec, repo := newTestRecorder(t)

	for i := 0; i < 3; i++ {
		rec.Record(model.FrameRecord{
			HubID:      "aa:01",
			Direction:  model.DirectionOut,
			PayloadHex: "0800810011010a647f",
			Summary:    "set speed 10",
			CreatedAt:  time.Now().UTC(),
		})
	}
	rec.Close()

	records, err := repo.RecentByHub(context.Background(), "aa:01", 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 archived frames, got %d", len(records))
	}
	for _, r := range records {
		if r.ID == "" {
			t.Error("archived frame missing generated id")
		}
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	rec, _ := newTestRecorder(t)

	rec.Close()
	rec.Close()

	// Records after close are dropped, not panicking.
	rec.Record(model.FrameRecord{HubID: "aa:01"})
}
