// Package recorder archives wire frames to the database off the hot
// path of command and telemetry handling.
package recorder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/train-control-panel/backend/internal/model"
	"github.com/train-control-panel/backend/internal/repository"
)

// queueSize bounds how many unwritten records the recorder holds.
// Frames arriving while the queue is full are dropped; the archive is
// diagnostics, not a system of record.
const queueSize = 256

const insertTimeout = 5 * time.Second

// Recorder implements hub.FrameSink. Record never blocks: entries are
// queued and a single worker goroutine performs the inserts.
type Recorder struct {
	repo *repository.FrameRepository

	queue chan model.FrameRecord
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// New starts a recorder writing to the given repository.
func New(repo *repository.FrameRepository) *Recorder {
	r := &Recorder{
		repo:  repo,
		queue: make(chan model.FrameRecord, queueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues one frame for archival. Safe for concurrent use; calls
// after Close are ignored.
func (r *Recorder) Record(rec model.FrameRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		log.Printf("Frame archive queue full, dropping record for hub %s", rec.HubID)
	}
}

// Close stops the recorder after draining queued records.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := r.repo.Insert(ctx, &rec); err != nil {
			log.Printf("Failed to archive frame for hub %s: %v", rec.HubID, err)
		}
		cancel()
	}
}
