package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/train-control-panel/backend/internal/model"
)

// FrameRepository provides data access for the archived wire frames.
type FrameRepository struct {
	db *sql.DB
}

// NewFrameRepository creates a new FrameRepository.
func NewFrameRepository(db *sql.DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// Insert appends one frame record to the archive.
func (r *FrameRepository) Insert(ctx context.Context, rec *model.FrameRecord) error {
	query := `
		INSERT INTO frames (id, hub_id, direction, payload_hex, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.HubID,
		rec.Direction,
		rec.PayloadHex,
		rec.Summary,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}

	return nil
}

// RecentByHub retrieves the most recent frames for a hub, newest first.
func (r *FrameRepository) RecentByHub(ctx context.Context, hubID string, limit int) ([]*model.FrameRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, hub_id, direction, payload_hex, summary, created_at
		FROM frames
		WHERE hub_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, hubID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	defer rows.Close()

	var records []*model.FrameRecord
	for rows.Next() {
		rec := &model.FrameRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.HubID,
			&rec.Direction,
			&rec.PayloadHex,
			&rec.Summary,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frames: %w", err)
	}

	return records, nil
}

// CountByHub returns the number of archived frames for a hub.
func (r *FrameRepository) CountByHub(ctx context.Context, hubID string) (int, error) {
	query := `SELECT COUNT(*) FROM frames WHERE hub_id = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, hubID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}

	return count, nil
}
