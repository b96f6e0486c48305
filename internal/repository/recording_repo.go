package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mol-collab/internal/models"
	"mol-collab/internal/recording"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a recording id has no archived row.
var ErrNotFound = errors.New("recording not found")

/*
LEARNING: ARCHIVE SHAPE

One row per recording. The event log goes into a single bytea column in
the same binary container format the export endpoint serves, so archive
and export are the same bytes and a restore is a straight decode. The
queryable fields (room, subject, duration, event count) are lifted into
their own columns for listing without touching the blob.
*/

// RecordingRepositoryImpl handles durable recording storage
type RecordingRepositoryImpl struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new recording repository
func NewRecordingRepository(db *gorm.DB) *RecordingRepositoryImpl {
	return &RecordingRepositoryImpl{db: db}
}

// Save archives a finalized recording.
func (r *RecordingRepositoryImpl) Save(ctx context.Context, rec *models.Recording) error {
	payload, err := recording.EncodeEvents(rec.DurationMs, rec.Events)
	if err != nil {
		return fmt.Errorf("failed to encode recording %s: %w", rec.ID, err)
	}

	participants, err := json.Marshal(rec.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants for %s: %w", rec.ID, err)
	}

	record := &models.RecordingRecord{
		ID:           rec.ID,
		RoomID:       rec.RoomID,
		SubjectID:    rec.SubjectID,
		StartedAt:    rec.StartedAt,
		DurationMs:   rec.DurationMs,
		EventCount:   len(rec.Events),
		Payload:      payload,
		Participants: participants,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store recording %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID loads and decodes an archived recording.
func (r *RecordingRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Recording, error) {
	var record models.RecordingRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}

	durationMs, events, err := recording.DecodeEvents(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode recording %s: %w", id, err)
	}

	rec := &models.Recording{
		ID:         record.ID,
		RoomID:     record.RoomID,
		SubjectID:  record.SubjectID,
		StartedAt:  record.StartedAt,
		DurationMs: durationMs,
		Events:     events,
	}
	if len(record.Participants) > 0 {
		if err := json.Unmarshal(record.Participants, &rec.Participants); err != nil {
			return nil, fmt.Errorf("failed to decode participants for %s: %w", id, err)
		}
	}
	return rec, nil
}

// List returns archived recording summaries, newest first. An empty
// roomID lists across all rooms.
func (r *RecordingRepositoryImpl) List(ctx context.Context, roomID string, limit int) ([]models.RecordingSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Model(&models.RecordingRecord{}).
		Select("id", "room_id", "subject_id", "started_at", "duration_ms", "event_count").
		Order("started_at DESC").
		Limit(limit)
	if roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}

	var records []models.RecordingRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	out := make([]models.RecordingSummary, 0, len(records))
	for _, record := range records {
		out = append(out, models.RecordingSummary{
			ID:         record.ID,
			RoomID:     record.RoomID,
			SubjectID:  record.SubjectID,
			StartedAt:  record.StartedAt,
			DurationMs: record.DurationMs,
			EventCount: record.EventCount,
		})
	}
	return out, nil
}

// DeleteOlderThan removes recordings that started before the cutoff.
// Call periodically to keep the archive bounded.
func (r *RecordingRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&models.RecordingRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old recordings: %w", result.Error)
	}
	return result.RowsAffected, nil
}
