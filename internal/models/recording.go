package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Recording is a finalized session capture: every event between
// recording start and stop, ready for replay or export.
type Recording struct {
	ID           string        `json:"id"`
	RoomID       string        `json:"room_id"`
	SubjectID    string        `json:"subject_id"`
	StartedAt    time.Time     `json:"started_at"`
	DurationMs   float64       `json:"duration_ms"`
	Events       []Event       `json:"events"`
	Participants []Participant `json:"participants,omitempty"`
}

func NewRecordingID() string {
	return "rec_" + ksuid.New().String()
}

// RecordingSummary is the listing view; it omits the event log so list
// queries never have to load or decode payload blobs.
type RecordingSummary struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SubjectID  string    `json:"subject_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	EventCount int       `json:"event_count"`
}

func (r *Recording) Summary() RecordingSummary {
	return RecordingSummary{
		ID:         r.ID,
		RoomID:     r.RoomID,
		SubjectID:  r.SubjectID,
		StartedAt:  r.StartedAt,
		DurationMs: r.DurationMs,
		EventCount: len(r.Events),
	}
}

/*
LEARNING: ARCHIVED RECORDINGS

The event log is stored as a single bytea column holding the binary
container format (count + duration + packed events), not as one row per
event. A one-hour session easily produces 100k+ events; packing them
keeps inserts O(1) and lets export hand the blob straight back out.
*/

// RecordingRecord is the database row for an archived recording.
type RecordingRecord struct {
	ID           string    `gorm:"type:varchar(32);primaryKey" json:"id"`
	RoomID       string    `gorm:"type:varchar(64);not null;index:idx_room_started" json:"room_id"`
	SubjectID    string    `gorm:"type:varchar(64);not null;index" json:"subject_id"`
	StartedAt    time.Time `gorm:"not null;index:idx_room_started" json:"started_at"`
	DurationMs   float64   `gorm:"not null" json:"duration_ms"`
	EventCount   int       `gorm:"not null" json:"event_count"`
	Payload      []byte    `gorm:"type:bytea;not null" json:"-"` // binary event container
	Participants []byte    `gorm:"type:jsonb" json:"-"`          // roster at stop time
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate generates KSUID
func (r *RecordingRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewRecordingID()
	}
	return nil
}

// TableName override
func (RecordingRecord) TableName() string {
	return "recordings"
}
