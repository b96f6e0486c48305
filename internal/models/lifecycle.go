package models

import "time"

// Lifecycle event names published to the message bus.
const (
	LifecycleRoomCreated      = "room-created"
	LifecycleRoomClosed       = "room-closed"
	LifecycleParticipantJoin  = "participant-joined"
	LifecycleParticipantLeave = "participant-left"
	LifecycleRecordingStarted = "recording-started"
	LifecycleRecordingStopped = "recording-stopped"
)

// LifecycleEvent is the envelope published to Kafka when room membership
// or recording state changes. It deliberately excludes high-frequency
// traffic (cursors, state updates); the bus is for audit, not sync.
type LifecycleEvent struct {
	Event       string    `json:"event"`
	RoomID      string    `json:"room_id"`
	SubjectID   string    `json:"subject_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	RecordingID string    `json:"recording_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
