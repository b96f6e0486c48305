package testfixtures

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"mol-collab/internal/models"
	"mol-collab/internal/scene"
)

var (
	userCounter    uint64
	sessionCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// Recording fixtures start here; event timestamps are offsets from it.
func ReferenceTime() time.Time {
	return referenceTime
}

// NextUserID returns a deterministic user identifier, unique per process.
func NextUserID() string {
	return fmt.Sprintf("user-%03d", atomic.AddUint64(&userCounter, 1))
}

// NextSessionID returns a deterministic session identifier, unique per
// process.
func NextSessionID() string {
	return fmt.Sprintf("sess-%03d", atomic.AddUint64(&sessionCounter, 1))
}

// EventAt materialises a recorded event at the given offset from
// ReferenceTime. The payload is marshalled to JSON; a payload that cannot
// marshal is a broken fixture, so it panics rather than returning an error.
func EventAt(relMs float64, typ models.EventType, userID string, payload interface{}) models.Event {
	ev := models.Event{
		Timestamp:    float64(referenceTime.UnixMilli()) + relMs,
		RelativeMs:   relMs,
		Type:         typ,
		OriginUserID: userID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("testfixtures: marshal %s payload: %v", typ, err))
		}
		ev.Payload = data
	}
	return ev
}

// SceneUpdate encodes a single-op state update blob setting path to value
// at the supplied logical timestamp.
func SceneUpdate(path string, value interface{}, ts float64) []byte {
	data, err := json.Marshal(scene.Update{Ops: []scene.Op{{Path: path, Value: value, TS: ts}}})
	if err != nil {
		panic(fmt.Sprintf("testfixtures: marshal scene update: %v", err))
	}
	return data
}

// CursorEvent builds a cursor-update event.
func CursorEvent(relMs float64, userID string, x, y, z float64) models.Event {
	return EventAt(relMs, models.EventCursorUpdate, userID, models.CursorPayload{
		Cursor: models.Vector3{X: x, Y: y, Z: z},
	})
}

// StateUpdateEvent builds a crdt-update event wrapping the given blob.
func StateUpdateEvent(relMs float64, userID string, update []byte) models.Event {
	return EventAt(relMs, models.EventCRDTUpdate, userID, models.StateUpdatePayload{Update: update})
}

// ChatEvent builds a chat-message event.
func ChatEvent(relMs float64, userID, username, message string) models.Event {
	return EventAt(relMs, models.EventChatMessage, userID, models.ChatPayload{
		UserID:    userID,
		Username:  username,
		Message:   message,
		Timestamp: float64(referenceTime.UnixMilli()) + relMs,
	})
}

// SnapshotEvent builds a state-snapshot restore point.
func SnapshotEvent(relMs float64, state map[string]interface{}, participants []models.Participant) models.Event {
	return EventAt(relMs, models.EventStateSnapshot, "", models.SnapshotPayload{
		State:        state,
		Participants: participants,
	})
}

// JoinEvent builds a participant-joined event.
func JoinEvent(relMs float64, sessionID, userID, username string, role models.Role) models.Event {
	return EventAt(relMs, models.EventParticipantJoined, userID, models.ParticipantPayload{
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		Role:      role,
	})
}

// LeaveEvent builds a participant-left event.
func LeaveEvent(relMs float64, sessionID, userID, username string) models.Event {
	return EventAt(relMs, models.EventParticipantLeft, userID, models.ParticipantPayload{
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
	})
}

// Recording materialises a finalized recording from the supplied events.
// Duration is taken from the last event's offset unless the events are
// empty, in which case it is zero.
func Recording(roomID string, events ...models.Event) *models.Recording {
	var duration float64
	if len(events) > 0 {
		duration = events[len(events)-1].RelativeMs
	}
	return &models.Recording{
		ID:         models.NewRecordingID(),
		RoomID:     roomID,
		StartedAt:  referenceTime,
		DurationMs: duration,
		Events:     events,
	}
}
