package models

import (
	"encoding/json"
	"fmt"
)

/*
LEARNING: RECORDED EVENTS

Every observable room mutation (cursor moves, state updates, chat, joins)
is captured as an Event. Events carry two clocks:

  Timestamp  - absolute wall time in Unix milliseconds (when it happened)
  RelativeMs - milliseconds since the recording started (where it sits
               on the playback timeline)

Replay is driven entirely by RelativeMs; Timestamp is kept for audit and
cross-recording correlation.
*/

// EventType identifies the kind of recorded event. The numeric value is
// the on-disk wire index, so the order of these constants is frozen:
// appending new types is safe, reordering is not.
type EventType uint8

const (
	EventCursorUpdate EventType = iota
	EventSelectionUpdate
	EventCRDTUpdate
	EventChatMessage
	EventParticipantJoined
	EventParticipantLeft
	EventStateSnapshot
	EventCameraUpdate
	EventAnnotationAdded

	eventTypeCount // sentinel, keep last
)

var eventTypeNames = [...]string{
	EventCursorUpdate:      "cursor-update",
	EventSelectionUpdate:   "selection-update",
	EventCRDTUpdate:        "crdt-update",
	EventChatMessage:       "chat-message",
	EventParticipantJoined: "participant-joined",
	EventParticipantLeft:   "participant-left",
	EventStateSnapshot:     "state-snapshot",
	EventCameraUpdate:      "camera-update",
	EventAnnotationAdded:   "annotation-added",
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t < eventTypeCount
}

func (t EventType) String() string {
	if t.Valid() {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// MarshalJSON renders the symbolic name ("cursor-update") instead of the
// wire index so exported recordings stay readable.
func (t EventType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown event type: %d", uint8(t))
	}
	return json.Marshal(t.String())
}

func (t *EventType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("failed to parse event type: %w", err)
	}
	for i, n := range eventTypeNames {
		if n == name {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type: %q", name)
}

// Event is one timestamped entry in a recording.
// Payload is kept as raw JSON so encode/decode round-trips are byte exact.
type Event struct {
	Timestamp    float64         `json:"timestamp"`
	RelativeMs   float64         `json:"relative_ms"`
	Type         EventType       `json:"type"`
	OriginUserID string          `json:"origin_user_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the event payload into dst.
func (e *Event) DecodePayload(dst interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event has no payload")
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Payload shapes, one per event type. OriginUserID on the envelope names
// the acting user; payloads only repeat it where replay needs it after
// the envelope is gone (chat transcripts, annotations).

// CursorPayload carries a 3D cursor position in scene coordinates.
type CursorPayload struct {
	Cursor Vector3 `json:"cursor"`
}

// SelectionPayload carries the set of selected atom indices.
type SelectionPayload struct {
	Selection []int `json:"selection"`
}

// StateUpdatePayload wraps an opaque shared-state update blob.
// Learning: json encodes []byte as base64, so binary-ish updates survive
// the trip through the JSON payload without escaping issues.
type StateUpdatePayload struct {
	Update []byte `json:"update"`
}

// ChatPayload is a chat message line.
type ChatPayload struct {
	UserID    string  `json:"user_id"`
	Username  string  `json:"username"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// ParticipantPayload describes a session joining or leaving a room.
type ParticipantPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
}

// SnapshotPayload is a full restore point: the shared scene state plus
// the participant roster at the instant the snapshot was taken. Seeking
// always starts from one of these.
type SnapshotPayload struct {
	State        map[string]interface{} `json:"state"`
	Participants []Participant          `json:"participants"`
}

// CameraPayload carries a viewpoint change.
type CameraPayload struct {
	Position Vector3 `json:"position"`
	Target   Vector3 `json:"target"`
	Zoom     float64 `json:"zoom"`
}

// AnnotationPayload is a persistent note pinned to part of the scene.
type AnnotationPayload struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Text      string  `json:"text"`
	Atoms     []int   `json:"atoms,omitempty"`
	Position  Vector3 `json:"position"`
	Timestamp float64 `json:"timestamp"`
}
