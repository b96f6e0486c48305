package collab

import (
	"encoding/json"
	"fmt"
	"log"

	"mol-collab/internal/models"
)

// Message type tags. Client→server and server→client share one
// namespace; broadcasts reuse the client tag where the shape matches.
const (
	MsgHandshake       = "handshake"
	MsgCursorUpdate    = "cursor-update"
	MsgSelectionUpdate = "selection-update"
	MsgStateUpdate     = "state-update"
	MsgChatMessage     = "chat-message"
	MsgCameraUpdate    = "camera-update"
	MsgAnnotationAdd   = "annotation-add"

	MsgRoomCreated       = "room-created"
	MsgRoomJoined        = "room-joined"
	MsgRoomList          = "room-list"
	MsgHandshakeError    = "handshake-error"
	MsgCRDTUpdate        = "crdt-update"
	MsgParticipantJoined = "participant-joined"
	MsgParticipantLeft   = "participant-left"
	MsgAnnotationAdded   = "annotation-added"
	MsgRecordingStarted  = "recording-started"
	MsgRecordingStopped  = "recording-stopped"
	MsgError             = "error"
)

// Handshake actions.
const (
	ActionCreateRoom = "create-room"
	ActionJoinRoom   = "join-room"
	ActionListRooms  = "list-rooms"
)

// ClientMessage is the post-handshake client envelope. The type tag is
// matched against a closed set; unknown tags are malformed, not ignored.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseClientMessage decodes and validates the envelope.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return msg, nil
}

// Client payloads.

type HandshakeRequest struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	UserID    string `json:"user_id"`
	RoomID    string `json:"room_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	Token     string `json:"token"`
}

type CursorMessage struct {
	Cursor models.Vector3 `json:"cursor"`
}

type SelectionMessage struct {
	Selection []int `json:"selection"`
}

// StateUpdateMessage carries an opaque update blob for the shared state
// store. JSON encodes it base64; the server never interprets it beyond
// handing it to SharedState.ApplyUpdate.
type StateUpdateMessage struct {
	Update []byte `json:"update"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type CameraMessage struct {
	Camera models.CameraPayload `json:"camera"`
}

type AnnotationRequest struct {
	Text     string         `json:"text"`
	Atoms    []int          `json:"atoms,omitempty"`
	Position models.Vector3 `json:"position"`
}

// Server messages.

type RoomCreatedMessage struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id"`
	SessionID string      `json:"session_id"`
	Role      models.Role `json:"role"`
}

type RoomJoinedMessage struct {
	Type         string                 `json:"type"`
	RoomID       string                 `json:"room_id"`
	SessionID    string                 `json:"session_id"`
	Role         models.Role            `json:"role"`
	State        map[string]interface{} `json:"state"`
	Participants []models.Participant   `json:"participants"`
}

type RoomListMessage struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

type HandshakeErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type CRDTUpdateMessage struct {
	Type   string `json:"type"`
	Update []byte `json:"update"`
	Origin string `json:"origin"` // originating user id
}

type CursorBroadcast struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Cursor    models.Vector3 `json:"cursor"`
}

type SelectionBroadcast struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Selection []int  `json:"selection"`
}

type CameraBroadcast struct {
	Type   string               `json:"type"`
	UserID string               `json:"user_id"`
	Camera models.CameraPayload `json:"camera"`
}

type ChatBroadcast struct {
	Type string `json:"type"`
	models.ChatPayload
}

type ParticipantBroadcast struct {
	Type        string             `json:"type"`
	Participant models.Participant `json:"participant"`
}

type AnnotationBroadcast struct {
	Type       string                   `json:"type"`
	Annotation models.AnnotationPayload `json:"annotation"`
}

type RecordingStatusMessage struct {
	Type        string `json:"type"`
	RecordingID string `json:"recording_id"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// marshal encodes a server message, returning nil on failure so callers
// can skip the send. Server message types cannot realistically fail to
// encode; the log is there for when that stops being true.
func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("⚠️  Failed to encode %T: %v", v, err)
		return nil
	}
	return data
}
