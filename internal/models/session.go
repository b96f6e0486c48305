package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Role describes what a participant is allowed to do in a room.
// The server assigns owner to the room creator and viewer to everyone
// else; elevation to editor/auditor is an external authorization concern.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
	RoleAuditor Role = "auditor"
)

// Vector3 is a point or direction in scene coordinates.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Session represents one WebSocket connection to a room. A user with two
// browser tabs open holds two sessions; presence and echo suppression are
// tracked per session, not per user.
type Session struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        Role      `json:"role"`
	Cursor      Vector3   `json:"cursor"`
	Selection   []int     `json:"selection,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

func NewSession(roomID, userID, username string, role Role) *Session {
	return &Session{
		ID:          ksuid.New().String(),
		RoomID:      roomID,
		UserID:      userID,
		Username:    username,
		Role:        role,
		ConnectedAt: time.Now(),
	}
}

// Participant is the wire/roster view of a session, sent to clients in
// room-joined responses and embedded in state snapshots.
type Participant struct {
	SessionID string  `json:"session_id"`
	UserID    string  `json:"user_id"`
	Username  string  `json:"username"`
	Role      Role    `json:"role"`
	Cursor    Vector3 `json:"cursor"`
	Selection []int   `json:"selection,omitempty"`
}

// Participant converts the session to its roster view.
func (s *Session) Participant() Participant {
	return Participant{
		SessionID: s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      s.Role,
		Cursor:    s.Cursor,
		Selection: s.Selection,
	}
}
