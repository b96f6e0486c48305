package collab

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"mol-collab/internal/models"

	"github.com/gorilla/websocket"
)

/*
LEARNING: HANDSHAKE BEFORE REGISTRATION

A connection is nobody until it completes a handshake. The server reads
handshake attempts under a deadline and only constructs a Session once
a token checks out and the action succeeds, so a client that connects
and never speaks ties up nothing but a socket until the deadline fires.

Failure handling follows the error's nature:
  - bad token: handshake-error, then the server closes the connection
  - unknown room / bad request: handshake-error, connection stays open
    for another attempt; closing is the client's choice
  - unparseable message: same, the single message is dropped
*/

// handshakeWait bounds how long a connection may take per handshake
// attempt before being dropped as silent.
const handshakeWait = 10 * time.Second

// maxUserIDBytes matches the recorder's fixed event header field; user
// ids longer than this could never be recorded faithfully.
const maxUserIDBytes = 36

// Handler upgrades HTTP connections and walks them through the
// handshake into a room.
type Handler struct {
	registry  *Registry
	validator TokenValidator
	upgrader  websocket.Upgrader
}

func NewHandler(registry *Registry, validator TokenValidator) *Handler {
	return &Handler{
		registry:  registry,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Learning: CheckOrigin should validate the Origin header in
			// production; the CORS story lives at the proxy for now
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket is the /ws endpoint.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}

	for {
		conn.SetReadDeadline(time.Now().Add(handshakeWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Silent or gone before handshake: never registered, nothing
			// to clean up.
			conn.Close()
			return
		}

		var req HandshakeRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != MsgHandshake {
			h.writeError(conn, "expected handshake message")
			continue
		}

		userID, username, err := h.validator.Validate(req.Token)
		if err != nil {
			log.Printf("⚠️  Handshake rejected: %v", err)
			h.writeError(conn, ErrAuthentication.Error())
			conn.Close()
			return
		}
		if userID == "" {
			// Validator has no identity opinion: trust the claimed id.
			userID = req.UserID
			username = req.UserID
		}
		if userID == "" {
			h.writeError(conn, "user id required")
			continue
		}
		if len(userID) > maxUserIDBytes {
			h.writeError(conn, "user id exceeds 36 bytes")
			continue
		}

		switch req.Action {
		case ActionCreateRoom:
			if req.SubjectID == "" {
				h.writeError(conn, "subject id required to create a room")
				continue
			}
			room := h.registry.CreateRoom(userID, req.SubjectID)
			h.attach(conn, room, userID, username, true)
			return

		case ActionJoinRoom:
			room, ok := h.registry.Room(req.RoomID)
			if !ok {
				h.writeError(conn, ErrRoomNotFound.Error()+": "+req.RoomID)
				continue
			}
			h.attach(conn, room, userID, username, false)
			return

		case ActionListRooms:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteJSON(RoomListMessage{Type: MsgRoomList, Rooms: h.registry.ListRooms()})
			conn.Close()
			return

		default:
			h.writeError(conn, "unknown action: "+req.Action)
		}
	}
}

// attach builds the session, joins the room and hands the connection to
// its pumps. The handshake response is written directly, before the
// pumps start, so it always precedes any broadcast.
func (h *Handler) attach(conn *websocket.Conn, room *Room, userID, username string, created bool) {
	role := room.RoleFor(userID)
	sess := newSession(models.NewSession(room.ID, userID, username, role), conn, h.registry)

	state, participants, err := room.Join(sess)
	if err != nil {
		// Room closed between lookup and join.
		h.writeError(conn, ErrRoomNotFound.Error()+": "+room.ID)
		conn.Close()
		return
	}

	var response interface{}
	if created {
		response = RoomCreatedMessage{
			Type:      MsgRoomCreated,
			RoomID:    room.ID,
			SessionID: sess.ID,
			Role:      role,
		}
	} else {
		response = RoomJoinedMessage{
			Type:         MsgRoomJoined,
			RoomID:       room.ID,
			SessionID:    sess.ID,
			Role:         role,
			State:        state,
			Participants: participants,
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(response); err != nil {
		log.Printf("⚠️  Failed to send handshake response to %s: %v", sess.ID, err)
		room.Leave(sess.ID)
		conn.Close()
		return
	}

	go sess.writePump()
	go sess.readPump()
}

func (h *Handler) writeError(conn *websocket.Conn, text string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(HandshakeErrorMessage{Type: MsgHandshakeError, Error: text}); err != nil {
		log.Printf("⚠️  Failed to send handshake error: %v", err)
	}
}
