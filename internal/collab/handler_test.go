package collab

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/auth"
	"mol-collab/internal/models"
	"mol-collab/internal/testfixtures"
)

const testSecret = "handler-test-secret"

// newWSServer starts a websocket endpoint backed by a fresh registry
// and JWT validation, returning the ws:// URL and the registry.
func newWSServer(t *testing.T) (string, *Registry) {
	t.Helper()
	reg := NewRegistry(Deps{})
	handler := NewHandler(reg, auth.NewJWTValidator(testSecret))
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		reg.Shutdown()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), reg
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, userID, username, time.Hour)
	require.NoError(t, err)
	return tok
}

// readWS decodes the next server message, failing the test if none
// arrives in time.
func readWS(t *testing.T, conn *websocket.Conn, dst interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(dst))
}

func writeWS(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.WriteJSON(v))
}

// createRoom runs a full create-room handshake for the given user.
func createRoom(t *testing.T, url, userID, username, subjectID string) (*websocket.Conn, RoomCreatedMessage) {
	t.Helper()
	conn := dial(t, url)
	writeWS(t, conn, HandshakeRequest{
		Type:      MsgHandshake,
		Action:    ActionCreateRoom,
		SubjectID: subjectID,
		Token:     token(t, userID, username),
	})
	var created RoomCreatedMessage
	readWS(t, conn, &created)
	require.Equal(t, MsgRoomCreated, created.Type)
	return conn, created
}

// clientMsg wraps a payload in the post-handshake client envelope.
func clientMsg(t *testing.T, typ string, payload interface{}) ClientMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return ClientMessage{Type: typ, Payload: data}
}

// TestHandler_CreateRoom tests the create-room handshake end to end.
func TestHandler_CreateRoom(t *testing.T) {
	url, reg := newWSServer(t)

	_, created := createRoom(t, url, "alice", "Alice", "1ABC")
	assert.NotEmpty(t, created.RoomID)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, models.RoleOwner, created.Role)

	require.Equal(t, 1, reg.Count())
	room, ok := reg.Room(created.RoomID)
	require.True(t, ok)
	assert.Equal(t, "1ABC", room.SubjectID)
	assert.Equal(t, 1, room.Summary().ParticipantCount)
}

// TestHandler_JoinRoom_SeesCurrentState tests that a joiner receives
// the room state including updates applied before they arrived.
func TestHandler_JoinRoom_SeesCurrentState(t *testing.T) {
	url, _ := newWSServer(t)

	owner, created := createRoom(t, url, "alice", "Alice", "1ABC")

	writeWS(t, owner, clientMsg(t, MsgStateUpdate, StateUpdateMessage{
		Update: testfixtures.SceneUpdate("representation.style", "cartoon", 100),
	}))
	// Chat echoes back to the sender, so receiving it proves the state
	// update before it was applied.
	writeWS(t, owner, clientMsg(t, MsgChatMessage, ChatRequest{Message: "ready"}))
	var echo ChatBroadcast
	readWS(t, owner, &echo)
	require.Equal(t, MsgChatMessage, echo.Type)

	joiner := dial(t, url)
	writeWS(t, joiner, HandshakeRequest{
		Type:   MsgHandshake,
		Action: ActionJoinRoom,
		RoomID: created.RoomID,
		Token:  token(t, "bob", "Bob"),
	})
	var joined RoomJoinedMessage
	readWS(t, joiner, &joined)
	require.Equal(t, MsgRoomJoined, joined.Type)
	assert.Equal(t, created.RoomID, joined.RoomID)
	assert.Equal(t, models.RoleViewer, joined.Role)
	assert.Len(t, joined.Participants, 2)

	fields, ok := joined.State["fields"].(map[string]interface{})
	require.True(t, ok, "state snapshot must carry a fields map")
	assert.Contains(t, fields, "representation.style")
}

// TestHandler_CursorFanOut tests live fan-out between two connections
// and echo suppression on the originator.
func TestHandler_CursorFanOut(t *testing.T) {
	url, _ := newWSServer(t)

	owner, created := createRoom(t, url, "alice", "Alice", "1ABC")

	peer := dial(t, url)
	writeWS(t, peer, HandshakeRequest{
		Type:   MsgHandshake,
		Action: ActionJoinRoom,
		RoomID: created.RoomID,
		Token:  token(t, "bob", "Bob"),
	})
	var joined RoomJoinedMessage
	readWS(t, peer, &joined)
	require.Equal(t, MsgRoomJoined, joined.Type)

	var joinedBroadcast ParticipantBroadcast
	readWS(t, owner, &joinedBroadcast)
	require.Equal(t, MsgParticipantJoined, joinedBroadcast.Type)

	writeWS(t, peer, clientMsg(t, MsgCursorUpdate, CursorMessage{Cursor: models.Vector3{X: 1, Y: 2, Z: 3}}))

	var cursor CursorBroadcast
	readWS(t, owner, &cursor)
	assert.Equal(t, MsgCursorUpdate, cursor.Type)
	assert.Equal(t, "bob", cursor.UserID)
	assert.Equal(t, models.Vector3{X: 1, Y: 2, Z: 3}, cursor.Cursor)

	// The peer's next message is the chat echo, not a cursor echo.
	writeWS(t, peer, clientMsg(t, MsgChatMessage, ChatRequest{Message: "hi"}))
	var echo ChatBroadcast
	readWS(t, peer, &echo)
	assert.Equal(t, MsgChatMessage, echo.Type)
	assert.Equal(t, "hi", echo.Message)
}

// TestHandler_UnknownMessageType tests that an unrecognized client
// message type is rejected with an error while the connection and the
// membership stay intact.
func TestHandler_UnknownMessageType(t *testing.T) {
	url, _ := newWSServer(t)

	conn, _ := createRoom(t, url, "alice", "Alice", "1ABC")

	writeWS(t, conn, ClientMessage{Type: "teleport", Payload: json.RawMessage(`{}`)})

	var errMsg ErrorMessage
	readWS(t, conn, &errMsg)
	assert.Equal(t, MsgError, errMsg.Type)
	assert.Contains(t, errMsg.Error, "unknown message type")

	// Still a member: chat round-trips on the same connection.
	writeWS(t, conn, clientMsg(t, MsgChatMessage, ChatRequest{Message: "still here"}))
	var echo ChatBroadcast
	readWS(t, conn, &echo)
	assert.Equal(t, MsgChatMessage, echo.Type)
	assert.Equal(t, "still here", echo.Message)
}

// TestHandler_AuthFailure_ClosesConnection tests that a bad token ends
// the connection after the handshake-error.
func TestHandler_AuthFailure_ClosesConnection(t *testing.T) {
	url, reg := newWSServer(t)

	conn := dial(t, url)
	writeWS(t, conn, HandshakeRequest{
		Type:      MsgHandshake,
		Action:    ActionCreateRoom,
		SubjectID: "1ABC",
		Token:     "not-a-jwt",
	})

	var errMsg HandshakeErrorMessage
	readWS(t, conn, &errMsg)
	assert.Equal(t, MsgHandshakeError, errMsg.Type)
	assert.Contains(t, errMsg.Error, "authentication failed")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server must close the connection after an auth failure")
	assert.Equal(t, 0, reg.Count())
}

// TestHandler_RecoverableHandshakeFailures tests that bad requests get
// an error while leaving the connection open for another attempt.
func TestHandler_RecoverableHandshakeFailures(t *testing.T) {
	url, _ := newWSServer(t)

	conn := dial(t, url)
	tok := token(t, "alice", "Alice")

	var errMsg HandshakeErrorMessage

	// Not a handshake at all
	writeWS(t, conn, clientMsg(t, MsgChatMessage, ChatRequest{Message: "hi"}))
	readWS(t, conn, &errMsg)
	assert.Contains(t, errMsg.Error, "expected handshake")

	// Unknown room
	writeWS(t, conn, HandshakeRequest{Type: MsgHandshake, Action: ActionJoinRoom, RoomID: "nope", Token: tok})
	readWS(t, conn, &errMsg)
	assert.Contains(t, errMsg.Error, "room not found")

	// Create without a subject
	writeWS(t, conn, HandshakeRequest{Type: MsgHandshake, Action: ActionCreateRoom, Token: tok})
	readWS(t, conn, &errMsg)
	assert.Contains(t, errMsg.Error, "subject id required")

	// Unknown action
	writeWS(t, conn, HandshakeRequest{Type: MsgHandshake, Action: "teleport", Token: tok})
	readWS(t, conn, &errMsg)
	assert.Contains(t, errMsg.Error, "unknown action")

	// The same connection can still complete a handshake
	writeWS(t, conn, HandshakeRequest{Type: MsgHandshake, Action: ActionCreateRoom, SubjectID: "1ABC", Token: tok})
	var created RoomCreatedMessage
	readWS(t, conn, &created)
	assert.Equal(t, MsgRoomCreated, created.Type)
}

// TestHandler_RejectsOversizedUserID tests the recorder-driven cap on
// user id length.
func TestHandler_RejectsOversizedUserID(t *testing.T) {
	url, _ := newWSServer(t)

	conn := dial(t, url)
	writeWS(t, conn, HandshakeRequest{
		Type:      MsgHandshake,
		Action:    ActionCreateRoom,
		SubjectID: "1ABC",
		Token:     token(t, strings.Repeat("x", maxUserIDBytes+1), "Long"),
	})

	var errMsg HandshakeErrorMessage
	readWS(t, conn, &errMsg)
	assert.Equal(t, MsgHandshakeError, errMsg.Type)
	assert.Contains(t, errMsg.Error, "36 bytes")
}

// TestHandler_ListRooms tests the list action and that the server
// closes the connection after answering.
func TestHandler_ListRooms(t *testing.T) {
	url, _ := newWSServer(t)

	_, created := createRoom(t, url, "alice", "Alice", "1ABC")

	conn := dial(t, url)
	writeWS(t, conn, HandshakeRequest{
		Type:   MsgHandshake,
		Action: ActionListRooms,
		Token:  token(t, "bob", "Bob"),
	})

	var list RoomListMessage
	readWS(t, conn, &list)
	assert.Equal(t, MsgRoomList, list.Type)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, created.RoomID, list.Rooms[0].RoomID)
	assert.Equal(t, "1ABC", list.Rooms[0].SubjectID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "list-rooms is a one-shot query")
}

// TestHandler_DisconnectLeavesRoom tests that dropping the socket
// removes the participant and dissolves an emptied room.
func TestHandler_DisconnectLeavesRoom(t *testing.T) {
	url, reg := newWSServer(t)

	conn, created := createRoom(t, url, "alice", "Alice", "1ABC")
	require.Equal(t, 1, reg.Count())

	conn.Close()

	require.Eventually(t, func() bool {
		_, ok := reg.Room(created.RoomID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "room should dissolve after its only participant disconnects")
}
