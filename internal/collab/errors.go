package collab

import "errors"

var (
	// ErrRoomNotFound is returned when a join or recording-control call
	// names a room id the registry does not know.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomClosed is returned when a command races a room's teardown.
	// Handshake handling reports it to clients as room-not-found.
	ErrRoomClosed = errors.New("room closed")

	// ErrAuthentication marks a rejected handshake token. The connection
	// is terminated after the handshake-error response.
	ErrAuthentication = errors.New("authentication failed")

	// ErrMalformedMessage marks an unparseable or unknown client message.
	// The message is dropped and reported to the sender; the connection
	// stays open.
	ErrMalformedMessage = errors.New("malformed message")
)
