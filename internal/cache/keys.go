package cache

import "fmt"

// Key layout for the presence mirror. Everything lives under presence:
// so a scan of one prefix can audit or wipe the mirror.
//
//   presence:room:<roomID>            set of member user ids
//   presence:names:<roomID>           hash user id -> username
//   presence:cursor:<roomID>:<userID> latest cursor (JSON), with TTL

func roomKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

func namesKey(roomID string) string {
	return fmt.Sprintf("presence:names:%s", roomID)
}

func cursorKey(roomID, userID string) string {
	return fmt.Sprintf("presence:cursor:%s:%s", roomID, userID)
}
