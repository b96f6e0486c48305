package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mol-collab/internal/models"

	"github.com/redis/go-redis/v9"
)

/*
LEARNING: PRESENCE MIRROR

Rooms are authoritative for who is connected; Redis carries a mirror so
sibling services (notifications, dashboards) can answer "who is in room
X" without a round trip into this process. The mirror is best-effort:
keys expire on their own, so a crashed server leaves no permanent ghosts.
*/

// roomTTL bounds how long a room's presence survives without any
// membership change; cursors churn constantly and expire much faster.
const (
	roomTTL   = 24 * time.Hour
	cursorTTL = 5 * time.Minute
)

// RedisPresence implements collab.PresenceCache on go-redis.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

// AddMember records a user joining a room.
func (p *RedisPresence) AddMember(ctx context.Context, roomID, userID, username string) error {
	pipe := p.rdb.Pipeline()
	pipe.SAdd(ctx, roomKey(roomID), userID)
	pipe.HSet(ctx, namesKey(roomID), userID, username)
	pipe.Expire(ctx, roomKey(roomID), roomTTL)
	pipe.Expire(ctx, namesKey(roomID), roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror member add: %w", err)
	}
	return nil
}

// RemoveMember records a user leaving a room.
func (p *RedisPresence) RemoveMember(ctx context.Context, roomID, userID string) error {
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, roomKey(roomID), userID)
	pipe.HDel(ctx, namesKey(roomID), userID)
	pipe.Del(ctx, cursorKey(roomID, userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror member remove: %w", err)
	}
	return nil
}

// SetCursor mirrors a user's latest cursor position.
func (p *RedisPresence) SetCursor(ctx context.Context, roomID, userID string, cursor models.Vector3) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	if err := p.rdb.Set(ctx, cursorKey(roomID, userID), data, cursorTTL).Err(); err != nil {
		return fmt.Errorf("failed to mirror cursor: %w", err)
	}
	return nil
}

// ClearRoom wipes a closed room from the mirror.
func (p *RedisPresence) ClearRoom(ctx context.Context, roomID string) error {
	members, err := p.rdb.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list room members: %w", err)
	}

	pipe := p.rdb.Pipeline()
	for _, userID := range members {
		pipe.Del(ctx, cursorKey(roomID, userID))
	}
	pipe.Del(ctx, roomKey(roomID), namesKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear room presence: %w", err)
	}
	return nil
}

// Members lists the mirrored user ids for a room.
func (p *RedisPresence) Members(ctx context.Context, roomID string) ([]string, error) {
	members, err := p.rdb.SMembers(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room members: %w", err)
	}
	return members, nil
}

// Cursor fetches a user's mirrored cursor, reporting whether one exists.
func (p *RedisPresence) Cursor(ctx context.Context, roomID, userID string) (models.Vector3, bool, error) {
	data, err := p.rdb.Get(ctx, cursorKey(roomID, userID)).Bytes()
	if err == redis.Nil {
		return models.Vector3{}, false, nil
	}
	if err != nil {
		return models.Vector3{}, false, fmt.Errorf("failed to fetch cursor: %w", err)
	}
	var cursor models.Vector3
	if err := json.Unmarshal(data, &cursor); err != nil {
		return models.Vector3{}, false, fmt.Errorf("failed to decode cursor: %w", err)
	}
	return cursor, true, nil
}
