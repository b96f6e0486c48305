package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/models"
)

// newTestPresence connects to a local Redis, skipping the test when
// none is reachable. Room ids are unique per test so runs never collide.
func newTestPresence(t *testing.T) (*RedisPresence, string) {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	roomID := "test-" + ksuid.New().String()
	p := NewRedisPresence(rdb)
	t.Cleanup(func() {
		p.ClearRoom(context.Background(), roomID)
		rdb.Close()
	})
	return p, roomID
}

// TestRedisPresence_Membership tests the member set round trip.
func TestRedisPresence_Membership(t *testing.T) {
	p, roomID := newTestPresence(t)
	ctx := context.Background()

	require.NoError(t, p.AddMember(ctx, roomID, "alice", "Alice"))
	require.NoError(t, p.AddMember(ctx, roomID, "bob", "Bob"))

	members, err := p.Members(ctx, roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)

	require.NoError(t, p.RemoveMember(ctx, roomID, "alice"))
	members, err = p.Members(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)
}

// TestRedisPresence_Cursor tests cursor mirroring and its removal with
// the member.
func TestRedisPresence_Cursor(t *testing.T) {
	p, roomID := newTestPresence(t)
	ctx := context.Background()

	_, ok, err := p.Cursor(ctx, roomID, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "no cursor mirrored yet")

	require.NoError(t, p.AddMember(ctx, roomID, "alice", "Alice"))
	require.NoError(t, p.SetCursor(ctx, roomID, "alice", models.Vector3{X: 1.5, Y: -2, Z: 3}))

	cursor, ok, err := p.Cursor(ctx, roomID, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Vector3{X: 1.5, Y: -2, Z: 3}, cursor)

	require.NoError(t, p.RemoveMember(ctx, roomID, "alice"))
	_, ok, err = p.Cursor(ctx, roomID, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "cursor must go with the member")
}

// TestRedisPresence_ClearRoom tests the teardown wipe.
func TestRedisPresence_ClearRoom(t *testing.T) {
	p, roomID := newTestPresence(t)
	ctx := context.Background()

	require.NoError(t, p.AddMember(ctx, roomID, "alice", "Alice"))
	require.NoError(t, p.SetCursor(ctx, roomID, "alice", models.Vector3{X: 1}))

	require.NoError(t, p.ClearRoom(ctx, roomID))

	members, err := p.Members(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, members)
	_, ok, err := p.Cursor(ctx, roomID, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestKeyLayout pins the mirror's key scheme; sibling services parse
// these prefixes.
func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "presence:room:r1", roomKey("r1"))
	assert.Equal(t, "presence:names:r1", namesKey("r1"))
	assert.Equal(t, "presence:cursor:r1:alice", cursorKey("r1", "alice"))
}
