package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/models"
	"mol-collab/internal/recording"
)

// TestRegistry_CreateAndLookup tests room creation, lookup, listing
// order and the live counter.
func TestRegistry_CreateAndLookup(t *testing.T) {
	reg := NewRegistry(Deps{})
	t.Cleanup(reg.Shutdown)

	first := reg.CreateRoom("alice", "1ABC")
	second := reg.CreateRoom("bob", "2XYZ")
	require.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, reg.Count())

	got, ok := reg.Room(first.ID)
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = reg.Room("nope")
	assert.False(t, ok)

	summaries := reg.ListRooms()
	require.Len(t, summaries, 2)
	assert.Less(t, summaries[0].RoomID, summaries[1].RoomID)
	for _, s := range summaries {
		assert.Zero(t, s.ParticipantCount)
		assert.False(t, s.IsRecording)
	}
}

// TestRegistry_RecordingByRoomID tests the recording pass-through and
// the unknown-room error.
func TestRegistry_RecordingByRoomID(t *testing.T) {
	reg := NewRegistry(Deps{})
	t.Cleanup(reg.Shutdown)

	room := reg.CreateRoom("alice", "1ABC")
	sess := newSession(models.NewSession(room.ID, "alice", "Alice", models.RoleOwner), nil, nil)
	_, _, err := room.Join(sess)
	require.NoError(t, err)

	id, err := reg.StartRecording(room.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec, err := reg.StopRecording(room.ID)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	_, err = reg.StartRecording("nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = reg.StopRecording("nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

// TestRegistry_DissolvedRoomIsForgotten tests that a room dissolving on
// its own (last participant left) disappears from the table.
func TestRegistry_DissolvedRoomIsForgotten(t *testing.T) {
	reg := NewRegistry(Deps{Recordings: recording.NewStore()})
	t.Cleanup(reg.Shutdown)

	room := reg.CreateRoom("alice", "1ABC")
	sess := newSession(models.NewSession(room.ID, "alice", "Alice", models.RoleOwner), nil, nil)
	_, _, err := room.Join(sess)
	require.NoError(t, err)

	room.Leave(sess.ID)

	require.Eventually(t, func() bool {
		_, ok := reg.Room(room.ID)
		return !ok && reg.Count() == 0
	}, 2*time.Second, 10*time.Millisecond, "dissolved room still listed")
}

// TestRegistry_CloseRoom tests explicit removal.
func TestRegistry_CloseRoom(t *testing.T) {
	reg := NewRegistry(Deps{})
	t.Cleanup(reg.Shutdown)

	room := reg.CreateRoom("alice", "1ABC")
	reg.CloseRoom(room.ID)
	assert.Equal(t, 0, reg.Count())

	_, _, err := room.Join(newSession(models.NewSession(room.ID, "bob", "Bob", models.RoleViewer), nil, nil))
	assert.ErrorIs(t, err, ErrRoomClosed)

	reg.CloseRoom("nope") // no-op
}

// TestRegistry_Shutdown tests that shutdown tears every room down.
func TestRegistry_Shutdown(t *testing.T) {
	reg := NewRegistry(Deps{})
	a := reg.CreateRoom("alice", "1ABC")
	b := reg.CreateRoom("bob", "2XYZ")

	reg.Shutdown()
	assert.Equal(t, 0, reg.Count())

	for _, room := range []*Room{a, b} {
		_, err := room.StartRecording()
		assert.ErrorIs(t, err, ErrRoomClosed)
	}
}
