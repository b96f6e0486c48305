package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/models"
	"mol-collab/internal/testfixtures"
)

func newTestRecorder(t *testing.T, snapshotEvery int) (*Recorder, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	rec := NewRecorder("room-1", "1ABC", snapshotEvery, clock.NowFunc())
	return rec, clock
}

func roster() []models.Participant {
	return []models.Participant{
		{SessionID: "sess-a", UserID: "alice", Username: "Alice", Role: models.RoleOwner},
	}
}

// TestRecorder_Start_AnchorsSnapshotAtZero tests that a capture always opens
// with a restore point at relative time 0.
func TestRecorder_Start_AnchorsSnapshotAtZero(t *testing.T) {
	rec, _ := newTestRecorder(t, 0)

	id, err := rec.Start(map[string]interface{}{"fields": map[string]interface{}{}}, roster())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, rec.Active())
	assert.Equal(t, id, rec.RecordingID())

	out, err := rec.Stop(roster())
	require.NoError(t, err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, models.EventStateSnapshot, out.Events[0].Type)
	assert.Equal(t, 0.0, out.Events[0].RelativeMs)
	assert.Equal(t, "", out.Events[0].OriginUserID)
}

// TestRecorder_Start_WhileActive tests the double-start rejection.
func TestRecorder_Start_WhileActive(t *testing.T) {
	rec, _ := newTestRecorder(t, 0)

	_, err := rec.Start(nil, nil)
	require.NoError(t, err)

	_, err = rec.Start(nil, nil)
	require.ErrorIs(t, err, ErrAlreadyRecording)
}

// TestRecorder_Record_StampsBothClocks tests absolute and relative stamps.
func TestRecorder_Record_StampsBothClocks(t *testing.T) {
	rec, clock := newTestRecorder(t, 0)
	start := clock.Now()

	_, err := rec.Start(nil, nil)
	require.NoError(t, err)

	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, rec.Record(models.EventChatMessage, "alice", models.ChatPayload{Message: "hi"}))

	clock.Advance(500 * time.Millisecond)
	out, err := rec.Stop(nil)
	require.NoError(t, err)

	require.Len(t, out.Events, 2)
	chat := out.Events[1]
	assert.Equal(t, 1500.0, chat.RelativeMs)
	assert.Equal(t, float64(start.Add(1500*time.Millisecond).UnixNano())/float64(time.Millisecond), chat.Timestamp)
	assert.Equal(t, "alice", chat.OriginUserID)
	assert.Equal(t, 2000.0, out.DurationMs)
	assert.Equal(t, start, out.StartedAt)
	assert.Equal(t, "room-1", out.RoomID)
	assert.Equal(t, "1ABC", out.SubjectID)
}

// TestRecorder_Record_WhileIdleIsDropped tests that events outside a capture
// window vanish silently.
func TestRecorder_Record_WhileIdleIsDropped(t *testing.T) {
	rec, _ := newTestRecorder(t, 0)

	require.NoError(t, rec.Record(models.EventCursorUpdate, "alice", models.CursorPayload{}))

	_, err := rec.Start(nil, nil)
	require.NoError(t, err)
	out, err := rec.Stop(nil)
	require.NoError(t, err)
	assert.Len(t, out.Events, 1, "only the opening snapshot should be present")
}

// TestRecorder_RollingSnapshots tests the NeedsSnapshot/RecordSnapshot cycle.
func TestRecorder_RollingSnapshots(t *testing.T) {
	rec, clock := newTestRecorder(t, 3)

	_, err := rec.Start(nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock.Advance(10 * time.Millisecond)
		require.NoError(t, rec.Record(models.EventCursorUpdate, "alice", models.CursorPayload{}))
	}
	assert.True(t, rec.NeedsSnapshot())
	require.NoError(t, rec.RecordSnapshot(map[string]interface{}{}, roster()))
	assert.False(t, rec.NeedsSnapshot(), "snapshot must reset the counter")

	// Two more events stay under the interval
	for i := 0; i < 2; i++ {
		clock.Advance(10 * time.Millisecond)
		require.NoError(t, rec.Record(models.EventCursorUpdate, "alice", models.CursorPayload{}))
	}
	assert.False(t, rec.NeedsSnapshot())

	out, err := rec.Stop(roster())
	require.NoError(t, err)

	// start snapshot + 3 cursor + rolling snapshot + 2 cursor
	require.Len(t, out.Events, 7)
	assert.Equal(t, models.EventStateSnapshot, out.Events[0].Type)
	assert.Equal(t, models.EventStateSnapshot, out.Events[4].Type)
}

// TestRecorder_Stop_WhileIdle tests stop without a running capture.
func TestRecorder_Stop_WhileIdle(t *testing.T) {
	rec, _ := newTestRecorder(t, 0)

	_, err := rec.Stop(nil)
	require.ErrorIs(t, err, ErrNotRecording)
}

// TestRecorder_Stop_ResetsForNextCapture tests that captures are independent.
func TestRecorder_Stop_ResetsForNextCapture(t *testing.T) {
	rec, clock := newTestRecorder(t, 0)

	first, err := rec.Start(nil, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	require.NoError(t, rec.Record(models.EventChatMessage, "alice", models.ChatPayload{Message: "one"}))
	out1, err := rec.Stop(nil)
	require.NoError(t, err)
	assert.False(t, rec.Active())
	assert.Equal(t, "", rec.RecordingID())

	clock.Advance(time.Minute)
	second, err := rec.Start(nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	out2, err := rec.Stop(nil)
	require.NoError(t, err)

	assert.Len(t, out1.Events, 2)
	assert.Len(t, out2.Events, 1, "second capture must not inherit events")
	assert.Equal(t, 0.0, out2.Events[0].RelativeMs, "relative clock must restart")
}

// TestRecorder_EventsRoundTripThroughCodec tests that a captured log encodes
// and decodes cleanly end to end.
func TestRecorder_EventsRoundTripThroughCodec(t *testing.T) {
	rec, clock := newTestRecorder(t, 0)

	_, err := rec.Start(map[string]interface{}{"fields": map[string]interface{}{}}, roster())
	require.NoError(t, err)
	clock.Advance(250 * time.Millisecond)
	require.NoError(t, rec.Record(models.EventCursorUpdate, "alice", models.CursorPayload{Cursor: models.Vector3{X: 1}}))
	clock.Advance(250 * time.Millisecond)
	out, err := rec.Stop(roster())
	require.NoError(t, err)

	data, err := EncodeEvents(out.DurationMs, out.Events)
	require.NoError(t, err)
	durationMs, decoded, err := DecodeEvents(data)
	require.NoError(t, err)
	assert.Equal(t, out.DurationMs, durationMs)
	assert.Equal(t, out.Events, decoded)
}
