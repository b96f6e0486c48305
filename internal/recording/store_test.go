package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/models"
)

func storedRecording(id, roomID string, startedAt time.Time) *models.Recording {
	return &models.Recording{
		ID:         id,
		RoomID:     roomID,
		StartedAt:  startedAt,
		DurationMs: 1000,
		Events:     []models.Event{{Type: models.EventStateSnapshot}},
	}
}

// TestStore_PutGet tests basic storage and lookup.
func TestStore_PutGet(t *testing.T) {
	store := NewStore()
	base := time.Now()

	store.Put(storedRecording("rec_1", "room-a", base))

	got, ok := store.Get("rec_1")
	require.True(t, ok)
	assert.Equal(t, "room-a", got.RoomID)

	_, ok = store.Get("rec_missing")
	assert.False(t, ok)

	store.Put(nil) // must not panic or store anything
	assert.Equal(t, 1, store.Len())
}

// TestStore_List_FiltersAndOrders tests room filtering and newest-first order.
func TestStore_List_FiltersAndOrders(t *testing.T) {
	store := NewStore()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	store.Put(storedRecording("rec_old", "room-a", base))
	store.Put(storedRecording("rec_new", "room-a", base.Add(time.Hour)))
	store.Put(storedRecording("rec_other", "room-b", base.Add(30*time.Minute)))

	roomA := store.List("room-a")
	require.Len(t, roomA, 2)
	assert.Equal(t, "rec_new", roomA[0].ID)
	assert.Equal(t, "rec_old", roomA[1].ID)
	assert.Equal(t, 1, roomA[0].EventCount)

	all := store.List("")
	assert.Len(t, all, 3)

	assert.Empty(t, store.List("room-unknown"))
}
