package collab

import (
	"log"
	"sort"
	"sync"
	"time"

	"mol-collab/internal/models"
	"mol-collab/internal/recording"
	"mol-collab/internal/scene"

	"github.com/google/uuid"
)

// RoomSummary is the listing view of a live room.
type RoomSummary struct {
	RoomID           string `json:"room_id"`
	SubjectID        string `json:"subject_id"`
	ParticipantCount int    `json:"participant_count"`
	IsRecording      bool   `json:"is_recording"`
}

// Deps carries everything a room needs. Recordings and NewState get
// defaults; the rest are optional and nil simply disables the feature.
type Deps struct {
	NewState      func() SharedState
	Recordings    *recording.Store
	Archiver      RecordingArchiver
	Presence      PresenceCache
	Publisher     EventPublisher
	Now           Clock
	SnapshotEvery int
}

// Registry is the process-wide room table. It is constructed at startup
// and injected wherever rooms are looked up; the mutex guards only the
// table itself, never per-room message processing.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	deps  Deps
}

func NewRegistry(deps Deps) *Registry {
	if deps.NewState == nil {
		deps.NewState = func() SharedState { return scene.NewDocument() }
	}
	if deps.Recordings == nil {
		deps.Recordings = recording.NewStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		rooms: make(map[string]*Room),
		deps:  deps,
	}
}

// CreateRoom makes a new room owned by the given user and starts its
// actor goroutine.
func (reg *Registry) CreateRoom(ownerUserID, subjectID string) *Room {
	room := newRoom(uuid.NewString(), subjectID, ownerUserID, reg.deps)
	room.onEmpty = reg.remove

	reg.mu.Lock()
	reg.rooms[room.ID] = room
	reg.mu.Unlock()

	go room.run()

	if reg.deps.Publisher != nil {
		reg.deps.Publisher.Publish(models.LifecycleEvent{
			Event:     models.LifecycleRoomCreated,
			RoomID:    room.ID,
			SubjectID: subjectID,
			UserID:    ownerUserID,
			Timestamp: reg.deps.Now(),
		})
	}

	log.Printf("🚀 Room %s created by %s (subject %s)", room.ID, ownerUserID, subjectID)
	return room
}

// Room looks up a live room by id.
func (reg *Registry) Room(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// ListRooms summarizes all live rooms, ordered by room id.
func (reg *Registry) ListRooms() []RoomSummary {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// StartRecording begins capturing the named room.
func (reg *Registry) StartRecording(roomID string) (string, error) {
	room, ok := reg.Room(roomID)
	if !ok {
		return "", ErrRoomNotFound
	}
	return room.StartRecording()
}

// StopRecording finalizes the named room's capture.
func (reg *Registry) StopRecording(roomID string) (*models.Recording, error) {
	room, ok := reg.Room(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.StopRecording()
}

// CloseRoom tears a room down and forgets it. No-op for unknown ids.
func (reg *Registry) CloseRoom(id string) {
	reg.mu.Lock()
	room, ok := reg.rooms[id]
	delete(reg.rooms, id)
	reg.mu.Unlock()

	if ok {
		room.Close()
	}
}

// remove drops a room that dissolved on its own (last participant left).
func (reg *Registry) remove(id string) {
	reg.mu.Lock()
	delete(reg.rooms, id)
	reg.mu.Unlock()
}

// Shutdown closes every room and waits for their actors to finish.
func (reg *Registry) Shutdown() {
	log.Println("🛑 Shutting down room registry...")

	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.Close()
	}
	log.Println("✓ Room registry shutdown complete")
}
