package api

import (
	"context"

	"mol-collab/internal/collab"
	"mol-collab/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package (api/handlers) is the CONSUMER of the registry, store and
archive, so their interfaces live HERE.

The handler doesn't care how rooms dispatch commands or how the archive
stores blobs - it only cares about the methods it calls. Mocking these
for handler tests takes a dozen lines.
*/

// RoomDirectory defines what handlers need from the room registry.
type RoomDirectory interface {
	ListRooms() []collab.RoomSummary
	Count() int
	StartRecording(roomID string) (string, error)
	StopRecording(roomID string) (*models.Recording, error)
}

// RecordingStore is the in-memory recording cache. Always present.
type RecordingStore interface {
	Get(id string) (*models.Recording, bool)
	List(roomID string) []models.RecordingSummary
	Len() int
}

// RecordingArchive is the durable archive. Nil when the server runs
// without a database; handlers fall back to the in-memory store alone.
type RecordingArchive interface {
	GetByID(ctx context.Context, id string) (*models.Recording, error)
	List(ctx context.Context, roomID string, limit int) ([]models.RecordingSummary, error)
}

// ArchiveQueue reports archiver backlog for the health endpoint.
type ArchiveQueue interface {
	GetQueueLength() int
}
