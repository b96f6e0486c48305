package collab

import (
	"context"
	"time"

	"mol-collab/internal/models"
)

/*
LEARNING: CONSUMER-DEFINED INTERFACES

"Accept interfaces, return structs."

The room only declares the behavior it consumes. Concrete providers live
elsewhere (scene.Document, auth.JWTValidator, cache.RedisPresence,
bus.KafkaPublisher, services.ArchiverImpl) and satisfy these interfaces
without importing this package's internals. Tests swap in fakes without
touching Redis, Kafka or Postgres.
*/

// SharedState is the mergeable scene document a room coordinates.
// Updates are opaque bytes; the store decides merge semantics.
type SharedState interface {
	// ApplyUpdate merges an update and reports whether anything changed.
	// Unchanged (fully stale) updates are neither broadcast nor recorded.
	ApplyUpdate(data []byte) (bool, error)

	// Snapshot returns a JSON-safe restore point; Restore(Snapshot())
	// must reproduce the store exactly.
	Snapshot() map[string]interface{}

	Restore(snapshot map[string]interface{}) error
}

// TokenValidator checks a handshake token and resolves the caller's
// identity. An empty userID with a nil error means the validator has no
// identity opinion (insecure dev mode) and the handshake's claimed user
// id is used instead.
type TokenValidator interface {
	Validate(token string) (userID, username string, err error)
}

// PresenceCache mirrors live room membership into a shared cache so
// other services can answer "who is in room X" without asking us.
// Calls are best-effort: failures are logged, never propagated to the
// room's message handling.
type PresenceCache interface {
	AddMember(ctx context.Context, roomID, userID, username string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	SetCursor(ctx context.Context, roomID, userID string, cursor models.Vector3) error
	ClearRoom(ctx context.Context, roomID string) error
}

// EventPublisher emits room lifecycle events to the message bus.
// Implementations must not block the caller.
type EventPublisher interface {
	Publish(evt models.LifecycleEvent)
}

// RecordingArchiver accepts finalized recordings for durable storage.
type RecordingArchiver interface {
	Submit(rec *models.Recording) error
}

// Clock is the injected time source; tests freeze it.
type Clock func() time.Time
