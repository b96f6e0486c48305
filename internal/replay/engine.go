package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mol-collab/internal/models"
)

/*
LEARNING: VIRTUAL-CLOCK PLAYBACK

The engine never sleeps per event. It keeps a virtual clock:

  position = virtualAt + (wallNow - originWall) * speed

where virtualAt is the position at the instant originWall was taken.
Each Poll() applies every unapplied event whose relative time has been
passed by the virtual clock. Pause freezes virtualAt; changing speed
rebases originWall so the elapsed virtual time is preserved. Because
Poll is an explicit step, any scheduler can drive playback: a ticker in
production, direct calls with a fake clock in tests.
*/

// ErrInvalidRecording reports a recording that cannot be loaded: empty,
// not starting with a state snapshot, or out of timeline order.
var ErrInvalidRecording = errors.New("invalid recording")

// Playback speed multiplier bounds.
const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// PlaybackState is the engine's transport state.
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// SceneState is the mergeable document the engine reconstructs into.
// scene.Document satisfies it; the engine only needs these three calls.
type SceneState interface {
	ApplyUpdate(data []byte) (bool, error)
	Snapshot() map[string]interface{}
	Restore(snapshot map[string]interface{}) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the wall clock used for the virtual-clock origin.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOnComplete registers a callback fired once when playback reaches
// the end of the event log.
func WithOnComplete(fn func()) Option {
	return func(e *Engine) { e.onComplete = fn }
}

// WithOnEvent registers a callback fired for each event applied during
// playback polling. Seek reconstruction does not fire it.
func WithOnEvent(fn func(models.Event)) Option {
	return func(e *Engine) { e.onEvent = fn }
}

// Engine replays a finalized recording: arbitrary-time seek, cooperative
// playback at variable speed, and reconstructed presence views.
//
// An engine is owned by a single goroutine, mirroring the room's
// single-writer discipline; it does no internal locking.
type Engine struct {
	rec   *models.Recording
	state SceneState
	now   func() time.Time

	onComplete func()
	onEvent    func(models.Event)

	playback   PlaybackState
	cursor     int // index of the next unapplied event
	speed      float64
	virtualAt  float64   // virtual position (ms) at originWall
	originWall time.Time // wall instant virtualAt was taken, while playing
	completed  bool

	participants map[string]models.Participant // by session id
	cursors      map[string]models.Vector3     // by user id
	selections   map[string][]int              // by user id
	cameras      map[string]models.CameraPayload
	chat         []models.ChatPayload
	annotations  []models.AnnotationPayload
}

// NewEngine validates and loads a recording. The first event must be a
// state snapshot and relative times must be non-decreasing; anything
// else fails with ErrInvalidRecording.
func NewEngine(rec *models.Recording, state SceneState, opts ...Option) (*Engine, error) {
	if rec == nil || len(rec.Events) == 0 {
		return nil, fmt.Errorf("%w: no events", ErrInvalidRecording)
	}
	if rec.Events[0].Type != models.EventStateSnapshot {
		return nil, fmt.Errorf("%w: first event is %s, want %s",
			ErrInvalidRecording, rec.Events[0].Type, models.EventStateSnapshot)
	}
	for i := 1; i < len(rec.Events); i++ {
		if rec.Events[i].RelativeMs < rec.Events[i-1].RelativeMs {
			return nil, fmt.Errorf("%w: event %d goes back in time", ErrInvalidRecording, i)
		}
	}

	e := &Engine{
		rec:   rec,
		state: state,
		now:   time.Now,
		speed: 1.0,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.reset(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecording, err)
	}
	return e, nil
}

// reset restores the initial snapshot and rewinds the cursor.
func (e *Engine) reset() error {
	e.clearViews()
	if err := e.applySnapshot(e.rec.Events[0]); err != nil {
		return err
	}
	e.cursor = 0
	e.virtualAt = 0
	e.playback = StateStopped
	e.completed = false
	return nil
}

func (e *Engine) clearViews() {
	e.participants = make(map[string]models.Participant)
	e.cursors = make(map[string]models.Vector3)
	e.selections = make(map[string][]int)
	e.cameras = make(map[string]models.CameraPayload)
	e.chat = nil
	e.annotations = nil
}

// Seek reconstructs the state at targetMs (clamped to the recording's
// timeline): restore from the nearest snapshot at or before the target,
// then replay forward to the last event at or before it. Events tied on
// relative time keep their original recording order. Chat and annotation
// transcripts are rebuilt from the start of the recording so they read
// as "everything said up to the target".
func (e *Engine) Seek(targetMs float64) error {
	target := targetMs
	if target < 0 {
		target = 0
	}
	if target > e.rec.DurationMs {
		target = e.rec.DurationMs
	}

	events := e.rec.Events
	anchor, last := -1, -1
	for idx := range events {
		if events[idx].RelativeMs > target {
			break
		}
		last = idx
		if events[idx].Type == models.EventStateSnapshot {
			anchor = idx
		}
	}
	if anchor < 0 {
		// Unreachable on a validated recording: events[0] is a snapshot
		// at relative time <= any clamped target.
		return fmt.Errorf("%w: no snapshot at or before %.0fms", ErrInvalidRecording, target)
	}

	e.clearViews()

	// Transcript prefix: chat and annotations accumulate from the very
	// beginning, not from the anchor snapshot.
	for idx := 0; idx < anchor; idx++ {
		switch events[idx].Type {
		case models.EventChatMessage, models.EventAnnotationAdded:
			if err := e.applyEvent(events[idx]); err != nil {
				return err
			}
		}
	}

	if err := e.applySnapshot(events[anchor]); err != nil {
		return err
	}
	for idx := anchor + 1; idx <= last; idx++ {
		if err := e.applyEvent(events[idx]); err != nil {
			return err
		}
	}

	e.cursor = last + 1
	e.virtualAt = target
	e.completed = false
	if e.playback == StatePlaying {
		e.originWall = e.now()
	}
	return nil
}

// Play starts or resumes playback from the current position. No-op if
// already playing.
func (e *Engine) Play() {
	if e.playback == StatePlaying {
		return
	}
	e.originWall = e.now()
	e.playback = StatePlaying
}

// Pause freezes playback at the current virtual position.
func (e *Engine) Pause() {
	if e.playback != StatePlaying {
		return
	}
	e.virtualAt = e.position(e.now())
	e.playback = StatePaused
}

// Stop halts playback and rewinds to the initial snapshot.
func (e *Engine) Stop() error {
	return e.reset()
}

// SetSpeed clamps the multiplier to [0.1, 10.0] and applies it without
// disturbing the current virtual position. Returns the applied value.
func (e *Engine) SetSpeed(multiplier float64) float64 {
	if multiplier < MinSpeed {
		multiplier = MinSpeed
	}
	if multiplier > MaxSpeed {
		multiplier = MaxSpeed
	}
	if e.playback == StatePlaying {
		now := e.now()
		e.virtualAt = e.position(now)
		e.originWall = now
	}
	e.speed = multiplier
	return e.speed
}

// Poll applies every event the virtual clock has passed and returns how
// many were applied. On reaching the end of the log the engine goes to
// stopped (state intact, not rewound) and fires the completion callback
// once. A decode failure stops playback and aborts only this session.
func (e *Engine) Poll() (int, error) {
	if e.playback != StatePlaying {
		return 0, nil
	}

	pos := e.position(e.now())
	applied := 0
	for e.cursor < len(e.rec.Events) && e.rec.Events[e.cursor].RelativeMs <= pos {
		ev := e.rec.Events[e.cursor]
		if err := e.applyEvent(ev); err != nil {
			e.playback = StateStopped
			return applied, err
		}
		e.cursor++
		applied++
		if e.onEvent != nil {
			e.onEvent(ev)
		}
	}

	if e.cursor >= len(e.rec.Events) {
		e.playback = StateStopped
		e.virtualAt = e.rec.DurationMs
		if !e.completed {
			e.completed = true
			if e.onComplete != nil {
				e.onComplete()
			}
		}
	}
	return applied, nil
}

// Run drives a playing engine with a ticker until playback finishes,
// the context is cancelled, or an event fails to apply.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Poll(); err != nil {
				return err
			}
			if e.playback != StatePlaying {
				return nil
			}
		}
	}
}

func (e *Engine) position(now time.Time) float64 {
	if e.playback != StatePlaying {
		return e.virtualAt
	}
	elapsed := float64(now.Sub(e.originWall)) / float64(time.Millisecond)
	return e.virtualAt + elapsed*e.speed
}

// applyEvent routes one event to the view it mutates: presence maps,
// transcripts, or the scene state. Never more than one per event.
func (e *Engine) applyEvent(ev models.Event) error {
	switch ev.Type {
	case models.EventStateSnapshot:
		return e.applySnapshot(ev)

	case models.EventCRDTUpdate:
		var p models.StateUpdatePayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		if _, err := e.state.ApplyUpdate(p.Update); err != nil {
			return fmt.Errorf("failed to apply state update at %.0fms: %w", ev.RelativeMs, err)
		}
		return nil

	case models.EventCursorUpdate:
		var p models.CursorPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e.cursors[ev.OriginUserID] = p.Cursor
		return nil

	case models.EventSelectionUpdate:
		var p models.SelectionPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e.selections[ev.OriginUserID] = p.Selection
		return nil

	case models.EventCameraUpdate:
		var p models.CameraPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e.cameras[ev.OriginUserID] = p
		return nil

	case models.EventChatMessage:
		var p models.ChatPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e.chat = append(e.chat, p)
		return nil

	case models.EventAnnotationAdded:
		var p models.AnnotationPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e.annotations = append(e.annotations, p)
		return nil

	case models.EventParticipantJoined:
		var p models.ParticipantPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		e.participants[p.SessionID] = models.Participant{
			SessionID: p.SessionID,
			UserID:    p.UserID,
			Username:  p.Username,
			Role:      p.Role,
		}
		return nil

	case models.EventParticipantLeft:
		var p models.ParticipantPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		delete(e.participants, p.SessionID)
		if !e.userPresent(p.UserID) {
			delete(e.cursors, p.UserID)
			delete(e.selections, p.UserID)
			delete(e.cameras, p.UserID)
		}
		return nil

	default:
		return fmt.Errorf("cannot apply unknown event type %d", uint8(ev.Type))
	}
}

// applySnapshot restores the scene and roster from a snapshot event.
// Per-user cursor/selection maps are rebuilt from the roster; camera
// poses and transcripts are left alone since snapshots do not carry them.
func (e *Engine) applySnapshot(ev models.Event) error {
	var p models.SnapshotPayload
	if err := ev.DecodePayload(&p); err != nil {
		return err
	}
	if err := e.state.Restore(p.State); err != nil {
		return fmt.Errorf("failed to restore snapshot at %.0fms: %w", ev.RelativeMs, err)
	}

	e.participants = make(map[string]models.Participant, len(p.Participants))
	e.cursors = make(map[string]models.Vector3)
	e.selections = make(map[string][]int)
	for _, part := range p.Participants {
		e.participants[part.SessionID] = part
		e.cursors[part.UserID] = part.Cursor
		if len(part.Selection) > 0 {
			e.selections[part.UserID] = part.Selection
		}
	}
	return nil
}

func (e *Engine) userPresent(userID string) bool {
	for _, part := range e.participants {
		if part.UserID == userID {
			return true
		}
	}
	return false
}

// Accessors. All return copies; callers may retain them across polls.

func (e *Engine) State() PlaybackState { return e.playback }

func (e *Engine) CursorIndex() int { return e.cursor }

func (e *Engine) Speed() float64 { return e.speed }

// Position returns the current virtual playback position in ms.
func (e *Engine) Position() float64 { return e.position(e.now()) }

// Duration returns the recording's total duration in ms.
func (e *Engine) Duration() float64 { return e.rec.DurationMs }

// SceneSnapshot returns the reconstructed shared state at the current
// position.
func (e *Engine) SceneSnapshot() map[string]interface{} {
	return e.state.Snapshot()
}

// Participants returns the reconstructed roster, ordered by session id.
func (e *Engine) Participants() []models.Participant {
	out := make([]models.Participant, 0, len(e.participants))
	for _, p := range e.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Cursors returns the per-user cursor positions.
func (e *Engine) Cursors() map[string]models.Vector3 {
	out := make(map[string]models.Vector3, len(e.cursors))
	for k, v := range e.cursors {
		out[k] = v
	}
	return out
}

// Selections returns the per-user atom selections.
func (e *Engine) Selections() map[string][]int {
	out := make(map[string][]int, len(e.selections))
	for k, v := range e.selections {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// Cameras returns the per-user camera poses seen since the last seek
// anchor; snapshots do not capture cameras, so poses recorded before
// the anchor are unknown until the next camera event.
func (e *Engine) Cameras() map[string]models.CameraPayload {
	out := make(map[string]models.CameraPayload, len(e.cameras))
	for k, v := range e.cameras {
		out[k] = v
	}
	return out
}

// Chat returns the chat transcript up to the current position.
func (e *Engine) Chat() []models.ChatPayload {
	return append([]models.ChatPayload(nil), e.chat...)
}

// Annotations returns the annotations added up to the current position.
func (e *Engine) Annotations() []models.AnnotationPayload {
	return append([]models.AnnotationPayload(nil), e.annotations...)
}
