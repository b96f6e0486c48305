package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mol-collab/internal/models"
)

var (
	// ErrAlreadyRecording is returned by Start while a capture is running.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNotRecording is returned by Stop when no capture is running.
	ErrNotRecording = errors.New("no recording in progress")
)

// DefaultSnapshotInterval is how many events may pass between rolling
// snapshots. Denser snapshots make seeks cheaper at the cost of log size.
const DefaultSnapshotInterval = 250

// Recorder captures room events into an ordered, timestamped log.
//
// It is owned by the room goroutine and is not safe for concurrent use;
// all calls must come from the room's dispatch loop.
type Recorder struct {
	roomID    string
	subjectID string
	now       func() time.Time

	// snapshotEvery is the rolling snapshot interval in events.
	snapshotEvery int

	active        bool
	recordingID   string
	startedAt     time.Time
	events        []models.Event
	sinceSnapshot int
}

// NewRecorder creates an idle recorder for a room. A nil clock falls
// back to time.Now; tests inject a fake.
func NewRecorder(roomID, subjectID string, snapshotEvery int, now func() time.Time) *Recorder {
	if snapshotEvery <= 0 {
		snapshotEvery = DefaultSnapshotInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		roomID:        roomID,
		subjectID:     subjectID,
		snapshotEvery: snapshotEvery,
		now:           now,
	}
}

// Active reports whether a capture is in progress.
func (r *Recorder) Active() bool {
	return r.active
}

// RecordingID returns the id of the capture in progress, or "" if idle.
func (r *Recorder) RecordingID() string {
	if !r.active {
		return ""
	}
	return r.recordingID
}

// Start begins a capture. The first logged event is always a state
// snapshot at relative time 0 so replay has an anchor to restore from.
func (r *Recorder) Start(state map[string]interface{}, participants []models.Participant) (string, error) {
	if r.active {
		return "", fmt.Errorf("%w: %s", ErrAlreadyRecording, r.recordingID)
	}

	start := r.now()
	r.active = true
	r.recordingID = models.NewRecordingID()
	r.startedAt = start
	r.events = nil
	r.sinceSnapshot = 0

	if err := r.appendSnapshot(start, state, participants); err != nil {
		// Roll back so a bad snapshot payload doesn't wedge the recorder.
		r.active = false
		return "", err
	}
	return r.recordingID, nil
}

// Record appends an event with the given type, origin and payload,
// stamping both clocks. Events arriving while idle are dropped.
func (r *Recorder) Record(t models.EventType, originUserID string, payload interface{}) error {
	if !r.active {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	r.append(r.now(), t, originUserID, data)
	r.sinceSnapshot++
	return nil
}

// NeedsSnapshot reports whether the rolling snapshot interval has
// elapsed. The room checks this after each Record and, if set, supplies
// a fresh snapshot via RecordSnapshot.
func (r *Recorder) NeedsSnapshot() bool {
	return r.active && r.sinceSnapshot >= r.snapshotEvery
}

// RecordSnapshot inserts a rolling restore point and resets the
// snapshot counter.
func (r *Recorder) RecordSnapshot(state map[string]interface{}, participants []models.Participant) error {
	if !r.active {
		return nil
	}
	return r.appendSnapshot(r.now(), state, participants)
}

// Stop finalizes the capture and returns the completed recording. The
// recorder returns to idle; stopping while idle returns ErrNotRecording
// and changes nothing.
func (r *Recorder) Stop(participants []models.Participant) (*models.Recording, error) {
	if !r.active {
		return nil, ErrNotRecording
	}

	rec := &models.Recording{
		ID:           r.recordingID,
		RoomID:       r.roomID,
		SubjectID:    r.subjectID,
		StartedAt:    r.startedAt,
		DurationMs:   durationMs(r.startedAt, r.now()),
		Events:       r.events,
		Participants: participants,
	}

	r.active = false
	r.recordingID = ""
	r.events = nil
	r.sinceSnapshot = 0
	return rec, nil
}

func (r *Recorder) appendSnapshot(at time.Time, state map[string]interface{}, participants []models.Participant) error {
	payload, err := json.Marshal(models.SnapshotPayload{
		State:        state,
		Participants: participants,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot payload: %w", err)
	}
	// Snapshots are system events: no originating user.
	r.append(at, models.EventStateSnapshot, "", payload)
	r.sinceSnapshot = 0
	return nil
}

func (r *Recorder) append(at time.Time, t models.EventType, originUserID string, payload json.RawMessage) {
	r.events = append(r.events, models.Event{
		Timestamp:    unixMs(at),
		RelativeMs:   durationMs(r.startedAt, at),
		Type:         t,
		OriginUserID: originUserID,
		Payload:      payload,
	})
}

func unixMs(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func durationMs(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
