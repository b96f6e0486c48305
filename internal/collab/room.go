package collab

import (
	"context"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"mol-collab/internal/models"
	"mol-collab/internal/recording"

	"github.com/segmentio/ksuid"
)

/*
LEARNING: ROOM AS A SEQUENTIAL ACTOR

Each room runs exactly one goroutine. Every mutation arrives as a typed
command on the inbox channel and is processed strictly in arrival order,
so the shared state, the roster and the recorder need no locks at all.
Different rooms run fully independently.

The command set is closed: a marker method keeps outside packages from
inventing commands, and dispatch matches every variant explicitly. A
panic while handling one command is caught at the dispatch boundary and
never takes down the actor.
*/

const inboxSize = 256

// command is the closed set of room inbox messages.
type command interface{ isCommand() }

type joinCmd struct {
	sess  *Session
	reply chan joinReply
}

type joinReply struct {
	state        map[string]interface{}
	participants []models.Participant
	err          error
}

type leaveCmd struct{ sessionID string }

type stateUpdateCmd struct {
	sessionID string
	update    []byte
}

type cursorCmd struct {
	sessionID string
	cursor    models.Vector3
}

type selectionCmd struct {
	sessionID string
	selection []int
}

type chatCmd struct {
	sessionID string
	message   string
}

type cameraCmd struct {
	sessionID string
	camera    models.CameraPayload
}

type annotationCmd struct {
	sessionID string
	text      string
	atoms     []int
	position  models.Vector3
}

type startRecordingCmd struct{ reply chan startRecordingReply }

type startRecordingReply struct {
	recordingID string
	err         error
}

type stopRecordingCmd struct{ reply chan stopRecordingReply }

type stopRecordingReply struct {
	rec *models.Recording
	err error
}

type closeCmd struct{ reply chan struct{} }

func (joinCmd) isCommand()           {}
func (leaveCmd) isCommand()          {}
func (stateUpdateCmd) isCommand()    {}
func (cursorCmd) isCommand()         {}
func (selectionCmd) isCommand()      {}
func (chatCmd) isCommand()           {}
func (cameraCmd) isCommand()         {}
func (annotationCmd) isCommand()     {}
func (startRecordingCmd) isCommand() {}
func (stopRecordingCmd) isCommand()  {}
func (closeCmd) isCommand()          {}

// Room coordinates one collaborative session around a subject document.
type Room struct {
	ID        string
	SubjectID string
	OwnerID   string
	CreatedAt time.Time

	state    SharedState
	recorder *recording.Recorder
	sessions map[string]*Session

	inbox chan command
	done  chan struct{}

	closing      bool
	closeWaiters []chan struct{}

	recordings *recording.Store
	archiver   RecordingArchiver
	presence   PresenceCache
	publisher  EventPublisher
	now        Clock
	onEmpty    func(roomID string)

	// Lock-free stats so registry listings never queue behind the actor.
	participantCount atomic.Int64
	isRecording      atomic.Bool
}

func newRoom(id, subjectID, ownerID string, deps Deps) *Room {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Room{
		ID:         id,
		SubjectID:  subjectID,
		OwnerID:    ownerID,
		CreatedAt:  now(),
		state:      deps.NewState(),
		recorder:   recording.NewRecorder(id, subjectID, deps.SnapshotEvery, now),
		sessions:   make(map[string]*Session),
		inbox:      make(chan command, inboxSize),
		done:       make(chan struct{}),
		recordings: deps.Recordings,
		archiver:   deps.Archiver,
		presence:   deps.Presence,
		publisher:  deps.Publisher,
		now:        now,
	}
}

// RoleFor returns the role a user gets when joining: the creator is
// owner, everyone else starts as viewer.
func (r *Room) RoleFor(userID string) models.Role {
	if userID == r.OwnerID {
		return models.RoleOwner
	}
	return models.RoleViewer
}

// submit enqueues a command unless the room is already gone.
func (r *Room) submit(c command) bool {
	// The inbox is buffered, so once the actor has exited a send could
	// still succeed with nobody left to read it; reject first.
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- c:
		return true
	case <-r.done:
		return false
	}
}

// Join registers a session and returns the state snapshot and roster
// the new participant should see.
func (r *Room) Join(s *Session) (map[string]interface{}, []models.Participant, error) {
	reply := make(chan joinReply, 1)
	if !r.submit(joinCmd{sess: s, reply: reply}) {
		return nil, nil, ErrRoomClosed
	}
	res := <-reply
	return res.state, res.participants, res.err
}

// Leave removes a session. Safe to call for sessions already gone.
func (r *Room) Leave(sessionID string) {
	r.submit(leaveCmd{sessionID: sessionID})
}

// ApplyStateUpdate merges a shared-state update from a session and
// fans the change out to everyone else.
func (r *Room) ApplyStateUpdate(sessionID string, update []byte) {
	r.submit(stateUpdateCmd{sessionID: sessionID, update: update})
}

func (r *Room) UpdateCursor(sessionID string, cursor models.Vector3) {
	r.submit(cursorCmd{sessionID: sessionID, cursor: cursor})
}

func (r *Room) UpdateSelection(sessionID string, selection []int) {
	r.submit(selectionCmd{sessionID: sessionID, selection: selection})
}

func (r *Room) SendChat(sessionID, message string) {
	r.submit(chatCmd{sessionID: sessionID, message: message})
}

func (r *Room) UpdateCamera(sessionID string, camera models.CameraPayload) {
	r.submit(cameraCmd{sessionID: sessionID, camera: camera})
}

func (r *Room) AddAnnotation(sessionID, text string, atoms []int, position models.Vector3) {
	r.submit(annotationCmd{sessionID: sessionID, text: text, atoms: atoms, position: position})
}

// StartRecording begins capturing room events. Returns the recording id
// or recording.ErrAlreadyRecording.
func (r *Room) StartRecording() (string, error) {
	reply := make(chan startRecordingReply, 1)
	if !r.submit(startRecordingCmd{reply: reply}) {
		return "", ErrRoomClosed
	}
	res := <-reply
	return res.recordingID, res.err
}

// StopRecording finalizes the active capture and returns the recording,
// or recording.ErrNotRecording when idle.
func (r *Room) StopRecording() (*models.Recording, error) {
	reply := make(chan stopRecordingReply, 1)
	if !r.submit(stopRecordingCmd{reply: reply}) {
		return nil, ErrRoomClosed
	}
	res := <-reply
	return res.rec, res.err
}

// Close tears the room down and waits for the actor to finish.
func (r *Room) Close() {
	reply := make(chan struct{}, 1)
	if !r.submit(closeCmd{reply: reply}) {
		return
	}
	<-reply
}

// Summary returns listing data without touching the actor.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		RoomID:           r.ID,
		SubjectID:        r.SubjectID,
		ParticipantCount: int(r.participantCount.Load()),
		IsRecording:      r.isRecording.Load(),
	}
}

// run is the actor loop. It exits when a close command arrives or the
// last participant leaves, then finalizes any recording in progress.
func (r *Room) run() {
	log.Printf("🔄 Room %s started (subject %s)", r.ID, r.SubjectID)

	for !r.closing {
		r.dispatch(<-r.inbox)
	}

	close(r.done)
	r.drain()
	r.teardown()

	for _, waiter := range r.closeWaiters {
		waiter <- struct{}{}
	}
	log.Printf("✓ Room %s closed", r.ID)
}

// dispatch handles one command. Panics are confined here so a bad
// message can never kill the actor.
func (r *Room) dispatch(cmd command) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("❌ Room %s: panic handling %T: %v", r.ID, cmd, p)
		}
	}()

	switch c := cmd.(type) {
	case joinCmd:
		r.handleJoin(c)
	case leaveCmd:
		r.handleLeave(c.sessionID)
	case stateUpdateCmd:
		r.handleStateUpdate(c)
	case cursorCmd:
		r.handleCursor(c)
	case selectionCmd:
		r.handleSelection(c)
	case chatCmd:
		r.handleChat(c)
	case cameraCmd:
		r.handleCamera(c)
	case annotationCmd:
		r.handleAnnotation(c)
	case startRecordingCmd:
		c.reply <- r.handleStartRecording()
	case stopRecordingCmd:
		c.reply <- r.handleStopRecording()
	case closeCmd:
		r.closing = true
		r.closeWaiters = append(r.closeWaiters, c.reply)
	default:
		// Unreachable while the command set stays closed.
		log.Printf("❌ Room %s: unknown command %T", r.ID, cmd)
	}
}

// drain rejects commands that slipped into the inbox while the actor
// was deciding to close, so no caller is left waiting on a reply.
func (r *Room) drain() {
	for {
		select {
		case cmd := <-r.inbox:
			switch c := cmd.(type) {
			case joinCmd:
				c.reply <- joinReply{err: ErrRoomClosed}
			case startRecordingCmd:
				c.reply <- startRecordingReply{err: ErrRoomClosed}
			case stopRecordingCmd:
				c.reply <- stopRecordingReply{err: ErrRoomClosed}
			case closeCmd:
				r.closeWaiters = append(r.closeWaiters, c.reply)
			default:
				// Fire-and-forget commands need no reply.
			}
		default:
			return
		}
	}
}

func (r *Room) handleJoin(c joinCmd) {
	s := c.sess
	r.sessions[s.ID] = s
	r.participantCount.Store(int64(len(r.sessions)))

	// Reply first: the handshake response must reach the client before
	// any broadcast triggered by this join.
	c.reply <- joinReply{
		state:        r.state.Snapshot(),
		participants: r.participants(),
	}

	part := s.Participant()
	r.broadcastExcept(marshal(ParticipantBroadcast{Type: MsgParticipantJoined, Participant: part}), s.ID)
	r.record(models.EventParticipantJoined, s.UserID, models.ParticipantPayload{
		SessionID: s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      s.Role,
	})

	r.mirror(func(ctx context.Context, cache PresenceCache) error {
		return cache.AddMember(ctx, r.ID, s.UserID, s.Username)
	})
	r.publish(models.LifecycleEvent{
		Event:     models.LifecycleParticipantJoin,
		RoomID:    r.ID,
		SubjectID: r.SubjectID,
		UserID:    s.UserID,
	})

	log.Printf("  Session %s (%s) joined room %s (%d participants)",
		s.ID, s.Username, r.ID, len(r.sessions))
}

func (r *Room) handleLeave(sessionID string) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	r.removeSession(s)

	if len(r.sessions) == 0 {
		// Last participant gone: the room dissolves.
		r.closing = true
	}
}

// removeSession drops a session from the roster and tells the others.
func (r *Room) removeSession(s *Session) {
	delete(r.sessions, s.ID)
	r.participantCount.Store(int64(len(r.sessions)))
	close(s.send)

	r.broadcastExcept(marshal(ParticipantBroadcast{Type: MsgParticipantLeft, Participant: s.Participant()}), s.ID)
	r.record(models.EventParticipantLeft, s.UserID, models.ParticipantPayload{
		SessionID: s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      s.Role,
	})

	r.mirror(func(ctx context.Context, cache PresenceCache) error {
		return cache.RemoveMember(ctx, r.ID, s.UserID)
	})
	r.publish(models.LifecycleEvent{
		Event:     models.LifecycleParticipantLeave,
		RoomID:    r.ID,
		SubjectID: r.SubjectID,
		UserID:    s.UserID,
	})

	log.Printf("  Session %s left room %s (%d remaining)", s.ID, r.ID, len(r.sessions))
}

func (r *Room) handleStateUpdate(c stateUpdateCmd) {
	s, ok := r.sessions[c.sessionID]
	if !ok {
		return
	}

	changed, err := r.state.ApplyUpdate(c.update)
	if err != nil {
		log.Printf("⚠️  Room %s: rejected state update from %s: %v", r.ID, s.UserID, err)
		s.sendError("state update rejected: " + err.Error())
		return
	}
	if !changed {
		// Fully stale: nothing to broadcast or record.
		return
	}

	r.broadcastExcept(marshal(CRDTUpdateMessage{Type: MsgCRDTUpdate, Update: c.update, Origin: s.UserID}), s.ID)
	r.record(models.EventCRDTUpdate, s.UserID, models.StateUpdatePayload{Update: c.update})
}

func (r *Room) handleCursor(c cursorCmd) {
	s, ok := r.sessions[c.sessionID]
	if !ok {
		return
	}
	s.Cursor = c.cursor

	r.broadcastExcept(marshal(CursorBroadcast{
		Type:      MsgCursorUpdate,
		SessionID: s.ID,
		UserID:    s.UserID,
		Cursor:    c.cursor,
	}), s.ID)
	r.record(models.EventCursorUpdate, s.UserID, models.CursorPayload{Cursor: c.cursor})

	r.mirror(func(ctx context.Context, cache PresenceCache) error {
		return cache.SetCursor(ctx, r.ID, s.UserID, c.cursor)
	})
}

func (r *Room) handleSelection(c selectionCmd) {
	s, ok := r.sessions[c.sessionID]
	if !ok {
		return
	}
	s.Selection = c.selection

	r.broadcastExcept(marshal(SelectionBroadcast{
		Type:      MsgSelectionUpdate,
		SessionID: s.ID,
		UserID:    s.UserID,
		Selection: c.selection,
	}), s.ID)
	r.record(models.EventSelectionUpdate, s.UserID, models.SelectionPayload{Selection: c.selection})
}

func (r *Room) handleChat(c chatCmd) {
	s, ok := r.sessions[c.sessionID]
	if !ok || c.message == "" {
		return
	}

	payload := models.ChatPayload{
		UserID:    s.UserID,
		Username:  s.Username,
		Message:   c.message,
		Timestamp: r.nowMs(),
	}
	// Chat echoes to everyone, sender included.
	r.broadcastAll(marshal(ChatBroadcast{Type: MsgChatMessage, ChatPayload: payload}))
	r.record(models.EventChatMessage, s.UserID, payload)
}

func (r *Room) handleCamera(c cameraCmd) {
	s, ok := r.sessions[c.sessionID]
	if !ok {
		return
	}

	r.broadcastExcept(marshal(CameraBroadcast{
		Type:   MsgCameraUpdate,
		UserID: s.UserID,
		Camera: c.camera,
	}), s.ID)
	r.record(models.EventCameraUpdate, s.UserID, c.camera)
}

func (r *Room) handleAnnotation(c annotationCmd) {
	s, ok := r.sessions[c.sessionID]
	if !ok || c.text == "" {
		return
	}

	annotation := models.AnnotationPayload{
		ID:        "ann_" + ksuid.New().String(),
		UserID:    s.UserID,
		Text:      c.text,
		Atoms:     c.atoms,
		Position:  c.position,
		Timestamp: r.nowMs(),
	}
	// Everyone gets the broadcast: the sender needs the assigned id too.
	r.broadcastAll(marshal(AnnotationBroadcast{Type: MsgAnnotationAdded, Annotation: annotation}))
	r.record(models.EventAnnotationAdded, s.UserID, annotation)
}

func (r *Room) handleStartRecording() startRecordingReply {
	id, err := r.recorder.Start(r.state.Snapshot(), r.participants())
	if err != nil {
		return startRecordingReply{err: err}
	}
	r.isRecording.Store(true)

	r.broadcastAll(marshal(RecordingStatusMessage{Type: MsgRecordingStarted, RecordingID: id}))
	r.publish(models.LifecycleEvent{
		Event:       models.LifecycleRecordingStarted,
		RoomID:      r.ID,
		SubjectID:   r.SubjectID,
		RecordingID: id,
	})

	log.Printf("🔴 Room %s: recording %s started", r.ID, id)
	return startRecordingReply{recordingID: id}
}

func (r *Room) handleStopRecording() stopRecordingReply {
	rec, err := r.recorder.Stop(r.participants())
	if err != nil {
		return stopRecordingReply{err: err}
	}
	r.finalizeRecording(rec)
	return stopRecordingReply{rec: rec}
}

// finalizeRecording makes a stopped capture retrievable and durable.
func (r *Room) finalizeRecording(rec *models.Recording) {
	r.isRecording.Store(false)
	r.recordings.Put(rec)

	if r.archiver != nil {
		if err := r.archiver.Submit(rec); err != nil {
			log.Printf("⚠️  Room %s: recording %s not archived: %v", r.ID, rec.ID, err)
		}
	}

	r.broadcastAll(marshal(RecordingStatusMessage{Type: MsgRecordingStopped, RecordingID: rec.ID}))
	r.publish(models.LifecycleEvent{
		Event:       models.LifecycleRecordingStopped,
		RoomID:      r.ID,
		SubjectID:   r.SubjectID,
		RecordingID: rec.ID,
	})

	log.Printf("⏹  Room %s: recording %s stopped (%d events, %.0fms)",
		r.ID, rec.ID, len(rec.Events), rec.DurationMs)
}

// teardown runs after the actor loop exits: finalize any recording,
// close remaining connections, release mirrors.
func (r *Room) teardown() {
	log.Printf("🛑 Closing room %s...", r.ID)

	if r.recorder.Active() {
		if rec, err := r.recorder.Stop(r.participants()); err == nil {
			r.finalizeRecording(rec)
		}
	}

	for id, s := range r.sessions {
		delete(r.sessions, id)
		close(s.send)
	}
	r.participantCount.Store(0)

	r.mirror(func(ctx context.Context, cache PresenceCache) error {
		return cache.ClearRoom(ctx, r.ID)
	})
	r.publish(models.LifecycleEvent{
		Event:     models.LifecycleRoomClosed,
		RoomID:    r.ID,
		SubjectID: r.SubjectID,
	})

	if r.onEmpty != nil {
		r.onEmpty(r.ID)
	}
}

// record captures an event if a recording is active, inserting a rolling
// snapshot whenever the interval has elapsed.
func (r *Room) record(t models.EventType, originUserID string, payload interface{}) {
	if !r.recorder.Active() {
		return
	}
	if err := r.recorder.Record(t, originUserID, payload); err != nil {
		log.Printf("⚠️  Room %s: failed to record %s: %v", r.ID, t, err)
		return
	}
	if r.recorder.NeedsSnapshot() {
		if err := r.recorder.RecordSnapshot(r.state.Snapshot(), r.participants()); err != nil {
			log.Printf("⚠️  Room %s: failed to record snapshot: %v", r.ID, err)
		}
	}
}

// broadcastExcept queues a message for every session but one. Sessions
// whose buffers are full are dropped from the room; a client that slow
// would only fall further behind.
func (r *Room) broadcastExcept(message []byte, exceptSessionID string) {
	if message == nil {
		return
	}
	var slow []*Session
	for id, s := range r.sessions {
		if id == exceptSessionID {
			continue
		}
		if !s.enqueue(message) {
			log.Printf("⚠️  Session %s buffer full, dropping from room %s", s.ID, r.ID)
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		r.removeSession(s)
	}
	if len(r.sessions) == 0 && len(slow) > 0 {
		r.closing = true
	}
}

func (r *Room) broadcastAll(message []byte) {
	r.broadcastExcept(message, "")
}

// participants returns the roster ordered by session id. KSUIDs sort by
// creation time, so this is join order.
func (r *Room) participants() []models.Participant {
	out := make([]models.Participant, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Participant())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// mirror runs a best-effort presence cache call off the actor goroutine.
func (r *Room) mirror(fn func(ctx context.Context, cache PresenceCache) error) {
	if r.presence == nil {
		return
	}
	cache := r.presence
	roomID := r.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := fn(ctx, cache); err != nil {
			log.Printf("⚠️  Presence mirror failed for room %s: %v", roomID, err)
		}
	}()
}

func (r *Room) publish(evt models.LifecycleEvent) {
	if r.publisher == nil {
		return
	}
	evt.Timestamp = r.now()
	r.publisher.Publish(evt)
}

func (r *Room) nowMs() float64 {
	return float64(r.now().UnixNano()) / float64(time.Millisecond)
}
