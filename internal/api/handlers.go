package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"mol-collab/internal/collab"
	"mol-collab/internal/models"
	"mol-collab/internal/recording"
	"mol-collab/internal/repository"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	rooms     RoomDirectory    // Interface defined in this package!
	store     RecordingStore   // In-memory recordings
	archive   RecordingArchive // Durable archive, may be nil
	archiveQ  ArchiveQueue     // Archiver backlog, may be nil
	wsHandler *collab.Handler  // WebSocket handshake entry point
}

func NewHandler(
	rooms RoomDirectory,
	store RecordingStore,
	archive RecordingArchive,
	archiveQ ArchiveQueue,
	wsHandler *collab.Handler,
) *Handler {
	return &Handler{
		rooms:     rooms,
		store:     store,
		archive:   archive,
		archiveQ:  archiveQ,
		wsHandler: wsHandler,
	}
}

// Room handlers

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.rooms.ListRooms()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// Recording control handlers

func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["id"]

	recordingID, err := h.rooms.StartRecording(roomID)
	if err != nil {
		switch {
		case errors.Is(err, collab.ErrRoomNotFound), errors.Is(err, collab.ErrRoomClosed):
			http.Error(w, fmt.Sprintf("room not found: %s", roomID), http.StatusNotFound)
		case errors.Is(err, recording.ErrAlreadyRecording):
			// Idempotent from the room's point of view; the conflict code
			// tells the caller a capture is already running.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recording_id": recordingID,
		"room_id":      roomID,
	})
}

func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := vars["id"]

	rec, err := h.rooms.StopRecording(roomID)
	if err != nil {
		switch {
		case errors.Is(err, collab.ErrRoomNotFound), errors.Is(err, collab.ErrRoomClosed):
			http.Error(w, fmt.Sprintf("room not found: %s", roomID), http.StatusNotFound)
		case errors.Is(err, recording.ErrNotRecording):
			// Stopping an idle room is a no-op, not a failure.
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"recording_id": rec.ID,
		"duration_ms":  rec.DurationMs,
		"event_count":  len(rec.Events),
	})
}

// Recording retrieval handlers

// getRecording checks the in-memory store first, then the archive.
func (h *Handler) getRecording(r *http.Request, id string) (*models.Recording, error) {
	if rec, ok := h.store.Get(id); ok {
		return rec, nil
	}
	if h.archive == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return h.archive.GetByID(r.Context(), id)
}

func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	rec, err := h.getRecording(r, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// ExportRecording serves the binary container format, byte-identical to
// what the archive stores and replayctl reads.
func (h *Handler) ExportRecording(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	rec, err := h.getRecording(r, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	data, err := recording.EncodeEvents(rec.DurationMs, rec.Events)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.molrec"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")

	limit := 50 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil {
			limit = parsedLimit
		}
	}

	// Merge memory and archive, memory winning on duplicate ids: a
	// recording can be in both while the archiver catches up.
	byID := make(map[string]models.RecordingSummary)
	if h.archive != nil {
		archived, err := h.archive.List(r.Context(), roomID, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, s := range archived {
			byID[s.ID] = s
		}
	}
	for _, s := range h.store.List(roomID) {
		byID[s.ID] = s
	}

	out := make([]models.RecordingSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recordings": out,
		"count":      len(out),
	})
}

// Health reports liveness plus enough counters to eyeball the process.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":     "ok",
		"rooms":      h.rooms.Count(),
		"recordings": h.store.Len(),
	}
	if h.archiveQ != nil {
		body["archive_queue"] = h.archiveQ.GetQueueLength()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// WebSocket entry point

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleWebSocket(w, r)
}
