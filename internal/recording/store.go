package recording

import (
	"sort"
	"sync"

	"mol-collab/internal/models"
)

// Store keeps finalized recordings in memory, keyed by recording id.
// It is the hot cache in front of the database archive: a recording is
// available here the moment its room stops capturing, even if archival
// is still queued or the archive is disabled entirely.
type Store struct {
	mu   sync.RWMutex
	recs map[string]*models.Recording
}

func NewStore() *Store {
	return &Store{recs: make(map[string]*models.Recording)}
}

func (s *Store) Put(rec *models.Recording) {
	if rec == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
}

func (s *Store) Get(id string) (*models.Recording, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	return rec, ok
}

// List returns summaries, newest first. An empty roomID lists all rooms.
func (s *Store) List(roomID string) []models.RecordingSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RecordingSummary, 0, len(s.recs))
	for _, rec := range s.recs {
		if roomID != "" && rec.RoomID != roomID {
			continue
		}
		out = append(out, rec.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
