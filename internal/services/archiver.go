package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mol-collab/internal/models"
)

/*
LEARNING: ARCHIVE WORKER POOL

Recordings are finalized inside a room's actor goroutine, which must
never wait on Postgres. The room hands the recording to this pool and
moves on; a fixed set of workers drains the queue into the archive.

Key Concepts:
1. **Bounded queue**: a full queue rejects instead of blocking, so a
   slow database can never stall a live room
2. **Drain on shutdown**: queued recordings are flushed before exit,
   because a dropped job here is a lost recording
*/

// ArchiveJob carries one finalized recording to the archive.
type ArchiveJob struct {
	Recording *models.Recording
}

// ArchiverImpl persists finalized recordings with a worker pool.
// It implements collab.RecordingArchiver.
type ArchiverImpl struct {
	repo    RecordingRepository // Interface from this package (consumer-driven!)
	jobs    chan ArchiveJob
	workers int
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewArchiver creates the pool but doesn't start it yet.
// Returns concrete type - "Accept interfaces, return structs"
func NewArchiver(repo RecordingRepository, numWorkers, queueSize int) *ArchiverImpl {
	if numWorkers <= 0 {
		numWorkers = 2
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	return &ArchiverImpl{
		repo:    repo,
		jobs:    make(chan ArchiveJob, queueSize),
		workers: numWorkers,
	}
}

// Start spawns the workers.
func (s *ArchiverImpl) Start() {
	log.Printf("🔧 Starting recording archiver with %d workers", s.workers)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	log.Println("✓ Recording archiver started")
}

func (s *ArchiverImpl) worker(id int) {
	defer s.wg.Done()

	for job := range s.jobs {
		if err := s.processArchive(job); err != nil {
			log.Printf("  Archiver worker %d: failed to archive %s: %v", id, job.Recording.ID, err)
		} else {
			log.Printf("  Archiver worker %d: archived recording %s", id, job.Recording.ID)
		}
	}
}

func (s *ArchiverImpl) processArchive(job ArchiveJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.repo.Save(ctx, job.Recording)
}

// Submit queues a recording for archival. Never blocks: a full queue or
// a stopped pool returns an error and the recording stays retrievable
// from the in-memory store.
func (s *ArchiverImpl) Submit(rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("archiver is shut down")
	}
	select {
	case s.jobs <- ArchiveJob{Recording: rec}:
		return nil
	default:
		return fmt.Errorf("archive queue full (%d pending)", len(s.jobs))
	}
}

// Shutdown stops accepting work and drains the queue.
func (s *ArchiverImpl) Shutdown() {
	log.Println("🛑 Shutting down recording archiver...")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("✓ Recording archiver shutdown complete")
}

// GetQueueLength returns current number of pending jobs
func (s *ArchiverImpl) GetQueueLength() int {
	return len(s.jobs)
}
