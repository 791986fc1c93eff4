package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiesman99/dynstitch/internal/gate"
	"github.com/kiesman99/dynstitch/internal/stitcher"
)

// Job states
const (
	StatusPlanning            = "planning"
	StatusPendingConfirmation = "pending_confirmation"
	StatusRunning             = "running"
	StatusDone                = "done"
	StatusFailed              = "failed"
)

// job is one export run in the background
type job struct {
	id      uuid.UUID
	created time.Time
	gate    *gate.Gate

	mu        sync.Mutex
	awaiting  bool
	drawn     int
	total     int
	finished  bool
	result    *stitcher.Result
	err       error
	remaining time.Duration
	done      chan struct{}
}

func newJob(g *gate.Gate) *job {
	return &job{
		id:      uuid.New(),
		created: time.Now(),
		gate:    g,
		done:    make(chan struct{}),
	}
}

func (j *job) status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.finished && j.err != nil:
		return StatusFailed
	case j.finished:
		return StatusDone
	case j.awaiting && j.gate.Pending():
		return StatusPendingConfirmation
	case j.awaiting || j.total > 0:
		return StatusRunning
	}
	return StatusPlanning
}

// remind is the gate reminder; it marks the job as waiting for a decision.
func (j *job) remind(remaining time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.awaiting = true
	j.remaining = remaining
}

func (j *job) progress(done, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.drawn = done
	j.total = total
}

func (j *job) finish(result *stitcher.Result, err error) {
	j.mu.Lock()
	j.finished = true
	j.result = result
	j.err = err
	j.mu.Unlock()
	close(j.done)
}

// wait blocks until the job finished or ctx is done.
func (j *job) wait(ctx context.Context) bool {
	select {
	case <-j.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// jobStore keeps the jobs of one server. Jobs never share pipeline state.
type jobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[uuid.UUID]*job)}
}

func (s *jobStore) add(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.id] = j
}

func (s *jobStore) get(id uuid.UUID) (*job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *jobStore) remove(id uuid.UUID) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	return j, ok
}
