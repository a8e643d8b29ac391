// Package job tracks backtests submitted through the API.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/cta/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Done reports whether the job has finished, successfully or not.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job represents an async job.
type Job struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Request   any         `json:"request,omitempty"`
	Result    any         `json:"result,omitempty"`
	ResultKey string      `json:"result_key,omitempty"`
	Error     *core.Error `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store keeps the most recent jobs in memory. Finished jobs older than the
// TTL are dropped, and the oldest finished job goes first when the store is
// full. Unfinished jobs are never evicted.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string // insertion order
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a pending job and returns a copy of it. It fails with
// core.ErrTooManyJobs when the store is full of unfinished jobs.
func (s *Store) Create(jobType string, request any) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()
	if len(s.order) >= s.maxSize && !s.evictFinishedLocked() {
		return Job{}, core.WrapError(core.ErrTooManyJobs, fmt.Errorf("%d jobs unfinished", len(s.order)))
	}

	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusPending,
		Request:   request,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	return *job, nil
}

// Get retrieves a copy of a job by ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, core.WrapError(core.ErrNotFound, fmt.Errorf("job %s", id))
	}
	return *job, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.WrapError(core.ErrNotFound, fmt.Errorf("job %s", id))
	}

	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

// List returns all jobs, newest first.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()

	result := make([]Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, *s.jobs[s.order[i]])
	}
	return result
}

// evictLocked drops finished jobs past the TTL. Callers must hold s.mu.
func (s *Store) evictLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status.Done() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// evictFinishedLocked drops the oldest finished job and reports whether one
// was found. Callers must hold s.mu.
func (s *Store) evictFinishedLocked() bool {
	for i, id := range s.order {
		if s.jobs[id].Status.Done() {
			delete(s.jobs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return true
		}
	}
	return false
}
