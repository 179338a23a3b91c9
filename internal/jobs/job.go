// Package jobs tracks crawl jobs from submission through the worker pool.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one submitted crawl operation and its outcome.
type Job struct {
	ID          string                  `json:"id"`
	Site        crawl.Site              `json:"site"`
	Op          crawl.Operation         `json:"operation"`
	Status      Status                  `json:"status"`
	Result      *models.CanonicalResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Attempts    int                     `json:"attempts"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// store is the in-memory job registry. Reads return copies so callers never
// observe a job mid-update.
type store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func newStore() *store {
	return &store{jobs: make(map[string]*Job)}
}

func (s *store) create(site crawl.Site, op crawl.Operation) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Site:      site,
		Op:        op,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return copyJob(job)
}

func (s *store) get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return copyJob(job), true
}

func (s *store) list() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, copyJob(job))
	}
	return out
}

func (s *store) markRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	return nil
}

func (s *store) complete(id string, result *models.CanonicalResult, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	now := time.Now()
	job.Status = StatusCompleted
	job.Result = result
	job.Attempts = attempts
	job.CompletedAt = &now
	return nil
}

func (s *store) fail(id string, errMsg string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	now := time.Now()
	job.Status = StatusFailed
	job.Error = errMsg
	job.Attempts = attempts
	job.CompletedAt = &now
	return nil
}

func copyJob(job *Job) *Job {
	c := *job
	return &c
}
