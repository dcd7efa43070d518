// Package registry holds the in-memory job-status map. Records live for the
// process lifetime only; all access is serialized behind one lock so stage
// transitions and status polls from different goroutines never race.
package registry

import (
	"sync"
	"time"

	"dubber/pkg/models"
)

// Registry is a concurrency-safe JobRecord store.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*models.JobRecord
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]*models.JobRecord)}
}

// Create registers a new job in the started state and returns a copy.
func (r *Registry) Create(id string) models.JobRecord {
	now := time.Now()
	record := &models.JobRecord{
		ID:        id,
		State:     models.JobStateStarted,
		Progress:  0,
		Message:   "Processing started...",
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[id] = record
	r.mu.Unlock()

	return *record
}

// Get returns a copy of the job record.
func (r *Registry) Get(id string) (models.JobRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.jobs[id]
	if !ok {
		return models.JobRecord{}, false
	}
	return *record, true
}

// SetProgress moves the job to the processing state at the given checkpoint.
func (r *Registry) SetProgress(id string, progress int, message string) {
	r.update(id, func(record *models.JobRecord) {
		record.State = models.JobStateProcessing
		record.Progress = progress
		record.Message = message
	})
}

// Complete marks the job done and records where its result lives.
func (r *Registry) Complete(id string, resultLocation string) {
	r.update(id, func(record *models.JobRecord) {
		record.State = models.JobStateCompleted
		record.Progress = 100
		record.Message = "Processing completed successfully!"
		record.ResultLocation = resultLocation
	})
}

// Fail marks the job failed with a human-readable message.
func (r *Registry) Fail(id string, message string) {
	r.update(id, func(record *models.JobRecord) {
		record.State = models.JobStateFailed
		record.Message = message
		record.Error = message
	})
}

func (r *Registry) update(id string, fn func(*models.JobRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.jobs[id]
	if !ok {
		return
	}
	fn(record)
	record.UpdatedAt = time.Now()
}
