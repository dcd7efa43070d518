package pipeline

import (
	"context"
	"time"

	"dubber/internal/logging"
	"dubber/internal/registry"
	"dubber/pkg/models"
)

// StatusSink receives copies of job records, letting another process serve
// status polls. The Redis cache implements it.
type StatusSink interface {
	SetJob(ctx context.Context, record *models.JobRecord, ttl time.Duration) error
}

// MirroredRecorder writes every status transition to the in-memory registry
// and mirrors the resulting record to a sink. Used by the queued worker so
// the API process can answer polls for jobs it does not own.
type MirroredRecorder struct {
	reg  *registry.Registry
	sink StatusSink
	ttl  time.Duration
	log  *logging.Logger
}

// NewMirroredRecorder creates a MirroredRecorder.
func NewMirroredRecorder(reg *registry.Registry, sink StatusSink, ttl time.Duration, log *logging.Logger) *MirroredRecorder {
	return &MirroredRecorder{reg: reg, sink: sink, ttl: ttl, log: log}
}

// Create registers the job and mirrors the initial record.
func (m *MirroredRecorder) Create(id string) models.JobRecord {
	record := m.reg.Create(id)
	m.mirror(id)
	return record
}

// SetProgress updates and mirrors a stage transition.
func (m *MirroredRecorder) SetProgress(id string, progress int, message string) {
	m.reg.SetProgress(id, progress, message)
	m.mirror(id)
}

// Complete marks the job done and mirrors the terminal record.
func (m *MirroredRecorder) Complete(id string, resultLocation string) {
	m.reg.Complete(id, resultLocation)
	m.mirror(id)
}

// Fail marks the job failed and mirrors the terminal record.
func (m *MirroredRecorder) Fail(id string, message string) {
	m.reg.Fail(id, message)
	m.mirror(id)
}

// mirror copies the current record to the sink. Mirroring is best-effort;
// the registry stays authoritative for the owning process.
func (m *MirroredRecorder) mirror(id string) {
	record, ok := m.reg.Get(id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.sink.SetJob(ctx, &record, m.ttl); err != nil {
		m.log.Warnf("Failed to mirror job status for %s: %v", id, err)
	}
}
