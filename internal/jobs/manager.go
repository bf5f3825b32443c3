package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"report-desk/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("a report is already being generated")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
	cancel  context.CancelFunc
	// cancelled records a Cancel that arrived before Bind.
	cancelled bool
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start claims the slot for job and moves it to submitting state. Any previous
// terminal job is replaced.
func (m *Manager) Start(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}

	job.Status = domain.JobStatusSubmitting
	job.Message, job.Filename, job.SavedPath, job.ErrorKind = "", "", "", ""
	m.current = job
	m.cancel = nil
	m.cancelled = false
	return nil
}

// Bind attaches the cancel function of the running job's context.
func (m *Manager) Bind(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != jobID || !isRunning(m.current.Status) {
		return
	}
	m.cancel = cancel
	if m.cancelled {
		cancel()
	}
}

// Update applies a transition and lets mutate fill outcome details in the same
// critical section. It returns the resulting snapshot.
func (m *Manager) Update(status domain.JobStatus, mutate func(job *domain.Job)) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return m.current, fmt.Errorf("cannot transition without an active job")
	}
	if status != m.current.Status && !isValidTransition(m.current.Status, status) {
		return m.current, fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	if mutate != nil {
		mutate(&m.current)
	}
	if status.IsTerminal() {
		m.cancel = nil
	}
	return m.current, nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle. A running job is left alone.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isRunning(m.current.Status) {
		return
	}
	m.current = domain.Job{Status: domain.JobStatusIdle}
	m.cancel = nil
	m.cancelled = false
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Cancel aborts the running job's context. The pipeline observes the
// cancellation and moves the job to failed.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	m.cancelled = true
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// isRunning checks if a status represents active pipeline execution.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusSubmitting, domain.JobStatusInterpreting, domain.JobStatusFetching:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusSubmitting
	case domain.JobStatusSubmitting:
		return to == domain.JobStatusInterpreting || to == domain.JobStatusFailed
	case domain.JobStatusInterpreting:
		return to == domain.JobStatusFetching || to == domain.JobStatusInformational || to == domain.JobStatusFailed
	case domain.JobStatusFetching:
		return to == domain.JobStatusSaved || to == domain.JobStatusFailed
	case domain.JobStatusSaved, domain.JobStatusInformational, domain.JobStatusFailed:
		return to == domain.JobStatusSubmitting || to == domain.JobStatusIdle
	default:
		return false
	}
}
