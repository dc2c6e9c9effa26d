package jobs

import (
	"errors"
	"fmt"
	"sync"

	"video-converter/internal/domain"
)

// ErrBatchAlreadyRunning is returned when starting a second active batch.
var ErrBatchAlreadyRunning = errors.New("batch already running")

// ErrNoRunningBatch is returned when progress is recorded while idle.
var ErrNoRunningBatch = errors.New("no running batch")

// Manager tracks the single allowed active batch and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Batch
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Batch{
			Status: domain.BatchStatusIdle,
		},
	}
}

// Start creates a new batch and moves it to scanning state.
func (m *Manager) Start(batchID, sourceDir, outputDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return ErrBatchAlreadyRunning
	}

	m.current = domain.Batch{
		ID:        batchID,
		Status:    domain.BatchStatusScanning,
		SourceDir: sourceDir,
		OutputDir: outputDir,
	}
	return nil
}

// Transition validates and applies state transitions for current batch.
func (m *Manager) Transition(status domain.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.BatchStatusIdle {
		return fmt.Errorf("cannot transition without an active batch")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Begin records the job count and moves a scanning batch to running.
func (m *Manager) Begin(total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.BatchStatusScanning {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, domain.BatchStatusRunning)
	}
	m.current.Status = domain.BatchStatusRunning
	m.current.Total = total
	return nil
}

// RecordJob counts one finished job against the running batch.
func (m *Manager) RecordJob(succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.BatchStatusRunning {
		return ErrNoRunningBatch
	}
	m.current.Processed++
	if succeeded {
		m.current.Succeeded++
	} else {
		m.current.Failed++
	}
	return nil
}

// Current returns a snapshot of the current batch.
func (m *Manager) Current() domain.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears batch metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Batch{Status: domain.BatchStatusIdle}
}

// IsRunning reports whether a batch is scanning or converting.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// isActive checks if a status blocks a new batch from starting.
func isActive(status domain.BatchStatus) bool {
	switch status {
	case domain.BatchStatusScanning, domain.BatchStatusRunning:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed batch state machine edges.
// Failed is only reachable from scanning: job failures never fail a batch.
func isValidTransition(from, to domain.BatchStatus) bool {
	switch from {
	case domain.BatchStatusIdle:
		return to == domain.BatchStatusScanning
	case domain.BatchStatusScanning:
		return to == domain.BatchStatusRunning || to == domain.BatchStatusCompleted || to == domain.BatchStatusFailed
	case domain.BatchStatusRunning:
		return to == domain.BatchStatusCompleted
	case domain.BatchStatusCompleted, domain.BatchStatusFailed:
		return to == domain.BatchStatusScanning || to == domain.BatchStatusIdle
	default:
		return false
	}
}
