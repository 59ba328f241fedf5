package service

import (
	"sync"
	"time"
)

// State describes the lifecycle state of a service or worker
type State string

const (
	StatusInitializing State = "initializing"
	StatusStarting     State = "starting"
	StatusRunning      State = "running"
	StatusStopping     State = "stopping"
	StatusStopped      State = "stopped"
	StatusError        State = "error"
)

// Status is a shared status record. The owning goroutine writes it,
// any number of readers observe it.
type Status struct {
	mu        sync.RWMutex
	name      string
	state     State
	err       string
	startedAt time.Time
	updatedAt time.Time
}

// NewStatus creates a status record in the stopped state
func NewStatus(name string) *Status {
	return &Status{
		name:      name,
		state:     StatusStopped,
		updatedAt: time.Now(),
	}
}

// Name returns the owner's name
func (s *Status) Name() string {
	return s.name
}

// SetStatus transitions to a new state. Entering StatusRunning records
// the start time and clears any previous error.
func (s *Status) SetStatus(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.updatedAt = time.Now()
	if state == StatusRunning {
		s.startedAt = time.Now()
		s.err = ""
	}
}

// GetStatus returns the current state
func (s *Status) GetStatus() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetError records an error and transitions to the error state
func (s *Status) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StatusError
	s.updatedAt = time.Now()
	if err != nil {
		s.err = err.Error()
	}
}

// GetError returns the recorded error message, empty if none
func (s *Status) GetError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// IsRunning reports whether the owner is in the running state
func (s *Status) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StatusRunning
}

// StartedAt returns when the owner last entered the running state
func (s *Status) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// GetUptime returns how long the owner has been running, zero if stopped
func (s *Status) GetUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StatusRunning || s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
