package capture

import (
	"sync"
	"time"
)

// Worker states
const (
	StateInitializing = "initializing"
	StateStarting     = "starting"
	StateRunning      = "running"
	StateReadError    = "read_error"
	StateError        = "error"
	StateStopped      = "stopped"
)

// fpsWindow is the rolling window over which capture fps is measured
const fpsWindow = time.Second

// Status is the capture worker's shared status record. The worker
// goroutine writes it, status queries read it.
type Status struct {
	mu             sync.RWMutex
	cameraID       string
	state          string
	err            string
	framesCaptured uint64
	lastFrame      time.Time
	frameTimes     []time.Time
	startedAt      time.Time
}

// NewStatus creates a status record in the initializing state
func NewStatus(cameraID string) *Status {
	return &Status{
		cameraID: cameraID,
		state:    StateInitializing,
	}
}

// SetState transitions to a new state, clearing the error on running
func (s *Status) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state == StateRunning {
		if s.startedAt.IsZero() {
			s.startedAt = time.Now()
		}
		s.err = ""
	}
}

// State returns the current state
func (s *Status) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetError records an error message and enters the given state
func (s *Status) SetError(state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if err != nil {
		s.err = err.Error()
	}
}

// RecordFrame notes a successfully captured frame at the given time
func (s *Status) RecordFrame(ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.framesCaptured++
	s.lastFrame = ts

	s.frameTimes = append(s.frameTimes, ts)
	cutoff := ts.Add(-fpsWindow)
	trim := 0
	for trim < len(s.frameTimes) && s.frameTimes[trim].Before(cutoff) {
		trim++
	}
	if trim > 0 {
		s.frameTimes = append(s.frameTimes[:0], s.frameTimes[trim:]...)
	}
}

// FPS returns frames captured over the rolling window
func (s *Status) FPS() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-fpsWindow)
	n := 0
	for _, ts := range s.frameTimes {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return float64(n) / fpsWindow.Seconds()
}

// Snapshot is a point-in-time copy of the worker status
type Snapshot struct {
	CameraID       string    `json:"camera_id"`
	State          string    `json:"state"`
	Error          string    `json:"error,omitempty"`
	FPS            float64   `json:"fps"`
	FramesCaptured uint64    `json:"frames_captured"`
	LastFrameTime  time.Time `json:"last_frame_time"`
	StartedAt      time.Time `json:"started_at"`
}

// Snapshot returns a consistent copy of the status
func (s *Status) Snapshot() Snapshot {
	fps := s.FPS()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CameraID:       s.cameraID,
		State:          s.state,
		Error:          s.err,
		FPS:            fps,
		FramesCaptured: s.framesCaptured,
		LastFrameTime:  s.lastFrame,
		StartedAt:      s.startedAt,
	}
}
