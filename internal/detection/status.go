package detection

import (
	"sync"
	"time"
)

// Worker states
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateError    = "error"
)

const fpsWindow = time.Second

// Status is the detection worker's shared status record
type Status struct {
	mu              sync.RWMutex
	cameraID        string
	state           string
	lastError       string
	framesProcessed uint64
	framesSkipped   uint64
	framesDropped   uint64
	lastDetections  int
	lastResult      time.Time
	resultTimes     []time.Time
	memoryMB        float64
	cpuPercent      float64
	startedAt       time.Time
}

// NewStatus creates a status record for one detection worker
func NewStatus(cameraID string) *Status {
	return &Status{
		cameraID: cameraID,
		state:    StateStarting,
	}
}

// SetState transitions to a new state
func (s *Status) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state == StateRunning && s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
}

// State returns the current state
func (s *Status) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// NoteCycleError records a transient per-cycle error. The worker keeps
// running; only the message is retained for status queries.
func (s *Status) NoteCycleError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastError = err.Error()
	}
}

// SetError records a fatal error and enters the error state
func (s *Status) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateError
	if err != nil {
		s.lastError = err.Error()
	}
}

// RecordResult notes a completed detection cycle
func (s *Status) RecordResult(ts time.Time, detections int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.framesProcessed++
	s.lastDetections = detections
	s.lastResult = ts
	s.lastError = ""

	s.resultTimes = append(s.resultTimes, ts)
	cutoff := ts.Add(-fpsWindow)
	trim := 0
	for trim < len(s.resultTimes) && s.resultTimes[trim].Before(cutoff) {
		trim++
	}
	if trim > 0 {
		s.resultTimes = append(s.resultTimes[:0], s.resultTimes[trim:]...)
	}
}

// AddSkipped counts frames skipped while draining to the latest frame
func (s *Status) AddSkipped(n int) {
	s.mu.Lock()
	s.framesSkipped += uint64(n)
	s.mu.Unlock()
}

// AddDropped counts results evicted from a full results queue
func (s *Status) AddDropped(n int) {
	s.mu.Lock()
	s.framesDropped += uint64(n)
	s.mu.Unlock()
}

// SetResources records the latest process resource sample
func (s *Status) SetResources(memoryMB, cpuPercent float64) {
	s.mu.Lock()
	s.memoryMB = memoryMB
	s.cpuPercent = cpuPercent
	s.mu.Unlock()
}

// FPS returns detection cycles completed over the rolling window
func (s *Status) FPS() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-fpsWindow)
	n := 0
	for _, ts := range s.resultTimes {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return float64(n) / fpsWindow.Seconds()
}

// Snapshot is a point-in-time copy of the worker status
type Snapshot struct {
	CameraID        string  `json:"camera_id"`
	State           string  `json:"state"`
	LastError       string  `json:"last_error,omitempty"`
	FPS             float64 `json:"fps"`
	FramesProcessed uint64  `json:"frames_processed"`
	FramesSkipped   uint64  `json:"frames_skipped"`
	FramesDropped   uint64  `json:"frames_dropped"`
	// LastDetectionCount is the above-threshold count of the most
	// recent cycle; FramesProcessed carries the cumulative cycle count.
	LastDetectionCount int       `json:"last_detection_count"`
	LastResultTime     time.Time `json:"last_result_time"`
	MemoryMB           float64   `json:"memory_mb"`
	CPUPercent         float64   `json:"cpu_percent"`
	StartedAt          time.Time `json:"started_at"`
}

// Snapshot returns a consistent copy of the status
func (s *Status) Snapshot() Snapshot {
	fps := s.FPS()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CameraID:           s.cameraID,
		State:              s.state,
		LastError:          s.lastError,
		FPS:                fps,
		FramesProcessed:    s.framesProcessed,
		FramesSkipped:      s.framesSkipped,
		FramesDropped:      s.framesDropped,
		LastDetectionCount: s.lastDetections,
		LastResultTime:     s.lastResult,
		MemoryMB:           s.memoryMB,
		CPUPercent:         s.cpuPercent,
		StartedAt:          s.startedAt,
	}
}
