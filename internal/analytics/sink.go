package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
)

// summaryCheckInterval is how often the summary loop wakes to check
// whether a summary is due
const summaryCheckInterval = 10 * time.Second

// summaryErrorBackoff is how long the summary loop pauses after a
// failed summary pass
const summaryErrorBackoff = 30 * time.Second

// classSample is a timestamped per-class count used for window queries
type classSample struct {
	ts     time.Time
	counts map[int]int
}

// cameraMetrics is the per-camera metric state. All histories are
// bounded rings so per-camera memory is constant.
type cameraMetrics struct {
	captureSeconds   *ring
	inferenceSeconds *ring
	detectionCounts  *ring
	memoryMB         *ring
	cpuPercent       *ring

	framesProcessed uint64
	framesDropped   uint64
	framesSkipped   uint64
	queueEvictions  uint64

	classTotals  map[int]uint64
	classHistory []classSample
}

// Sink aggregates pipeline metrics from capture and detection workers.
// All record methods are O(1) and safe for concurrent use.
type Sink struct {
	*service.ServiceBase

	cfg  config.AnalyticsConfig
	prom *promMetrics

	mu      sync.Mutex
	cameras map[string]*cameraMetrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSink creates an analytics sink
func NewSink(cfg config.AnalyticsConfig, log *logger.Logger) *Sink {
	return &Sink{
		ServiceBase: service.NewServiceBase("analytics", log),
		cfg:         cfg,
		prom:        newPromMetrics(),
		cameras:     make(map[string]*cameraMetrics),
	}
}

// Registry returns the Prometheus registry backing the sink
func (s *Sink) Registry() *prometheus.Registry {
	return s.prom.registry
}

// Start launches the periodic summary loop
func (s *Sink) Start(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStarting)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.summaryLoop(runCtx)

	s.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop stops the summary loop
func (s *Sink) Stop(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStopping)
	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-time.After(time.Second):
		}
	}
	s.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

func (s *Sink) camera(id string) *cameraMetrics {
	cm, ok := s.cameras[id]
	if !ok {
		n := s.cfg.MaxHistory
		cm = &cameraMetrics{
			captureSeconds:   newRing(n),
			inferenceSeconds: newRing(n),
			detectionCounts:  newRing(n),
			memoryMB:         newRing(n),
			cpuPercent:       newRing(n),
			classTotals:      make(map[int]uint64),
		}
		s.cameras[id] = cm
	}
	return cm
}

// RecordCapture notes one captured frame and its read duration
func (s *Sink) RecordCapture(cameraID string, readDuration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera(cameraID).captureSeconds.add(readDuration.Seconds())
}

// RecordEviction notes a frame evicted from a full capture queue
func (s *Sink) RecordEviction(cameraID string) {
	s.mu.Lock()
	s.camera(cameraID).queueEvictions++
	s.mu.Unlock()
	s.prom.queueEvictions.WithLabelValues(cameraID).Inc()
}

// RecordInference notes one completed detection cycle
func (s *Sink) RecordInference(cameraID string, latency time.Duration, classCounts map[int]int) {
	s.mu.Lock()
	cm := s.camera(cameraID)
	cm.framesProcessed++
	cm.inferenceSeconds.add(latency.Seconds())

	total := 0
	for class, n := range classCounts {
		cm.classTotals[class] += uint64(n)
		total += n
	}
	cm.detectionCounts.add(float64(total))

	if len(classCounts) > 0 {
		cm.classHistory = append(cm.classHistory, classSample{ts: time.Now(), counts: classCounts})
		if len(cm.classHistory) > s.cfg.MaxHistory {
			cm.classHistory = cm.classHistory[1:]
		}
	}
	s.mu.Unlock()

	s.prom.observeInference(cameraID, latency, classCounts)
}

// RecordSkipped notes frames skipped while draining to the latest
func (s *Sink) RecordSkipped(cameraID string, n int) {
	s.mu.Lock()
	s.camera(cameraID).framesSkipped += uint64(n)
	s.mu.Unlock()
	s.prom.framesSkipped.WithLabelValues(cameraID).Add(float64(n))
}

// RecordDropped notes results evicted from a full result queue
func (s *Sink) RecordDropped(cameraID string, n int) {
	s.mu.Lock()
	s.camera(cameraID).framesDropped += uint64(n)
	s.mu.Unlock()
	s.prom.framesDropped.WithLabelValues(cameraID).Add(float64(n))
}

// RecordResources notes a process resource sample
func (s *Sink) RecordResources(cameraID string, memoryMB, cpuPercent float64) {
	s.mu.Lock()
	cm := s.camera(cameraID)
	cm.memoryMB.add(memoryMB)
	cm.cpuPercent.add(cpuPercent)
	s.mu.Unlock()
}

// Metrics is a queryable per-camera metrics snapshot
type Metrics struct {
	CameraID        string         `json:"camera_id"`
	FramesProcessed uint64         `json:"frames_processed"`
	FramesDropped   uint64         `json:"frames_dropped"`
	FramesSkipped   uint64         `json:"frames_skipped"`
	QueueEvictions  uint64         `json:"queue_evictions"`
	AvgCaptureMS    float64        `json:"avg_capture_ms"`
	AvgInferenceMS  float64        `json:"avg_inference_ms"`
	MaxInferenceMS  float64        `json:"max_inference_ms"`
	AvgDetections   float64        `json:"avg_detections"`
	MemoryMB        float64        `json:"memory_mb"`
	CPUPercent      float64        `json:"cpu_percent"`
	ClassCounts     map[int]uint64 `json:"class_counts"`
}

func (s *Sink) snapshotLocked(id string, cm *cameraMetrics) Metrics {
	classCounts := make(map[int]uint64, len(cm.classTotals))
	for class, n := range cm.classTotals {
		classCounts[class] = n
	}
	return Metrics{
		CameraID:        id,
		FramesProcessed: cm.framesProcessed,
		FramesDropped:   cm.framesDropped,
		FramesSkipped:   cm.framesSkipped,
		QueueEvictions:  cm.queueEvictions,
		AvgCaptureMS:    cm.captureSeconds.avg() * 1000,
		AvgInferenceMS:  cm.inferenceSeconds.avg() * 1000,
		MaxInferenceMS:  cm.inferenceSeconds.max() * 1000,
		AvgDetections:   cm.detectionCounts.avg(),
		MemoryMB:        cm.memoryMB.last(),
		CPUPercent:      cm.cpuPercent.last(),
		ClassCounts:     classCounts,
	}
}

// CameraMetrics returns the metrics snapshot for one camera
func (s *Sink) CameraMetrics(cameraID string) (Metrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cm, ok := s.cameras[cameraID]
	if !ok {
		return Metrics{}, false
	}
	return s.snapshotLocked(cameraID, cm), true
}

// AllMetrics returns metrics snapshots for every known camera
func (s *Sink) AllMetrics() map[string]Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Metrics, len(s.cameras))
	for id, cm := range s.cameras {
		out[id] = s.snapshotLocked(id, cm)
	}
	return out
}

// ClassWindow returns the configured default window for recent
// per-class counts
func (s *Sink) ClassWindow() time.Duration {
	return s.cfg.ClassWindow
}

// ClassCountsSince returns per-class detection counts within the
// window ending now
func (s *Sink) ClassCountsSince(cameraID string, window time.Duration) map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]int)
	cm, ok := s.cameras[cameraID]
	if !ok {
		return out
	}
	cutoff := time.Now().Add(-window)
	for _, sample := range cm.classHistory {
		if sample.ts.Before(cutoff) {
			continue
		}
		for class, n := range sample.counts {
			out[class] += n
		}
	}
	return out
}

// Forget drops all metric state for a camera
func (s *Sink) Forget(cameraID string) {
	s.mu.Lock()
	delete(s.cameras, cameraID)
	s.mu.Unlock()
}

// summaryLoop periodically logs a metrics summary. The loop wakes
// frequently but only emits when the summary interval has elapsed, and
// backs off after a failure.
func (s *Sink) summaryLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(summaryCheckInterval)
	defer ticker.Stop()

	lastSummary := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(lastSummary) < s.cfg.SummaryInterval {
				continue
			}
			if err := s.logSummary(); err != nil {
				s.LogWarn("metrics summary failed", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(summaryErrorBackoff):
				}
				continue
			}
			lastSummary = time.Now()
		}
	}
}

func (s *Sink) logSummary() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("summary panic: %v", r)
		}
	}()

	for id, m := range s.AllMetrics() {
		s.LogInfo("pipeline summary",
			"camera_id", id,
			"frames_processed", m.FramesProcessed,
			"frames_dropped", m.FramesDropped,
			"frames_skipped", m.FramesSkipped,
			"queue_evictions", m.QueueEvictions,
			"avg_inference_ms", m.AvgInferenceMS,
			"avg_detections", m.AvgDetections,
			"memory_mb", m.MemoryMB,
			"cpu_percent", m.CPUPercent)
	}
	return nil
}
