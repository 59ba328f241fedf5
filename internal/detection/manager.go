package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
	"github.com/abishek-baskaran/zvision/internal/video"
)

// collectorInterval is how often the result collector sweeps the
// per-camera result queues
const collectorInterval = 10 * time.Millisecond

// collectorErrorNap is how long the collector backs off after a failed
// sweep
const collectorErrorNap = 500 * time.Millisecond

// Manager owns detection workers and the latest-result cache. A single
// background collector drains every worker's result queue into the
// cache so consumers get the freshest result without touching queues.
type Manager struct {
	*service.ServiceBase

	detector Detector
	cfg      config.DetectionConfig
	log      *logger.Logger
	rec      Recorder

	mu      sync.RWMutex
	workers map[string]*Worker
	latest  map[string]*Result

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a detection manager
func NewManager(detector Detector, cfg config.DetectionConfig, log *logger.Logger) *Manager {
	return &Manager{
		ServiceBase: service.NewServiceBase("detection-manager", log),
		detector:    detector,
		cfg:         cfg,
		log:         log,
		workers:     make(map[string]*Worker),
		latest:      make(map[string]*Result),
	}
}

// SetRecorder attaches an analytics recorder passed to every worker
func (m *Manager) SetRecorder(rec Recorder) {
	m.rec = rec
}

// Start launches the background result collector
func (m *Manager) Start(ctx context.Context) error {
	m.GetStatus().SetStatus(service.StatusStarting)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.collect(runCtx)

	m.GetStatus().SetStatus(service.StatusRunning)
	m.LogInfo("detection manager started")
	return nil
}

// Stop stops the collector and all workers
func (m *Manager) Stop(ctx context.Context) error {
	m.GetStatus().SetStatus(service.StatusStopping)

	if m.cancel != nil {
		m.cancel()
		select {
		case <-m.done:
		case <-time.After(time.Second):
		}
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.StopWorker(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.mu.Lock()
	remaining := len(m.workers)
	m.mu.Unlock()
	if remaining != 0 {
		m.LogWarn("workers remain after stop", "count", remaining)
	}

	m.GetStatus().SetStatus(service.StatusStopped)
	m.LogInfo("detection manager stopped")
	return firstErr
}

// StartWorker starts detection for a camera, reading frames from the
// given queue. An existing worker for the same camera is stopped first
// so there is never more than one per camera.
func (m *Manager) StartWorker(ctx context.Context, cameraID string, frames *video.FrameQueue) error {
	m.mu.RLock()
	_, exists := m.workers[cameraID]
	m.mu.RUnlock()

	if exists {
		m.LogInfo("replacing existing detection worker", "camera_id", cameraID)
		if err := m.StopWorker(cameraID); err != nil {
			m.LogWarn("stop of existing worker reported error",
				"camera_id", cameraID, "error", err)
		}
	}

	worker := NewWorker(cameraID, frames, NewResultQueue(m.cfg.ResultsQueueSize), m.detector, m.cfg, m.log)
	if m.rec != nil {
		worker.SetRecorder(m.rec)
	}

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start detection worker %s: %w", cameraID, err)
	}

	m.mu.Lock()
	m.workers[cameraID] = worker
	m.mu.Unlock()

	m.LogInfo("detection worker started", "camera_id", cameraID)
	return nil
}

// StopWorker stops detection for a camera. The worker is removed from
// the registry regardless of stop errors so a wedged worker cannot
// block its camera id forever.
func (m *Manager) StopWorker(cameraID string) error {
	m.mu.Lock()
	worker, ok := m.workers[cameraID]
	delete(m.workers, cameraID)
	delete(m.latest, cameraID)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout+time.Second)
	defer cancel()

	err := worker.Stop(stopCtx)
	if err != nil {
		m.LogWarn("detection worker stop reported error",
			"camera_id", cameraID, "error", err)
		return err
	}
	m.LogInfo("detection worker stopped", "camera_id", cameraID)
	return nil
}

// HasWorker reports whether a worker exists for the camera
func (m *Manager) HasWorker(cameraID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.workers[cameraID]
	return ok
}

// WorkerStatus returns a status snapshot for the camera's worker
func (m *Manager) WorkerStatus(cameraID string) (Snapshot, bool) {
	m.mu.RLock()
	worker, ok := m.workers[cameraID]
	m.mu.RUnlock()

	if !ok {
		return Snapshot{}, false
	}
	return worker.Status().Snapshot(), true
}

// AllWorkerStatuses returns status snapshots for every worker
func (m *Manager) AllWorkerStatuses() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Snapshot, len(m.workers))
	for id, worker := range m.workers {
		out[id] = worker.Status().Snapshot()
	}
	return out
}

// LatestResult returns the most recent detection result for a camera.
// Constant time; never blocks on worker activity.
func (m *Manager) LatestResult(cameraID string) (*Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[cameraID]
	return r, ok
}

// collect is the background result collector loop
func (m *Manager) collect(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(collectorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweep(); err != nil {
				m.LogWarn("result collector sweep failed", "error", err)
				sleepCtx(ctx, collectorErrorNap)
			}
		}
	}
}

// sweep drains every worker's result queue into the latest cache
func (m *Manager) sweep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collector panic: %v", r)
		}
	}()

	m.mu.RLock()
	queues := make(map[string]*ResultQueue, len(m.workers))
	for id, worker := range m.workers {
		queues[id] = worker.Results()
	}
	m.mu.RUnlock()

	for id, queue := range queues {
		var newest *Result
		for {
			r := queue.TryGet()
			if r == nil {
				break
			}
			newest = r
		}
		if newest == nil {
			continue
		}

		m.mu.Lock()
		// A worker stopped mid-sweep must not resurrect its cache entry.
		if _, live := m.workers[id]; live {
			m.latest[id] = newest
		}
		m.mu.Unlock()

		m.PublishEvent(service.EventTypeDetectionResult, map[string]interface{}{
			"camera_id": id,
			"result":    newest,
		})
	}
	return nil
}
