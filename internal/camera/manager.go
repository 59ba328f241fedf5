package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abishek-baskaran/zvision/internal/capture"
	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/detection"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
	"github.com/abishek-baskaran/zvision/internal/state"
	"github.com/abishek-baskaran/zvision/internal/video"
)

// ErrSourceMismatch is returned by GetOrCreate when the camera id is
// already registered with a different source. Callers that intend to
// change the source must use Replace.
var ErrSourceMismatch = errors.New("camera already registered with a different source")

// ErrNotFound is returned for operations on unknown camera ids
var ErrNotFound = errors.New("camera not found")

// SourceFactory builds a frame source for a camera. Swappable so tests
// run without ffmpeg.
type SourceFactory func(cameraID, source string) (video.Source, error)

// entry is the live state of one registered camera
type entry struct {
	id               string
	source           string
	name             string
	detectionEnabled bool
	worker           *capture.Worker
	queue            *video.FrameQueue
}

// Manager owns the camera registry: one capture worker and frame
// queue per registered camera, with optional detection.
type Manager struct {
	*service.ServiceBase

	cfg       *config.Config
	log       *logger.Logger
	det       *detection.Manager
	store     *state.Manager
	rec       capture.Recorder
	factory   SourceFactory
	onRelease []func(cameraID string)

	mu      sync.RWMutex
	cameras map[string]*entry
}

// NewManager creates a camera manager
func NewManager(cfg *config.Config, det *detection.Manager, store *state.Manager, log *logger.Logger) *Manager {
	m := &Manager{
		ServiceBase: service.NewServiceBase("camera-manager", log),
		cfg:         cfg,
		log:         log,
		det:         det,
		store:       store,
		cameras:     make(map[string]*entry),
	}
	m.factory = m.defaultFactory
	return m
}

// SetRecorder attaches an analytics recorder passed to capture workers
func (m *Manager) SetRecorder(rec capture.Recorder) {
	m.rec = rec
}

// SetSourceFactory replaces the frame source factory
func (m *Manager) SetSourceFactory(f SourceFactory) {
	m.factory = f
}

// AddReleaseHook registers a callback invoked after a camera is
// released. Used to drop per-camera state held elsewhere.
func (m *Manager) AddReleaseHook(hook func(cameraID string)) {
	m.onRelease = append(m.onRelease, hook)
}

func (m *Manager) defaultFactory(cameraID, source string) (video.Source, error) {
	ffmpeg, err := video.NewFFmpeg(m.log)
	if err != nil {
		return nil, err
	}
	return video.NewFFmpegSource(cameraID, source, ffmpeg, m.log), nil
}

// Start recovers persisted cameras
func (m *Manager) Start(ctx context.Context) error {
	m.GetStatus().SetStatus(service.StatusStarting)
	if err := m.recoverCameras(ctx); err != nil {
		m.LogWarn("camera recovery incomplete", "error", err)
	}
	m.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop releases every camera
func (m *Manager) Stop(ctx context.Context) error {
	m.GetStatus().SetStatus(service.StatusStopping)
	err := m.ReleaseAll(ctx)
	m.GetStatus().SetStatus(service.StatusStopped)
	return err
}

// recoverCameras re-registers cameras persisted by a previous run
func (m *Manager) recoverCameras(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	cams, err := m.store.ListCameras()
	if err != nil {
		return err
	}

	var firstErr error
	for _, cam := range cams {
		if err := m.GetOrCreate(ctx, cam.ID, cam.Source, cam.DetectionEnabled); err != nil {
			m.LogWarn("failed to recover camera",
				"camera_id", cam.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.LogInfo("recovered camera", "camera_id", cam.ID, "source", cam.Source)
	}
	return firstErr
}

// GetOrCreate registers a camera if absent. Calling it again with the
// same id and source is a no-op (detection is enabled on demand); a
// different source is rejected with ErrSourceMismatch so sources never
// change implicitly.
func (m *Manager) GetOrCreate(ctx context.Context, cameraID, source string, enableDetection bool) error {
	m.mu.Lock()
	if e, ok := m.cameras[cameraID]; ok {
		sameSource := e.source == source
		m.mu.Unlock()
		if !sameSource {
			return fmt.Errorf("%w: %s", ErrSourceMismatch, cameraID)
		}
		if enableDetection {
			return m.EnableDetection(ctx, cameraID)
		}
		return nil
	}
	m.mu.Unlock()

	src, err := m.factory(cameraID, source)
	if err != nil {
		return fmt.Errorf("failed to create source for %s: %w", cameraID, err)
	}

	queue := video.NewFrameQueue(m.cfg.Capture.QueueSize)
	worker := capture.NewWorker(cameraID, src, queue, m.cfg.Capture, m.log)
	if m.rec != nil {
		worker.SetRecorder(m.rec)
	}
	if prober := capture.NewRTSPProber(source, 5*time.Second, m.log); prober != nil {
		worker.SetProber(prober)
	}

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture for %s: %w", cameraID, err)
	}

	e := &entry{
		id:     cameraID,
		source: source,
		worker: worker,
		queue:  queue,
	}

	m.mu.Lock()
	if _, raced := m.cameras[cameraID]; raced {
		m.mu.Unlock()
		_ = worker.Stop(ctx)
		return fmt.Errorf("camera %s registered concurrently", cameraID)
	}
	m.cameras[cameraID] = e
	m.mu.Unlock()

	m.persist(e)
	m.PublishEvent(service.EventTypeCameraAdded, map[string]interface{}{
		"camera_id": cameraID,
		"source":    source,
	})
	m.LogInfo("camera registered", "camera_id", cameraID, "source", source)

	if enableDetection {
		if err := m.EnableDetection(ctx, cameraID); err != nil {
			return err
		}
	}
	return nil
}

// Replace tears the camera down completely and re-registers it with a
// new source under the same id. Detection enablement carries over.
func (m *Manager) Replace(ctx context.Context, cameraID, source string) error {
	m.mu.RLock()
	e, ok := m.cameras[cameraID]
	var wasEnabled bool
	if ok {
		wasEnabled = e.detectionEnabled
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, cameraID)
	}

	if err := m.Release(ctx, cameraID); err != nil {
		m.LogWarn("release during replace reported error",
			"camera_id", cameraID, "error", err)
	}
	return m.GetOrCreate(ctx, cameraID, source, wasEnabled)
}

// EnableDetection starts the detection worker for a camera. Idempotent.
func (m *Manager) EnableDetection(ctx context.Context, cameraID string) error {
	m.mu.Lock()
	e, ok := m.cameras[cameraID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, cameraID)
	}
	alreadyEnabled := e.detectionEnabled
	queue := e.queue
	m.mu.Unlock()

	if alreadyEnabled && m.det.HasWorker(cameraID) {
		return nil
	}

	if err := m.det.StartWorker(ctx, cameraID, queue); err != nil {
		return err
	}

	m.mu.Lock()
	if e, ok := m.cameras[cameraID]; ok {
		e.detectionEnabled = true
		m.persist(e)
	}
	m.mu.Unlock()
	return nil
}

// DisableDetection stops the detection worker for a camera
func (m *Manager) DisableDetection(cameraID string) error {
	m.mu.Lock()
	e, ok := m.cameras[cameraID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, cameraID)
	}
	e.detectionEnabled = false
	m.persist(e)
	m.mu.Unlock()

	return m.det.StopWorker(cameraID)
}

// Release tears down a camera: detection first so no consumer reads a
// dying queue, then the capture worker. Unknown ids are a no-op.
func (m *Manager) Release(ctx context.Context, cameraID string) error {
	m.mu.Lock()
	e, ok := m.cameras[cameraID]
	delete(m.cameras, cameraID)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	var firstErr error
	if err := m.det.StopWorker(cameraID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.worker.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if m.store != nil {
		if err := m.store.DeleteCamera(cameraID); err != nil {
			m.LogWarn("failed to delete persisted camera",
				"camera_id", cameraID, "error", err)
		}
	}

	for _, hook := range m.onRelease {
		hook(cameraID)
	}

	m.PublishEvent(service.EventTypeCameraRemoved, map[string]interface{}{
		"camera_id": cameraID,
	})
	m.LogInfo("camera released", "camera_id", cameraID)
	return firstErr
}

// ReleaseAll releases every camera, best effort. Returns the first
// error but always attempts every camera, and verifies the registry
// ends up empty.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Release(ctx, id); err != nil {
			m.LogWarn("release failed", "camera_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	m.mu.RLock()
	remaining := len(m.cameras)
	m.mu.RUnlock()
	if remaining != 0 {
		err := fmt.Errorf("%d cameras remain after release all", remaining)
		m.LogError("registry not empty after release all", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StatusView is the merged status of one camera
type StatusView struct {
	Found            bool                `json:"found"`
	CameraID         string              `json:"camera_id"`
	Source           string              `json:"source,omitempty"`
	DetectionEnabled bool                `json:"detection_enabled"`
	QueueLength      int                 `json:"queue_length"`
	Capture          *capture.Snapshot   `json:"capture,omitempty"`
	Detection        *detection.Snapshot `json:"detection,omitempty"`
}

// Status returns the merged capture and detection status for a camera.
// Unknown ids return a well-defined not-found view rather than an
// error.
func (m *Manager) Status(cameraID string) StatusView {
	m.mu.RLock()
	e, ok := m.cameras[cameraID]
	if !ok {
		m.mu.RUnlock()
		return StatusView{Found: false, CameraID: cameraID}
	}

	// Entry fields are copied under the lock; only the snapshot calls,
	// which take their own locks, run outside it.
	view := StatusView{
		Found:            true,
		CameraID:         cameraID,
		Source:           e.source,
		DetectionEnabled: e.detectionEnabled,
		QueueLength:      e.queue.Len(),
	}
	worker := e.worker
	m.mu.RUnlock()

	snap := worker.Status().Snapshot()
	view.Capture = &snap

	if det, ok := m.det.WorkerStatus(cameraID); ok {
		view.Detection = &det
	}
	return view
}

// AllStatuses returns merged statuses for every registered camera
func (m *Manager) AllStatuses() map[string]StatusView {
	m.mu.RLock()
	ids := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make(map[string]StatusView, len(ids))
	for _, id := range ids {
		out[id] = m.Status(id)
	}
	return out
}

// Has reports whether a camera is registered
func (m *Manager) Has(cameraID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cameras[cameraID]
	return ok
}

// FrameQueue returns the frame queue of a registered camera
func (m *Manager) FrameQueue(cameraID string) (*video.FrameQueue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cameras[cameraID]
	if !ok {
		return nil, false
	}
	return e.queue, true
}

func (m *Manager) persist(e *entry) {
	if m.store == nil {
		return
	}
	err := m.store.SaveCamera(&state.Camera{
		ID:               e.id,
		Source:           e.source,
		Name:             e.name,
		DetectionEnabled: e.detectionEnabled,
	})
	if err != nil {
		m.LogWarn("failed to persist camera", "camera_id", e.id, "error", err)
	}
}
