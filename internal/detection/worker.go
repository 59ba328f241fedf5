package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/video"
)

// Recorder receives detection-side analytics. Implemented by the
// analytics sink; nil disables recording.
type Recorder interface {
	RecordInference(cameraID string, latency time.Duration, classCounts map[int]int)
	RecordSkipped(cameraID string, n int)
	RecordDropped(cameraID string, n int)
	RecordResources(cameraID string, memoryMB, cpuPercent float64)
}

const (
	// emptyQueueNap is how long the worker sleeps when no frame is
	// available
	emptyQueueNap = 100 * time.Millisecond

	// cycleErrorNap is how long the worker sleeps after a failed
	// detection cycle before trying again
	cycleErrorNap = 500 * time.Millisecond
)

// Worker runs detection for one camera at its own rate, independent of
// the capture rate. It always works on the freshest frame, skipping
// any backlog.
type Worker struct {
	cameraID string
	frames   *video.FrameQueue
	results  *ResultQueue
	detector Detector
	cfg      config.DetectionConfig
	log      *logger.Logger
	rec      Recorder
	status   *Status
	sampler  *resourceSampler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWorker creates a detection worker for one camera
func NewWorker(cameraID string, frames *video.FrameQueue, results *ResultQueue, detector Detector, cfg config.DetectionConfig, log *logger.Logger) *Worker {
	return &Worker{
		cameraID: cameraID,
		frames:   frames,
		results:  results,
		detector: detector,
		cfg:      cfg,
		log:      log,
		status:   NewStatus(cameraID),
		sampler:  newResourceSampler(time.Second),
	}
}

// SetRecorder attaches an analytics recorder
func (w *Worker) SetRecorder(rec Recorder) {
	w.rec = rec
}

// Status returns the worker's status record
func (w *Worker) Status() *Status {
	return w.status
}

// Results returns the worker's result queue
func (w *Worker) Results() *ResultQueue {
	return w.results
}

// Start launches the detection goroutine
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("detection worker %s already started", w.cameraID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	go w.run(runCtx)
	return nil
}

// Stop requests shutdown and waits up to the configured stop timeout.
// The result queue is drained either way.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.started = false
	w.mu.Unlock()

	cancel()

	timeout := w.cfg.StopTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	var joinErr error
	select {
	case <-done:
	case <-time.After(timeout):
		joinErr = fmt.Errorf("detection worker %s did not stop within %v", w.cameraID, timeout)
		w.log.Warn("detection worker abandoned after stop timeout",
			"camera_id", w.cameraID, "timeout", timeout)
	case <-ctx.Done():
		joinErr = ctx.Err()
	}

	if drained := w.results.Drain(); drained > 0 {
		w.log.Debug("drained result queue on stop",
			"camera_id", w.cameraID, "results", drained)
	}

	w.status.SetState(StateStopped)
	return joinErr
}

// run is the detection loop
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	w.status.SetState(StateRunning)
	w.log.Info("detection worker running",
		"camera_id", w.cameraID, "target_fps", w.cfg.TargetFPS)

	targetFPS := w.cfg.TargetFPS
	if targetFPS <= 0 {
		targetFPS = 5
	}
	interval := time.Duration(float64(time.Second) / targetFPS)

	for ctx.Err() == nil {
		cycleStart := time.Now()

		frame, skipped := w.frames.DrainLatest(w.cfg.DrainLimit, w.cfg.DrainWindow)
		if skipped > 0 {
			w.status.AddSkipped(skipped)
			if w.rec != nil {
				w.rec.RecordSkipped(w.cameraID, skipped)
			}
		}
		if frame == nil {
			sleepCtx(ctx, emptyQueueNap)
			continue
		}

		if err := w.detect(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			// One bad cycle must not kill the worker.
			w.log.Warn("detection cycle failed",
				"camera_id", w.cameraID, "error", err)
			w.status.NoteCycleError(err)
			sleepCtx(ctx, cycleErrorNap)
			continue
		}

		w.sampleResources()

		if wait := interval - time.Since(cycleStart); wait > 0 {
			sleepCtx(ctx, wait)
		}
	}
}

// detect runs one inference cycle on a frame and publishes the result
func (w *Worker) detect(ctx context.Context, frame *video.Frame) error {
	detCtx, cancel := context.WithTimeout(ctx, w.cfg.InferenceTimeout)
	defer cancel()

	inferStart := time.Now()
	dets, err := w.detector.Detect(detCtx, frame)
	if err != nil {
		return err
	}
	latency := time.Since(inferStart)

	result := &Result{
		CameraID:           w.cameraID,
		Boxes:              dets.Boxes,
		Scores:             dets.Scores,
		Labels:             dets.Labels,
		SourceTimestamp:    frame.Timestamp,
		ProcessedTimestamp: time.Now(),
	}

	if evicted := w.results.Put(result); evicted {
		w.status.AddDropped(1)
		if w.rec != nil {
			w.rec.RecordDropped(w.cameraID, 1)
		}
	}

	w.status.RecordResult(result.ProcessedTimestamp, result.Count(w.cfg.ConfidenceThreshold))
	if w.rec != nil {
		w.rec.RecordInference(w.cameraID, latency, result.ClassCounts(w.cfg.ConfidenceThreshold))
	}
	return nil
}

// sampleResources records RSS/CPU when the rate limiter allows
func (w *Worker) sampleResources() {
	memMB, cpuPct, ok := w.sampler.sample()
	if !ok {
		return
	}
	w.status.SetResources(memMB, cpuPct)
	if w.rec != nil {
		w.rec.RecordResources(w.cameraID, memMB, cpuPct)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
