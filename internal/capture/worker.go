package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/video"
)

// Recorder receives capture-side analytics. Implemented by the
// analytics sink; nil disables recording.
type Recorder interface {
	RecordCapture(cameraID string, readDuration time.Duration)
	RecordEviction(cameraID string)
}

// backoff bounds for stream reconnects
const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second

	// extraSleepCap bounds the proportional backpressure sleep added
	// once the frame queue runs more than half full
	extraSleepCap = 100 * time.Millisecond
)

// Worker captures frames from one source into one frame queue. It runs
// a single goroutine whose lifetime matches the camera registration.
type Worker struct {
	cameraID string
	source   video.Source
	queue    *video.FrameQueue
	cfg      config.CaptureConfig
	log      *logger.Logger
	rec      Recorder
	prober   Prober
	status   *Status

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWorker creates a capture worker for one camera
func NewWorker(cameraID string, source video.Source, queue *video.FrameQueue, cfg config.CaptureConfig, log *logger.Logger) *Worker {
	return &Worker{
		cameraID: cameraID,
		source:   source,
		queue:    queue,
		cfg:      cfg,
		log:      log,
		status:   NewStatus(cameraID),
	}
}

// SetRecorder attaches an analytics recorder
func (w *Worker) SetRecorder(rec Recorder) {
	w.rec = rec
}

// SetProber attaches a stream liveness prober used before reconnects
func (w *Worker) SetProber(p Prober) {
	w.prober = p
}

// Status returns the worker's status record
func (w *Worker) Status() *Status {
	return w.status
}

// Queue returns the frame queue this worker feeds
func (w *Worker) Queue() *video.FrameQueue {
	return w.queue
}

// Start launches the capture goroutine. Source open happens inside the
// goroutine; an open failure is reported through the status record.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("capture worker %s already started", w.cameraID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	w.status.SetState(StateStarting)
	go w.run(runCtx)
	return nil
}

// Stop requests cooperative shutdown and waits up to the configured
// stop timeout. Whether or not the goroutine exits in time, the source
// is closed and the frame queue drained so a successor never inherits
// stale frames.
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
		joinErr = fmt.Errorf("capture worker %s did not stop within %v", w.cameraID, timeout)
		w.log.Warn("capture worker abandoned after stop timeout",
			"camera_id", w.cameraID, "timeout", timeout)
	case <-ctx.Done():
		joinErr = ctx.Err()
	}

	_ = w.source.Close()
	if drained := w.queue.Drain(); drained > 0 {
		w.log.Debug("drained frame queue on stop",
			"camera_id", w.cameraID, "frames", drained)
	}

	w.status.SetState(StateStopped)
	return joinErr
}

// run is the capture loop
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	if err := w.source.Open(ctx); err != nil {
		w.log.Error("failed to open source",
			"camera_id", w.cameraID, "error", err)
		w.status.SetError(StateError, err)
		return
	}
	defer w.source.Close()

	w.status.SetState(StateRunning)
	w.log.Info("capture worker running",
		"camera_id", w.cameraID, "kind", w.source.Kind().String())

	reconnectWait := reconnectBase

	for ctx.Err() == nil {
		readStart := time.Now()
		frame, err := w.source.ReadFrame()
		readDuration := time.Since(readStart)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.status.SetError(StateReadError, err)
			if !w.recover(ctx, &reconnectWait, err) {
				return
			}
			continue
		}

		reconnectWait = reconnectBase
		if w.status.State() != StateRunning {
			w.status.SetState(StateRunning)
		}

		if evicted := w.queue.Put(frame); evicted && w.rec != nil {
			w.rec.RecordEviction(w.cameraID)
		}
		w.status.RecordFrame(frame.Timestamp)
		if w.rec != nil {
			w.rec.RecordCapture(w.cameraID, readDuration)
		}

		w.adaptiveSleep(ctx, readDuration)
	}
}

// recover handles a read failure according to the source kind. Returns
// false when the worker should exit.
func (w *Worker) recover(ctx context.Context, reconnectWait *time.Duration, readErr error) bool {
	switch w.source.Kind() {
	case video.KindFile:
		// End of file: loop back to the first frame.
		w.log.Debug("restarting file source",
			"camera_id", w.cameraID, "error", readErr)
		if !sleepCtx(ctx, w.cfg.ReadRetryWait) {
			return false
		}
		if err := w.source.Restart(ctx); err != nil {
			w.log.Error("file source restart failed",
				"camera_id", w.cameraID, "error", err)
			w.status.SetError(StateError, err)
			return false
		}
		return true

	case video.KindStream:
		w.log.Warn("stream read failed, reconnecting",
			"camera_id", w.cameraID, "wait", *reconnectWait, "error", readErr)
		_ = w.source.Close()
		if !sleepCtx(ctx, *reconnectWait) {
			return false
		}
		*reconnectWait *= 2
		if *reconnectWait > reconnectMax {
			*reconnectWait = reconnectMax
		}
		if w.prober != nil {
			if err := w.prober.Probe(ctx); err != nil {
				w.log.Debug("stream probe failed, will retry",
					"camera_id", w.cameraID, "error", err)
				return true
			}
		}
		if err := w.source.Restart(ctx); err != nil {
			w.log.Warn("stream reopen failed, will retry",
				"camera_id", w.cameraID, "error", err)
		}
		return true

	default: // device
		if !sleepCtx(ctx, time.Second) {
			return false
		}
		if err := w.source.Restart(ctx); err != nil {
			w.log.Warn("device reopen failed, will retry",
				"camera_id", w.cameraID, "error", err)
		}
		return true
	}
}

// adaptiveSleep paces the loop to the target capture rate. The base
// sleep is the frame interval minus the time the read already took.
// Once the queue runs more than half full an extra proportional sleep
// slows the producer down so the consumer can catch up.
func (w *Worker) adaptiveSleep(ctx context.Context, readDuration time.Duration) {
	if w.cfg.TargetFPS <= 0 {
		return
	}

	interval := time.Duration(float64(time.Second) / w.cfg.TargetFPS)
	base := interval - readDuration
	if base < 0 {
		base = 0
	}

	sleep := base
	if qlen, qcap := w.queue.Len(), w.queue.Cap(); qcap > 0 && qlen > qcap/2 {
		fullness := float64(qlen) / float64(qcap)
		extra := time.Duration(float64(base) * fullness)
		if extra > extraSleepCap {
			extra = extraSleepCap
		}
		sleep += extra
	}

	if sleep > 0 {
		sleepCtx(ctx, sleep)
	}
}

// sleepCtx sleeps unless the context is canceled first. Returns false
// on cancellation.
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
