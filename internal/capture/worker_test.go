package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/video"
)

// fakeSource is a synthetic source: a fixed set of frames followed by
// io.EOF, restartable like a looping file.
type fakeSource struct {
	mu       sync.Mutex
	kind     video.SourceKind
	frames   [][]byte
	idx      int
	opened   bool
	opens    int
	restarts int
	closes   int
	openErr  error
	readErrs []error // consumed before frames on each open
}

func (s *fakeSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	s.opens++
	s.idx = 0
	return nil
}

func (s *fakeSource) ReadFrame() (*video.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil, errors.New("source not open")
	}
	if len(s.readErrs) > 0 {
		err := s.readErrs[0]
		s.readErrs = s.readErrs[1:]
		return nil, err
	}
	if s.idx >= len(s.frames) {
		return nil, io.EOF
	}
	data := s.frames[s.idx]
	s.idx++
	return video.NewFrame("cam-1", data, 2, 2), nil
}

func (s *fakeSource) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	s.idx = 0
	s.opened = true
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		s.closes++
	}
	s.opened = false
	return nil
}

func (s *fakeSource) Kind() video.SourceKind { return s.kind }

func (s *fakeSource) restartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *fakeSource) isOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		TargetFPS:     200,
		QueueSize:     30,
		StopTimeout:   time.Second,
		ReadRetryWait: time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerCapturesAndLoopsFile(t *testing.T) {
	src := &fakeSource{
		kind:   video.KindFile,
		frames: [][]byte{{1}, {2}, {3}},
	}
	queue := video.NewFrameQueue(30)
	w := NewWorker("cam-1", src, queue, testCaptureConfig(), logger.NewNopLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The 3-frame source must loop: more frames captured than the
	// source holds, via restarts on EOF.
	waitFor(t, 3*time.Second, func() bool {
		return w.Status().Snapshot().FramesCaptured >= 9
	})
	if src.restartCount() < 2 {
		t.Errorf("expected at least 2 loop restarts, got %d", src.restartCount())
	}
	if state := w.Status().State(); state != StateRunning {
		t.Errorf("expected running, got %s", state)
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if state := w.Status().State(); state != StateStopped {
		t.Errorf("expected stopped, got %s", state)
	}
	if queue.Len() != 0 {
		t.Errorf("stop must drain the queue, %d frames left", queue.Len())
	}
	if src.isOpened() {
		t.Error("source should be closed after stop")
	}
}

func TestWorkerDoubleStart(t *testing.T) {
	src := &fakeSource{kind: video.KindFile, frames: [][]byte{{1}}}
	w := NewWorker("cam-1", src, video.NewFrameQueue(5), testCaptureConfig(), logger.NewNopLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestWorkerOpenFailure(t *testing.T) {
	src := &fakeSource{
		kind:    video.KindFile,
		openErr: errors.New("no such file"),
	}
	w := NewWorker("cam-1", src, video.NewFrameQueue(5), testCaptureConfig(), logger.NewNopLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return w.Status().State() == StateError
	})
	snap := w.Status().Snapshot()
	if snap.Error == "" {
		t.Error("open failure should record an error message")
	}

	// Stop of a dead worker is clean.
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestWorkerStopIdempotent(t *testing.T) {
	src := &fakeSource{kind: video.KindFile, frames: [][]byte{{1}}}
	w := NewWorker("cam-1", src, video.NewFrameQueue(5), testCaptureConfig(), logger.NewNopLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	captures  int
	evictions int
}

func (r *countingRecorder) RecordCapture(string, time.Duration) {
	r.mu.Lock()
	r.captures++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordEviction(string) {
	r.mu.Lock()
	r.evictions++
	r.mu.Unlock()
}

func (r *countingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captures, r.evictions
}

func TestWorkerRecordsEvictionsWithoutConsumer(t *testing.T) {
	src := &fakeSource{
		kind:   video.KindFile,
		frames: [][]byte{{1}, {2}, {3}, {4}, {5}},
	}
	queue := video.NewFrameQueue(2)
	rec := &countingRecorder{}

	w := NewWorker("cam-1", src, queue, testCaptureConfig(), logger.NewNopLogger())
	w.SetRecorder(rec)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	// Nobody consumes, so the bounded queue must evict.
	waitFor(t, 3*time.Second, func() bool {
		_, ev := rec.counts()
		return ev >= 5
	})
	if queue.Len() > queue.Cap() {
		t.Errorf("queue exceeded capacity: %d", queue.Len())
	}
	captures, _ := rec.counts()
	if captures == 0 {
		t.Error("expected capture durations recorded")
	}
}

func TestWorkerSurvivesTransientReadErrors(t *testing.T) {
	src := &fakeSource{
		kind:     video.KindFile,
		frames:   [][]byte{{1}, {2}},
		readErrs: []error{errors.New("decode glitch")},
	}
	w := NewWorker("cam-1", src, video.NewFrameQueue(10), testCaptureConfig(), logger.NewNopLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		return w.Status().Snapshot().FramesCaptured >= 2
	})
	if state := w.Status().State(); state != StateRunning {
		t.Errorf("worker should have recovered to running, got %s", state)
	}
}
