package analytics

import (
	"testing"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
)

func newTestSink() *Sink {
	cfg := config.AnalyticsConfig{
		MaxHistory:      5,
		SummaryInterval: time.Hour,
		ClassWindow:     time.Minute,
	}
	return NewSink(cfg, logger.NewNopLogger())
}

func TestSinkCounters(t *testing.T) {
	s := newTestSink()

	s.RecordCapture("cam-1", 10*time.Millisecond)
	s.RecordEviction("cam-1")
	s.RecordEviction("cam-1")
	s.RecordInference("cam-1", 20*time.Millisecond, map[int]int{0: 2, 2: 1})
	s.RecordSkipped("cam-1", 4)
	s.RecordDropped("cam-1", 1)
	s.RecordResources("cam-1", 120.5, 35.0)

	m, ok := s.CameraMetrics("cam-1")
	if !ok {
		t.Fatal("expected metrics for cam-1")
	}
	if m.FramesProcessed != 1 {
		t.Errorf("frames processed = %d, want 1", m.FramesProcessed)
	}
	if m.QueueEvictions != 2 {
		t.Errorf("queue evictions = %d, want 2", m.QueueEvictions)
	}
	if m.FramesSkipped != 4 {
		t.Errorf("frames skipped = %d, want 4", m.FramesSkipped)
	}
	if m.FramesDropped != 1 {
		t.Errorf("frames dropped = %d, want 1", m.FramesDropped)
	}
	if m.ClassCounts[0] != 2 || m.ClassCounts[2] != 1 {
		t.Errorf("unexpected class counts: %v", m.ClassCounts)
	}
	if m.MemoryMB != 120.5 || m.CPUPercent != 35.0 {
		t.Errorf("unexpected resources: %v MB, %v%%", m.MemoryMB, m.CPUPercent)
	}
	if m.AvgInferenceMS < 19 || m.AvgInferenceMS > 21 {
		t.Errorf("avg inference ms = %v, want ~20", m.AvgInferenceMS)
	}
}

func TestSinkHistoriesAreBounded(t *testing.T) {
	s := newTestSink()

	// Far more samples than MaxHistory; averages must reflect only the
	// newest window.
	for i := 0; i < 100; i++ {
		s.RecordInference("cam-1", time.Duration(i)*time.Millisecond, map[int]int{0: 1})
	}

	m, _ := s.CameraMetrics("cam-1")
	if m.FramesProcessed != 100 {
		t.Errorf("counter should be monotonic: %d", m.FramesProcessed)
	}
	// Last 5 samples are 95..99ms.
	if m.AvgInferenceMS < 95 || m.AvgInferenceMS > 99 {
		t.Errorf("avg should cover only the ring window, got %v", m.AvgInferenceMS)
	}
	if m.MaxInferenceMS != 99 {
		t.Errorf("max inference = %v, want 99", m.MaxInferenceMS)
	}
}

func TestSinkClassCountsSince(t *testing.T) {
	s := newTestSink()

	s.RecordInference("cam-1", time.Millisecond, map[int]int{0: 3})
	s.RecordInference("cam-1", time.Millisecond, map[int]int{1: 1})

	counts := s.ClassCountsSince("cam-1", time.Minute)
	if counts[0] != 3 || counts[1] != 1 {
		t.Errorf("unexpected windowed counts: %v", counts)
	}

	if got := s.ClassCountsSince("cam-1", 0); len(got) != 0 {
		t.Errorf("zero window should return nothing, got %v", got)
	}
	if got := s.ClassCountsSince("unknown", time.Minute); len(got) != 0 {
		t.Errorf("unknown camera should return nothing, got %v", got)
	}
}

func TestSinkAllMetricsAndForget(t *testing.T) {
	s := newTestSink()
	s.RecordCapture("cam-1", time.Millisecond)
	s.RecordCapture("cam-2", time.Millisecond)

	all := s.AllMetrics()
	if len(all) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(all))
	}

	s.Forget("cam-1")
	if _, ok := s.CameraMetrics("cam-1"); ok {
		t.Error("cam-1 should be forgotten")
	}
	if _, ok := s.CameraMetrics("cam-2"); !ok {
		t.Error("cam-2 should be unaffected")
	}
}

func TestSinkUnknownCamera(t *testing.T) {
	s := newTestSink()
	if _, ok := s.CameraMetrics("nope"); ok {
		t.Error("expected no metrics for unknown camera")
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	if r.len() != 0 || r.avg() != 0 || r.last() != 0 {
		t.Error("empty ring should report zeros")
	}

	r.add(1)
	r.add(2)
	r.add(3)
	r.add(4) // overwrites 1

	if r.len() != 3 {
		t.Errorf("len = %d, want 3", r.len())
	}
	if r.avg() != 3 {
		t.Errorf("avg = %v, want 3", r.avg())
	}
	if r.last() != 4 {
		t.Errorf("last = %v, want 4", r.last())
	}
	if r.max() != 4 {
		t.Errorf("max = %v, want 4", r.max())
	}
}
