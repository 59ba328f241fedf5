package counting

import (
	"testing"
	"time"
)

// vertical line at x=100, pointing down: left side of travel is x<100
func verticalLine() Line {
	return Line{X1: 100, Y1: 0, X2: 100, Y2: 200}
}

func TestSideOfLine(t *testing.T) {
	l := verticalLine()

	if side := l.SideOfLine(50, 100); side != 1 {
		t.Errorf("point west of a downward line: side = %d, want 1", side)
	}
	if side := l.SideOfLine(150, 100); side != -1 {
		t.Errorf("point east of a downward line: side = %d, want -1", side)
	}
	if side := l.SideOfLine(100, 50); side != 0 {
		t.Errorf("point on the line: side = %d, want 0", side)
	}
}

func TestObserveEntry(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)

	now := time.Now()
	// First observation establishes the track, no event.
	events := e.Observe("cam-1", [][2]float64{{80, 100}}, now)
	if len(events) != 0 {
		t.Fatalf("first observation should produce no events, got %d", len(events))
	}

	// Crossing left to right within match distance.
	events = e.Observe("cam-1", [][2]float64{{120, 100}}, now.Add(200*time.Millisecond))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Kind != Entry {
		t.Errorf("expected Entry, got %s", events[0].Kind)
	}

	entries, exits := e.Counts("cam-1")
	if entries != 1 || exits != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", entries, exits)
	}
}

func TestObserveExit(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)

	now := time.Now()
	e.Observe("cam-1", [][2]float64{{120, 100}}, now)
	events := e.Observe("cam-1", [][2]float64{{80, 100}}, now.Add(200*time.Millisecond))

	if len(events) != 1 || events[0].Kind != Exit {
		t.Fatalf("expected one Exit event, got %v", events)
	}
}

func TestObserveOrientationFlipsKinds(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationRightToLeft)

	now := time.Now()
	e.Observe("cam-1", [][2]float64{{80, 100}}, now)
	events := e.Observe("cam-1", [][2]float64{{120, 100}}, now.Add(time.Second))

	if len(events) != 1 || events[0].Kind != Exit {
		t.Fatalf("left-to-right movement should be Exit under rightToLeft orientation, got %v", events)
	}
}

func TestObserveNoMatchBeyondDistance(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)

	now := time.Now()
	e.Observe("cam-1", [][2]float64{{80, 100}}, now)

	// Opposite side but 60px away: treated as a new object, no event.
	events := e.Observe("cam-1", [][2]float64{{120, 145}}, now.Add(time.Second))
	if len(events) != 0 {
		t.Errorf("expected no events for unmatched centroid, got %v", events)
	}
}

func TestObserveSameSideNoEvent(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)

	now := time.Now()
	e.Observe("cam-1", [][2]float64{{80, 100}}, now)
	events := e.Observe("cam-1", [][2]float64{{90, 100}}, now.Add(time.Second))
	if len(events) != 0 {
		t.Errorf("movement on one side should produce no events, got %v", events)
	}
}

func TestObserveUnconfiguredCamera(t *testing.T) {
	e := NewEvaluator()
	if events := e.Observe("cam-x", [][2]float64{{10, 10}}, time.Now()); events != nil {
		t.Errorf("unconfigured camera should produce nil, got %v", events)
	}
}

func TestObserveMultipleObjects(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)

	now := time.Now()
	e.Observe("cam-1", [][2]float64{{80, 50}, {120, 150}}, now)

	// First object crosses rightward, second crosses leftward.
	events := e.Observe("cam-1", [][2]float64{{115, 50}, {85, 150}}, now.Add(time.Second))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	kinds := map[EventKind]int{}
	for _, ev := range events {
		kinds[ev.Kind]++
	}
	if kinds[Entry] != 1 || kinds[Exit] != 1 {
		t.Errorf("expected one Entry and one Exit, got %v", kinds)
	}
}

func TestConfigureResetsTracks(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)

	now := time.Now()
	e.Observe("cam-1", [][2]float64{{80, 100}}, now)

	// Reconfiguring discards tracks, so the next observation cannot
	// pair with a stale side.
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)
	events := e.Observe("cam-1", [][2]float64{{120, 100}}, now.Add(time.Second))
	if len(events) != 0 {
		t.Errorf("expected no events after reconfigure, got %v", events)
	}
}

func TestForget(t *testing.T) {
	e := NewEvaluator()
	e.Configure("cam-1", verticalLine(), OrientationLeftToRight)
	e.Forget("cam-1")

	if e.Configured("cam-1") {
		t.Error("camera should be forgotten")
	}
}
