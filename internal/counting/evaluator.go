package counting

import (
	"math"
	"sync"
	"time"
)

// maxMatchDistance is the farthest a centroid may move between
// consecutive evaluations and still be treated as the same object
const maxMatchDistance = 50.0

// Event is one detected line crossing
type Event struct {
	Kind      EventKind  `json:"kind"`
	CameraID  string     `json:"camera_id"`
	Position  [2]float64 `json:"position"`
	Timestamp time.Time  `json:"timestamp"`
}

// track is a previously seen centroid with its line side
type track struct {
	pos  [2]float64
	side int
}

// cameraState is the evaluator's per-camera memory
type cameraState struct {
	line        Line
	orientation string
	tracks      []track
	entries     int
	exits       int
}

// Evaluator turns successive centroid observations into entry/exit
// events. Objects are matched frame-to-frame by nearest centroid; a
// matched object whose line side flips produces an event whose kind
// depends on the configured orientation.
type Evaluator struct {
	mu      sync.Mutex
	cameras map[string]*cameraState
}

// NewEvaluator creates an empty evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{cameras: make(map[string]*cameraState)}
}

// Configure sets or replaces the crossing line for a camera. Existing
// tracks are discarded since sides were computed against the old line.
func (e *Evaluator) Configure(cameraID string, line Line, orientation string) {
	if orientation != OrientationRightToLeft {
		orientation = OrientationLeftToRight
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cs, ok := e.cameras[cameraID]
	if !ok {
		cs = &cameraState{}
		e.cameras[cameraID] = cs
	}
	cs.line = line
	cs.orientation = orientation
	cs.tracks = nil
}

// Configured reports whether a camera has a crossing line
func (e *Evaluator) Configured(cameraID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cameras[cameraID]
	return ok
}

// Forget drops all evaluator state for a camera
func (e *Evaluator) Forget(cameraID string) {
	e.mu.Lock()
	delete(e.cameras, cameraID)
	e.mu.Unlock()
}

// Counts returns the running entry/exit totals for a camera
func (e *Evaluator) Counts(cameraID string) (entries, exits int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cs, ok := e.cameras[cameraID]; ok {
		return cs.entries, cs.exits
	}
	return 0, 0
}

// Observe evaluates one set of detection centroids against the
// camera's line and returns any crossing events. Unconfigured cameras
// produce no events.
func (e *Evaluator) Observe(cameraID string, centroids [][2]float64, ts time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	cs, ok := e.cameras[cameraID]
	if !ok {
		return nil
	}

	var events []Event
	next := make([]track, 0, len(centroids))

	for _, c := range centroids {
		side := cs.line.SideOfLine(c[0], c[1])
		cur := track{pos: c, side: side}

		prev, found := nearestTrack(cs.tracks, c)
		if found && prev.side != 0 && side != 0 && prev.side != side {
			kind := crossingKind(cs.orientation, prev.side, side)
			if kind != NoEvent {
				if kind == Entry {
					cs.entries++
				} else {
					cs.exits++
				}
				events = append(events, Event{
					Kind:      kind,
					CameraID:  cameraID,
					Position:  c,
					Timestamp: ts,
				})
			}
		}
		next = append(next, cur)
	}

	cs.tracks = next
	return events
}

// nearestTrack finds the closest previous track within the match
// distance
func nearestTrack(tracks []track, pos [2]float64) (track, bool) {
	best := track{}
	bestDist := math.MaxFloat64
	found := false
	for _, tr := range tracks {
		dx := tr.pos[0] - pos[0]
		dy := tr.pos[1] - pos[1]
		dist := math.Hypot(dx, dy)
		if dist <= maxMatchDistance && dist < bestDist {
			best = tr
			bestDist = dist
			found = true
		}
	}
	return best, found
}

// crossingKind maps a side flip to entry or exit given the orientation
func crossingKind(orientation string, prevSide, newSide int) EventKind {
	if prevSide == newSide {
		return NoEvent
	}
	// Crossing from the line's positive side (+1) to its negative
	// side (-1). For a line pointing downward in image coordinates
	// this is left-to-right movement on screen.
	ltr := prevSide > 0 && newSide < 0

	if orientation == OrientationRightToLeft {
		if ltr {
			return Exit
		}
		return Entry
	}
	if ltr {
		return Entry
	}
	return Exit
}
