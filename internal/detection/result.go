package detection

import (
	"sync"
	"time"
)

// Result is one detection pass over one frame
type Result struct {
	CameraID           string    `json:"camera_id"`
	Boxes              [][]int   `json:"boxes"`
	Scores             []float64 `json:"scores"`
	Labels             []int     `json:"labels"`
	SourceTimestamp    time.Time `json:"source_timestamp"`
	ProcessedTimestamp time.Time `json:"processed_timestamp"`
}

// Latency returns capture-to-result latency
func (r *Result) Latency() time.Duration {
	return r.ProcessedTimestamp.Sub(r.SourceTimestamp)
}

// FilteredBoxes returns boxes whose score meets the threshold
func (r *Result) FilteredBoxes(threshold float64) [][]int {
	var boxes [][]int
	for i, box := range r.Boxes {
		if i < len(r.Scores) && r.Scores[i] >= threshold {
			boxes = append(boxes, box)
		}
	}
	return boxes
}

// Count returns how many detections meet the threshold
func (r *Result) Count(threshold float64) int {
	n := 0
	for _, score := range r.Scores {
		if score >= threshold {
			n++
		}
	}
	return n
}

// Centroids returns box centers for detections meeting the threshold
func (r *Result) Centroids(threshold float64) [][2]float64 {
	var centers [][2]float64
	for i, box := range r.Boxes {
		if i >= len(r.Scores) || r.Scores[i] < threshold || len(box) < 4 {
			continue
		}
		centers = append(centers, [2]float64{
			float64(box[0]+box[2]) / 2,
			float64(box[1]+box[3]) / 2,
		})
	}
	return centers
}

// ClassCounts returns per-label counts for detections meeting the
// threshold
func (r *Result) ClassCounts(threshold float64) map[int]int {
	counts := make(map[int]int)
	for i, score := range r.Scores {
		if score >= threshold && i < len(r.Labels) {
			counts[r.Labels[i]]++
		}
	}
	return counts
}

// ResultQueue is a bounded FIFO of results with evict-oldest overflow.
// An eviction means a completed detection was never observed, so it is
// counted as a dropped frame.
type ResultQueue struct {
	mu      sync.Mutex
	results []*Result
	cap     int
	dropped uint64
}

// NewResultQueue creates a result queue with the given capacity
func NewResultQueue(capacity int) *ResultQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResultQueue{
		results: make([]*Result, 0, capacity),
		cap:     capacity,
	}
}

// Put appends a result, evicting the oldest on overflow. Returns true
// if an eviction occurred.
func (q *ResultQueue) Put(r *Result) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if len(q.results) >= q.cap {
		copy(q.results, q.results[1:])
		q.results = q.results[:len(q.results)-1]
		q.dropped++
		evicted = true
	}
	q.results = append(q.results, r)
	return evicted
}

// TryGet removes and returns the oldest result, or nil if empty
func (q *ResultQueue) TryGet() *Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.results) == 0 {
		return nil
	}
	r := q.results[0]
	q.results[0] = nil
	q.results = q.results[1:]
	return r
}

// Drain discards all queued results and returns the count removed
func (q *ResultQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.results)
	for i := range q.results {
		q.results[i] = nil
	}
	q.results = q.results[:0]
	return n
}

// Len returns the number of queued results
func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.results)
}

// Cap returns the queue capacity
func (q *ResultQueue) Cap() int {
	return q.cap
}

// Dropped returns the total results evicted by Put
func (q *ResultQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
