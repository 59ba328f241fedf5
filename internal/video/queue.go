package video

import (
	"sync"
	"time"
)

// FrameQueue is a bounded FIFO of frames with evict-oldest overflow
// behavior. Put never blocks: when the queue is full the oldest frame
// is discarded to make room, so consumers always see the freshest
// window of frames and memory stays bounded regardless of consumer
// speed.
type FrameQueue struct {
	mu        sync.Mutex
	frames    []*Frame
	capacity  int
	evictions uint64
}

// NewFrameQueue creates a frame queue with the given capacity
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{
		frames:   make([]*Frame, 0, capacity),
		capacity: capacity,
	}
}

// Put appends a frame, evicting the oldest if the queue is full.
// Returns true if an eviction occurred.
func (q *FrameQueue) Put(f *Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if len(q.frames) >= q.capacity {
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		q.evictions++
		evicted = true
	}
	q.frames = append(q.frames, f)
	return evicted
}

// TryGet removes and returns the oldest frame, or nil if empty
func (q *FrameQueue) TryGet() *Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f
}

// DrainLatest pops frames until the queue is empty, a pop limit is hit,
// or the time window expires, and returns the newest frame popped plus
// the number of older frames skipped. Returns (nil, 0) if the queue was
// empty.
func (q *FrameQueue) DrainLatest(limit int, window time.Duration) (*Frame, int) {
	deadline := time.Now().Add(window)

	var latest *Frame
	skipped := 0
	for pops := 0; pops < limit; pops++ {
		f := q.TryGet()
		if f == nil {
			break
		}
		if latest != nil {
			skipped++
		}
		latest = f
		if time.Now().After(deadline) {
			break
		}
	}
	return latest, skipped
}

// Drain discards all queued frames and returns how many were removed
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames)
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.frames = q.frames[:0]
	return n
}

// Len returns the current number of queued frames
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Cap returns the queue capacity
func (q *FrameQueue) Cap() int {
	return q.capacity
}

// Evictions returns the total number of frames evicted by Put
func (q *FrameQueue) Evictions() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evictions
}
