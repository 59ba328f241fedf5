package video

import (
	"time"
)

// Frame is a single captured video frame. Frames are immutable after
// creation; ownership passes from producer to consumer through a queue.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
	CameraID  string
}

// NewFrame creates a frame stamped with the current time
func NewFrame(cameraID string, data []byte, width, height int) *Frame {
	return &Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Timestamp: time.Now(),
		CameraID:  cameraID,
	}
}

// Age returns how long ago the frame was captured
func (f *Frame) Age() time.Duration {
	return time.Since(f.Timestamp)
}
