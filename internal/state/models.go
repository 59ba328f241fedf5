package state

import "time"

// Camera is a persisted camera registration
type Camera struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Name             string    `json:"name"`
	DetectionEnabled bool      `json:"detection_enabled"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// Calibration is a persisted crossing line for one camera
type Calibration struct {
	CameraID    string    `json:"camera_id"`
	X1          float64   `json:"x1"`
	Y1          float64   `json:"y1"`
	X2          float64   `json:"x2"`
	Y2          float64   `json:"y2"`
	Orientation string    `json:"orientation"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CrossingEvent is a persisted entry/exit event
type CrossingEvent struct {
	ID        string    `json:"id"`
	CameraID  string    `json:"camera_id"`
	Kind      string    `json:"kind"` // "entry" or "exit"
	Timestamp time.Time `json:"timestamp"`
}
