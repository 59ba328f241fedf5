package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/abishek-baskaran/zvision/internal/logger"
)

// Manager provides persistent state for cameras, calibrations and
// crossing events
type Manager struct {
	db  *sql.DB
	log *logger.Logger
}

// NewManager opens the state database at the given path
func NewManager(path string, log *logger.Logger) (*Manager, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	log.Info("state database opened", "path", path)
	return &Manager{db: db, log: log}, nil
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}

// SaveCamera inserts or updates a camera registration
func (m *Manager) SaveCamera(cam *Camera) error {
	if cam.RegisteredAt.IsZero() {
		cam.RegisteredAt = time.Now()
	}
	_, err := m.db.Exec(`
		INSERT INTO cameras (id, source, name, detection_enabled, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			name = excluded.name,
			detection_enabled = excluded.detection_enabled`,
		cam.ID, cam.Source, cam.Name, cam.DetectionEnabled, cam.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to save camera %s: %w", cam.ID, err)
	}
	return nil
}

// GetCamera returns a camera by id, or nil if absent
func (m *Manager) GetCamera(id string) (*Camera, error) {
	row := m.db.QueryRow(`
		SELECT id, source, name, detection_enabled, registered_at
		FROM cameras WHERE id = ?`, id)

	var cam Camera
	err := row.Scan(&cam.ID, &cam.Source, &cam.Name, &cam.DetectionEnabled, &cam.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera %s: %w", id, err)
	}
	return &cam, nil
}

// ListCameras returns all registered cameras
func (m *Manager) ListCameras() ([]*Camera, error) {
	rows, err := m.db.Query(`
		SELECT id, source, name, detection_enabled, registered_at
		FROM cameras ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	var cams []*Camera
	for rows.Next() {
		var cam Camera
		if err := rows.Scan(&cam.ID, &cam.Source, &cam.Name, &cam.DetectionEnabled, &cam.RegisteredAt); err != nil {
			return nil, err
		}
		cams = append(cams, &cam)
	}
	return cams, rows.Err()
}

// DeleteCamera removes a camera registration
func (m *Manager) DeleteCamera(id string) error {
	if _, err := m.db.Exec(`DELETE FROM cameras WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete camera %s: %w", id, err)
	}
	return nil
}

// SaveCalibration inserts or updates the crossing line for a camera
func (m *Manager) SaveCalibration(cal *Calibration) error {
	cal.UpdatedAt = time.Now()
	_, err := m.db.Exec(`
		INSERT INTO calibrations (camera_id, x1, y1, x2, y2, orientation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET
			x1 = excluded.x1, y1 = excluded.y1,
			x2 = excluded.x2, y2 = excluded.y2,
			orientation = excluded.orientation,
			updated_at = excluded.updated_at`,
		cal.CameraID, cal.X1, cal.Y1, cal.X2, cal.Y2, cal.Orientation, cal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save calibration for %s: %w", cal.CameraID, err)
	}
	return nil
}

// GetCalibration returns the calibration for a camera, or nil if absent
func (m *Manager) GetCalibration(cameraID string) (*Calibration, error) {
	row := m.db.QueryRow(`
		SELECT camera_id, x1, y1, x2, y2, orientation, updated_at
		FROM calibrations WHERE camera_id = ?`, cameraID)

	var cal Calibration
	err := row.Scan(&cal.CameraID, &cal.X1, &cal.Y1, &cal.X2, &cal.Y2, &cal.Orientation, &cal.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calibration for %s: %w", cameraID, err)
	}
	return &cal, nil
}

// SaveCrossingEvent persists one entry/exit event
func (m *Manager) SaveCrossingEvent(ev *CrossingEvent) error {
	_, err := m.db.Exec(`
		INSERT INTO crossing_events (id, camera_id, kind, timestamp)
		VALUES (?, ?, ?, ?)`,
		ev.ID, ev.CameraID, ev.Kind, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save crossing event: %w", err)
	}
	return nil
}

// ListCrossingEvents returns events for a camera, newest first,
// optionally bounded by a limit and a since time
func (m *Manager) ListCrossingEvents(cameraID string, since time.Time, limit int) ([]*CrossingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.Query(`
		SELECT id, camera_id, kind, timestamp
		FROM crossing_events
		WHERE camera_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT ?`,
		cameraID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list crossing events: %w", err)
	}
	defer rows.Close()

	var events []*CrossingEvent
	for rows.Next() {
		var ev CrossingEvent
		if err := rows.Scan(&ev.ID, &ev.CameraID, &ev.Kind, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountCrossingEvents returns entry and exit totals for a camera
func (m *Manager) CountCrossingEvents(cameraID string) (entries, exits int, err error) {
	rows, err := m.db.Query(`
		SELECT kind, COUNT(*) FROM crossing_events
		WHERE camera_id = ? GROUP BY kind`, cameraID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count crossing events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return 0, 0, err
		}
		switch kind {
		case "entry":
			entries = n
		case "exit":
			exits = n
		}
	}
	return entries, exits, rows.Err()
}

// SetSystemState stores an arbitrary key/value pair
func (m *Manager) SetSystemState(key, value string) error {
	_, err := m.db.Exec(`
		INSERT INTO system_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set system state %s: %w", key, err)
	}
	return nil
}

// GetSystemState returns a stored value, empty string if absent
func (m *Manager) GetSystemState(key string) (string, error) {
	row := m.db.QueryRow(`SELECT value FROM system_state WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get system state %s: %w", key, err)
	}
	return value, nil
}
