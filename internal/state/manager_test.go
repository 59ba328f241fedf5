package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abishek-baskaran/zvision/internal/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "state.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCameraCRUD(t *testing.T) {
	m := newTestManager(t)

	cam := &Camera{
		ID:               "cam-1",
		Source:           "/videos/entrance.mp4",
		Name:             "Entrance",
		DetectionEnabled: true,
	}
	require.NoError(t, m.SaveCamera(cam))

	got, err := m.GetCamera("cam-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/videos/entrance.mp4", got.Source)
	assert.True(t, got.DetectionEnabled)
	assert.False(t, got.RegisteredAt.IsZero())

	// Upsert replaces the source but keeps the registration.
	cam.Source = "rtsp://host/stream"
	require.NoError(t, m.SaveCamera(cam))
	got, err = m.GetCamera("cam-1")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://host/stream", got.Source)

	cams, err := m.ListCameras()
	require.NoError(t, err)
	assert.Len(t, cams, 1)

	require.NoError(t, m.DeleteCamera("cam-1"))
	got, err = m.GetCamera("cam-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetCameraMissing(t *testing.T) {
	m := newTestManager(t)
	got, err := m.GetCamera("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCalibrationUpsert(t *testing.T) {
	m := newTestManager(t)

	cal := &Calibration{
		CameraID:    "cam-1",
		X1:          100, Y1: 0,
		X2:          100, Y2: 480,
		Orientation: "leftToRight",
	}
	require.NoError(t, m.SaveCalibration(cal))

	got, err := m.GetCalibration("cam-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.X1)
	assert.Equal(t, "leftToRight", got.Orientation)

	cal.Orientation = "rightToLeft"
	require.NoError(t, m.SaveCalibration(cal))
	got, err = m.GetCalibration("cam-1")
	require.NoError(t, err)
	assert.Equal(t, "rightToLeft", got.Orientation)

	missing, err := m.GetCalibration("cam-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCrossingEvents(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().Add(-time.Hour)
	for i, kind := range []string{"entry", "entry", "exit"} {
		require.NoError(t, m.SaveCrossingEvent(&CrossingEvent{
			ID:        string(rune('a' + i)),
			CameraID:  "cam-1",
			Kind:      kind,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := m.ListCrossingEvents("cam-1", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// Newest first.
	assert.Equal(t, "exit", events[0].Kind)

	// Since filter excludes older events.
	events, err = m.ListCrossingEvents("cam-1", base.Add(90*time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	entries, exits, err := m.CountCrossingEvents("cam-1")
	require.NoError(t, err)
	assert.Equal(t, 2, entries)
	assert.Equal(t, 1, exits)
}

func TestSystemState(t *testing.T) {
	m := newTestManager(t)

	v, err := m.GetSystemState("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, m.SetSystemState("version", "1"))
	require.NoError(t, m.SetSystemState("version", "2"))

	v, err = m.GetSystemState("version")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}
