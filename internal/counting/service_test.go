package counting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/detection"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
	"github.com/abishek-baskaran/zvision/internal/state"
)

type fakeStore struct {
	mu           sync.Mutex
	calibrations map[string]*state.Calibration
	events       []*state.CrossingEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{calibrations: make(map[string]*state.Calibration)}
}

func (s *fakeStore) GetCalibration(cameraID string) (*state.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrations[cameraID], nil
}

func (s *fakeStore) SaveCrossingEvent(ev *state.CrossingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) savedEvents() []*state.CrossingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*state.CrossingEvent(nil), s.events...)
}

func resultAt(cameraID string, x, y float64) *detection.Result {
	return &detection.Result{
		CameraID:           cameraID,
		Boxes:              [][]int{{int(x) - 10, int(y) - 10, int(x) + 10, int(y) + 10}},
		Scores:             []float64{0.9},
		Labels:             []int{0},
		SourceTimestamp:    time.Now(),
		ProcessedTimestamp: time.Now(),
	}
}

func publishResult(bus *service.EventBus, r *detection.Result) {
	bus.Publish(service.Event{
		Type: service.EventTypeDetectionResult,
		Data: map[string]interface{}{
			"camera_id": r.CameraID,
			"result":    r,
		},
	})
}

func TestServicePersistsAndPublishesCrossings(t *testing.T) {
	store := newFakeStore()
	store.calibrations["cam-1"] = &state.Calibration{
		CameraID: "cam-1",
		X1:       100, Y1: 0,
		X2:       100, Y2: 200,
		Orientation: OrientationLeftToRight,
	}

	bus := service.NewEventBus(16)
	defer bus.Close()

	svc := NewService(store, config.Default().Detection, logger.NewNopLogger())
	svc.SetEventBus(bus)
	entryEvents := bus.Subscribe(service.EventTypeCrossingEntry)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	// Object crosses the line between two results.
	publishResult(bus, resultAt("cam-1", 80, 100))
	time.Sleep(50 * time.Millisecond)
	publishResult(bus, resultAt("cam-1", 120, 100))

	select {
	case ev := <-entryEvents:
		if ev.Data["camera_id"] != "cam-1" || ev.Data["kind"] != "entry" {
			t.Errorf("unexpected crossing event data: %v", ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for crossing.entry event")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(store.savedEvents()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	saved := store.savedEvents()
	if len(saved) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(saved))
	}
	if saved[0].Kind != "entry" || saved[0].ID == "" {
		t.Errorf("unexpected persisted event: %+v", saved[0])
	}

	entries, exits := svc.Counts("cam-1")
	if entries != 1 || exits != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", entries, exits)
	}
}

func TestServiceIgnoresUncalibratedCameras(t *testing.T) {
	store := newFakeStore()
	bus := service.NewEventBus(16)
	defer bus.Close()

	svc := NewService(store, config.Default().Detection, logger.NewNopLogger())
	svc.SetEventBus(bus)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	publishResult(bus, resultAt("cam-x", 80, 100))
	publishResult(bus, resultAt("cam-x", 120, 100))
	time.Sleep(100 * time.Millisecond)

	if events := store.savedEvents(); len(events) != 0 {
		t.Errorf("uncalibrated camera produced events: %v", events)
	}
}

func TestCalibrateFromStore(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, config.Default().Detection, logger.NewNopLogger())

	ok, err := svc.CalibrateFromStore("cam-1")
	if err != nil || ok {
		t.Errorf("expected (false, nil) for missing calibration, got (%v, %v)", ok, err)
	}

	store.calibrations["cam-1"] = &state.Calibration{
		CameraID: "cam-1", X1: 0, Y1: 0, X2: 10, Y2: 10,
		Orientation: OrientationRightToLeft,
	}
	ok, err = svc.CalibrateFromStore("cam-1")
	if err != nil || !ok {
		t.Fatalf("expected calibration loaded, got (%v, %v)", ok, err)
	}
	if !svc.Evaluator().Configured("cam-1") {
		t.Error("evaluator should be configured")
	}
}
