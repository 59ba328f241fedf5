package counting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/detection"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/service"
	"github.com/abishek-baskaran/zvision/internal/state"
)

// Store is the persistence surface the counting service needs
type Store interface {
	GetCalibration(cameraID string) (*state.Calibration, error)
	SaveCrossingEvent(ev *state.CrossingEvent) error
}

// Service consumes detection results from the event bus, evaluates
// line crossings and persists the resulting events.
type Service struct {
	*service.ServiceBase

	store     Store
	evaluator *Evaluator
	threshold float64
	log       *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a counting service
func NewService(store Store, cfg config.DetectionConfig, log *logger.Logger) *Service {
	return &Service{
		ServiceBase: service.NewServiceBase("counting", log),
		store:       store,
		evaluator:   NewEvaluator(),
		threshold:   cfg.ConfidenceThreshold,
		log:         log,
	}
}

// Evaluator exposes the underlying evaluator for calibration updates
func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

// Start subscribes to detection results and begins evaluating
func (s *Service) Start(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStarting)

	bus := s.GetEventBus()
	if bus == nil {
		s.GetStatus().SetStatus(service.StatusRunning)
		s.LogWarn("no event bus attached, crossing evaluation disabled")
		return nil
	}

	results := bus.Subscribe(service.EventTypeDetectionResult)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.consume(runCtx, results)

	s.GetStatus().SetStatus(service.StatusRunning)
	s.LogInfo("counting service started")
	return nil
}

// Stop stops consuming detection results
func (s *Service) Stop(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStopping)
	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-time.After(time.Second):
		}
	}
	s.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// CalibrateFromStore loads the persisted line for a camera into the
// evaluator. Returns false when no calibration exists.
func (s *Service) CalibrateFromStore(cameraID string) (bool, error) {
	cal, err := s.store.GetCalibration(cameraID)
	if err != nil {
		return false, err
	}
	if cal == nil {
		return false, nil
	}
	s.evaluator.Configure(cameraID,
		Line{X1: cal.X1, Y1: cal.Y1, X2: cal.X2, Y2: cal.Y2},
		cal.Orientation)
	return true, nil
}

// Counts returns running entry/exit totals for a camera
func (s *Service) Counts(cameraID string) (entries, exits int) {
	return s.evaluator.Counts(cameraID)
}

// Forget drops evaluator state for a released camera
func (s *Service) Forget(cameraID string) {
	s.evaluator.Forget(cameraID)
}

func (s *Service) consume(ctx context.Context, results <-chan service.Event) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-results:
			if !ok {
				return
			}
			s.handleResult(ev)
		}
	}
}

func (s *Service) handleResult(ev service.Event) {
	cameraID, _ := ev.Data["camera_id"].(string)
	result, _ := ev.Data["result"].(*detection.Result)
	if cameraID == "" || result == nil {
		return
	}

	// Lazily pull calibration for cameras we have not seen yet.
	if !s.evaluator.Configured(cameraID) {
		ok, err := s.CalibrateFromStore(cameraID)
		if err != nil {
			s.LogWarn("failed to load calibration",
				"camera_id", cameraID, "error", err)
			return
		}
		if !ok {
			return
		}
	}

	events := s.evaluator.Observe(cameraID, result.Centroids(s.threshold), result.ProcessedTimestamp)
	for _, crossing := range events {
		s.persistAndPublish(crossing)
	}
}

func (s *Service) persistAndPublish(crossing Event) {
	record := &state.CrossingEvent{
		ID:        uuid.New().String(),
		CameraID:  crossing.CameraID,
		Kind:      crossing.Kind.String(),
		Timestamp: crossing.Timestamp,
	}
	if err := s.store.SaveCrossingEvent(record); err != nil {
		s.LogError("failed to persist crossing event", err,
			"camera_id", crossing.CameraID, "kind", record.Kind)
	}

	eventType := service.EventTypeCrossingEntry
	if crossing.Kind == Exit {
		eventType = service.EventTypeCrossingExit
	}
	s.PublishEvent(eventType, map[string]interface{}{
		"camera_id": crossing.CameraID,
		"kind":      record.Kind,
		"position":  crossing.Position,
		"timestamp": crossing.Timestamp,
	})

	s.LogInfo("line crossing detected",
		"camera_id", crossing.CameraID, "kind", record.Kind)
}
