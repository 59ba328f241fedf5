package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/abishek-baskaran/zvision/internal/config"
	"github.com/abishek-baskaran/zvision/internal/logger"
	"github.com/abishek-baskaran/zvision/internal/video"
)

// Detections is the raw output of one inference call
type Detections struct {
	Boxes  [][]int   `json:"boxes"`  // [x1, y1, x2, y2]
	Scores []float64 `json:"scores"`
	Labels []int     `json:"labels"`
}

// Detector runs object detection on a single frame
type Detector interface {
	Detect(ctx context.Context, frame *video.Frame) (*Detections, error)
}

// HTTPDetector sends frames to an external inference service
type HTTPDetector struct {
	baseURL string
	threads int
	client  *http.Client
	log     *logger.Logger
}

// NewHTTPDetector creates a detector backed by an HTTP inference
// service. The configured thread count is forwarded so the service
// pins its intra-op parallelism per camera worker.
func NewHTTPDetector(cfg config.DetectionConfig, log *logger.Logger) *HTTPDetector {
	return &HTTPDetector{
		baseURL: cfg.ServiceURL,
		threads: cfg.Threads,
		client: &http.Client{
			Timeout: cfg.InferenceTimeout,
		},
		log: log,
	}
}

type detectRequest struct {
	CameraID string `json:"camera_id"`
	Image    string `json:"image"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Threads  int    `json:"threads"`
}

// Detect posts the frame as base64 JPEG and decodes the detections
func (d *HTTPDetector) Detect(ctx context.Context, frame *video.Frame) (*Detections, error) {
	payload := detectRequest{
		CameraID: frame.CameraID,
		Image:    base64.StdEncoding.EncodeToString(frame.Data),
		Width:    frame.Width,
		Height:   frame.Height,
		Threads:  d.threads,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service returned %d", resp.StatusCode)
	}

	var dets Detections
	if err := json.NewDecoder(resp.Body).Decode(&dets); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	return &dets, nil
}

// Health checks the inference service liveness endpoint
func (d *HTTPDetector) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
