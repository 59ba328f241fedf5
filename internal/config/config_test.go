package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Capture.TargetFPS != 30 {
		t.Errorf("expected capture fps 30, got %v", cfg.Capture.TargetFPS)
	}
	if cfg.Capture.QueueSize != 30 {
		t.Errorf("expected capture queue size 30, got %d", cfg.Capture.QueueSize)
	}
	if cfg.Detection.TargetFPS != 5 {
		t.Errorf("expected detection fps 5, got %v", cfg.Detection.TargetFPS)
	}
	if cfg.Detection.ResultsQueueSize != 10 {
		t.Errorf("expected results queue size 10, got %d", cfg.Detection.ResultsQueueSize)
	}
	if cfg.Detection.ConfidenceThreshold != 0.5 {
		t.Errorf("expected confidence threshold 0.5, got %v", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.DrainWindow != 50*time.Millisecond {
		t.Errorf("expected drain window 50ms, got %v", cfg.Detection.DrainWindow)
	}
	if cfg.Detection.DrainLimit != 10 {
		t.Errorf("expected drain limit 10, got %d", cfg.Detection.DrainLimit)
	}
	if cfg.Detection.Threads != 1 {
		t.Errorf("expected detection threads 1, got %d", cfg.Detection.Threads)
	}
	if cfg.Capture.StopTimeout != 3*time.Second {
		t.Errorf("expected stop timeout 3s, got %v", cfg.Capture.StopTimeout)
	}
	if cfg.Analytics.MaxHistory != 100 {
		t.Errorf("expected analytics history 100, got %d", cfg.Analytics.MaxHistory)
	}
	if cfg.Analytics.SummaryInterval != 5*time.Minute {
		t.Errorf("expected summary interval 5m, got %v", cfg.Analytics.SummaryInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  enabled: true
  port: 9000
capture:
  target_fps: 15
  stop_timeout: 5s
detection:
  confidence_threshold: 0.7
  drain_window: 80ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Capture.TargetFPS != 15 {
		t.Errorf("expected capture fps 15, got %v", cfg.Capture.TargetFPS)
	}
	if cfg.Detection.ConfidenceThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Capture.StopTimeout != 5*time.Second {
		t.Errorf("expected stop timeout 5s, got %v", cfg.Capture.StopTimeout)
	}
	if cfg.Detection.DrainWindow != 80*time.Millisecond {
		t.Errorf("expected drain window 80ms, got %v", cfg.Detection.DrainWindow)
	}
	// Unset fields still get defaults.
	if cfg.Detection.TargetFPS != 5 {
		t.Errorf("expected default detection fps 5, got %v", cfg.Detection.TargetFPS)
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "capture:\n  stop_timeout: banana\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.Detection.ConfidenceThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for threshold > 1")
	}
}
