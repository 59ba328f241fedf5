package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Capture   CaptureConfig   `yaml:"capture"`
	Detection DetectionConfig `yaml:"detection"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// ServerConfig contains the operator API server configuration
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DatabaseConfig contains SQLite state store configuration
type DatabaseConfig struct {
	DataDir string `yaml:"data_dir"`
}

// CaptureConfig contains camera capture worker configuration
type CaptureConfig struct {
	TargetFPS     float64       `yaml:"target_fps"`
	QueueSize     int           `yaml:"queue_size"`
	StopTimeout   time.Duration `yaml:"stop_timeout"`
	ReadRetryWait time.Duration `yaml:"read_retry_wait"`
}

// DetectionConfig contains detection worker configuration
type DetectionConfig struct {
	ServiceURL          string        `yaml:"service_url"`
	TargetFPS           float64       `yaml:"target_fps"`
	ResultsQueueSize    int           `yaml:"results_queue_size"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	DrainWindow         time.Duration `yaml:"drain_window"`
	DrainLimit          int           `yaml:"drain_limit"`
	Threads             int           `yaml:"threads"`
	StopTimeout         time.Duration `yaml:"stop_timeout"`
	InferenceTimeout    time.Duration `yaml:"inference_timeout"`
}

// AnalyticsConfig contains analytics sink configuration
type AnalyticsConfig struct {
	MaxHistory      int           `yaml:"max_history"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
	ClassWindow     time.Duration `yaml:"class_window"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// parseDuration parses a duration string, treating empty as zero so
// defaults apply
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// UnmarshalYAML decodes duration fields from strings like "500ms"
func (c *CaptureConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		TargetFPS     float64 `yaml:"target_fps"`
		QueueSize     int     `yaml:"queue_size"`
		StopTimeout   string  `yaml:"stop_timeout"`
		ReadRetryWait string  `yaml:"read_retry_wait"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.TargetFPS = raw.TargetFPS
	c.QueueSize = raw.QueueSize

	var err error
	if c.StopTimeout, err = parseDuration(raw.StopTimeout); err != nil {
		return err
	}
	if c.ReadRetryWait, err = parseDuration(raw.ReadRetryWait); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML decodes duration fields from strings like "50ms"
func (c *DetectionConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		ServiceURL          string  `yaml:"service_url"`
		TargetFPS           float64 `yaml:"target_fps"`
		ResultsQueueSize    int     `yaml:"results_queue_size"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		DrainWindow         string  `yaml:"drain_window"`
		DrainLimit          int     `yaml:"drain_limit"`
		Threads             int     `yaml:"threads"`
		StopTimeout         string  `yaml:"stop_timeout"`
		InferenceTimeout    string  `yaml:"inference_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.ServiceURL = raw.ServiceURL
	c.TargetFPS = raw.TargetFPS
	c.ResultsQueueSize = raw.ResultsQueueSize
	c.ConfidenceThreshold = raw.ConfidenceThreshold
	c.DrainLimit = raw.DrainLimit
	c.Threads = raw.Threads

	var err error
	if c.DrainWindow, err = parseDuration(raw.DrainWindow); err != nil {
		return err
	}
	if c.StopTimeout, err = parseDuration(raw.StopTimeout); err != nil {
		return err
	}
	if c.InferenceTimeout, err = parseDuration(raw.InferenceTimeout); err != nil {
		return err
	}
	return nil
}

// UnmarshalYAML decodes duration fields from strings like "5m"
func (c *AnalyticsConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxHistory      int    `yaml:"max_history"`
		SummaryInterval string `yaml:"summary_interval"`
		ClassWindow     string `yaml:"class_window"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.MaxHistory = raw.MaxHistory

	var err error
	if c.SummaryInterval, err = parseDuration(raw.SummaryInterval); err != nil {
		return err
	}
	if c.ClassWindow, err = parseDuration(raw.ClassWindow); err != nil {
		return err
	}
	return nil
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.SetDefaults()

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, without
// requiring a config file. Used by tests and embedded setups.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.yaml",
		"../config/config.yaml",
		"/etc/zvision/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[0]
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}

	if c.Database.DataDir == "" {
		c.Database.DataDir = "./data"
	}

	if c.Capture.TargetFPS == 0 {
		c.Capture.TargetFPS = 30
	}
	if c.Capture.QueueSize == 0 {
		c.Capture.QueueSize = 30
	}
	if c.Capture.StopTimeout == 0 {
		c.Capture.StopTimeout = 3 * time.Second
	}
	if c.Capture.ReadRetryWait == 0 {
		c.Capture.ReadRetryWait = 500 * time.Millisecond
	}

	if c.Detection.TargetFPS == 0 {
		c.Detection.TargetFPS = 5
	}
	if c.Detection.ResultsQueueSize == 0 {
		c.Detection.ResultsQueueSize = 10
	}
	if c.Detection.ConfidenceThreshold == 0 {
		c.Detection.ConfidenceThreshold = 0.5
	}
	if c.Detection.DrainWindow == 0 {
		c.Detection.DrainWindow = 50 * time.Millisecond
	}
	if c.Detection.DrainLimit == 0 {
		c.Detection.DrainLimit = 10
	}
	if c.Detection.Threads == 0 {
		c.Detection.Threads = 1
	}
	if c.Detection.StopTimeout == 0 {
		c.Detection.StopTimeout = 3 * time.Second
	}
	if c.Detection.InferenceTimeout == 0 {
		c.Detection.InferenceTimeout = 30 * time.Second
	}

	if c.Analytics.MaxHistory == 0 {
		c.Analytics.MaxHistory = 100
	}
	if c.Analytics.SummaryInterval == 0 {
		c.Analytics.SummaryInterval = 5 * time.Minute
	}
	if c.Analytics.ClassWindow == 0 {
		c.Analytics.ClassWindow = time.Minute
	}
}

// DatabasePath returns the path to the SQLite database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Database.DataDir, "db", "zvision.db")
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Capture.TargetFPS < 0 {
		return fmt.Errorf("capture target_fps must be positive")
	}
	if c.Detection.TargetFPS < 0 {
		return fmt.Errorf("detection target_fps must be positive")
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1]")
	}
	return nil
}
