package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Inclusive bounds for every numeric capture parameter. Validation checks
// these once, before any hardware or filesystem access.
const (
	MinWidth  = 1
	MaxWidth  = 4056
	MinHeight = 1
	MaxHeight = 3040

	MinISO = 0
	MaxISO = 800

	MinShutterSpeedMs = 0
	MaxShutterSpeedMs = 1_000_000

	MinAWBGain = 0.0
	MaxAWBGain = 8.0
)

// Default capture parameters, tuned for the portrait rig.
const (
	DefaultWidth          = 2000
	DefaultHeight         = 2000
	DefaultISO            = 0
	DefaultShutterSpeedMs = 1000
	DefaultAWBRedGain     = 3.125
	DefaultAWBBlueGain    = 1.96
	DefaultPreviewSeconds = 10
	DefaultNumPhotos      = 10
	DefaultDatasetName    = "faces"
)

// CaptureConfig holds every parameter of one capture session. It is treated
// as immutable once Validate has accepted it.
type CaptureConfig struct {
	Width           int     `yaml:"width"`             // output image width in pixels
	Height          int     `yaml:"height"`            // output image height in pixels
	ISO             int     `yaml:"iso"`               // sensor gain; 0 = auto
	ShutterSpeedMs  int     `yaml:"shutter_speed_ms"`  // exposure duration per frame (ms)
	AWBRedGain      float64 `yaml:"awb_red_gain"`      // red channel white-balance gain
	AWBBlueGain     float64 `yaml:"awb_blue_gain"`     // blue channel white-balance gain
	PreviewSeconds  int     `yaml:"preview_seconds"`   // live preview duration before capture
	PromptOnTimeout bool    `yaml:"prompt_on_timeout"` // ask the operator to confirm after the preview
	NumPhotos       int     `yaml:"num_photos"`        // number of images to capture
	DatasetName     string  `yaml:"dataset_name"`      // subdirectory name under DatasetsRoot
	DatasetsRoot    string  `yaml:"datasets_root"`     // top-level directory holding all datasets
	Device          string  `yaml:"device"`            // camera device path, e.g. /dev/video0
	StatusLEDPin    int     `yaml:"status_led_pin"`    // GPIO pin of the capture status LED; 0 = none
	MockHardware    bool    `yaml:"mock_hardware"`     // use mock camera/GPIO (dev machines, tests)
	DebugLevel      int     `yaml:"debug_level"`       // debug level 0-4
}

// Default returns the built-in configuration. DatasetsRoot is left empty;
// there is no sensible compiled-in location for datasets.
func Default() *CaptureConfig {
	return &CaptureConfig{
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		ISO:             DefaultISO,
		ShutterSpeedMs:  DefaultShutterSpeedMs,
		AWBRedGain:      DefaultAWBRedGain,
		AWBBlueGain:     DefaultAWBBlueGain,
		PreviewSeconds:  DefaultPreviewSeconds,
		PromptOnTimeout: true,
		NumPhotos:       DefaultNumPhotos,
		DatasetName:     DefaultDatasetName,
		Device:          "/dev/video0",
		DebugLevel:      1, // info
	}
}

// ValidationError reports a single capture parameter outside its documented
// bounds. Max is nil for ranges with no upper bound; Min and Max are both
// nil for text fields whose only constraint is being non-empty.
type ValidationError struct {
	Field string
	Value interface{}
	Min   interface{}
	Max   interface{}
}

func (e *ValidationError) Error() string {
	switch {
	case e.Min == nil && e.Max == nil:
		return fmt.Sprintf("%s must be non-empty", e.Field)
	case e.Max == nil:
		return fmt.Sprintf("%s must be >= %v, got %v", e.Field, e.Min, e.Value)
	default:
		return fmt.Sprintf("%s must be between %v and %v, got %v", e.Field, e.Min, e.Max, e.Value)
	}
}

// Validate checks every field against its inclusive range. No side effects;
// must run to completion before the camera is opened. The first offending
// field is reported.
func (c *CaptureConfig) Validate() error {
	if c.Width < MinWidth || c.Width > MaxWidth {
		return &ValidationError{Field: "width", Value: c.Width, Min: MinWidth, Max: MaxWidth}
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		return &ValidationError{Field: "height", Value: c.Height, Min: MinHeight, Max: MaxHeight}
	}
	if c.ISO < MinISO || c.ISO > MaxISO {
		return &ValidationError{Field: "iso", Value: c.ISO, Min: MinISO, Max: MaxISO}
	}
	if c.ShutterSpeedMs < MinShutterSpeedMs || c.ShutterSpeedMs > MaxShutterSpeedMs {
		return &ValidationError{Field: "shutter_speed_ms", Value: c.ShutterSpeedMs, Min: MinShutterSpeedMs, Max: MaxShutterSpeedMs}
	}
	if c.AWBRedGain < MinAWBGain || c.AWBRedGain > MaxAWBGain {
		return &ValidationError{Field: "awb_red_gain", Value: c.AWBRedGain, Min: MinAWBGain, Max: MaxAWBGain}
	}
	if c.AWBBlueGain < MinAWBGain || c.AWBBlueGain > MaxAWBGain {
		return &ValidationError{Field: "awb_blue_gain", Value: c.AWBBlueGain, Min: MinAWBGain, Max: MaxAWBGain}
	}
	if c.PreviewSeconds < 0 {
		return &ValidationError{Field: "preview_seconds", Value: c.PreviewSeconds, Min: 0}
	}
	if c.NumPhotos < 1 {
		return &ValidationError{Field: "num_photos", Value: c.NumPhotos, Min: 1}
	}
	if c.DatasetName == "" {
		return &ValidationError{Field: "dataset_name", Value: c.DatasetName}
	}
	if c.DatasetsRoot == "" {
		return &ValidationError{Field: "datasets_root", Value: c.DatasetsRoot}
	}
	return nil
}

// Load reads a YAML profile file on top of the built-in defaults. Profiles
// carry camera tuning for a given lighting setup; CLI flags still override
// whatever the profile sets.
func Load(path string) (*CaptureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	return cfg, nil
}

// ValidateProfilePath rejects obviously wrong profile paths before reading.
func ValidateProfilePath(path string) error {
	if path == "" {
		return fmt.Errorf("profile path is empty")
	}
	if ext := filepath.Ext(path); ext != ".yaml" {
		return fmt.Errorf("profile must be a .yaml file, got %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat profile: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("profile %q is a directory", path)
	}
	return nil
}

// ShutterSpeed returns the exposure duration per frame.
func (c *CaptureConfig) ShutterSpeed() time.Duration {
	return time.Duration(c.ShutterSpeedMs) * time.Millisecond
}

// PreviewDuration returns how long the live preview runs before the
// confirmation step.
func (c *CaptureConfig) PreviewDuration() time.Duration {
	return time.Duration(c.PreviewSeconds) * time.Second
}
