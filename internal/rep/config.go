// Package rep turns the smoothed per-frame detection stream into
// discrete repetition events: an exponentially smoothed vertical
// tracker feeding a hysteresis phase machine with debounce.
package rep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the counting pipeline's tunable parameters. The
// schema matches the /api/params payload so the same JSON serves both
// startup configuration and runtime inspection. Fields omitted from a
// JSON file keep their defaults, so partial configs are safe.
type TuningConfig struct {
	// Hysteresis thresholds in normalized frame units.
	DownThreshold *float64 `json:"down_threshold,omitempty"`
	UpThreshold   *float64 `json:"up_threshold,omitempty"`
	// Debounce between emitted repetitions.
	MinEventInterval *string `json:"min_event_interval,omitempty"` // duration string like "200ms"

	// Position smoothing. Alpha is history weight: higher means more
	// inertia. Object and pose signals carry different noise profiles
	// and get separate factors.
	SmoothingAlphaObject *float64 `json:"smoothing_alpha_object,omitempty"`
	SmoothingAlphaPose   *float64 `json:"smoothing_alpha_pose,omitempty"`

	// Detection persistence.
	SmoothingDecay  *float64 `json:"smoothing_decay,omitempty"`
	MaxFramesToKeep *int     `json:"max_frames_to_keep,omitempty"`
	DisplayHold     *string  `json:"display_hold,omitempty"` // duration string, overlay tier only

	// Normalizer params.
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MinVisibility *float64 `json:"min_visibility,omitempty"`
	TargetClass   *int     `json:"target_class,omitempty"` // -1 accepts any class
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// carry a .json extension and stay under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from
// DefaultConfigPath, searching upward from the working directory.
// Panics on failure; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/rep/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects nonsensical values so the pipeline never silently
// runs with broken thresholds.
func (c *TuningConfig) Validate() error {
	if c.DownThreshold != nil && *c.DownThreshold <= 0 {
		return fmt.Errorf("down_threshold must be positive, got %f", *c.DownThreshold)
	}
	if c.UpThreshold != nil && *c.UpThreshold <= 0 {
		return fmt.Errorf("up_threshold must be positive, got %f", *c.UpThreshold)
	}
	if c.MinEventInterval != nil && *c.MinEventInterval != "" {
		d, err := time.ParseDuration(*c.MinEventInterval)
		if err != nil {
			return fmt.Errorf("invalid min_event_interval '%s': %w", *c.MinEventInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("min_event_interval must be non-negative, got %s", d)
		}
	}
	if c.SmoothingAlphaObject != nil && (*c.SmoothingAlphaObject < 0 || *c.SmoothingAlphaObject >= 1) {
		return fmt.Errorf("smoothing_alpha_object must be in [0,1), got %f", *c.SmoothingAlphaObject)
	}
	if c.SmoothingAlphaPose != nil && (*c.SmoothingAlphaPose < 0 || *c.SmoothingAlphaPose >= 1) {
		return fmt.Errorf("smoothing_alpha_pose must be in [0,1), got %f", *c.SmoothingAlphaPose)
	}
	if c.SmoothingDecay != nil && (*c.SmoothingDecay <= 0 || *c.SmoothingDecay >= 1) {
		return fmt.Errorf("smoothing_decay must be in (0,1), got %f", *c.SmoothingDecay)
	}
	if c.MaxFramesToKeep != nil && *c.MaxFramesToKeep < 0 {
		return fmt.Errorf("max_frames_to_keep must be non-negative, got %d", *c.MaxFramesToKeep)
	}
	if c.DisplayHold != nil && *c.DisplayHold != "" {
		if _, err := time.ParseDuration(*c.DisplayHold); err != nil {
			return fmt.Errorf("invalid display_hold '%s': %w", *c.DisplayHold, err)
		}
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be in [0,1], got %f", *c.MinConfidence)
	}
	if c.MinVisibility != nil && (*c.MinVisibility < 0 || *c.MinVisibility > 1) {
		return fmt.Errorf("min_visibility must be in [0,1], got %f", *c.MinVisibility)
	}
	return nil
}

// GetDownThreshold returns the down_threshold value or the default.
func (c *TuningConfig) GetDownThreshold() float64 {
	if c.DownThreshold == nil {
		return 0.10
	}
	return *c.DownThreshold
}

// GetUpThreshold returns the up_threshold value or the default.
func (c *TuningConfig) GetUpThreshold() float64 {
	if c.UpThreshold == nil {
		return 0.06
	}
	return *c.UpThreshold
}

// GetMinEventInterval parses and returns the debounce interval.
func (c *TuningConfig) GetMinEventInterval() time.Duration {
	if c.MinEventInterval == nil || *c.MinEventInterval == "" {
		return 200 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.MinEventInterval)
	if err != nil || d < 0 {
		return 200 * time.Millisecond
	}
	return d
}

// GetSmoothingAlphaObject returns the object-mode smoothing factor.
func (c *TuningConfig) GetSmoothingAlphaObject() float64 {
	if c.SmoothingAlphaObject == nil {
		return 0.1
	}
	return *c.SmoothingAlphaObject
}

// GetSmoothingAlphaPose returns the pose-mode smoothing factor.
func (c *TuningConfig) GetSmoothingAlphaPose() float64 {
	if c.SmoothingAlphaPose == nil {
		return 0.35
	}
	return *c.SmoothingAlphaPose
}

// GetSmoothingDecay returns the detection persistence decay factor.
func (c *TuningConfig) GetSmoothingDecay() float64 {
	if c.SmoothingDecay == nil {
		return 0.8
	}
	return *c.SmoothingDecay
}

// GetMaxFramesToKeep returns the detection persistence window in frames.
func (c *TuningConfig) GetMaxFramesToKeep() int {
	if c.MaxFramesToKeep == nil {
		return 10
	}
	return *c.MaxFramesToKeep
}

// GetDisplayHold returns the overlay persistence window.
func (c *TuningConfig) GetDisplayHold() time.Duration {
	if c.DisplayHold == nil || *c.DisplayHold == "" {
		return 300 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.DisplayHold)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// GetMinConfidence returns the normalizer confidence threshold.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.3
	}
	return *c.MinConfidence
}

// GetMinVisibility returns the keypoint visibility threshold.
func (c *TuningConfig) GetMinVisibility() float64 {
	if c.MinVisibility == nil {
		return 0.3
	}
	return *c.MinVisibility
}

// GetTargetClass returns the class restriction, -1 for any class.
func (c *TuningConfig) GetTargetClass() int {
	if c.TargetClass == nil {
		return -1
	}
	return *c.TargetClass
}
