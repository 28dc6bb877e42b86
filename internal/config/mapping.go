package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// defaultConfigJSON is the canonical mapping defaults file, compiled into
// the binary so it loads from any working directory.
//
//go:embed mapping.defaults.json
var defaultConfigJSON []byte

// Variance update policies for the fusion step. The reference behaviour
// computes the per-axis variances from the already-updated main variance;
// "independent" computes all three channels from the pre-update snapshot.
const (
	VariancePolicyCoupled     = "coupled"
	VariancePolicyIndependent = "independent"
)

// MappingConfig represents the root configuration of the elevation mapper.
// Fields are pointers so partial JSON files are safe: anything omitted
// falls back to the Get* defaults.
type MappingConfig struct {
	// Point stream params
	PointSourceTopic  *string  `json:"point_source_topic,omitempty"`
	SensorCutoffDepth *float64 `json:"sensor_cutoff_depth,omitempty"` // meters

	// Frame params
	ParentFrameID *string `json:"parent_frame_id,omitempty"`
	MapFrameID    *string `json:"map_frame_id,omitempty"`

	// Grid geometry
	LengthX    *float64 `json:"length_x,omitempty"`   // meters
	LengthY    *float64 `json:"length_y,omitempty"`   // meters
	Resolution *float64 `json:"resolution,omitempty"` // meters per cell

	// Estimation params
	MinVariance         *float64 `json:"min_variance,omitempty"`
	MaxVariance         *float64 `json:"max_variance,omitempty"`
	MeasurementVariance *float64 `json:"measurement_variance,omitempty"`
	ProcessNoiseDelta   *float64 `json:"process_noise_delta,omitempty"`
	VariancePolicy      *string  `json:"variance_policy,omitempty"` // "coupled" or "independent"

	// Refresh params
	MinUpdateRate *float64 `json:"min_update_rate,omitempty"` // Hz
}

// EmptyMappingConfig returns a MappingConfig with all fields set to nil.
// Use LoadMappingConfig to load actual values from the defaults file.
func EmptyMappingConfig() *MappingConfig {
	return &MappingConfig{}
}

// LoadMappingConfig loads a MappingConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their defaults,
// so partial configs are safe.
func LoadMappingConfig(path string) (*MappingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyMappingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig parses the embedded canonical mapping defaults.
// Panics only if the embedded file is malformed, which a build with intact
// sources cannot produce.
func MustLoadDefaultConfig() *MappingConfig {
	cfg := EmptyMappingConfig()
	if err := json.Unmarshal(defaultConfigJSON, cfg); err != nil {
		panic(fmt.Sprintf("embedded mapping defaults are malformed: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("embedded mapping defaults are invalid: %v", err))
	}
	return cfg
}

// Validate checks that the configuration values are valid.
func (c *MappingConfig) Validate() error {
	if c.SensorCutoffDepth != nil && *c.SensorCutoffDepth <= 0 {
		return fmt.Errorf("sensor_cutoff_depth must be positive, got %f", *c.SensorCutoffDepth)
	}
	if c.LengthX != nil && *c.LengthX <= 0 {
		return fmt.Errorf("length_x must be positive, got %f", *c.LengthX)
	}
	if c.LengthY != nil && *c.LengthY <= 0 {
		return fmt.Errorf("length_y must be positive, got %f", *c.LengthY)
	}
	if c.Resolution != nil && *c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %f", *c.Resolution)
	}
	if c.MinVariance != nil && *c.MinVariance <= 0 {
		return fmt.Errorf("min_variance must be positive, got %f", *c.MinVariance)
	}
	if c.MaxVariance != nil && *c.MaxVariance <= 0 {
		return fmt.Errorf("max_variance must be positive, got %f", *c.MaxVariance)
	}
	if c.GetMinVariance() >= c.GetMaxVariance() {
		return fmt.Errorf("min_variance (%f) must be below max_variance (%f)",
			c.GetMinVariance(), c.GetMaxVariance())
	}
	if c.MeasurementVariance != nil && *c.MeasurementVariance <= 0 {
		return fmt.Errorf("measurement_variance must be positive, got %f", *c.MeasurementVariance)
	}
	if c.ProcessNoiseDelta != nil && *c.ProcessNoiseDelta < 0 {
		return fmt.Errorf("process_noise_delta must be non-negative, got %f", *c.ProcessNoiseDelta)
	}
	if c.MinUpdateRate != nil && *c.MinUpdateRate <= 0 {
		return fmt.Errorf("min_update_rate must be positive, got %f", *c.MinUpdateRate)
	}
	if c.VariancePolicy != nil {
		switch *c.VariancePolicy {
		case VariancePolicyCoupled, VariancePolicyIndependent:
		default:
			return fmt.Errorf("variance_policy must be %q or %q, got %q",
				VariancePolicyCoupled, VariancePolicyIndependent, *c.VariancePolicy)
		}
	}
	return nil
}

// GetPointSourceTopic returns the point_source_topic value or the default.
func (c *MappingConfig) GetPointSourceTopic() string {
	if c.PointSourceTopic == nil {
		return "/depth_registered/points_throttled"
	}
	return *c.PointSourceTopic
}

// GetParentFrameID returns the parent_frame_id value or the default.
func (c *MappingConfig) GetParentFrameID() string {
	if c.ParentFrameID == nil {
		return "/map"
	}
	return *c.ParentFrameID
}

// GetMapFrameID returns the map_frame_id value or the default.
func (c *MappingConfig) GetMapFrameID() string {
	if c.MapFrameID == nil {
		return "/elevation_map"
	}
	return *c.MapFrameID
}

// GetSensorCutoffDepth returns the sensor_cutoff_depth value or the default.
func (c *MappingConfig) GetSensorCutoffDepth() float64 {
	if c.SensorCutoffDepth == nil {
		return 3.0
	}
	return *c.SensorCutoffDepth
}

// GetLengthX returns the length_x value or the default.
func (c *MappingConfig) GetLengthX() float64 {
	if c.LengthX == nil {
		return 3.0
	}
	return *c.LengthX
}

// GetLengthY returns the length_y value or the default.
func (c *MappingConfig) GetLengthY() float64 {
	if c.LengthY == nil {
		return 3.0
	}
	return *c.LengthY
}

// GetResolution returns the resolution value or the default.
func (c *MappingConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return 0.01
	}
	return *c.Resolution
}

// GetMinVariance returns the min_variance value or the default.
func (c *MappingConfig) GetMinVariance() float64 {
	if c.MinVariance == nil {
		return 0.001
	}
	return *c.MinVariance
}

// GetMaxVariance returns the max_variance value or the default.
func (c *MappingConfig) GetMaxVariance() float64 {
	if c.MaxVariance == nil {
		return 0.5
	}
	return *c.MaxVariance
}

// GetMeasurementVariance returns the measurement_variance value or the default.
func (c *MappingConfig) GetMeasurementVariance() float64 {
	if c.MeasurementVariance == nil {
		return 0.3
	}
	return *c.MeasurementVariance
}

// GetProcessNoiseDelta returns the process_noise_delta value or the default.
func (c *MappingConfig) GetProcessNoiseDelta() float64 {
	if c.ProcessNoiseDelta == nil {
		return 0.005
	}
	return *c.ProcessNoiseDelta
}

// GetVariancePolicy returns the variance_policy value or the default.
func (c *MappingConfig) GetVariancePolicy() string {
	if c.VariancePolicy == nil {
		return VariancePolicyCoupled
	}
	return *c.VariancePolicy
}

// GetMinUpdateRate returns the min_update_rate value or the default.
func (c *MappingConfig) GetMinUpdateRate() float64 {
	if c.MinUpdateRate == nil {
		return 2.0
	}
	return *c.MinUpdateRate
}

// GetMaxNoUpdateDuration derives the maximum allowed gap between
// sensor-driven updates from the minimum update rate.
func (c *MappingConfig) GetMaxNoUpdateDuration() time.Duration {
	return time.Duration(float64(time.Second) / c.GetMinUpdateRate())
}
