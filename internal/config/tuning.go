package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lidar.poi/internal/poi"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for the POI engine and its
// runtime loops. The schema matches the /api/params endpoint so the same
// document can be used for startup configuration and inspection.
//
// Fields are pointers so a partial file leaves the rest at their defaults.
type TuningConfig struct {
	// Binning
	DivisionsPerDegree *float64 `json:"divisions_per_degree,omitempty" yaml:"divisions_per_degree,omitempty"`
	MovedFactor        *float64 `json:"moved_factor,omitempty" yaml:"moved_factor,omitempty"`

	// Hysteresis
	ForgetWindow    *string  `json:"forget_window,omitempty" yaml:"forget_window,omitempty"`       // duration string like "3s"
	TransientWindow *string  `json:"transient_window,omitempty" yaml:"transient_window,omitempty"` // duration string like "200ms"
	AngularNearDeg  *float64 `json:"angular_near_deg,omitempty" yaml:"angular_near_deg,omitempty"`
	RadialNearMM    *float64 `json:"radial_near_mm,omitempty" yaml:"radial_near_mm,omitempty"`
	MaxPOIDistMM    *float64 `json:"max_poi_dist_mm,omitempty" yaml:"max_poi_dist_mm,omitempty"`

	// Runtime loops
	SweepInterval    *string `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
	SweepBinsPerTick *int    `json:"sweep_bins_per_tick,omitempty" yaml:"sweep_bins_per_tick,omitempty"`
	ReportInterval   *string `json:"report_interval,omitempty" yaml:"report_interval,omitempty"`
	StatsInterval    *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"`

	// Output
	LogLevel       *string `json:"log_level,omitempty" yaml:"log_level,omitempty"` // none, stats, lidar, coord
	MQTTTopic      *string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`
	MQTTQoS        *int    `json:"mqtt_qos,omitempty" yaml:"mqtt_qos,omitempty"`
	MQTTRetain     *bool   `json:"mqtt_retain,omitempty" yaml:"mqtt_retain,omitempty"`
	BroadcastQueue *int    `json:"broadcast_queue,omitempty" yaml:"broadcast_queue,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file
// no larger than 1MB. Fields omitted from the file keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks every set field. The engine parameters are checked
// together through poi.Params so both layers agree on what is valid.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"forget_window":    c.ForgetWindow,
		"transient_window": c.TransientWindow,
		"sweep_interval":   c.SweepInterval,
		"report_interval":  c.ReportInterval,
		"stats_interval":   c.StatsInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.SweepBinsPerTick != nil && *c.SweepBinsPerTick < 1 {
		return fmt.Errorf("sweep_bins_per_tick must be at least 1, got %d", *c.SweepBinsPerTick)
	}
	if c.MQTTQoS != nil && (*c.MQTTQoS < 0 || *c.MQTTQoS > 2) {
		return fmt.Errorf("mqtt_qos must be 0, 1 or 2, got %d", *c.MQTTQoS)
	}
	if c.BroadcastQueue != nil && *c.BroadcastQueue < 1 {
		return fmt.Errorf("broadcast_queue must be positive, got %d", *c.BroadcastQueue)
	}
	if c.LogLevel != nil {
		switch *c.LogLevel {
		case "", "none", "stats", "lidar", "coord":
		default:
			return fmt.Errorf("log_level must be one of none, stats, lidar, coord; got %q", *c.LogLevel)
		}
	}

	if err := c.ToParams().Validate(); err != nil {
		return err
	}
	return nil
}

// ToParams builds engine parameters, filling unset fields from poi defaults.
func (c *TuningConfig) ToParams() poi.Params {
	return poi.Params{
		DivisionsPerDegree: c.GetDivisionsPerDegree(),
		MovedFactor:        c.GetMovedFactor(),
		ForgetWindow:       c.GetForgetWindow(),
		TransientWindow:    c.GetTransientWindow(),
		AngularNear:        c.GetAngularNearDeg(),
		RadialNear:         c.GetRadialNearMM(),
		MaxPOIDistance:     c.GetMaxPOIDistMM(),
	}
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetDivisionsPerDegree returns the divisions_per_degree value or the default.
func (c *TuningConfig) GetDivisionsPerDegree() float64 {
	if c.DivisionsPerDegree == nil {
		return poi.DefaultDivisionsPerDegree
	}
	return *c.DivisionsPerDegree
}

// GetMovedFactor returns the moved_factor value or the default.
func (c *TuningConfig) GetMovedFactor() float64 {
	if c.MovedFactor == nil {
		return poi.DefaultMovedFactor
	}
	return *c.MovedFactor
}

// GetForgetWindow parses and returns the forget_window.
func (c *TuningConfig) GetForgetWindow() time.Duration {
	return durationOr(c.ForgetWindow, poi.DefaultForgetWindow)
}

// GetTransientWindow parses and returns the transient_window.
func (c *TuningConfig) GetTransientWindow() time.Duration {
	return durationOr(c.TransientWindow, poi.DefaultTransientWindow)
}

func (c *TuningConfig) GetAngularNearDeg() float64 {
	if c.AngularNearDeg == nil {
		return poi.DefaultAngularNear
	}
	return *c.AngularNearDeg
}

func (c *TuningConfig) GetRadialNearMM() float64 {
	if c.RadialNearMM == nil {
		return poi.DefaultRadialNear
	}
	return *c.RadialNearMM
}

func (c *TuningConfig) GetMaxPOIDistMM() float64 {
	if c.MaxPOIDistMM == nil {
		return poi.DefaultMaxPOIDistance
	}
	return *c.MaxPOIDistMM
}

// GetSweepInterval returns how often the expiry sweep runs.
func (c *TuningConfig) GetSweepInterval() time.Duration {
	return durationOr(c.SweepInterval, 10*time.Millisecond)
}

// GetSweepBinsPerTick returns how many bins each sweep tick visits.
// The default covers a full turn of default bins in about a second.
func (c *TuningConfig) GetSweepBinsPerTick() int {
	if c.SweepBinsPerTick == nil {
		return 15
	}
	return *c.SweepBinsPerTick
}

// GetReportInterval returns how often the POI is evaluated and reported.
func (c *TuningConfig) GetReportInterval() time.Duration {
	return durationOr(c.ReportInterval, 100*time.Millisecond)
}

// GetStatsInterval returns how often packet statistics are logged.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, time.Minute)
}

// GetLogLevel returns the log_level value or "stats".
func (c *TuningConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "stats"
	}
	return *c.LogLevel
}

// GetMQTTTopic returns the MQTT topic prefix.
func (c *TuningConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "lidar"
	}
	return *c.MQTTTopic
}

func (c *TuningConfig) GetMQTTQoS() byte {
	if c.MQTTQoS == nil {
		return 0
	}
	return byte(*c.MQTTQoS)
}

func (c *TuningConfig) GetMQTTRetain() bool {
	if c.MQTTRetain == nil {
		return true
	}
	return *c.MQTTRetain
}

// GetBroadcastQueue returns the outbound UDP queue depth.
func (c *TuningConfig) GetBroadcastQueue() int {
	if c.BroadcastQueue == nil {
		return 64
	}
	return *c.BroadcastQueue
}
