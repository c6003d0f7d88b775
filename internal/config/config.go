// Package config loads the monitor's tuning parameters from JSON. Fields
// are pointers so a partial file only overrides what it names; the Get*
// methods carry the defaults. Threshold values are safety-critical, so a
// file that fails validation is a fatal startup error, never a guessed
// default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root tuning schema. The same JSON shape is accepted on
// startup and by the runtime params endpoint.
type Config struct {
	// Prediction
	PredictionHorizonSeconds *float64 `json:"prediction_horizon_seconds,omitempty"`
	SamplingStepSeconds      *float64 `json:"sampling_step_seconds,omitempty"`
	SmoothingFactor          *float64 `json:"smoothing_factor,omitempty"`
	HistoryLength            *int     `json:"history_length,omitempty"`
	SilenceTimeoutSeconds    *float64 `json:"silence_timeout_seconds,omitempty"`

	// Conflict thresholds
	HorizontalSeparationNM *float64 `json:"horizontal_separation_nm,omitempty"`
	VerticalSeparationFt   *float64 `json:"vertical_separation_ft,omitempty"`
	ProximityCutoffNM      *float64 `json:"proximity_cutoff_nm,omitempty"`
	// SeverityTierSeconds are at most two ascending time-to-closest-approach
	// boundaries: below the first is critical, below the second warning,
	// beyond both advisory. The severity model is three-tier; longer lists
	// are rejected by Validate.
	SeverityTierSeconds []float64 `json:"severity_tier_seconds,omitempty"`

	// Ground classification
	FieldElevationFt    *float64 `json:"field_elevation_ft,omitempty"`
	GroundMaxAGLFt      *float64 `json:"ground_max_agl_ft,omitempty"`
	GroundMaxSpeedKts   *float64 `json:"ground_max_speed_kts,omitempty"`
	RolloutExitSpeedKts *float64 `json:"rollout_exit_speed_kts,omitempty"`

	// Data paths
	SurfaceMapFile *string `json:"surface_map_file,omitempty"`
	DatabaseFile   *string `json:"database_file,omitempty"`
	MigrationsDir  *string `json:"migrations_dir,omitempty"`
}

// Default returns an empty config; all getters fall back to defaults.
func Default() *Config {
	return &Config{}
}

// Load reads a config from a JSON file. The file must have a .json
// extension; omitted fields keep their defaults, so partial configs are
// safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values that would make the evaluators misbehave.
func (c *Config) Validate() error {
	if c.PredictionHorizonSeconds != nil && *c.PredictionHorizonSeconds <= 0 {
		return fmt.Errorf("prediction_horizon_seconds must be positive, got %v", *c.PredictionHorizonSeconds)
	}
	if c.SamplingStepSeconds != nil && *c.SamplingStepSeconds <= 0 {
		return fmt.Errorf("sampling_step_seconds must be positive, got %v", *c.SamplingStepSeconds)
	}
	if c.SmoothingFactor != nil && (*c.SmoothingFactor <= 0 || *c.SmoothingFactor > 1) {
		return fmt.Errorf("smoothing_factor must be in (0, 1], got %v", *c.SmoothingFactor)
	}
	if c.HistoryLength != nil && *c.HistoryLength < 2 {
		return fmt.Errorf("history_length must be at least 2, got %d", *c.HistoryLength)
	}
	if c.HorizontalSeparationNM != nil && *c.HorizontalSeparationNM <= 0 {
		return fmt.Errorf("horizontal_separation_nm must be positive, got %v", *c.HorizontalSeparationNM)
	}
	if c.VerticalSeparationFt != nil && *c.VerticalSeparationFt <= 0 {
		return fmt.Errorf("vertical_separation_ft must be positive, got %v", *c.VerticalSeparationFt)
	}
	if c.ProximityCutoffNM != nil && *c.ProximityCutoffNM <= 0 {
		return fmt.Errorf("proximity_cutoff_nm must be positive, got %v", *c.ProximityCutoffNM)
	}
	if c.SilenceTimeoutSeconds != nil && *c.SilenceTimeoutSeconds <= 0 {
		return fmt.Errorf("silence_timeout_seconds must be positive, got %v", *c.SilenceTimeoutSeconds)
	}
	if len(c.SeverityTierSeconds) > 2 {
		return fmt.Errorf("severity_tier_seconds takes at most two boundaries (critical/warning/advisory), got %d", len(c.SeverityTierSeconds))
	}
	for i := 1; i < len(c.SeverityTierSeconds); i++ {
		if c.SeverityTierSeconds[i] <= c.SeverityTierSeconds[i-1] {
			return fmt.Errorf("severity_tier_seconds must be strictly increasing, got %v", c.SeverityTierSeconds)
		}
	}
	if len(c.SeverityTierSeconds) > 0 && c.PredictionHorizonSeconds != nil {
		if c.SeverityTierSeconds[len(c.SeverityTierSeconds)-1] > *c.PredictionHorizonSeconds {
			return fmt.Errorf("severity tier boundary %v exceeds prediction horizon %v",
				c.SeverityTierSeconds[len(c.SeverityTierSeconds)-1], *c.PredictionHorizonSeconds)
		}
	}
	return nil
}

func secondsOr(p *float64, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p * float64(time.Second))
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetPredictionHorizon returns the trajectory horizon (default 60 s).
func (c *Config) GetPredictionHorizon() time.Duration {
	return secondsOr(c.PredictionHorizonSeconds, 60*time.Second)
}

// GetSamplingStep returns the pairwise sampling step (default 1 s).
func (c *Config) GetSamplingStep() time.Duration {
	return secondsOr(c.SamplingStepSeconds, time.Second)
}

// GetSmoothingFactor returns the estimator smoothing factor (default 0.5).
func (c *Config) GetSmoothingFactor() float64 {
	return floatOr(c.SmoothingFactor, 0.5)
}

// GetHistoryLength returns the per-aircraft history window (default 16).
func (c *Config) GetHistoryLength() int {
	if c.HistoryLength == nil {
		return 16
	}
	return *c.HistoryLength
}

// GetSilenceTimeout returns the eviction timeout (default 60 s).
func (c *Config) GetSilenceTimeout() time.Duration {
	return secondsOr(c.SilenceTimeoutSeconds, 60*time.Second)
}

// GetHorizontalSeparationNM returns the horizontal conflict threshold
// (default 1 NM, matching the recorded-incident backtests).
func (c *Config) GetHorizontalSeparationNM() float64 {
	return floatOr(c.HorizontalSeparationNM, 1.0)
}

// GetVerticalSeparationFt returns the vertical conflict threshold
// (default 350 ft).
func (c *Config) GetVerticalSeparationFt() float64 {
	return floatOr(c.VerticalSeparationFt, 350)
}

// GetProximityCutoffNM returns the pair pre-filter cutoff (default 5 NM).
func (c *Config) GetProximityCutoffNM() float64 {
	return floatOr(c.ProximityCutoffNM, 5.0)
}

// GetSeverityTierSeconds returns the ascending time-to-closest-approach
// boundaries separating severity tiers (default 10 s / 30 s: below 10 s is
// critical, below 30 s is warning, the rest advisory).
func (c *Config) GetSeverityTierSeconds() []float64 {
	if len(c.SeverityTierSeconds) == 0 {
		return []float64{10, 30}
	}
	out := make([]float64, len(c.SeverityTierSeconds))
	copy(out, c.SeverityTierSeconds)
	return out
}

// GetFieldElevationFt returns the airport field elevation (default 620 ft,
// Chicago Midway).
func (c *Config) GetFieldElevationFt() float64 {
	return floatOr(c.FieldElevationFt, 620)
}

// GetGroundMaxAGLFt returns the height above field below which an aircraft
// is treated as surface traffic (default 100 ft).
func (c *Config) GetGroundMaxAGLFt() float64 {
	return floatOr(c.GroundMaxAGLFt, 100)
}

// GetGroundMaxSpeedKts returns the speed below which a surface aircraft is
// considered taxiing rather than rolling (default 50 kt).
func (c *Config) GetGroundMaxSpeedKts() float64 {
	return floatOr(c.GroundMaxSpeedKts, 50)
}

// GetRolloutExitSpeedKts returns the speed below which a landing rollout is
// considered complete (default 30 kt).
func (c *Config) GetRolloutExitSpeedKts() float64 {
	return floatOr(c.RolloutExitSpeedKts, 30)
}

// GetSurfaceMapFile returns the surface map path (default
// config/surface.geojson).
func (c *Config) GetSurfaceMapFile() string {
	if c.SurfaceMapFile == nil {
		return "config/surface.geojson"
	}
	return *c.SurfaceMapFile
}

// GetDatabaseFile returns the sqlite path (default surfacewatch.db).
func (c *Config) GetDatabaseFile() string {
	if c.DatabaseFile == nil {
		return "surfacewatch.db"
	}
	return *c.DatabaseFile
}

// GetMigrationsDir returns the migrations directory (default db/migrations).
func (c *Config) GetMigrationsDir() string {
	if c.MigrationsDir == nil {
		return "db/migrations"
	}
	return *c.MigrationsDir
}
