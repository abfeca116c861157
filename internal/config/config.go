// Package config holds the configuration of the change-detection server and
// CLI: detection thresholds and band roles, job runner limits, the result
// store location, preview rendering and logging.
//
// Configuration is layered. Default supplies every value, an optional YAML
// file overrides the fields it names, and CHANGE_MCP_* environment
// variables override both.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv and FromEnv.
const (
	EnvLogLevel = "CHANGE_MCP_LOG_LEVEL"
	EnvDBPath   = "CHANGE_MCP_DB_PATH"
	EnvWorkers  = "CHANGE_MCP_WORKERS"
	EnvConfig   = "CHANGE_MCP_CONFIG"
)

// maxFileSize caps the size of a configuration file.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration.
type Config struct {
	Detection Detection `yaml:"detection"`
	Jobs      Jobs      `yaml:"jobs"`
	Store     Store     `yaml:"store"`
	Render    Render    `yaml:"render"`
	Log       Log       `yaml:"log"`
}

// Detection configures the change-detection pipeline. Band indices are
// 0-based.
type Detection struct {
	// Band roles for the full analysis.
	RedBand   int `yaml:"red_band"`
	GreenBand int `yaml:"green_band"`
	NIRBand   int `yaml:"nir_band"`

	// Cloud and shadow thresholds on unit-normalized values.
	CloudBrightnessThreshold  float64 `yaml:"cloud_brightness_threshold"`
	CloudNDVIThreshold        float64 `yaml:"cloud_ndvi_threshold"`
	ShadowBrightnessThreshold float64 `yaml:"shadow_brightness_threshold"`

	// MinValidPixels is the number of pixels that must be valid in both
	// images before differencing.
	MinValidPixels int `yaml:"min_valid_pixels"`

	// ChangeThreshold is the magnitude above which a pixel counts as changed.
	ChangeThreshold float64 `yaml:"min_change_threshold"`

	// MinBands is the band count the full analysis requires.
	MinBands int `yaml:"min_bands"`

	// FallbackToReduced runs the NDVI-only analysis instead of failing when
	// an image has fewer than MinBands bands.
	FallbackToReduced bool `yaml:"fallback_to_reduced"`

	// ResampleMismatched bilinearly resamples the after image onto the
	// before grid when their shapes differ.
	ResampleMismatched bool `yaml:"resample_mismatched"`

	// Band roles and threshold for the NDVI-only analysis.
	ReducedRedBand   int     `yaml:"reduced_red_band"`
	ReducedNIRBand   int     `yaml:"reduced_nir_band"`
	ReducedThreshold float64 `yaml:"reduced_threshold"`
}

// Jobs configures the background job runner.
type Jobs struct {
	// Workers bounds concurrent detections. 0 sizes the pool from the host.
	Workers int `yaml:"workers"`

	// Timeout bounds a single detection. 0 disables the timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// Store configures the result database.
type Store struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path"`
}

// Render configures preview images.
type Render struct {
	MaxSize        int     `yaml:"max_size"`
	HistogramBins  int     `yaml:"histogram_bins"`
	OverlayColor   string  `yaml:"overlay_color"`
	OverlayOpacity float64 `yaml:"overlay_opacity"`
}

// Log configures the process logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Detection: Detection{
			RedBand:                   0,
			GreenBand:                 1,
			NIRBand:                   2,
			CloudBrightnessThreshold:  0.7,
			CloudNDVIThreshold:        0.1,
			ShadowBrightnessThreshold: 0.3,
			MinValidPixels:            100,
			ChangeThreshold:           0.15,
			MinBands:                  3,
			FallbackToReduced:         true,
			ResampleMismatched:        false,
			ReducedRedBand:            2,
			ReducedNIRBand:            3,
			ReducedThreshold:          0.2,
		},
		Jobs: Jobs{
			Workers: 0,
			Timeout: 10 * time.Minute,
		},
		Store: Store{
			Path: "change-detect.db",
		},
		Render: Render{
			MaxSize:        1024,
			HistogramBins:  50,
			OverlayColor:   "#FF0000",
			OverlayOpacity: 0.5,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file over the defaults.
// The file must have a .yaml or .yml extension and be under 1MB. Fields
// omitted from the file keep their default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds the process configuration: the file named by
// CHANGE_MCP_CONFIG (or the defaults when unset), then environment
// overrides, then validation.
func FromEnv() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfig); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CHANGE_MCP_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv(EnvDBPath); ok {
		c.Store.Path = v
	}
	if v, ok := os.LookupEnv(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Jobs.Workers = n
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if c.Jobs.Workers < 0 {
		return fmt.Errorf("jobs: workers must be non-negative, got %d", c.Jobs.Workers)
	}
	if c.Jobs.Timeout < 0 {
		return fmt.Errorf("jobs: timeout must be non-negative, got %s", c.Jobs.Timeout)
	}
	if c.Render.MaxSize <= 0 {
		return fmt.Errorf("render: max_size must be positive, got %d", c.Render.MaxSize)
	}
	if c.Render.HistogramBins <= 0 {
		return fmt.Errorf("render: histogram_bins must be positive, got %d", c.Render.HistogramBins)
	}
	if c.Render.OverlayOpacity < 0 || c.Render.OverlayOpacity > 1 {
		return fmt.Errorf("render: overlay_opacity must be between 0 and 1, got %f", c.Render.OverlayOpacity)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log: format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Validate checks thresholds and band roles.
func (d Detection) Validate() error {
	if d.RedBand < 0 || d.GreenBand < 0 || d.NIRBand < 0 {
		return fmt.Errorf("band indices must be non-negative, got red=%d green=%d nir=%d", d.RedBand, d.GreenBand, d.NIRBand)
	}
	if d.RedBand == d.GreenBand || d.RedBand == d.NIRBand || d.GreenBand == d.NIRBand {
		return fmt.Errorf("band roles must be distinct, got red=%d green=%d nir=%d", d.RedBand, d.GreenBand, d.NIRBand)
	}
	if d.ReducedRedBand < 0 || d.ReducedNIRBand < 0 || d.ReducedRedBand == d.ReducedNIRBand {
		return fmt.Errorf("reduced band roles must be distinct and non-negative, got red=%d nir=%d", d.ReducedRedBand, d.ReducedNIRBand)
	}
	if d.CloudBrightnessThreshold < 0 || d.CloudBrightnessThreshold > 1 {
		return fmt.Errorf("cloud_brightness_threshold must be between 0 and 1, got %f", d.CloudBrightnessThreshold)
	}
	if d.ShadowBrightnessThreshold < 0 || d.ShadowBrightnessThreshold > 1 {
		return fmt.Errorf("shadow_brightness_threshold must be between 0 and 1, got %f", d.ShadowBrightnessThreshold)
	}
	if d.CloudNDVIThreshold < -1 || d.CloudNDVIThreshold > 1 {
		return fmt.Errorf("cloud_ndvi_threshold must be between -1 and 1, got %f", d.CloudNDVIThreshold)
	}
	if d.ChangeThreshold < 0 {
		return fmt.Errorf("min_change_threshold must be non-negative, got %f", d.ChangeThreshold)
	}
	if d.ReducedThreshold < 0 {
		return fmt.Errorf("reduced_threshold must be non-negative, got %f", d.ReducedThreshold)
	}
	if d.MinValidPixels < 0 {
		return fmt.Errorf("min_valid_pixels must be non-negative, got %d", d.MinValidPixels)
	}
	if d.MinBands < 1 {
		return fmt.Errorf("min_bands must be at least 1, got %d", d.MinBands)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", name)
}
