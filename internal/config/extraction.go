package config

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
)

// ExtractionConfig tunes the extraction scheduler and text engine.
type ExtractionConfig struct {
	// Concurrency caps concurrent extraction jobs. Default: 2
	Concurrency int `toml:"concurrency"`

	// StaleThreshold is how long a processing record may go without updates
	// before it is treated as abandoned. Default: "15m"
	StaleThreshold string `toml:"stale_threshold"`

	// SweepInterval is the period of the stale-job sweeper. Default: "5m"
	SweepInterval string `toml:"sweep_interval"`

	// MinNativeChars is the native text length that skips OCR. Default: 50
	MinNativeChars int `toml:"min_native_chars"`

	// MaxPages caps pages processed per document. Default: 25
	MaxPages int `toml:"max_pages"`

	// ForceDual runs OCR even when native text is sufficient.
	ForceDual bool `toml:"force_dual"`

	// RenderDPI is the rasterization density for OCR. Default: 200
	RenderDPI int `toml:"render_dpi"`

	// MaxFileSize rejects larger files before any work. Default: "50MB"
	MaxFileSize    string `toml:"max_file_size"`
	maxFileSizeVal int64

	// TempDir holds downloaded files during a job. Default: OS temp dir.
	TempDir string `toml:"temp_dir"`
}

func (c *ExtractionConfig) StaleThresholdDuration() time.Duration {
	return duration(c.StaleThreshold)
}

func (c *ExtractionConfig) SweepIntervalDuration() time.Duration {
	return duration(c.SweepInterval)
}

// MaxFileSizeBytes returns the parsed file size limit. Valid after Finalize.
func (c *ExtractionConfig) MaxFileSizeBytes() int64 {
	return c.maxFileSizeVal
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *ExtractionConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *ExtractionConfig) Merge(overlay *ExtractionConfig) {
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.StaleThreshold != "" {
		c.StaleThreshold = overlay.StaleThreshold
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.MinNativeChars != 0 {
		c.MinNativeChars = overlay.MinNativeChars
	}
	if overlay.MaxPages != 0 {
		c.MaxPages = overlay.MaxPages
	}
	if overlay.ForceDual {
		c.ForceDual = true
	}
	if overlay.RenderDPI != 0 {
		c.RenderDPI = overlay.RenderDPI
	}
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
	if overlay.TempDir != "" {
		c.TempDir = overlay.TempDir
	}
}

func (c *ExtractionConfig) loadDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 2
	}
	if c.StaleThreshold == "" {
		c.StaleThreshold = "15m"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "5m"
	}
	if c.MinNativeChars == 0 {
		c.MinNativeChars = 50
	}
	if c.MaxPages == 0 {
		c.MaxPages = 25
	}
	if c.RenderDPI == 0 {
		c.RenderDPI = 200
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "50MB"
	}
}

func (c *ExtractionConfig) loadEnv() {
	envInt("EXTRACTION_CONCURRENCY", &c.Concurrency)
	envString("EXTRACTION_STALE_THRESHOLD", &c.StaleThreshold)
	envString("EXTRACTION_SWEEP_INTERVAL", &c.SweepInterval)
	envInt("EXTRACTION_MIN_NATIVE_CHARS", &c.MinNativeChars)
	envInt("EXTRACTION_MAX_PAGES", &c.MaxPages)
	envBool("EXTRACTION_FORCE_DUAL", &c.ForceDual)
	envInt("EXTRACTION_RENDER_DPI", &c.RenderDPI)
	envString("EXTRACTION_MAX_FILE_SIZE", &c.MaxFileSize)
	envString("EXTRACTION_TEMP_DIR", &c.TempDir)
}

func (c *ExtractionConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MinNativeChars < 0 {
		return fmt.Errorf("min_native_chars must not be negative")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1")
	}
	if c.RenderDPI < 72 || c.RenderDPI > 600 {
		return fmt.Errorf("render_dpi must be between 72 and 600")
	}
	if err := parseDurations(map[string]string{
		"stale_threshold": c.StaleThreshold,
		"sweep_interval":  c.SweepInterval,
	}); err != nil {
		return err
	}

	size, err := units.FromHumanSize(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	c.maxFileSizeVal = size

	return nil
}
