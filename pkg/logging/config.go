package logging

import (
	"fmt"
	"os"
	"strconv"
)

// Env maps environment variable names for logging configuration.
type Env struct {
	Level     string
	Format    string
	Output    string
	AddSource string
}

// Config holds logging configuration settings.
type Config struct {
	Level     Level  `toml:"level"`
	Format    Format `toml:"format"`
	Output    string `toml:"output"`
	AddSource bool   `toml:"add_source"`
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	c.loadEnv(env)
	return c.validate()
}

// Merge applies non-zero values from the overlay configuration.
func (c *Config) Merge(overlay *Config) {
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
	if overlay.Output != "" {
		c.Output = overlay.Output
	}
	if overlay.AddSource {
		c.AddSource = true
	}
}

func (c *Config) loadDefaults() {
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatText
	}
	if c.Output == "" {
		c.Output = OutputStdout
	}
}

func (c *Config) loadEnv(env *Env) {
	if env == nil {
		return
	}
	if v := os.Getenv(env.Level); v != "" {
		c.Level = Level(v)
	}
	if v := os.Getenv(env.Format); v != "" {
		c.Format = Format(v)
	}
	if env.Output != "" {
		if v := os.Getenv(env.Output); v != "" {
			c.Output = v
		}
	}
	if env.AddSource != "" {
		if v := os.Getenv(env.AddSource); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.AddSource = b
			}
		}
	}
}

func (c *Config) validate() error {
	if err := c.Level.Validate(); err != nil {
		return err
	}
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if c.Output != OutputStdout && c.Output != OutputStderr {
		return fmt.Errorf("invalid log output: %s (must be stdout or stderr)", c.Output)
	}
	return nil
}
