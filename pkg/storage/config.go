package storage

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
)

// Storage backends.
const (
	BackendFilesystem = "filesystem"
	BackendGCS        = "gcs"
)

// Config contains blob storage configuration.
type Config struct {
	// Backend selects filesystem or gcs.
	// Default: "filesystem"
	Backend string `toml:"backend"`

	// BasePath is the root directory for filesystem storage.
	// Default: ".data/blobs"
	BasePath string `toml:"base_path"`

	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	CredentialsFile string `toml:"credentials_file"`

	MaxUploadSize    string `toml:"max_upload_size"`
	maxUploadSizeVal int64
}

// Env maps environment variable names for storage configuration.
type Env struct {
	Backend         string
	BasePath        string
	Bucket          string
	Prefix          string
	CredentialsFile string
	MaxUploadSize   string
}

// MaxUploadSizeBytes returns the parsed upload limit. Valid after Finalize.
func (c *Config) MaxUploadSizeBytes() int64 {
	return c.maxUploadSizeVal
}

// Finalize applies defaults, loads environment overrides, and validates the storage configuration.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *Config) Merge(overlay *Config) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.Bucket != "" {
		c.Bucket = overlay.Bucket
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if overlay.CredentialsFile != "" {
		c.CredentialsFile = overlay.CredentialsFile
	}
	if size, err := units.FromHumanSize(overlay.MaxUploadSize); err == nil {
		c.MaxUploadSize = overlay.MaxUploadSize
		c.maxUploadSizeVal = size
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendFilesystem
	}
	if c.BasePath == "" {
		c.BasePath = ".data/blobs"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "100MB"
	}
}

func (c *Config) loadEnv(env *Env) {
	set := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(env.Backend, &c.Backend)
	set(env.BasePath, &c.BasePath)
	set(env.Bucket, &c.Bucket)
	set(env.Prefix, &c.Prefix)
	set(env.CredentialsFile, &c.CredentialsFile)
	set(env.MaxUploadSize, &c.MaxUploadSize)
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendFilesystem:
		if c.BasePath == "" {
			return fmt.Errorf("base_path required")
		}
	case BackendGCS:
		if c.Bucket == "" {
			return fmt.Errorf("bucket required for gcs backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be filesystem or gcs)", c.Backend)
	}

	size, err := units.FromHumanSize(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	c.maxUploadSizeVal = size

	return nil
}
