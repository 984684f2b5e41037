package lease

import (
	"fmt"
	"os"
	"strconv"
)

// Lease backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures the lease backend.
type Config struct {
	Backend   string `toml:"backend"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	Password  string `toml:"password"`
	Prefix    string `toml:"prefix"`
}

// Env maps environment variable names for lease configuration.
type Env struct {
	Backend   string
	RedisAddr string
	RedisDB   string
	Password  string
	Prefix    string
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
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
	if overlay.RedisAddr != "" {
		c.RedisAddr = overlay.RedisAddr
	}
	if overlay.RedisDB != 0 {
		c.RedisDB = overlay.RedisDB
	}
	if overlay.Password != "" {
		c.Password = overlay.Password
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Prefix == "" {
		c.Prefix = "lease:"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.RedisAddr != "" {
		if v := os.Getenv(env.RedisAddr); v != "" {
			c.RedisAddr = v
		}
	}
	if env.RedisDB != "" {
		if v := os.Getenv(env.RedisDB); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.RedisDB = n
			}
		}
	}
	if env.Password != "" {
		if v := os.Getenv(env.Password); v != "" {
			c.Password = v
		}
	}
	if env.Prefix != "" {
		if v := os.Getenv(env.Prefix); v != "" {
			c.Prefix = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be memory or redis)", c.Backend)
	}
	return nil
}
