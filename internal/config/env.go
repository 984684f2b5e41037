package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/evidence-lab/pkg/database"
	"github.com/JaimeStill/evidence-lab/pkg/lease"
	"github.com/JaimeStill/evidence-lab/pkg/logging"
	"github.com/JaimeStill/evidence-lab/pkg/pagination"
	"github.com/JaimeStill/evidence-lab/pkg/storage"
)

var databaseEnv = &database.Env{
	Host:            "DATABASE_HOST",
	Port:            "DATABASE_PORT",
	Name:            "DATABASE_NAME",
	User:            "DATABASE_USER",
	Password:        "DATABASE_PASSWORD",
	MaxOpenConns:    "DATABASE_MAX_OPEN_CONNS",
	MaxIdleConns:    "DATABASE_MAX_IDLE_CONNS",
	ConnMaxLifetime: "DATABASE_CONN_MAX_LIFETIME",
	ConnTimeout:     "DATABASE_CONN_TIMEOUT",
	SSLMode:         "DATABASE_SSL_MODE",
	AutoMigrate:     "DATABASE_AUTO_MIGRATE",
}

var loggingEnv = &logging.Env{
	Level:     "LOGGING_LEVEL",
	Format:    "LOGGING_FORMAT",
	Output:    "LOGGING_OUTPUT",
	AddSource: "LOGGING_ADD_SOURCE",
}

var storageEnv = &storage.Env{
	Backend:         "STORAGE_BACKEND",
	BasePath:        "STORAGE_BASE_PATH",
	Bucket:          "STORAGE_BUCKET",
	Prefix:          "STORAGE_PREFIX",
	CredentialsFile: "STORAGE_CREDENTIALS_FILE",
	MaxUploadSize:   "STORAGE_MAX_UPLOAD_SIZE",
}

var leaseEnv = &lease.Env{
	Backend:   "LEASE_BACKEND",
	RedisAddr: "LEASE_REDIS_ADDR",
	RedisDB:   "LEASE_REDIS_DB",
	Password:  "LEASE_REDIS_PASSWORD",
	Prefix:    "LEASE_PREFIX",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "PAGINATION_MAX_PAGE_SIZE",
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func parseDurations(fields map[string]string) error {
	for name, value := range fields {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
