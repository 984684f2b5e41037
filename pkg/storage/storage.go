// Package storage provides blob storage for evidence files. The System
// interface is implemented by a local filesystem backend for development and
// single-node deployments and a Google Cloud Storage backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
)

// Storage errors returned by System implementations.
var (
	// ErrNotFound indicates the requested key does not exist in storage.
	ErrNotFound = errors.New("storage: key not found")

	// ErrPermissionDenied indicates insufficient permissions to access the key.
	ErrPermissionDenied = errors.New("storage: permission denied")

	// ErrInvalidKey indicates the key is empty or attempts path traversal.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// System defines blob storage operations.
type System interface {
	// Store saves data at key, overwriting any existing object.
	Store(ctx context.Context, key string, data []byte) error

	// Retrieve returns the data stored at key or ErrNotFound.
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Validate reports whether key exists and is readable.
	Validate(ctx context.Context, key string) (bool, error)

	// Start registers lifecycle hooks with the coordinator.
	Start(lc *lifecycle.Coordinator) error
}

// New builds the System selected by cfg.Backend.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	switch cfg.Backend {
	case BackendFilesystem:
		return NewFilesystem(cfg, logger)
	case BackendGCS:
		return NewGCS(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func cleanKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || strings.HasPrefix(cleaned, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
