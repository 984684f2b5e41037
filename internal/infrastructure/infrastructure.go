// Package infrastructure assembles the shared systems every domain package
// depends on: lifecycle, logging, the database pool, blob storage and the
// lease locker.
package infrastructure

import (
	"fmt"
	"log/slog"

	"github.com/JaimeStill/evidence-lab/internal/config"
	"github.com/JaimeStill/evidence-lab/internal/migrations"
	"github.com/JaimeStill/evidence-lab/pkg/database"
	"github.com/JaimeStill/evidence-lab/pkg/lease"
	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
	"github.com/JaimeStill/evidence-lab/pkg/logging"
	"github.com/JaimeStill/evidence-lab/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Locks     lease.Locker
}

// New creates an Infrastructure from the application configuration.
// Nothing is started; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := logging.New(&cfg.Logging)

	db, err := database.New(&cfg.Database, migrations.FS, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	locks, err := lease.New(&cfg.Lease, logger)
	if err != nil {
		return nil, fmt.Errorf("lease init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Locks:     locks,
	}, nil
}

// Start connects the database and prepares storage under the lifecycle.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}
