// Package database manages the PostgreSQL connection pool and schema
// migrations for the service.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNotReady is returned when the connection is used before startup completes.
var ErrNotReady = errors.New("database not ready")

// System exposes the shared connection pool.
type System interface {
	Connection() *sql.DB
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn       *sql.DB
	cfg        *Config
	migrations fs.FS
	logger     *slog.Logger
}

// New opens (but does not ping) a pgx-backed connection pool. When
// migrations is non-nil and the config allows it, the embedded schema is
// applied during startup.
func New(cfg *Config, migrations fs.FS, logger *slog.Logger) (System, error) {
	conn, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:       conn,
		cfg:        cfg,
		migrations: migrations,
		logger:     logger.With("system", "database"),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

// Start verifies connectivity, applies migrations, and closes the pool on shutdown.
func (d *database) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting database connection", "host", d.cfg.Host, "name", d.cfg.Name)

	pingCtx, cancel := context.WithTimeout(lc.Context(), d.cfg.ConnTimeoutDuration())
	defer cancel()

	if err := d.conn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	if d.migrations != nil && d.cfg.Migrates() {
		if err := Migrate(d.conn, d.migrations, d.logger); err != nil {
			return err
		}
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.logger.Info("closing database connection")
		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
		}
	})

	d.logger.Info("database connection established")
	return nil
}
