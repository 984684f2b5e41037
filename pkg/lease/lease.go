// Package lease provides expiring exclusivity locks keyed by string. A lease
// that is never released expires after its TTL, so a crashed holder cannot
// block other workers forever.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Locker acquires and releases expiring leases.
type Locker interface {
	// TryAcquire takes the lease for key when nobody holds it. It returns
	// false without error when the lease is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the lease for key. Releasing an unheld lease is a no-op.
	Release(ctx context.Context, key string) error
}

// New builds the Locker selected by cfg.Backend.
func New(cfg *Config, logger *slog.Logger) (Locker, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown lease backend: %s", cfg.Backend)
	}
}
