package lease

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type memory struct {
	leases *cache.Cache
}

// NewMemory creates a process-local Locker backed by an expiring cache.
func NewMemory() Locker {
	return &memory{
		leases: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (m *memory) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := m.leases.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memory) Release(ctx context.Context, key string) error {
	m.leases.Delete(key)
	return nil
}
