package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds this process's token,
// so a lease that expired and was taken by another worker is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb    *goredis.Client
	prefix string
	token  string
	logger *slog.Logger
}

// NewRedis creates a Locker shared by every process connected to the same
// Redis instance.
func NewRedis(cfg *Config, logger *slog.Logger) (Locker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.Password,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLocker{
		rdb:    rdb,
		prefix: cfg.Prefix,
		token:  uuid.NewString(),
		logger: logger.With("system", "lease", "backend", BackendRedis),
	}, nil
}

func (r *redisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, r.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return ok, nil
}

func (r *redisLocker) Release(ctx context.Context, key string) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{r.prefix + key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	if n == 0 {
		r.logger.Warn("lease already expired or taken", "key", key)
	}
	return nil
}
