package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Redis is a Locker shared by every daemon instance using the same Redis.
type Redis struct {
	rdb       *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedis creates a Redis locker. Keys are stored under keyPrefix.
func NewRedis(rdb *redis.Client, keyPrefix string, logger *zap.Logger) *Redis {
	if keyPrefix == "" {
		keyPrefix = "scrutin:lock:"
	}
	return &Redis{rdb: rdb, keyPrefix: keyPrefix, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lockKey := r.keyPrefix + key
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	r.logger.Debug("acquired lock", zap.String("key", lockKey))
	return &redisLease{locker: r, key: lockKey, token: token}, nil
}

type redisLease struct {
	locker *Redis
	key    string
	token  string
}

func (rl *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, rl.locker.rdb, []string{rl.key}, rl.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", rl.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}

	rl.locker.logger.Debug("released lock", zap.String("key", rl.key))
	return nil
}
