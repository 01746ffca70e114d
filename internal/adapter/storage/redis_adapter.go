package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/retry"
)

const lockKeyPrefix = "booking:inflight:"

// releaseLockScript deletes the key only while it still holds our token, so
// a claim that expired and was retaken by another request is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLock marks a booking key as in flight. It only narrows the window for
// duplicate reservations; ledger uniqueness remains the real guarantee.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (r *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisLock) Release(ctx context.Context, key, token string) error {
	return releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, token).Err()
}

// OpenRedis connects and pings with backoff.
func OpenRedis(ctx context.Context, opts *redis.Options, policy retry.Policy, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(opts)
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn("redis not ready",
			zap.String("addr", opts.Addr),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: connect redis %s: %w", domain.ErrTransientDependency, opts.Addr, err)
	}
	logger.Info("connected to redis", zap.String("addr", opts.Addr))
	return client, nil
}
