package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yrcho/time-sale/internal/port"
)

const acquireRetryInterval = 50 * time.Millisecond

// releaseScript deletes the lock only when the stored token still matches, so
// a holder whose lease expired cannot delete the lock of a later holder.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLockService grants lease-bound locks via SET NX PX. The lease is the
// key's TTL: a crashed holder loses the lock when the TTL fires.
type RedisLockService struct {
	client *redis.Client
}

func NewRedisLockService(client *redis.Client) *RedisLockService {
	return &RedisLockService{client: client}
}

func (s *RedisLockService) TryAcquire(ctx context.Context, key string, wait, lease time.Duration) (port.Lock, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := s.client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &redisLock{client: s.client, key: key, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, port.ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
