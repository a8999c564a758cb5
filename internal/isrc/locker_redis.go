package isrc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisLocker serializes issuance across processes with a SETNX lease.
type RedisLocker struct {
	client       goredis.UniversalClient
	pollInterval time.Duration
}

func NewRedisLocker(client goredis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, pollInterval: 50 * time.Millisecond}
}

// releaseScript deletes the key only when the token still matches, so an
// expired lease cannot release a lock another process now holds.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := "isrc:lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire issuance lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
	}
	return release, nil
}
