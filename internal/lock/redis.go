package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore runs the lock on SET NX PX, so every process sharing the
// Redis instance sees the same winner.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+key, time.Now().UnixMilli(), ttl).Result()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}
