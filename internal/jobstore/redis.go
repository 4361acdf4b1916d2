package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisBackend struct {
	rdb goredis.UniversalClient
}

// NewRedisStore returns a store backed by Redis.
func NewRedisStore(rdb goredis.UniversalClient, opts Options) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("jobstore: redis client required")
	}
	return newStore(&redisBackend{rdb: rdb}, opts), nil
}

func (r *redisBackend) get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", errMissing
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *redisBackend) set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *redisBackend) mget(ctx context.Context, keys ...string) ([]string, []bool, error) {
	raw, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis mget: %w", err)
	}
	values := make([]string, len(keys))
	found := make([]bool, len(keys))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			values[i] = s
			found[i] = true
		}
	}
	return values, found, nil
}

func (r *redisBackend) del(ctx context.Context, keys ...string) (int64, error) {
	n, err := r.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return n, nil
}

func (r *redisBackend) persist(ctx context.Context, key string) error {
	ok, err := r.rdb.Persist(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis persist %s: %w", key, err)
	}
	if !ok {
		// Either missing or already without expiry.
		exists, err := r.rdb.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis exists %s: %w", key, err)
		}
		if exists == 0 {
			return errMissing
		}
	}
	return nil
}

func (r *redisBackend) expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

func (r *redisBackend) hsetnx(ctx context.Context, key, field, value string) (bool, error) {
	ok, err := r.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, fmt.Errorf("redis hsetnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *redisBackend) hgetall(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	return m, nil
}

func (r *redisBackend) hexists(ctx context.Context, key, field string) (bool, error) {
	ok, err := r.rdb.HExists(ctx, key, field).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists %s: %w", key, err)
	}
	return ok, nil
}

func (r *redisBackend) hdel(ctx context.Context, key, field string) (int64, error) {
	n, err := r.rdb.HDel(ctx, key, field).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return n, nil
}
