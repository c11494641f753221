package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(addr string, password string, db int) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCounterWithClient(client)
}

func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "ratelimit:"}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Incr bumps the counter and starts the window on the first hit.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	key = c.prefix + key

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return count, ttl, err
		}
		return count, ttl, nil
	}

	remaining, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return count, 0, err
	}
	if remaining < 0 {
		// Lost the expiry (crash between INCR and PEXPIRE); restart the window.
		if err := c.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return count, ttl, err
		}
		remaining = ttl
	}
	return count, remaining, nil
}
