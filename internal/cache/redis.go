package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matching/internal/config"
)

const defaultTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
	ttl    time.Duration
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Addr,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{Client: redis.NewClient(opts), ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) TTL() time.Duration { return c.ttl }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForLikeCount generates Redis key for a user's "liked you" count
func KeyForLikeCount(userID string) string {
	return fmt.Sprintf("likes:count:%s", userID)
}

// KeyForUnread generates Redis key for a user's total unread badge
func KeyForUnread(userID string) string {
	return fmt.Sprintf("unread:count:%s", userID)
}

// KeyForBlock is shared by both directions of a pair; callers pass the sorted pair.
func KeyForBlock(lo, hi string) string {
	return fmt.Sprintf("blocked:%s:%s", lo, hi)
}

// SetCount stores a counter and refreshes its TTL.
func (c *RedisCache) SetCount(ctx context.Context, key string, count int64) error {
	return c.Client.Set(ctx, key, count, c.ttl).Err()
}

// FillCount stores count under its own ttl unless the key is already set.
func (c *RedisCache) FillCount(ctx context.Context, key string, count int64, ttl time.Duration) error {
	return c.Client.SetNX(ctx, key, count, ttl).Err()
}

// GetCount reads a counter and refreshes its TTL. ok is false on a cache miss.
func (c *RedisCache) GetCount(ctx context.Context, key string) (count int64, ok bool, err error) {
	n, ok, err := c.PeekCount(ctx, key)
	if err != nil || !ok {
		return n, ok, err
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, c.ttl).Err()
	return n, true, nil
}

// PeekCount reads a counter and leaves its TTL alone.
func (c *RedisCache) PeekCount(ctx context.Context, key string) (count int64, ok bool, err error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// corrupt value, treat as a miss so the caller repopulates
		return 0, false, nil
	}
	return n, true, nil
}

// SetFlag caches a boolean answer.
func (c *RedisCache) SetFlag(ctx context.Context, key string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return c.Client.Set(ctx, key, val, c.ttl).Err()
}

// GetFlag reads a cached boolean. ok is false on a cache miss.
func (c *RedisCache) GetFlag(ctx context.Context, key string) (v bool, ok bool, err error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	} else if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}
