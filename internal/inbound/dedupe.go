package inbound

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers message keys for a window so redelivered messages are applied once.
type Deduper interface {
	// FirstSeen marks key and reports whether it was unmarked before.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget removes key so the next delivery is treated as new.
	Forget(ctx context.Context, key string) error
}

const dedupePrefix = "consent:inbound:v1:"

// RedisClient is the subset of redis.Cmdable used by RedisDeduper.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper implements Deduper with SET NX and a TTL.
type RedisDeduper struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisDeduper wraps an existing client.
func NewRedisDeduper(client RedisClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// DialRedis connects to addr and pings it before returning.
func DialRedis(ctx context.Context, addr, password string, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if logger != nil {
		logger.Info("redis connected", zap.String("addr", addr))
	}
	return client, nil
}

// FirstSeen implements Deduper.
func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupePrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}

// Forget implements Deduper.
func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, dedupePrefix+key).Err(); err != nil {
		return fmt.Errorf("dedupe del: %w", err)
	}
	return nil
}
