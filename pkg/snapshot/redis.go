package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBackend persists blobs in Redis. All clients pointed at the same
// server and key share one storage scope.
type RedisBackend struct {
	redis    *redis.Client
	maxBytes int
}

// RedisOption customises a RedisBackend.
type RedisOption func(*RedisBackend)

// WithMaxBlobBytes rejects blobs larger than n bytes with ErrQuotaExceeded.
func WithMaxBlobBytes(n int) RedisOption {
	return func(b *RedisBackend) { b.maxBytes = n }
}

// NewRedisBackend creates a Redis backend.
func NewRedisBackend(redisClient *redis.Client, opts ...RedisOption) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	b := &RedisBackend{redis: redisClient}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load fetches the blob stored under key.
func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := b.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save stores the blob without expiry. Redis maxmemory refusals (OOM) map
// to ErrQuotaExceeded.
func (b *RedisBackend) Save(ctx context.Context, key string, blob []byte) error {
	if b.maxBytes > 0 && len(blob) > b.maxBytes {
		return fmt.Errorf("%w: blob %d bytes over %d", ErrQuotaExceeded, len(blob), b.maxBytes)
	}

	if err := b.redis.Set(ctx, key, blob, 0).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the key.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

func isOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}
