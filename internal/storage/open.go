// Package storage opens the snapshot backend selected by configuration.
package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/redis/go-redis/v9"
)

// Backend kinds.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Config selects and sizes a snapshot backend.
type Config struct {
	Kind       string
	RedisAddr  string
	SQLitePath string

	// Quota bounds the blob in bytes (memory and redis) or pages (sqlite).
	// Zero means unbounded except for the memory backend, which defaults
	// to 5 MiB.
	Quota int
}

// FromEnv reads FREEZE_BACKEND, REDIS_URL, SQLITE_PATH and FREEZE_QUOTA.
func FromEnv() (Config, error) {
	cfg := Config{
		Kind:       getEnv("FREEZE_BACKEND", KindMemory),
		RedisAddr:  getEnv("REDIS_URL", "localhost:6379"),
		SQLitePath: getEnv("SQLITE_PATH", "freeze.db"),
	}
	if raw := os.Getenv("FREEZE_QUOTA"); raw != "" {
		quota, err := strconv.Atoi(raw)
		if err != nil || quota < 0 {
			return cfg, fmt.Errorf("invalid FREEZE_QUOTA %q", raw)
		}
		cfg.Quota = quota
	}
	return cfg, nil
}

// Open connects the configured backend. The returned close function
// releases its connections.
func Open(ctx context.Context, cfg Config) (snapshot.Backend, func() error, error) {
	switch cfg.Kind {
	case KindMemory, "":
		quota := cfg.Quota
		if quota == 0 {
			quota = 5 << 20
		}
		return snapshot.NewMemoryBackend(quota), func() error { return nil }, nil

	case KindSQLite:
		var opts []snapshot.SQLiteOption
		if cfg.Quota > 0 {
			opts = append(opts, snapshot.WithMaxPageCount(cfg.Quota))
		}
		backend, err := snapshot.OpenSQLite(cfg.SQLitePath, opts...)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil

	case KindRedis:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		var opts []snapshot.RedisOption
		if cfg.Quota > 0 {
			opts = append(opts, snapshot.WithMaxBlobBytes(cfg.Quota))
		}
		return snapshot.NewRedisBackend(redisClient, opts...), redisClient.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
