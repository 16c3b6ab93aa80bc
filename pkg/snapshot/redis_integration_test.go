//go:build integration

package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T, cmd ...string) (*redis.Client, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		Cmd:          cmd,
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisBackend_Integration_StoreRoundTrip(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	backend := NewRedisBackend(client)
	store := NewStore(backend)

	if err := backend.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if _, err := store.Get(ctx, "/a"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss on empty redis, got %v", err)
	}

	for _, k := range []string{"/a", "/b", "/a"} {
		if err := store.Upsert(ctx, snap(k)); err != nil {
			t.Fatalf("Upsert %s: %v", k, err)
		}
	}

	if got := strings.Join(keys(t, store), ","); got != "/b,/a" {
		t.Errorf("keys = %s, want /b,/a", got)
	}

	// A second store on the same scope sees the same blob.
	other := NewStore(NewRedisBackend(client))
	if _, err := other.Get(ctx, "/b"); err != nil {
		t.Errorf("shared scope Get failed: %v", err)
	}
}

func TestRedisBackend_Integration_MaxBlobBytesEvicts(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(NewRedisBackend(client, WithMaxBlobBytes(3400)))
	content := strings.Repeat("x", 1000)

	for _, k := range []string{"/1", "/2", "/3", "/4"} {
		if err := store.Upsert(ctx, &Snapshot{CacheKey: k, Content: content}); err != nil {
			t.Fatalf("Upsert %s: %v", k, err)
		}
	}

	if got := strings.Join(keys(t, store), ","); got != "/2,/3,/4" {
		t.Errorf("keys = %s, want /2,/3,/4", got)
	}
}

func TestRedisBackend_Integration_MaxmemoryIsQuota(t *testing.T) {
	client, cleanup := setupRedis(t, "redis-server", "--maxmemory", "1mb", "--maxmemory-policy", "noeviction")
	defer cleanup()

	ctx := context.Background()
	backend := NewRedisBackend(client)

	err := backend.Save(ctx, "big", []byte(strings.Repeat("x", 4<<20)))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded from OOM, got %v", err)
	}
}
