//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a store bound to it.
func setupRedis(t *testing.T) *RedisStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: endpoint}))
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
		container.Terminate(context.Background())
	})
	return store
}

func TestRedisStore_Integration(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(missing) error = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, "k", []byte("value"), time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "value" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	time.Sleep(1500 * time.Millisecond)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after TTL error = %v, want ErrCacheMiss", err)
	}

	n, err := store.Incr(ctx, "html_cache_version")
	if err != nil || n != 1 {
		t.Errorf("Incr() = %d, %v, want 1", n, err)
	}
}

func TestManager_Integration_Redis(t *testing.T) {
	store := setupRedis(t)
	manager := NewManager(store, WithLocalCache(NewLocalCache(8, time.Minute)))
	ctx := context.Background()

	if err := manager.Save(ctx, "https://example.com/?cf_edge_cache_ver=0", testEntry()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// A second manager on the same store sees the entry, as another node would.
	other := NewManager(store)
	entry, layer, err := other.Lookup(ctx, "https://example.com/?cf_edge_cache_ver=0")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if layer != LayerStore || string(entry.Body) != "<p>hello</p>" {
		t.Errorf("Lookup() = %q from %s", entry.Body, layer)
	}
}
