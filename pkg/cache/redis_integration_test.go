//go:build integration

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
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

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_RoundTrip(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, testRedisConfig(time.Hour), zerolog.Nop())
	ctx := context.Background()
	key := testKey("integration.png")

	if _, err := store.Get(ctx, key); err != ErrCacheMiss {
		t.Fatalf("Get before Put = %v, want ErrCacheMiss", err)
	}
	if err := store.Put(ctx, key, []byte("payload"), "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Data) != "payload" || entry.ContentType != "image/jpeg" {
		t.Errorf("entry = %q/%q, want payload/image/jpeg", entry.Data, entry.ContentType)
	}
}

func TestRedisStore_Integration_ConcurrentWriters(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, testRedisConfig(0), zerolog.Nop())
	ctx := context.Background()
	key := testKey("contended.png")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Put(ctx, key, []byte("same bytes"), "image/png"); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}()
	}
	wg.Wait()

	entry, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Data) != "same bytes" {
		t.Errorf("Data = %q, want %q", entry.Data, "same bytes")
	}
}
