package cgisession

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Skipping Redis test: %v (is redis running on %s?)", err, addr)
	}

	return NewRedisStoreWithConfig(client, RedisConfig{
		Key:     "cgisession:test:" + t.Name(),
		LockTTL: 5 * time.Second,
	})
}

func TestRedisStore(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, Sessions{"a": {"visits": int64(3)}, "b": {"visits": int64(1)}}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if got["a"].Int(VisitsKey) != 3 || got["b"].Int(VisitsKey) != 1 {
		t.Errorf("unexpected sessions: %v", got)
	}

	if err := store.Save(ctx, Sessions{"b": {"visits": int64(2)}}); err != nil {
		t.Fatalf("failed to rewrite: %v", err)
	}
	got, _ = store.Load(ctx)
	if _, ok := got["a"]; ok || got["b"].Int(VisitsKey) != 2 {
		t.Errorf("expected full rewrite, got %v", got)
	}

	if err := store.Save(ctx, Sessions{}); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
}

func TestRedisStore_Lock(t *testing.T) {
	store := newTestRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	unlock, err := store.Lock(ctx)
	if err != nil {
		t.Fatalf("failed to lock: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := store.Lock(short); err == nil {
		t.Error("second Lock must wait while the lease is held")
	}

	if err := unlock(); err != nil {
		t.Fatalf("failed to unlock: %v", err)
	}
	unlock2, err := store.Lock(ctx)
	if err != nil {
		t.Fatalf("failed to relock: %v", err)
	}
	if err := unlock2(); err != nil {
		t.Fatalf("failed to unlock: %v", err)
	}
}
