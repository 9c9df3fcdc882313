package cgisession

import (
	"context"
	"testing"
	"time"
)

func TestMemcachedStore(t *testing.T) {
	// Memcached is often not available in CI/local envs by default.
	server := "127.0.0.1:11211"
	store := NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers: []string{server},
		Key:     "cgisession:test:" + time.Now().Format("150405.000000"),
		TTL:     time.Minute,
		Timeout: time.Second,
	})
	ctx := context.Background()

	in := Sessions{"a": {"color": "blue", "visits": int64(1)}}
	if err := store.Save(ctx, in); err != nil {
		t.Skipf("Skipping Memcached test: %v (is memcached running on %s?)", err, server)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load from memcached: %v", err)
	}
	if got["a"]["color"] != "blue" || got["a"].Int(VisitsKey) != 1 {
		t.Errorf("unexpected sessions: %v", got)
	}

	unlock, err := store.Lock(ctx)
	if err != nil {
		t.Fatalf("failed to lock: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := store.Lock(short); err == nil {
		t.Error("second Lock must block while the lease is held")
	}

	if err := unlock(); err != nil {
		t.Fatalf("failed to unlock: %v", err)
	}
	unlock2, err := store.Lock(ctx)
	if err != nil {
		t.Fatalf("failed to relock: %v", err)
	}
	unlock2()
}

func TestMemcachedStore_Miss(t *testing.T) {
	server := "127.0.0.1:11211"
	store := NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers: []string{server},
		Key:     "cgisession:missing:" + time.Now().Format("150405.000000"),
		Timeout: time.Second,
	})
	got, err := store.Load(context.Background())
	if err != nil {
		t.Skipf("Skipping Memcached test: %v (is memcached running on %s?)", err, server)
	}
	if len(got) != 0 {
		t.Errorf("expected empty store on cache miss, got %v", got)
	}
}
