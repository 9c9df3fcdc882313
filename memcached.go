package cgisession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore implements the Store interface using Memcached. The whole
// mapping lives in a single item.
type MemcachedStore struct {
	client   *memcache.Client
	key      string
	ttl      time.Duration
	lockTTL  time.Duration
	maxBytes int
}

// MemcachedConfig holds configuration for the Memcached store.
type MemcachedConfig struct {
	Servers []string
	// Key is the item holding the mapping. Defaults to "cgisession:sessions".
	Key string
	// TTL expires the whole mapping. 0 keeps it until evicted.
	TTL time.Duration
	// LockTTL bounds how long a crashed holder can keep the lock. Defaults to 30s.
	LockTTL         time.Duration
	MaxSessionBytes int
	Timeout         time.Duration // Timeout for Memcached operations. Defaults to 0 (no timeout) if not set.
}

// NewMemcachedStore creates a new MemcachedStore.
func NewMemcachedStore(ttl time.Duration, servers ...string) *MemcachedStore {
	return NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers: servers,
		TTL:     ttl,
		// Security: Set a default timeout to prevent indefinite hanging if Memcached is down.
		Timeout: 1 * time.Second,
	})
}

// NewMemcachedStoreWithConfig creates a new MemcachedStore with custom configuration.
func NewMemcachedStoreWithConfig(cfg MemcachedConfig) *MemcachedStore {
	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout

	if cfg.Key == "" {
		cfg.Key = "cgisession:sessions"
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 30 * time.Second
	}

	return &MemcachedStore{
		client:   client,
		key:      cfg.Key,
		ttl:      cfg.TTL,
		lockTTL:  cfg.LockTTL,
		maxBytes: cfg.MaxSessionBytes,
	}
}

// Load retrieves the mapping from Memcached. A cache miss is an empty store.
func (s *MemcachedStore) Load(ctx context.Context) (Sessions, error) {
	item, err := s.client.Get(s.key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return Sessions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from memcached: %w", err)
	}

	if s.maxBytes > 0 && len(item.Value) > s.maxBytes {
		return nil, ErrStoreTooLarge
	}

	return decodeSessions(item.Value)
}

// Save stores the mapping in Memcached.
func (s *MemcachedStore) Save(ctx context.Context, sessions Sessions) error {
	buf, err := encodeSessions(sessions)
	if err != nil {
		return err
	}
	defer PutBuffer(buf)

	if s.maxBytes > 0 && buf.Len() > s.maxBytes {
		return ErrStoreTooLarge
	}

	var expiration int32
	if s.ttl > 0 {
		expiration = calculateMemcachedExpiration(time.Now(), s.ttl)
	}

	err = s.client.Set(&memcache.Item{
		Key:        s.key,
		Value:      buf.Bytes(),
		Expiration: expiration,
	})
	if err != nil {
		return fmt.Errorf("failed to save to memcached: %w", err)
	}
	return nil
}

// Lock takes a lease on "<key>:lock" with Add, which only succeeds when the
// item is absent. It polls until the lease is free or ctx is done.
func (s *MemcachedStore) Lock(ctx context.Context) (func() error, error) {
	lockKey := s.key + ":lock"
	owner := make([]byte, 16)
	if _, err := rand.Read(owner); err != nil {
		return nil, err
	}
	value := []byte(hex.EncodeToString(owner))

	ticker := time.NewTicker(defaultLockRetry)
	defer ticker.Stop()

	for {
		err := s.client.Add(&memcache.Item{
			Key:        lockKey,
			Value:      value,
			Expiration: calculateMemcachedExpiration(time.Now(), s.lockTTL),
		})
		if err == nil {
			break
		}
		if !errors.Is(err, memcache.ErrNotStored) {
			return nil, fmt.Errorf("failed to lock memcached key: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockBusy, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	var unlockErr error
	return func() error {
		once.Do(func() {
			item, err := s.client.Get(lockKey)
			if errors.Is(err, memcache.ErrCacheMiss) {
				return
			}
			if err != nil {
				unlockErr = fmt.Errorf("failed to read memcached lock: %w", err)
				return
			}
			// The lease expired and someone else holds it now.
			if string(item.Value) != string(value) {
				return
			}
			if err := s.client.Delete(lockKey); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
				unlockErr = fmt.Errorf("failed to unlock memcached key: %w", err)
			}
		})
		return unlockErr
	}, nil
}

// Close is a no-op for Memcached client.
func (s *MemcachedStore) Close() error {
	return nil
}

// calculateMemcachedExpiration converts ttl into a Memcached expiration.
// Memcached treats values > 30 days (60*60*24*30 seconds) as absolute Unix
// timestamps and smaller values as a delta from now.
func calculateMemcachedExpiration(now time.Time, ttl time.Duration) int32 {
	const maxDelta = 30 * 24 * time.Hour

	if ttl <= 0 {
		return 0
	}
	if ttl > maxDelta {
		return int32(now.Add(ttl).Unix())
	}
	return int32(ttl / time.Second)
}
