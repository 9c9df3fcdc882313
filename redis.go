package cgisession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the mapping in a hash, one field per session token.
// Save replaces the hash inside MULTI/EXEC.
type RedisStore struct {
	client  redis.UniversalClient
	key     string
	lockTTL time.Duration
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	// Key is the hash holding the mapping. Defaults to "cgisession:sessions".
	Key string
	// LockTTL bounds how long a crashed holder can keep the lock. Defaults to 30s.
	LockTTL time.Duration
}

// NewRedisStore creates a Redis-backed store with default configuration.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return NewRedisStoreWithConfig(client, RedisConfig{})
}

func NewRedisStoreWithConfig(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Key == "" {
		cfg.Key = "cgisession:sessions"
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &RedisStore{client: client, key: cfg.Key, lockTTL: cfg.LockTTL}
}

func (s *RedisStore) Load(ctx context.Context) (Sessions, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions from redis: %w", err)
	}

	out := make(Sessions, len(fields))
	for id, raw := range fields {
		v, err := decodeValues([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, sessions Sessions) error {
	fields := make(map[string]any, len(sessions))
	for id, v := range sessions {
		b, err := encodeValues(v)
		if err != nil {
			return err
		}
		fields[id] = string(b)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save sessions to redis: %w", err)
	}
	return nil
}

// releaseLock deletes the lock key only if it still carries our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes a SET NX lease on "<key>:lock", polling until it is free or ctx is done.
func (s *RedisStore) Lock(ctx context.Context) (func() error, error) {
	lockKey := s.key + ":lock"
	owner := make([]byte, 16)
	if _, err := rand.Read(owner); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(owner)

	ticker := time.NewTicker(defaultLockRetry)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrLockBusy, ctx.Err())
			}
			return nil, fmt.Errorf("failed to lock redis key: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockBusy, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() error {
		err := releaseLock.Run(context.Background(), s.client, []string{lockKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to unlock redis key: %w", err)
		}
		return nil
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
