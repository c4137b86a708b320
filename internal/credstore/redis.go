package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session state under a single key in Redis, letting
// several processes share one ERP session.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// Compile-time check to ensure RedisStore implements Backend
var _ Backend = (*RedisStore)(nil)

// NewRedisStore connects to the Redis instance described by redisURL
// (e.g. redis://localhost:6379/0). No I/O is performed until the first Read or Write.
func NewRedisStore(redisURL, key string) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url cannot be empty")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return NewRedisStoreWithClient(redis.NewClient(opts), key)
}

// NewRedisStoreWithClient creates a RedisStore on top of an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, key string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("missing redis client")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	return &RedisStore{
		client: client,
		key:    key,
	}, nil
}

// Read returns the stored state. Returns ErrNotFound if the key is missing.
func (r *RedisStore) Read(ctx context.Context) ([]byte, error) {
	state, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis key %s: %w", r.key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading redis key %s: %w", r.key, err)
	}
	return state, nil
}

// Write replaces the stored state. The key never expires; the session's
// lifetime is governed by the ERP API, not by storage.
func (r *RedisStore) Write(ctx context.Context, state []byte) error {
	if err := r.client.Set(ctx, r.key, state, 0).Err(); err != nil {
		return fmt.Errorf("writing redis key %s: %w", r.key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
