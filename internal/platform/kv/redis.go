package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// incrWindowScript increments a counter and starts its window on first use.
// A counter found without a TTL (a crash between INCR and PEXPIRE in an older
// writer) is given one too, so no key can outlive its window forever.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisClient builds a client from the configured URL.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying connection for components that need
// richer primitives than Store offers (the job queue's scripts).
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// Get returns the value at key, or ErrMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return b, nil
}

// Set writes value at key with an optional ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Delete removes keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// DeletePattern collects every key matching pattern with SCAN, then unlinks
// them scanBatch at a time. Deleting while scanning can make the cursor skip
// keys.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var matched []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		matched = append(matched, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, unavailable("scan", err)
	}

	deleted := 0
	for start := 0; start < len(matched); start += scanBatch {
		end := min(start+scanBatch, len(matched))
		n, err := s.client.Unlink(ctx, matched[start:end]...).Result()
		if err != nil {
			return deleted, unavailable("unlink", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// IncrWindow increments key and starts a window of the given length on first use.
func (s *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	n, err := incrWindowScript.Run(ctx, s.client, []string{key}, ms).Int64()
	if err != nil {
		return 0, unavailable("incr", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
