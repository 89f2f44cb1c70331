// Package cache is a best-effort cache-aside layer over the shared key-value
// store. Reads that fail are misses and writes that fail are logged; callers
// always fall back to the durable store, so nothing here is authoritative.
// Writers must invalidate the affected keys right after a durable mutation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
)

// TTLs are the per-entity lifetimes. Any positive value is correct; they only
// trade freshness against load.
type TTLs struct {
	Customer     time.Duration
	Stats        time.Duration
	Conversation time.Duration
	Knowledge    time.Duration
}

// DefaultTTLs are the production lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Customer:     300 * time.Second,
		Stats:        60 * time.Second,
		Conversation: 1800 * time.Second,
		Knowledge:    300 * time.Second,
	}
}

// TTLsFromConfig converts the configured second counts.
func TTLsFromConfig(cfg config.CacheConfig) TTLs {
	return TTLs{
		Customer:     time.Duration(cfg.CustomerTTLSec) * time.Second,
		Stats:        time.Duration(cfg.StatsTTLSec) * time.Second,
		Conversation: time.Duration(cfg.ConversationTTLSec) * time.Second,
		Knowledge:    time.Duration(cfg.KnowledgeTTLSec) * time.Second,
	}
}

// CustomerKey is the cache key of a customer profile.
func CustomerKey(customerID string) string { return "customer:" + customerID }

// StatsKey is the cache key of a customer's dashboard counters.
func StatsKey(customerID string) string { return "stats:" + customerID }

// ConversationKey is the cache key of an active chat session.
func ConversationKey(sessionID string) string { return "conversation:" + sessionID }

// KnowledgeKey is the cache key of a customer's knowledge file listing.
func KnowledgeKey(customerID string) string { return "knowledge:" + customerID }

// Cache wraps a kv.Store with swallow-and-log semantics.
type Cache struct {
	store  kv.Store
	ttls   TTLs
	logger *slog.Logger
}

// New creates a Cache.
func New(store kv.Store, ttls TTLs, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		ttls:   ttls,
		logger: logger.With("component", "cache"),
	}
}

// TTLs returns the configured lifetimes.
func (c *Cache) TTLs() TTLs {
	return c.ttls
}

// Get returns the raw value at key. The boolean is false on a miss, including
// when the store could not be reached.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrMiss) {
			c.logger.WarnContext(ctx, "cache read failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

// Set stores value at key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed", "keys", keys, "error", err)
	}
}

// InvalidatePattern removes every key matching glob.
func (c *Cache) InvalidatePattern(ctx context.Context, glob string) {
	n, err := c.store.DeletePattern(ctx, glob)
	if err != nil {
		c.logger.WarnContext(ctx, "cache pattern invalidation failed", "pattern", glob, "error", err)
		return
	}
	c.logger.DebugContext(ctx, "cache pattern invalidated", "pattern", glob, "deleted", n)
}

// InvalidateCustomer drops every customer-scoped entry: profile, stats and knowledge listings.
func (c *Cache) InvalidateCustomer(ctx context.Context, customerID string) {
	c.InvalidatePattern(ctx, CustomerKey(customerID)+"*")
	c.InvalidatePattern(ctx, StatsKey(customerID)+"*")
	c.InvalidatePattern(ctx, KnowledgeKey(customerID)+"*")
}

// GetJSON decodes the value at key into a T. Undecodable entries are dropped and reported as misses.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	b, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		c.logger.WarnContext(ctx, "cache entry undecodable, dropping", "key", key, "error", err)
		c.Invalidate(ctx, key)
		var zero T
		return zero, false
	}
	return v, true
}

// SetJSON encodes v and stores it at key for ttl.
func SetJSON(ctx context.Context, c *Cache, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache entry unencodable", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, b, ttl)
}

// Fetch is the cache-aside read path: return the cached T when present,
// otherwise load it from the source of truth and populate the cache.
// Errors come only from load.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := GetJSON[T](ctx, c, key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	SetJSON(ctx, c, key, v, ttl)
	return v, nil
}
