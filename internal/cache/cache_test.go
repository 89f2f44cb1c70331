package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(kv.NewRedisStore(client), DefaultTTLs(), logger), mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "customer:c1", CustomerKey("c1"))
	assert.Equal(t, "stats:c1", StatsKey("c1"))
	assert.Equal(t, "conversation:s1", ConversationKey("s1"))
	assert.Equal(t, "knowledge:c1", KnowledgeKey("c1"))
}

func TestTTLsFromConfig(t *testing.T) {
	ttls := TTLsFromConfig(config.CacheConfig{
		CustomerTTLSec:     300,
		StatsTTLSec:        60,
		ConversationTTLSec: 1800,
		KnowledgeTTLSec:    300,
	})
	assert.Equal(t, DefaultTTLs(), ttls)
}

func TestSetGetJSON(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok := GetJSON[customer](ctx, c, CustomerKey("c1"))
	assert.False(t, ok)

	SetJSON(ctx, c, CustomerKey("c1"), customer{ID: "c1", Name: "Acme"}, c.TTLs().Customer)

	got, ok := GetJSON[customer](ctx, c, CustomerKey("c1"))
	require.True(t, ok)
	assert.Equal(t, customer{ID: "c1", Name: "Acme"}, got)
	assert.Equal(t, 300*time.Second, mr.TTL(CustomerKey("c1")))
}

func TestInvalidateThenGetIsMiss(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	SetJSON(ctx, c, StatsKey("c1"), map[string]int{"files": 3}, time.Minute)
	c.Invalidate(ctx, StatsKey("c1"))

	_, ok := c.Get(ctx, StatsKey("c1"))
	assert.False(t, ok)
}

func TestInvalidateCustomer(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for _, k := range []string{"customer:c1", "stats:c1", "knowledge:c1", "knowledge:c1:page2", "stats:c2", "conversation:s1"} {
		require.NoError(t, mr.Set(k, "{}"))
	}

	c.InvalidateCustomer(ctx, "c1")

	assert.False(t, mr.Exists("customer:c1"))
	assert.False(t, mr.Exists("stats:c1"))
	assert.False(t, mr.Exists("knowledge:c1"))
	assert.False(t, mr.Exists("knowledge:c1:page2"))
	assert.True(t, mr.Exists("stats:c2"))
	assert.True(t, mr.Exists("conversation:s1"))
}

func TestUndecodableEntryIsDropped(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(CustomerKey("c1"), "not json"))

	_, ok := GetJSON[customer](context.Background(), c, CustomerKey("c1"))
	assert.False(t, ok)
	assert.False(t, mr.Exists(CustomerKey("c1")))
}

func TestFetch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	loads := 0
	load := func(context.Context) (customer, error) {
		loads++
		return customer{ID: "c1", Name: "Acme"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Fetch(ctx, c, CustomerKey("c1"), time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)
	}
	assert.Equal(t, 1, loads)

	c.Invalidate(ctx, CustomerKey("c1"))
	_, err := Fetch(ctx, c, CustomerKey("c1"), time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)

	boom := errors.New("db down")
	_, err = Fetch(ctx, c, CustomerKey("c9"), time.Minute, func(context.Context) (customer, error) {
		return customer{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestStoreOutageFallsThrough(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	_, ok := c.Get(ctx, CustomerKey("c1"))
	assert.False(t, ok)
	c.Set(ctx, CustomerKey("c1"), []byte("{}"), time.Minute)
	c.Invalidate(ctx, CustomerKey("c1"))
	c.InvalidateCustomer(ctx, "c1")

	got, err := Fetch(ctx, c, CustomerKey("c1"), time.Minute, func(context.Context) (customer, error) {
		return customer{ID: "c1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
}
