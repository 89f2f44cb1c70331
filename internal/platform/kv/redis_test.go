package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestGetSetDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "customer:c1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "customer:c1", []byte(`{"id":"c1"}`), time.Minute))
	got, err := s.Get(ctx, "customer:c1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"c1"}`, string(got))
	assert.Equal(t, time.Minute, mr.TTL("customer:c1"))

	mr.FastForward(time.Minute + time.Second)
	_, err = s.Get(ctx, "customer:c1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "stats:c1", []byte("1"), 0))
	require.NoError(t, s.Delete(ctx, "stats:c1", "missing"))
	assert.False(t, mr.Exists("stats:c1"))
	assert.NoError(t, s.Delete(ctx))
}

func TestDeletePattern(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 450; i++ {
		require.NoError(t, mr.Set("knowledge:c1:"+time.Duration(i).String(), "x"))
	}
	require.NoError(t, mr.Set("knowledge:c2", "x"))

	n, err := s.DeletePattern(ctx, "knowledge:c1*")
	require.NoError(t, err)
	assert.Equal(t, 450, n)
	assert.Equal(t, []string{"knowledge:c2"}, mr.Keys(), "keys spanning several scan batches are all gone")

	n, err = s.DeletePattern(ctx, "knowledge:c1*")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIncrWindow(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	n, err := s.IncrWindow(ctx, "ratelimit:ip:1.2.3.4", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 10*time.Second, mr.TTL("ratelimit:ip:1.2.3.4"))

	mr.FastForward(4 * time.Second)
	n, err = s.IncrWindow(ctx, "ratelimit:ip:1.2.3.4", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	// the window is not extended by later increments
	assert.Equal(t, 6*time.Second, mr.TTL("ratelimit:ip:1.2.3.4"))

	mr.FastForward(7 * time.Second)
	n, err = s.IncrWindow(ctx, "ratelimit:ip:1.2.3.4", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIncrWindowRepairsCounterWithoutTTL(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("ratelimit:customer:c1", "7"))

	n, err := s.IncrWindow(context.Background(), "ratelimit:customer:c1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:customer:c1"))
}

func TestUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Set(ctx, "k", []byte("v"), time.Second), ErrUnavailable)
	_, err = s.IncrWindow(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient(config.RedisConfig{URL: "redis://localhost:6390/3", PoolSize: 7})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "localhost:6390", c.Options().Addr)
	assert.Equal(t, 3, c.Options().DB)
	assert.Equal(t, 7, c.Options().PoolSize)

	_, err = NewRedisClient(config.RedisConfig{URL: "::not a url"})
	assert.Error(t, err)
}
