package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/notify-gov/admin-portal/cache"
)

func newTestClient(t *testing.T, options ...cache.ClientOption) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(rdb, true, options...), mr
}

func TestClient_GetSet(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "service-abc", []byte(`{"name":"x"}`), time.Minute))
		value, err := client.Get(ctx, "service-abc")
		require.NoError(t, err)
		require.Equal(t, []byte(`{"name":"x"}`), value)
	})

	t.Run("absent key returns nil", func(t *testing.T) {
		value, err := client.Get(ctx, "no-such-key")
		require.NoError(t, err)
		require.Nil(t, value)
	})

	t.Run("ttl is applied", func(t *testing.T) {
		_, mr := newTestClient(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		c := cache.New(rdb, true)
		require.NoError(t, c.Set(ctx, "expiring", []byte("v"), time.Minute))
		mr.FastForward(2 * time.Minute)
		value, err := c.Get(ctx, "expiring")
		require.NoError(t, err)
		require.Nil(t, value)
	})
}

func TestClient_Disabled(t *testing.T) {
	ctx := context.Background()
	client := cache.New(nil, false)

	require.False(t, client.Enabled())
	require.NoError(t, client.Set(ctx, "k", []byte("v"), time.Minute))

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, value)

	deleted, err := client.DeleteByPattern(ctx, "service-*")
	require.NoError(t, err)
	require.Zero(t, deleted)

	require.False(t, client.ExceededRateLimit(ctx, "k", 1, time.Minute))
}

func TestClient_Incr(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	n, err := client.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = client.Incr(ctx, "counter")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestClient_Delete(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, client.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, client.Delete(ctx, "a", "b"))
	require.False(t, mr.Exists("a"))
	require.False(t, mr.Exists("b"))
}

func TestClient_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	seed := []string{
		"service-s1",
		"service-s1-templates",
		"service-s1-template-t1-version-1",
		"service-s2",
	}
	for _, key := range seed {
		require.NoError(t, client.Set(ctx, key, []byte("x"), 0))
	}

	deleted, err := client.DeleteByPattern(ctx, "service-s1-template-*")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	require.True(t, mr.Exists("service-s1"))
	require.True(t, mr.Exists("service-s2"))
	require.False(t, mr.Exists("service-s1-templates"))
	require.False(t, mr.Exists("service-s1-template-t1-version-1"))
}

func TestClient_ExceededRateLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	clock := func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	client, _ := newTestClient(t, cache.WithNowTime(clock))

	const limit = 5
	interval := 10 * time.Second

	t.Run("limit+1 calls within the interval exceeds", func(t *testing.T) {
		var exceeded bool
		for i := 0; i < limit+1; i++ {
			exceeded = client.ExceededRateLimit(ctx, "verify-code", limit, interval)
		}
		require.True(t, exceeded)
	})

	t.Run("window slides after a pause", func(t *testing.T) {
		now = now.Add(interval + time.Second)
		require.False(t, client.ExceededRateLimit(ctx, "verify-code", limit, interval))
	})

	t.Run("hit exactly at the window edge still counts", func(t *testing.T) {
		current := time.Unix(1700001000, 0)
		edge, _ := newTestClient(t, cache.WithNowTime(func() time.Time { return current }))

		require.False(t, edge.ExceededRateLimit(ctx, "edge", 1, interval))

		// only hits strictly older than now-interval fall out of the window
		current = current.Add(interval)
		require.True(t, edge.ExceededRateLimit(ctx, "edge", 1, interval))
	})
}
