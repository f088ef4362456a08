// Package cache wraps the shared Redis store used for request-scoped caching,
// login-flow state and rate limiting. When Redis is disabled by configuration
// every operation is a no-op so the portal degrades to pure read-through.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL applies to cached API reads unless the call site overrides it.
const DefaultTTL = 7 * 24 * time.Hour

// deleteByPatternScript deletes every key matching a glob in batches so an
// unbounded match-set never exceeds the Lua unpack stack limit.
var deleteByPatternScript = redis.NewScript(`
	local keys = redis.call('KEYS', ARGV[1])
	local deleted = 0
	for i = 1, #keys, 1000 do
		deleted = deleted + redis.call('DEL', unpack(keys, i, math.min(i + 999, #keys)))
	end
	return deleted
`)

// rateLimitScript implements a sliding window: record the current timestamp,
// drop entries older than the interval, refresh the expiry, return the window
// size. The whole sequence is atomic by virtue of running as one script.
var rateLimitScript = redis.NewScript(`
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[1])
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return redis.call('ZCARD', KEYS[1])
`)

type callOptions struct {
	raiseOnError bool
}

// Option modifies the behaviour of a single cache call.
type Option func(*callOptions)

// RaiseOnError makes the call return Redis failures instead of swallowing
// them. Login-flow state uses this; API read caching does not.
func RaiseOnError() Option {
	return func(o *callOptions) {
		o.raiseOnError = true
	}
}

// Client is the typed gateway over Redis. A nil-backed or disabled client is
// safe to call from anywhere.
type Client struct {
	rdb     *redis.Client
	enabled bool
	nowTime func() time.Time
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a gateway over an existing Redis connection. Passing
// enabled=false (or a nil connection) produces the no-op client.
func New(rdb *redis.Client, enabled bool, options ...ClientOption) *Client {
	c := &Client{
		rdb:     rdb,
		enabled: enabled && rdb != nil,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewFromURL connects to Redis using a redis:// URL.
func NewFromURL(url string, enabled bool, options ...ClientOption) (*Client, error) {
	if !enabled {
		return New(nil, false, options...), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[cache.NewFromURL] parse redis url")
	}
	return New(redis.NewClient(opts), true, options...), nil
}

// Enabled reports whether the gateway is backed by a live store.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Get returns the value for key, or nil when the key is absent, the store is
// disabled, or the store errored (unless RaiseOnError is set).
func (c *Client) Get(ctx context.Context, key string, opts ...Option) ([]byte, error) {
	if !c.enabled {
		return nil, nil
	}
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, c.fail("get", key, err, opts)
	}
	return value, nil
}

// Set stores value under key with the given TTL. A non-positive TTL persists
// the key until deleted.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration, opts ...Option) error {
	if !c.enabled {
		return nil
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return c.fail("set", key, err, opts)
	}
	return nil
}

// Delete removes the given keys.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled || len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return c.fail("delete", keys[0], err, nil)
	}
	return nil
}

// Incr atomically increments the integer at key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string, opts ...Option) (int64, error) {
	if !c.enabled {
		return 0, nil
	}
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, c.fail("incr", key, err, opts)
	}
	return n, nil
}

// DeleteByPattern removes every key matching the glob pattern and returns the
// number deleted. Deletion is atomic from the caller's point of view.
func (c *Client) DeleteByPattern(ctx context.Context, pattern string, opts ...Option) (int, error) {
	if !c.enabled {
		return 0, nil
	}
	deleted, err := deleteByPatternScript.Run(ctx, c.rdb, []string{}, pattern).Int()
	if err != nil {
		return 0, c.fail("delete-by-pattern", pattern, err, opts)
	}
	return deleted, nil
}

// ExceededRateLimit records a hit against key and reports whether the number
// of hits inside the sliding window now exceeds limit. Returns false when the
// store is disabled or unreachable so callers never block on Redis health.
func (c *Client) ExceededRateLimit(ctx context.Context, key string, limit int, interval time.Duration) bool {
	if !c.enabled {
		return false
	}
	now := c.nowTime().UnixNano()
	cutoff := now - interval.Nanoseconds()
	count, err := rateLimitScript.Run(ctx, c.rdb, []string{key}, now, cutoff, interval.Milliseconds()).Int()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit script failed")
		return false
	}
	return count > limit
}

func (c *Client) fail(op, key string, err error, opts []Option) error {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	log.Warn().Err(err).Str("operation", op).Str("key", key).Msg("redis operation failed")
	if o.raiseOnError {
		return errors.Wrapf(err, "[cache.Client] %s %q", op, key)
	}
	return nil
}
