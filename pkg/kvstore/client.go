// Package kvstore wraps the external key/value store (Redis) behind a small
// interface, shared by pkg/config (snapshot mirroring), pkg/cachetier (the
// external cache layer), and pkg/session (primary session storage).
package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Client is the subset of Redis operations the rest of the module needs.
type Client struct {
	rdb *redis.Client
}

// New creates a Client against addr (host:port), selecting database db.
func New(addr string, db int) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Set writes value under key with the given TTL. ttl <= 0 means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the value for key, or (nil, false, nil) if absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Delete removes key, ignoring the case where it did not exist.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Expire sets a new TTL on an existing key, used to refresh a session's
// sliding expiry on every append.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// Ping checks connectivity to the external store.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Keys returns all keys matching pattern. Used sparingly (session listing,
// admin inspection) — not on any request hot path.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return c.rdb.Keys(ctx, pattern).Result()
}
