package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(mr.Addr(), 0)
}

func TestSetGet_RoundTrips(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "session:abc", []byte("payload"), time.Minute))

	v, ok, err := c.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(v))
}

func TestGet_MissingKey(t *testing.T) {
	c := newTestClient(t)
	v, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestDelete_RemovesKey(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpire_RefreshesTTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	require.NoError(t, c.Expire(ctx, "k", time.Hour))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPing_Succeeds(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestKeys_MatchesPattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "session:1", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "session:2", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "other:1", []byte("c"), 0))

	keys, err := c.Keys(ctx, "session:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"session:1", "session:2"}, keys)
}
