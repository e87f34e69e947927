package cachetier

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

type fakeExternal struct {
	data map[string][]byte
	err  error
}

func newFakeExternal() *fakeExternal { return &fakeExternal{data: map[string][]byte{}} }

func (f *fakeExternal) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

func (f *fakeExternal) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func TestTTLFor_KnownAndUnknownCategory(t *testing.T) {
	assert.Equal(t, 600*time.Second, TTLFor("weather"))
	assert.Equal(t, TTLFor("web-search"), TTLFor("unknown-category"))
}

func TestGet_MissOnEmptyTier(t *testing.T) {
	tier := New(10, newFakeExternal(), nil)
	_, ok := tier.Get(context.Background(), "k", "weather")
	assert.False(t, ok)

	stats := tier.Stats()
	assert.Equal(t, int64(0), stats.HitsTotal)
	assert.Equal(t, int64(1), stats.MissesTotal)
}

func TestSetThenGet_HitsInProcessLayer(t *testing.T) {
	tier := New(10, newFakeExternal(), nil)
	ctx := context.Background()
	tier.Set(ctx, "k", "weather", []byte("sunny"))

	v, ok := tier.Get(ctx, "k", "weather")
	require.True(t, ok)
	assert.Equal(t, "sunny", string(v))
	assert.Equal(t, int64(1), tier.Stats().HitsTotal)
}

func TestGet_PromotesExternalHitToLocal(t *testing.T) {
	ext := newFakeExternal()
	ext.data["k"] = []byte("from-redis")
	tier := New(10, ext, nil)

	v, ok := tier.Get(context.Background(), "k", "news")
	require.True(t, ok)
	assert.Equal(t, "from-redis", string(v))

	// second read should not need the external layer anymore.
	ext.data = map[string][]byte{}
	v2, ok2 := tier.Get(context.Background(), "k", "news")
	require.True(t, ok2)
	assert.Equal(t, "from-redis", string(v2))
}

func TestGet_FallsBackToDiskLayer(t *testing.T) {
	dir := t.TempDir()
	db, err := bbolt.Open(filepath.Join(dir, "cache.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	tier := New(10, nil, db)
	tier.setDisk("k", []byte("from-disk"))

	v, ok := tier.Get(context.Background(), "k", "static")
	require.True(t, ok)
	assert.Equal(t, "from-disk", string(v))
}

func TestLocalEntry_ExpiresByTTL(t *testing.T) {
	tier := New(10, newFakeExternal(), nil)
	tier.setLocal("k", []byte("v"), "stock", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := tier.getLocal("k")
	assert.False(t, ok)
}

func TestLRU_EvictsOldestBeyondCapacity(t *testing.T) {
	tier := New(2, newFakeExternal(), nil)
	tier.setLocal("a", []byte("1"), "weather", time.Hour)
	tier.setLocal("b", []byte("2"), "weather", time.Hour)
	tier.setLocal("c", []byte("3"), "weather", time.Hour)

	_, ok := tier.getLocal("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = tier.getLocal("c")
	assert.True(t, ok)
}

func TestStats_TracksPerCategoryCounts(t *testing.T) {
	tier := New(10, newFakeExternal(), nil)
	ctx := context.Background()
	tier.Set(ctx, "k1", "weather", []byte("v"))
	tier.Get(ctx, "k1", "weather")
	tier.Get(ctx, "missing", "news")

	stats := tier.Stats()
	assert.Equal(t, int64(1), stats.ByCategory["weather"].Hits)
	assert.Equal(t, int64(1), stats.ByCategory["news"].Misses)
}
