package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	bodies map[Kind][]byte
	errs   map[Kind]error
	calls  map[Kind]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[Kind][]byte{}, errs: map[Kind]error{}, calls: map[Kind]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, kind Kind) ([]byte, error) {
	f.calls[kind]++
	if err, ok := f.errs[kind]; ok {
		return nil, err
	}
	if body, ok := f.bodies[kind]; ok {
		return body, nil
	}
	return []byte(`{}`), nil
}

type fakeMirror struct{ data map[string][]byte }

func newFakeMirror() *fakeMirror { return &fakeMirror{data: map[string][]byte{}} }

func (m *fakeMirror) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *fakeMirror) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRefresh_PopulatesFeatureFlagRegistry(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bodies[KindFeatures] = marshal(t, map[string]*FeatureFlag{
		"redis_caching": {Name: "redis_caching", Enabled: true, Required: true},
	})
	loader := NewLoader(fetcher, newFakeMirror(), time.Minute)

	require.NoError(t, loader.Refresh(context.Background()))

	flag, err := loader.Flags.Get("redis_caching")
	require.NoError(t, err)
	assert.True(t, flag.Enabled)
}

func TestRefresh_FetchFailureKeepsLastKnownGood(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bodies[KindFeatures] = marshal(t, map[string]*FeatureFlag{
		"feature_a": {Name: "feature_a", Enabled: true},
	})
	loader := NewLoader(fetcher, newFakeMirror(), time.Minute)
	require.NoError(t, loader.Refresh(context.Background()))

	loader.Invalidate(KindFeatures)
	fetcher.errs[KindFeatures] = assert.AnError

	err := loader.Refresh(context.Background())
	assert.Error(t, err)

	flag, getErr := loader.Flags.Get("feature_a")
	require.NoError(t, getErr)
	assert.True(t, flag.Enabled, "last-known-good snapshot should still be served")
}

func TestRefresh_SkipsFreshKinds(t *testing.T) {
	fetcher := newFakeFetcher()
	loader := NewLoader(fetcher, newFakeMirror(), time.Hour)

	require.NoError(t, loader.Refresh(context.Background()))
	require.NoError(t, loader.Refresh(context.Background()))

	assert.Equal(t, 1, fetcher.calls[KindFeatures])
}

func TestInvalidate_ForcesRefetchOnNextRefresh(t *testing.T) {
	fetcher := newFakeFetcher()
	loader := NewLoader(fetcher, newFakeMirror(), time.Hour)
	require.NoError(t, loader.Refresh(context.Background()))

	loader.Invalidate(KindFeatures)
	require.NoError(t, loader.Refresh(context.Background()))

	assert.Equal(t, 2, fetcher.calls[KindFeatures])
}

func TestConversationSettings_MergesOverDefaults(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bodies[KindConversationSettings] = []byte(`{"max_messages": 42}`)
	loader := NewLoader(fetcher, newFakeMirror(), time.Minute)
	require.NoError(t, loader.Refresh(context.Background()))

	settings := loader.ConversationSettings()
	assert.Equal(t, 42, settings.MaxMessages)
	assert.NotZero(t, settings.TimeoutSeconds, "unset fields should retain documented defaults")
}

func TestMirror_ReceivesFetchedSnapshot(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bodies[KindFeatures] = marshal(t, map[string]*FeatureFlag{
		"f": {Name: "f", Enabled: true},
	})
	mirror := newFakeMirror()
	loader := NewLoader(fetcher, mirror, time.Minute)
	require.NoError(t, loader.Refresh(context.Background()))

	_, ok := mirror.data["config:"+string(KindFeatures)]
	assert.True(t, ok)
}

func TestFeatureFlagRegistry_SetEnabled_RefusesDisablingRequired(t *testing.T) {
	reg := NewFeatureFlagRegistry(map[string]*FeatureFlag{
		"redis_caching": {Name: "redis_caching", Enabled: true, Required: true},
	})
	err := reg.SetEnabled("redis_caching", false)
	assert.ErrorIs(t, err, ErrRequiredFlagDisable)
}

func TestFeatureFlagRegistry_SetEnabled_AllowsNonRequired(t *testing.T) {
	reg := NewFeatureFlagRegistry(map[string]*FeatureFlag{
		"function_calling": {Name: "function_calling", Enabled: true},
	})
	require.NoError(t, reg.SetEnabled("function_calling", false))
	flag, err := reg.Get("function_calling")
	require.NoError(t, err)
	assert.False(t, flag.Enabled)
}

func TestKeyedRegistry_GetAllReturnsDefensiveCopy(t *testing.T) {
	reg := NewFeatureFlagRegistry(map[string]*FeatureFlag{"a": {Name: "a"}})
	snapshot := reg.GetAll()
	snapshot["b"] = &FeatureFlag{Name: "b"}
	assert.False(t, reg.Has("b"), "mutating the returned map must not affect the registry")
}
