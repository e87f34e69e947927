package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDeviceCheck(string, int) bool { return false }

func TestClassify_SingleIntent(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("what's the weather like today", SessionContext{})
	require.Equal(t, ModeSingle, result.Mode)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, "weather", result.Intents[0].Kind)
	assert.Equal(t, "weather", result.Intents[0].HandlerID)
}

func TestClassify_UnknownFallsBackToWebSearch(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("tell me a joke about ducks", SessionContext{})
	require.Len(t, result.Intents, 1)
	assert.Equal(t, "unknown", result.Intents[0].Kind)
	assert.Equal(t, "web-search", result.Intents[0].HandlerID)
}

func TestClassify_CompoundQuerySplits(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("what's the weather and turn on the lights", SessionContext{})
	require.Equal(t, ModeMulti, result.Mode)
	require.Len(t, result.Intents, 2)
	assert.Equal(t, "weather", result.Intents[0].Kind)
	assert.Equal(t, "home_control", result.Intents[1].Kind)
}

func TestClassify_NonSplittingPhraseStaysSingle(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("turn on the kitchen and dining lights", SessionContext{})
	assert.Equal(t, ModeSingle, result.Mode)
	require.Len(t, result.Intents, 1)
}

func TestClassify_CompoundCollapsesWhenOnlyOneKnownPart(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("what's the weather and also tell me a joke", SessionContext{})
	require.Equal(t, ModeSingle, result.Mode)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, "weather", result.Intents[0].Kind)
}

func TestClassify_SportsDisambiguationTriggersClarification(t *testing.T) {
	c := New(map[string]bool{"city rivals": true}, noDeviceCheck)
	result := c.Classify("what's the score for the city rivals game", SessionContext{})
	assert.True(t, result.NeedsClarification)
	assert.Equal(t, "sports_team_ambiguous", result.ClarificationKind)
}

func TestClassify_DeviceRuleTriggersClarification(t *testing.T) {
	c := New(nil, func(kind string, matched int) bool { return kind == "lights" })
	result := c.Classify("turn on the lights", SessionContext{})
	assert.True(t, result.NeedsClarification)
	assert.Equal(t, "home_control_device_ambiguous", result.ClarificationKind)
}

func TestClassify_FollowUpResolvesAgainstSessionContext(t *testing.T) {
	c := New(nil, noDeviceCheck)
	sessCtx := SessionContext{LastIntent: "weather", LastEntities: map[string]string{"qualifier": "today"}}
	result := c.Classify("what about tomorrow", sessCtx)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, "weather", result.Intents[0].Kind)
	assert.True(t, result.FollowUp)
}

func TestClassify_NoSessionContextIsNotAFollowUp(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("what's the weather", SessionContext{})
	assert.False(t, result.FollowUp)
}

func TestClassify_EmptyInputReturnsSingleEmpty(t *testing.T) {
	c := New(nil, noDeviceCheck)
	result := c.Classify("   ", SessionContext{})
	assert.Equal(t, ModeSingle, result.Mode)
	assert.Empty(t, result.Intents)
}

func TestClassify_CachesRepeatedQuery(t *testing.T) {
	c := New(nil, noDeviceCheck)
	first := c.Classify("what's the weather", SessionContext{})
	second := c.Classify("what's the weather", SessionContext{})
	assert.Equal(t, first.Intents, second.Intents)
}

func TestResultCache_ExpiresAfterTTL(t *testing.T) {
	cache := newResultCache(10, 0)
	cache.Set("k", Classification{Mode: ModeSingle})
	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestResultCache_EvictsWhenFull(t *testing.T) {
	cache := newResultCache(5, 0)
	for i := 0; i < 10; i++ {
		cache.Set(string(rune('a'+i)), Classification{Mode: ModeSingle})
	}
	assert.LessOrEqual(t, len(cache.entries), 5)
}
