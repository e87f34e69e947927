package config

import "time"

// Documented defaults applied when the admin surface has no opinion for a
// given field.
const (
	DefaultMaxMessages            = 20
	DefaultTimeoutSeconds         = 1800
	DefaultCleanupIntervalSeconds = 60
	DefaultSessionTTLSeconds      = 3600
	DefaultMaxLLMHistoryMessages  = 10
	DefaultClarificationTimeout   = 300
	DefaultRequestDeadline        = 30 * time.Second
	DefaultLLMTemperature         = 0.7
	DefaultLowTemperature         = 0.1
	DefaultMaxTokens              = 2048
	DefaultConfigCacheTTL         = 300 * time.Second
)

// Per-category cache TTLs.
var DefaultCacheTTLs = map[string]time.Duration{
	"weather":          600 * time.Second,
	"events":           3600 * time.Second,
	"streaming-lookup":  86400 * time.Second,
	"news":             1800 * time.Second,
	"stock":            300 * time.Second,
	"web-search":       3600 * time.Second,
	"static":           86400 * time.Second,
}

// DefaultConversationSettings returns the documented conversation-settings
// defaults, used when the admin surface has never been configured or is
// unreachable and no last-known-good snapshot exists.
func DefaultConversationSettings() ConversationSettings {
	return ConversationSettings{
		Enabled:                true,
		UseContext:             true,
		MaxMessages:            DefaultMaxMessages,
		TimeoutSeconds:         DefaultTimeoutSeconds,
		CleanupIntervalSeconds: DefaultCleanupIntervalSeconds,
		SessionTTLSeconds:      DefaultSessionTTLSeconds,
		MaxLLMHistoryMessages:  DefaultMaxLLMHistoryMessages,
	}
}

// DefaultClarificationSettings returns the documented clarification-settings defaults.
func DefaultClarificationSettings() ClarificationSettings {
	return ClarificationSettings{
		Enabled:        true,
		TimeoutSeconds: DefaultClarificationTimeout,
	}
}

// resolveConversationSettings returns the documented defaults when got is
// nil and *got unchanged otherwise; it does not merge individual fields
// (Loader.apply does field-level merging with mergo).
func resolveConversationSettings(got *ConversationSettings) ConversationSettings {
	if got == nil {
		return DefaultConversationSettings()
	}
	return *got
}

func resolveClarificationSettings(got *ClarificationSettings) ClarificationSettings {
	if got == nil {
		return DefaultClarificationSettings()
	}
	return *got
}
