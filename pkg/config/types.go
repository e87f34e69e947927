package config

import "time"

// FeatureFlag gates a piece of orchestrator behavior. A flag marked
// Required can never be toggled disabled (see FeatureFlagRegistry.SetEnabled).
type FeatureFlag struct {
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	Category     string   `json:"category"`
	Required     bool     `json:"required"`
	AvgLatencyMs *float64 `json:"avg_latency_ms,omitempty"`
	HitRate      *float64 `json:"hit_rate,omitempty"`
	Priority     int      `json:"priority"`
}

// BackendType selects how the LLM Router dispatches a model's requests.
type BackendType string

const (
	BackendPrimary   BackendType = "primary"
	BackendAlternate BackendType = "alternate"
	BackendAuto      BackendType = "auto"
)

// RollingMetrics tracks a live LLMBackend's observed performance. Updated
// by the LLM Router under a per-model-name mutex that the router owns.
type RollingMetrics struct {
	AvgTokensPerSec float64 `json:"avg_tokens_per_sec"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
}

// LLMBackend configures routing for a single model name.
type LLMBackend struct {
	ModelName          string         `json:"model_name"`
	BackendType        BackendType    `json:"backend_type"`
	Endpoint           string         `json:"endpoint"`
	Enabled            bool           `json:"enabled"`
	Priority           int            `json:"priority"`
	MaxTokens          int            `json:"max_tokens"`
	DefaultTemperature float64        `json:"default_temperature"`
	Timeout            time.Duration  `json:"timeout"`
	Rolling            RollingMetrics `json:"rolling"`
}

// OptionSourceKind distinguishes a clarification rule's static option list
// from one resolved dynamically against the control plane at prompt time.
type OptionSourceKind string

const (
	OptionSourceStatic  OptionSourceKind = "static"
	OptionSourceDynamic OptionSourceKind = "dynamic"
)

// ClarificationRule governs how one clarification kind behaves.
type ClarificationRule struct {
	Kind           string           `json:"kind"`
	Enabled        bool             `json:"enabled"`
	TimeoutSeconds *int             `json:"timeout_seconds,omitempty"`
	Priority       int              `json:"priority"`
	OptionSource   OptionSourceKind `json:"option_source"`
}

// DisambiguationOption is one concrete choice offered to the caller.
type DisambiguationOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Sport string `json:"sport,omitempty"`
}

// DisambiguationEntry maps an ambiguous trigger token (e.g. a sports team
// nickname shared by two leagues) to its concrete options.
type DisambiguationEntry struct {
	TriggerToken string                 `json:"trigger_token"`
	Options      []DisambiguationOption `json:"options"`
}

// DeviceDisambiguationRule controls when a home-control command with
// multiple matching devices must be clarified rather than broadcast.
type DeviceDisambiguationRule struct {
	DeviceKind       string `json:"device_kind"`
	MinEntitiesToAsk int    `json:"min_entities_to_ask"`
	IncludeAllOption bool   `json:"include_all_option"`
}

// ConversationSettings is the admin-managed `/api/conversation/settings` row.
type ConversationSettings struct {
	Enabled                bool `json:"enabled"`
	UseContext             bool `json:"use_context"`
	MaxMessages            int  `json:"max_messages"`
	TimeoutSeconds         int  `json:"timeout_seconds"`
	CleanupIntervalSeconds int  `json:"cleanup_interval_seconds"`
	SessionTTLSeconds      int  `json:"session_ttl_seconds"`
	MaxLLMHistoryMessages  int  `json:"max_llm_history_messages"`
}

// ClarificationSettings is the admin-managed `/api/conversation/clarification` row.
type ClarificationSettings struct {
	Enabled        bool `json:"enabled"`
	TimeoutSeconds int  `json:"timeout_seconds"`
}

// DataSourceConfig resolves the Open Question on flights/stocks provider
// choice: an admin-configurable per-category upstream endpoint rather than
// a hardcoded one.
type DataSourceConfig struct {
	Category  string `json:"category"`
	BaseURL   string `json:"base_url"`
	APIKeyEnv string `json:"api_key_env"`
}
