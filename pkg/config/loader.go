package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/voiceorch/core/pkg/httpclient"
)

// Kind identifies one of the configuration snapshots the Loader serves.
type Kind string

const (
	KindConversationSettings  Kind = "conversation_settings"
	KindClarificationSettings Kind = "clarification_settings"
	KindClarificationRules    Kind = "clarification_rules"
	KindSportsDisambiguation  Kind = "sports_disambiguation"
	KindDeviceRules           Kind = "device_rules"
	KindFeatures              Kind = "features"
	KindLLMBackends           Kind = "llm_backends"
	KindDataSources           Kind = "data_sources"
)

// Fetcher retrieves a raw admin-surface response body for a config kind.
// Implemented by HTTPFetcher against the admin surface in production;
// tests supply their own in-package fakes.
type Fetcher interface {
	Fetch(ctx context.Context, kind Kind) ([]byte, error)
}

// Mirror is the external key/value store used to hold a short-TTL copy of
// each snapshot (pkg/kvstore.Client satisfies this).
type Mirror interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// snapshot is what Loader caches per kind: the decoded value plus when it
// was fetched, used to decide staleness.
type snapshot struct {
	value     any
	fetchedAt time.Time
}

// Loader is the authoritative-source client: the admin relational store
// is the source of truth, and Loader's registries are a refreshed,
// cached derivative.
type Loader struct {
	fetcher Fetcher
	mirror  Mirror
	ttl     time.Duration

	mu          sync.RWMutex
	snapshots   map[Kind]snapshot
	lastGoodErr map[Kind]error

	Flags           *FeatureFlagRegistry
	Backends        *LLMBackendRegistry
	Rules           *ClarificationRuleRegistry
	Disambiguations *DisambiguationRegistry
	DeviceRules     *DeviceRuleRegistry
	DataSources     *DataSourceRegistry

	convSettings  ConversationSettings
	clarSettings  ClarificationSettings
}

// NewLoader constructs a Loader with empty registries; call Refresh (or let
// the background refresher do it) before relying on any Get.
func NewLoader(fetcher Fetcher, mirror Mirror, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = DefaultConfigCacheTTL
	}
	return &Loader{
		fetcher:         fetcher,
		mirror:          mirror,
		ttl:             ttl,
		snapshots:       make(map[Kind]snapshot),
		lastGoodErr:     make(map[Kind]error),
		Flags:           NewFeatureFlagRegistry(nil),
		Backends:        NewLLMBackendRegistry(nil),
		Rules:           NewClarificationRuleRegistry(nil),
		Disambiguations: NewDisambiguationRegistry(nil),
		DeviceRules:     NewDeviceRuleRegistry(nil),
		DataSources:     NewDataSourceRegistry(nil),
		convSettings:    DefaultConversationSettings(),
		clarSettings:    DefaultClarificationSettings(),
	}
}

// ConversationSettings returns the current cached snapshot.
func (l *Loader) ConversationSettings() ConversationSettings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.convSettings
}

// ClarificationSettings returns the current cached snapshot.
func (l *Loader) ClarificationSettings() ClarificationSettings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.clarSettings
}

// Invalidate drops the cached freshness timestamp for kind so the next
// Refresh call treats it as stale, regardless of TTL. Called by the admin
// surface after a mutating write so the relevant config cache entry is
// dropped immediately.
func (l *Loader) Invalidate(kind Kind) {
	l.mu.Lock()
	delete(l.snapshots, kind)
	l.mu.Unlock()
}

// stale reports whether kind needs a re-fetch.
func (l *Loader) stale(kind Kind) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.snapshots[kind]
	if !ok {
		return true
	}
	return time.Since(s.fetchedAt) > l.ttl
}

// Refresh re-fetches every stale kind from the admin surface. On fetch
// failure it keeps serving the last-known-good registry contents and
// records the error; if no prior snapshot exists it falls back to
// documented defaults.
func (l *Loader) Refresh(ctx context.Context) error {
	kinds := []Kind{
		KindConversationSettings, KindClarificationSettings, KindClarificationRules,
		KindSportsDisambiguation, KindDeviceRules, KindFeatures, KindLLMBackends,
		KindDataSources,
	}
	var firstErr error
	for _, kind := range kinds {
		if !l.stale(kind) {
			continue
		}
		if err := l.refreshOne(ctx, kind); err != nil {
			l.mu.Lock()
			l.lastGoodErr[kind] = err
			l.mu.Unlock()
			slog.Warn("config refresh failed, serving last-known-good", "kind", kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (l *Loader) refreshOne(ctx context.Context, kind Kind) error {
	body, err := l.fetcher.Fetch(ctx, kind)
	if err != nil {
		return NewLoadError(string(kind), err)
	}
	if err := l.apply(kind, body); err != nil {
		return NewLoadError(string(kind), err)
	}
	l.mu.Lock()
	l.snapshots[kind] = snapshot{value: body, fetchedAt: time.Now()}
	delete(l.lastGoodErr, kind)
	l.mu.Unlock()
	if l.mirror != nil {
		_ = l.mirror.Set(ctx, "config:"+string(kind), body, l.ttl)
	}
	return nil
}

func (l *Loader) apply(kind Kind, body []byte) error {
	switch kind {
	case KindFeatures:
		var flags map[string]*FeatureFlag
		if err := json.Unmarshal(body, &flags); err != nil {
			return err
		}
		l.Flags.replace(flags)
	case KindLLMBackends:
		var backends map[string]*LLMBackend
		if err := json.Unmarshal(body, &backends); err != nil {
			return err
		}
		l.Backends.replace(backends)
	case KindClarificationRules:
		var rules map[string]*ClarificationRule
		if err := json.Unmarshal(body, &rules); err != nil {
			return err
		}
		l.Rules.replace(rules)
	case KindSportsDisambiguation:
		var entries map[string]*DisambiguationEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return err
		}
		l.Disambiguations.replace(entries)
	case KindDeviceRules:
		var rules map[string]*DeviceDisambiguationRule
		if err := json.Unmarshal(body, &rules); err != nil {
			return err
		}
		l.DeviceRules.replace(rules)
	case KindDataSources:
		var sources map[string]*DataSourceConfig
		if err := json.Unmarshal(body, &sources); err != nil {
			return err
		}
		l.DataSources.replace(sources)
	case KindConversationSettings:
		var partial ConversationSettings
		if err := json.Unmarshal(body, &partial); err != nil {
			return err
		}
		merged := DefaultConversationSettings()
		if err := mergo.Merge(&merged, partial, mergo.WithOverride); err != nil {
			return err
		}
		l.mu.Lock()
		l.convSettings = merged
		l.mu.Unlock()
	case KindClarificationSettings:
		var partial ClarificationSettings
		if err := json.Unmarshal(body, &partial); err != nil {
			return err
		}
		merged := DefaultClarificationSettings()
		if err := mergo.Merge(&merged, partial, mergo.WithOverride); err != nil {
			return err
		}
		l.mu.Lock()
		l.clarSettings = merged
		l.mu.Unlock()
	default:
		return fmt.Errorf("unknown config kind %q", kind)
	}
	return nil
}

// HTTPFetcher is the production Fetcher: a GET against the admin HTTP
// surface's matching endpoint via the shared resilient client, so a
// transient admin-surface blip is retried instead of failing the refresh.
type HTTPFetcher struct {
	BaseURL string
	Client  *httpclient.Client
}

var kindPaths = map[Kind]string{
	KindConversationSettings:  "/api/conversation/settings",
	KindClarificationSettings: "/api/conversation/clarification",
	KindClarificationRules:    "/api/conversation/clarification/types",
	KindSportsDisambiguation:  "/api/conversation/sports-teams",
	KindDeviceRules:           "/api/conversation/device-rules",
	KindFeatures:              "/api/features",
	KindLLMBackends:           "/api/llm-backends",
	KindDataSources:           "/api/data-sources",
}

func (f *HTTPFetcher) Fetch(ctx context.Context, kind Kind) ([]byte, error) {
	path, ok := kindPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown config kind %q", kind)
	}
	var raw json.RawMessage
	if err := f.Client.DoJSON(ctx, http.MethodGet, f.BaseURL+path, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return raw, nil
}
