// Package classify implements pattern-based (substring) intent routing in
// a fixed priority order, a compound-query splitter, and follow-up/pronoun
// resolution against SessionContext. Classification is deliberately not
// ML-based: pattern/substring rules are authoritative, so this package has
// no model dependency.
package classify

import (
	"strings"
	"sync"
	"time"
)

// Mode distinguishes a single-intent query from a compound one.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Intent is one classified piece of a query.
type Intent struct {
	Kind     string
	HandlerID string
	Entities map[string]string
	Text     string // the text that was classified (expanded form, if follow-up)
}

// Classification is the classifier's output for one turn.
type Classification struct {
	Mode               Mode
	Intents            []Intent
	NeedsClarification bool
	ClarificationKind  string
	OriginalText       string
	FollowUp           bool // true when a pronoun/relative-time expansion against SessionContext fired
}

// SessionContext is the read-only view the classifier consults for
// follow-up resolution. The orchestrator passes an immutable snapshot, so
// handlers only ever see a read-only copy.
type SessionContext struct {
	LastIntent   string
	LastEntities map[string]string
}

// categoryRule is one entry in the fixed priority-ordered category list.
type categoryRule struct {
	kind    string
	terms   []string
	handler string
}

// priorityOrder fixes the routing priority: time/date, weather, location,
// transportation, entertainment, news/finance/sports, then web-search
// fallback, then LLM fallback.
var priorityOrder = []categoryRule{
	{kind: "time", terms: []string{"what time", "what's the time", "current time", "what day"}, handler: "time"},
	{kind: "weather", terms: []string{"weather", "temperature", "forecast", "raining", "snow"}, handler: "weather"},
	{kind: "location", terms: []string{"where is", "directions to", "how far", "distance to", "parking", "nearest"}, handler: "location"},
	{kind: "transportation", terms: []string{"flight", "airport delay", "train", "bus schedule", "traffic"}, handler: "flights"},
	{kind: "entertainment", terms: []string{"play", "watch", "stream", "movie", "show"}, handler: "streaming"},
	{kind: "news", terms: []string{"news", "headlines"}, handler: "news"},
	{kind: "finance", terms: []string{"stock", "share price", "quote for"}, handler: "stocks"},
	{kind: "sports", terms: []string{"score", "game", "standings", "schedule for"}, handler: "sports"},
	{kind: "home_control", terms: []string{"turn on", "turn off", "dim", "lock the", "unlock the", "set the thermostat"}, handler: "home_control"},
}

// nonSplittingPhrases are multi-entity phrases that contain a conjunction
// marker but must never be treated as a compound-query boundary: "kitchen
// and dining lights" must NOT be split.
var nonSplittingPhrases = []string{
	"kitchen and dining", "living room and bedroom", "salt and pepper",
	"bed and breakfast", "rock and roll",
}

var conjunctionMarkers = []string{" and ", " also ", ", then "}

// followUpPronouns/relativeTime mark a query as a candidate for expansion
// against SessionContext.
var followUpPronouns = []string{"it", "them", "their", "that"}
var followUpRelative = []string{"tomorrow", "next week", "tonight", "this weekend"}

// Classifier holds the classification-result cache: a TTL+size-bounded
// map with simple bulk eviction.
type Classifier struct {
	sportsDisambiguation map[string]bool // trigger tokens requiring clarification
	deviceRequiresClar   func(deviceKind string, matchedEntities int) bool

	cache *resultCache
}

// New creates a Classifier. sportsTriggers lists trigger tokens from
// config.DisambiguationRegistry that require clarification; deviceCheck
// decides, for a home_control match, whether the entity count requires
// clarification (driven by config.DeviceRuleRegistry).
func New(sportsTriggers map[string]bool, deviceCheck func(string, int) bool) *Classifier {
	return &Classifier{
		sportsDisambiguation: sportsTriggers,
		deviceRequiresClar:   deviceCheck,
		cache:                newResultCache(2000, 30*time.Second),
	}
}

// Classify is the entry point: transcription + SessionContext -> Classification.
func (c *Classifier) Classify(transcription string, ctx SessionContext) Classification {
	trimmed := strings.TrimSpace(transcription)
	if trimmed == "" {
		return Classification{Mode: ModeSingle, OriginalText: transcription}
	}

	expanded := c.resolveFollowUp(trimmed, ctx)
	followUp := expanded != trimmed

	if cached, ok := c.cache.Get(expanded); ok {
		cached.OriginalText = transcription
		cached.FollowUp = followUp
		return cached
	}

	parts := splitCompound(expanded)
	var intents []Intent
	nonUnknown := 0
	for _, part := range parts {
		intent, needsClar, clarKind := c.classifyPart(part)
		if needsClar {
			result := Classification{
				Mode:               ModeSingle,
				NeedsClarification: true,
				ClarificationKind:  clarKind,
				OriginalText:       transcription,
				FollowUp:           followUp,
			}
			c.cache.Set(expanded, result)
			return result
		}
		if intent.Kind != "unknown" {
			nonUnknown++
		}
		intents = append(intents, intent)
	}

	mode := ModeMulti
	if len(parts) == 1 || nonUnknown <= 1 {
		mode = ModeSingle
		// If only one part yields a non-unknown intent, the query is treated
		// as single: collapse to the single matched part.
		if nonUnknown == 1 && len(intents) > 1 {
			for _, in := range intents {
				if in.Kind != "unknown" {
					intents = []Intent{in}
					break
				}
			}
		}
	}

	result := Classification{Mode: mode, Intents: intents, OriginalText: transcription, FollowUp: followUp}
	c.cache.Set(expanded, result)
	return result
}

// classifyPart matches one query fragment against the fixed priority order.
func (c *Classifier) classifyPart(text string) (Intent, bool, string) {
	lower := strings.ToLower(text)

	for _, rule := range priorityOrder {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				entities := extractEntities(lower, rule.kind)

				if rule.kind == "sports" {
					for token := range c.sportsDisambiguation {
						if strings.Contains(lower, token) {
							return Intent{}, true, "sports_team_ambiguous"
						}
					}
				}

				if rule.kind == "home_control" && c.deviceRequiresClar != nil {
					deviceKind := entities["device_kind"]
					if c.deviceRequiresClar(deviceKind, len(entities)) {
						return Intent{}, true, "home_control_device_ambiguous"
					}
				}

				return Intent{Kind: rule.kind, HandlerID: rule.handler, Entities: entities, Text: text}, false, ""
			}
		}
	}

	return Intent{Kind: "unknown", HandlerID: "web-search", Entities: map[string]string{}, Text: text}, false, ""
}

// extractEntities is a minimal, deterministic entity extractor: it records
// which device kind (if any) and qualifier terms appear in the text. Real
// handlers refine these further; the classifier only needs enough to decide
// whether clarification is required.
func extractEntities(lower, kind string) map[string]string {
	entities := map[string]string{}
	if kind == "home_control" {
		for _, dk := range []string{"lights", "thermostat", "lock", "tv", "speaker"} {
			if strings.Contains(lower, dk) {
				entities["device_kind"] = dk
			}
		}
	}
	for _, q := range []string{"tomorrow", "tonight", "weekend", "week", "today"} {
		if strings.Contains(lower, q) {
			entities["qualifier"] = q
		}
	}
	return entities
}

// splitCompound splits on conjunction markers unless the boundary falls
// inside a known non-splitting phrase.
func splitCompound(text string) []string {
	lower := strings.ToLower(text)
	for _, phrase := range nonSplittingPhrases {
		if strings.Contains(lower, phrase) {
			return []string{text}
		}
	}
	for _, marker := range conjunctionMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			left := strings.TrimSpace(text[:idx])
			right := strings.TrimSpace(text[idx+len(marker):])
			if left == "" || right == "" {
				continue
			}
			return []string{left, right}
		}
	}
	return []string{text}
}

// resolveFollowUp expands a pronoun/relative-time query using the last
// known intent/entities. The original text is preserved by the caller for
// logging; only the expanded form returned here is classified.
func (c *Classifier) resolveFollowUp(text string, ctx SessionContext) string {
	if ctx.LastIntent == "" {
		return text
	}
	lower := strings.ToLower(text)
	matched := false
	for _, p := range followUpPronouns {
		if containsWord(lower, p) {
			matched = true
			break
		}
	}
	if !matched {
		for _, r := range followUpRelative {
			if strings.Contains(lower, r) {
				matched = true
				break
			}
		}
	}
	if !matched {
		return text
	}
	var b strings.Builder
	b.WriteString(ctx.LastIntent)
	b.WriteString(" ")
	b.WriteString(text)
	for _, v := range ctx.LastEntities {
		b.WriteString(" ")
		b.WriteString(v)
	}
	return b.String()
}

func containsWord(haystack, word string) bool {
	for _, tok := range strings.Fields(haystack) {
		if strings.Trim(tok, ".,!?") == word {
			return true
		}
	}
	return false
}

// resultCache is a TTL+size-bounded cache of classification results: at
// capacity it bulk-evicts 20% of its entries in map iteration order, which
// does not follow age, so the oldest entries are not necessarily the ones
// removed. No LRU ordering is kept since classifier cache entries are cheap
// to recompute on a miss.
type resultCache struct {
	mu      sync.RWMutex
	maxSize int
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result    Classification
	timestamp time.Time
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	return &resultCache{maxSize: maxSize, ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *resultCache) Get(key string) (Classification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Since(e.timestamp) > c.ttl {
		return Classification{}, false
	}
	return e.result, true
}

func (c *resultCache) Set(key string, result Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		evict := c.maxSize / 5
		for k := range c.entries {
			if evict <= 0 {
				break
			}
			delete(c.entries, k)
			evict--
		}
	}
	c.entries[key] = cacheEntry{result: result, timestamp: time.Now()}
}
