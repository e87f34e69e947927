// Package orchestrator implements the per-request state machine driving
// Start -> ResolveSession -> TranscribeAudio -> ClassifyIntent ->
// (clarification branch) -> ForEachIntentPart(RouteAndExecute,
// concurrently) -> MergeResponses -> UpdateContext -> Synthesize -> Done,
// with per-stage timeouts and an overall request deadline.
//
// Each intent part runs in its own goroutine; golang.org/x/sync/errgroup
// collects the per-part results and the first error.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voiceorch/core/pkg/analytics"
	"github.com/voiceorch/core/pkg/cachetier"
	"github.com/voiceorch/core/pkg/clarify"
	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/handlers"
	"github.com/voiceorch/core/pkg/homecontrol"
	"github.com/voiceorch/core/pkg/llmrouter"
	"github.com/voiceorch/core/pkg/obs"
	"github.com/voiceorch/core/pkg/orcherr"
	"github.com/voiceorch/core/pkg/session"
	"github.com/voiceorch/core/pkg/validate"
)

// Per-stage timeouts.
const (
	sttTimeout     = 5 * time.Second
	intentTimeout  = 3 * time.Second
	handlerTimeout = 5 * time.Second
	cacheTimeout   = 500 * time.Millisecond
	ttsTimeout     = 5 * time.Second
)

// Request is the ingress POST /query body.
type Request struct {
	Query     string
	Mode      string
	Room      string
	SessionID string
	Audio     []byte
}

// LatencyBreakdown records per-stage durations for one request, named to
// match the voiceorch_stage_duration_seconds histogram's "stage" label.
// CacheLookup, RAGLookup, and LLMInference are summed across concurrently
// executed intent parts.
type LatencyBreakdown struct {
	Gateway              time.Duration
	IntentClassification time.Duration
	RAGLookup            time.Duration
	LLMInference         time.Duration
	ResponseAssembly     time.Duration
	CacheLookup          time.Duration
	TTS                  time.Duration
	Total                time.Duration
	Features             FeatureSnapshot
}

// FeatureSnapshot records which feature flags were enabled at the moment
// a request was handled, alongside its LatencyBreakdown.
type FeatureSnapshot struct {
	RedisCaching      bool
	FunctionCalling   bool
	FacadeEnabled     bool
	ValidationEnabled bool
}

// stageTimes accumulates the per-part durations routeAndExecute spends in
// each named stage, for the caller to fold into the request's LatencyBreakdown.
type stageTimes struct {
	Cache time.Duration
	RAG   time.Duration
	LLM   time.Duration
}

// Response is the ingress POST /query result.
type Response struct {
	Answer         string
	Intent         string
	Confidence     float64
	Citations      []string
	RequestID      string
	SessionID      string
	ProcessingTime time.Duration
	Metadata       map[string]any
	Audio          []byte
}

// Pipeline wires every component the orchestrator drives.
type Pipeline struct {
	cfg          *config.Loader
	sessions     *session.Manager
	classifier   *classify.Classifier
	cache        *cachetier.Tier
	facades      map[string]handlers.Handler
	homecontrol  *homecontrol.Client
	llm          *llmrouter.Router
	clarifier    *clarify.Engine
	stt          *STTClient
	tts          *TTSClient
	metrics      *Metrics
	analytics    *analytics.Recorder
	deadline     time.Duration
	llmModel     string
	voiceProfile string
	wakeWord     string
}

// New assembles a Pipeline from its already-constructed components. rec may
// be nil, in which case the pipeline emits no analytics events.
func New(
	cfg *config.Loader,
	sessions *session.Manager,
	classifier *classify.Classifier,
	cache *cachetier.Tier,
	facades map[string]handlers.Handler,
	hc *homecontrol.Client,
	llm *llmrouter.Router,
	clarifier *clarify.Engine,
	stt *STTClient,
	tts *TTSClient,
	metrics *Metrics,
	rec *analytics.Recorder,
	deadline time.Duration,
	llmModel, voiceProfile, wakeWord string,
) *Pipeline {
	return &Pipeline{
		cfg: cfg, sessions: sessions, classifier: classifier, cache: cache, facades: facades,
		homecontrol: hc, llm: llm, clarifier: clarifier, stt: stt, tts: tts, metrics: metrics,
		analytics: rec, deadline: deadline, llmModel: llmModel, voiceProfile: voiceProfile, wakeWord: wakeWord,
	}
}

func (p *Pipeline) emit(kind, category, intent, sessionID string, latency time.Duration) {
	if p.analytics == nil {
		return
	}
	p.analytics.Emit(analytics.Event{
		Kind: kind, Category: category, Intent: intent, Latency: latency,
		SessionID: sessionID, OccurredAt: time.Now(),
	})
}

func featureEnabled(cfg *config.Loader, name string) bool {
	f, err := cfg.Flags.Get(name)
	if err != nil {
		return false
	}
	return f.Enabled
}

func (p *Pipeline) featureSnapshot() FeatureSnapshot {
	return FeatureSnapshot{
		RedisCaching:      featureEnabled(p.cfg, "redis_caching"),
		FunctionCalling:   featureEnabled(p.cfg, "function_calling"),
		FacadeEnabled:     featureEnabled(p.cfg, "ENABLE_FACADE"),
		ValidationEnabled: featureEnabled(p.cfg, "ENABLE_VALIDATION"),
	}
}

func (p *Pipeline) observeStage(stage string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// Handle runs the full state machine for one request.
func (p *Pipeline) Handle(ctx context.Context, req Request, requestID string) (Response, LatencyBreakdown, error) {
	start := time.Now()
	var lat LatencyBreakdown
	lat.Features = p.featureSnapshot()

	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()
	ctx = obs.WithRequestID(ctx, requestID)

	gatewayStart := time.Now()

	// ResolveSession
	sess, created := p.sessions.GetOrCreate(ctx, req.SessionID)
	if created {
		p.emit(analytics.KindSessionCreated, "", "", sess.ID, 0)
	}

	// TranscribeAudio (only when audio was supplied; text-mode queries skip it)
	transcription := req.Query
	if len(req.Audio) > 0 {
		sttCtx, sttCancel := context.WithTimeout(ctx, sttTimeout)
		text, err := p.stt.Transcribe(sttCtx, req.Audio)
		sttCancel()
		if err != nil {
			obs.For(ctx).Warn("stt failed", "error", err)
		} else {
			transcription = text
		}
	}

	lat.Gateway = time.Since(gatewayStart)
	p.observeStage("gateway", lat.Gateway)

	snapshot := sess.Clone()

	// Pending clarification: the next turn within the window is a reply.
	if snapshot.Context.PendingClarification != nil {
		outcome, err := p.clarifier.Resolve(ctx, sess.ID, snapshot.Context.PendingClarification, transcription)
		if err == nil && !outcome.TimedOut {
			if outcome.Resolved {
				transcription = outcome.OriginalIntent + " " + outcome.ResolvedOptionID
			} else {
				// attempts incremented, still waiting
				return Response{
					Answer:    clarify.Prompt(snapshot.Context.PendingClarification),
					RequestID: requestID,
					SessionID: sess.ID,
				}, lat, nil
			}
		}
		// TimedOut or resolved both fall through to fresh classification.
	}

	// ClassifyIntent
	classifyStart := time.Now()
	classifyCtx, classifyCancel := context.WithTimeout(ctx, intentTimeout)
	classification := p.classifier.Classify(transcription, classify.SessionContext{
		LastIntent:   snapshot.Context.LastIntent,
		LastEntities: snapshot.Context.LastEntities,
	})
	classifyCancel()
	_ = classifyCtx
	lat.IntentClassification = time.Since(classifyStart)
	p.observeStage("intent_classification", lat.IntentClassification)
	if classification.FollowUp {
		p.emit(analytics.KindFollowupDetected, "", "", sess.ID, 0)
	}

	if classification.NeedsClarification {
		prop := clarify.Proposal{
			Kind:           classification.ClarificationKind,
			OriginalQuery:  transcription,
			OriginalIntent: transcription,
		}
		answer := "Could you clarify what you mean?"
		if pc, err := p.clarifier.Attach(ctx, sess.ID, prop); err != nil {
			obs.For(ctx).Error("failed to attach clarification", "error", err)
		} else {
			answer = clarify.Prompt(pc)
		}
		lat.Total = time.Since(start)
		return Response{Answer: answer, RequestID: requestID, SessionID: sess.ID, ProcessingTime: lat.Total}, lat, nil
	}

	// ForEachIntentPart: RouteAndExecute concurrently.
	parts := make([]string, len(classification.Intents))
	times := make([]stageTimes, len(classification.Intents))
	g, gctx := errgroup.WithContext(ctx)
	for i, intent := range classification.Intents {
		i, intent := i, intent
		g.Go(func() error {
			text, st, err := p.routeAndExecute(gctx, intent, req.Room, sess.ID, classify.SessionContext{
				LastIntent:   snapshot.Context.LastIntent,
				LastEntities: snapshot.Context.LastEntities,
			})
			times[i] = st
			if err != nil {
				obs.For(ctx).Warn("intent part failed", "kind", intent.Kind, "error", err)
				parts[i] = "I couldn't find an answer to that part."
				return nil // a single part's failure degrades gracefully, not fatal
			}
			parts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		lat.Total = time.Since(start)
		if ctx.Err() != nil && allEmpty(parts) {
			return Response{}, lat, fmt.Errorf("%w", orcherr.ErrDeadlineExceeded)
		}
	}
	for _, st := range times {
		lat.CacheLookup += st.Cache
		lat.RAGLookup += st.RAG
		lat.LLMInference += st.LLM
	}

	// UpdateContext
	assemblyStart := time.Now()
	answer := mergeResponses(parts)

	var lastIntentKind string
	lastEntities := map[string]string{}
	if len(classification.Intents) > 0 {
		last := classification.Intents[len(classification.Intents)-1]
		lastIntentKind = last.Kind
		lastEntities = last.Entities
	}
	_ = p.sessions.SetContext(ctx, sess.ID, session.Context{LastIntent: lastIntentKind, LastEntities: lastEntities})
	_ = p.sessions.Append(ctx, sess.ID, session.RoleUser, transcription, lastIntentKind, lastEntities)
	_ = p.sessions.Append(ctx, sess.ID, session.RoleAssistant, answer, "", nil)
	lat.ResponseAssembly = time.Since(assemblyStart)
	p.observeStage("response_assembly", lat.ResponseAssembly)

	// Synthesize
	var audio []byte
	if p.tts != nil {
		synthStart := time.Now()
		synthCtx, synthCancel := context.WithTimeout(ctx, ttsTimeout)
		a, err := p.tts.Synthesize(synthCtx, answer, p.voiceProfile, p.wakeWord)
		synthCancel()
		lat.TTS = time.Since(synthStart)
		p.observeStage("tts", lat.TTS)
		if err != nil {
			obs.For(ctx).Warn("tts failed", "error", err)
		} else {
			audio = a
		}
	}

	lat.Total = time.Since(start)
	if p.metrics != nil {
		p.metrics.RequestsTotal.WithLabelValues("ok").Inc()
	}
	p.emit(analytics.KindRequestCompleted, "", lastIntentKind, sess.ID, lat.Total)
	return Response{
		Answer:         answer,
		Intent:         lastIntentKind,
		RequestID:      requestID,
		SessionID:      sess.ID,
		ProcessingTime: lat.Total,
		Audio:          audio,
		Metadata:       map[string]any{"mode": string(classification.Mode)},
	}, lat, nil
}

// routeAndExecute runs one intent part through the cascade: cache ->
// function-call -> facade -> LLM -> validation.
func (p *Pipeline) routeAndExecute(ctx context.Context, intent classify.Intent, zone, sessionID string, sessCtx classify.SessionContext) (string, stageTimes, error) {
	var st stageTimes
	category := intent.HandlerID
	key := handlers.NormalizeKey(category, intent.Text, intent.Entities)

	// 1. Cache lookup, gated by redis_caching.
	if featureEnabled(p.cfg, "redis_caching") {
		cacheCtx, cacheCancel := context.WithTimeout(ctx, cacheTimeout)
		cacheStart := time.Now()
		cached, ok := p.cache.Get(cacheCtx, key, category)
		cacheCancel()
		st.Cache = time.Since(cacheStart)
		p.observeStage("cache_lookup", st.Cache)
		if ok {
			if p.metrics != nil {
				p.metrics.CacheHits.WithLabelValues(category).Inc()
			}
			p.emit(analytics.KindCacheHit, category, intent.Kind, sessionID, st.Cache)
			return string(cached), st, nil
		}
		if p.metrics != nil {
			p.metrics.CacheMisses.WithLabelValues(category).Inc()
		}
		p.emit(analytics.KindCacheMiss, category, intent.Kind, sessionID, st.Cache)
	}

	// 2. Function-call path for home_control.
	if intent.Kind == "home_control" && featureEnabled(p.cfg, "function_calling") && p.homecontrol != nil {
		if call, ok := homecontrol.Extract(intent, zone); ok {
			hcCtx, hcCancel := context.WithTimeout(ctx, handlerTimeout)
			ack, err := p.homecontrol.Execute(hcCtx, call)
			hcCancel()
			if err == nil && ack.Success {
				if featureEnabled(p.cfg, "redis_caching") {
					setCtx, setCancel := context.WithTimeout(ctx, cacheTimeout)
					p.cache.Set(setCtx, key, category, []byte(ack.Response))
					setCancel()
				}
				p.emit(analytics.KindHandlerSelected, category, intent.Kind, sessionID, 0)
				return ack.Response, st, nil
			}
		} else {
			// An extraction failure escalates to clarification, not to the LLM.
			pc, err := p.clarifier.Attach(ctx, sessionID, clarify.Proposal{
				Kind: "home_control", OriginalQuery: intent.Text, OriginalIntent: intent.Text,
			})
			if err != nil {
				return "", st, err
			}
			return clarify.Prompt(pc), st, nil
		}
	}

	// 3. Facade path.
	if h, ok := p.facades[category]; ok && featureEnabled(p.cfg, "ENABLE_FACADE") {
		hCtx, hCancel := context.WithTimeout(ctx, handlerTimeout)
		ragStart := time.Now()
		resp, err := h.Handle(hCtx, intent, zone, sessCtx)
		hCancel()
		st.RAG += time.Since(ragStart)
		p.observeStage("rag_lookup", time.Since(ragStart))
		if err == nil {
			if p.metrics != nil {
				p.metrics.HandlerSuccess.WithLabelValues(category).Inc()
			}
			p.emit(analytics.KindHandlerSelected, category, intent.Kind, sessionID, st.RAG)
			return resp.Text, st, nil
		}
		if p.metrics != nil {
			p.metrics.HandlerFailure.WithLabelValues(category).Inc()
		}
		if !orcherr.IsRetryable(err) {
			// Every facade error, retryable or not, falls through to the LLM path.
		}
	}

	// 4. LLM path (cascade fallback: cache and/or facade couldn't answer).
	p.emit(analytics.KindFallbackInvoked, category, intent.Kind, sessionID, 0)
	prompt := buildPrompt(intent, sessCtx)
	llmStart := time.Now()
	result, err := p.llm.Generate(ctx, p.llmModel, prompt, llmrouter.Params{})
	st.LLM += time.Since(llmStart)
	p.observeStage("llm_inference", time.Since(llmStart))
	if err != nil {
		return "", st, fmt.Errorf("%w: llm generation failed: %v", orcherr.ErrInternalInvariantViolated, err)
	}
	answer := result.Text

	// 5. Validation.
	if validate.HasGroundTruth(category) && featureEnabled(p.cfg, "ENABLE_VALIDATION") {
		if h, ok := p.facades[category]; ok {
			groundTruth := func(gctx context.Context) (string, error) {
				resp, err := h.Handle(gctx, intent, zone, sessCtx)
				return resp.Text, err
			}
			regenerate := func(rctx context.Context, temperature float64) (string, error) {
				t := temperature
				res, err := p.llm.Generate(rctx, p.llmModel, prompt, llmrouter.Params{Temperature: &t})
				return res.Text, err
			}
			valStart := time.Now()
			result := validate.Validate(ctx, category, answer, groundTruth, regenerate, config.DefaultLowTemperature, p.analytics, sessionID)
			valDur := time.Since(valStart)
			st.LLM += valDur
			p.observeStage("llm_inference", valDur)
			answer = result.FinalText
		}
	}

	return answer, st, nil
}

func buildPrompt(intent classify.Intent, sessCtx classify.SessionContext) string {
	var b strings.Builder
	if sessCtx.LastIntent != "" {
		fmt.Fprintf(&b, "Context: previous intent was %s.\n", sessCtx.LastIntent)
	}
	b.WriteString(intent.Text)
	return b.String()
}

// mergeResponses combines per-part answers: 1-of-1 -> the string; 2-of-N
// -> "A. B."; 3+ -> a numbered list. Order follows the classifier's part
// order.
func mergeResponses(parts []string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return "I don't have an answer for that."
	case 1:
		return nonEmpty[0]
	case 2:
		return fmt.Sprintf("%s. %s.", strings.TrimSuffix(nonEmpty[0], "."), strings.TrimSuffix(nonEmpty[1], "."))
	default:
		var b strings.Builder
		for i, p := range nonEmpty {
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSuffix(p, "."))
		}
		return strings.TrimSpace(b.String())
	}
}

func allEmpty(parts []string) bool {
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// SortedFacadeCategories is a small helper the admin surface uses to list
// registered facades deterministically.
func SortedFacadeCategories(facades map[string]handlers.Handler) []string {
	out := make([]string, 0, len(facades))
	for k := range facades {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
