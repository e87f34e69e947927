// Package clarify implements attaching a proposed PendingClarification to
// a session, producing a templated prompt, and resolving the caller's
// next turn against it (exact match preferred, then prefix, then
// substring) within the configured window.
package clarify

import (
	"context"
	"strings"
	"time"

	"github.com/voiceorch/core/pkg/analytics"
	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/session"
)

// maxUnmatchedAttempts is the number of unmatched replies tolerated before
// the clarification times out and the turn is treated as fresh.
const maxUnmatchedAttempts = 2

// Proposal is what the classifier or a handler hands to Attach.
type Proposal struct {
	Kind           string
	OriginalQuery  string
	OriginalIntent string
	Options        []session.ClarificationOption
}

// Outcome is Resolve's result.
type Outcome struct {
	// Resolved is true when the reply matched an option; ResolvedOptionID
	// names which one, and the engine expects the caller to re-execute
	// OriginalIntent with that substitution applied.
	Resolved        bool
	ResolvedOptionID string
	OriginalIntent  string
	// TimedOut is true when the window lapsed or attempts were exhausted;
	// the caller should treat the triggering text as a fresh query.
	TimedOut bool
}

// Engine is the Clarification Engine component.
type Engine struct {
	rules     *config.ClarificationRuleRegistry
	settings  func() config.ClarificationSettings
	sessions  *session.Manager
	analytics *analytics.Recorder
}

// New creates an Engine. settings is called lazily so the engine always
// observes the Config Loader's current snapshot. rec may be nil, in which
// case the engine emits no analytics events.
func New(rules *config.ClarificationRuleRegistry, settings func() config.ClarificationSettings, sessions *session.Manager, rec *analytics.Recorder) *Engine {
	return &Engine{rules: rules, settings: settings, sessions: sessions, analytics: rec}
}

func (e *Engine) emit(kind, sessionID, category string) {
	if e.analytics == nil {
		return
	}
	e.analytics.Emit(analytics.Event{Kind: kind, Category: category, SessionID: sessionID, OccurredAt: time.Now()})
}

// Attach stores p as the session's pending clarification with an expiry
// derived from the matching rule's timeout, or the global clarification
// settings if no rule exists for p.Kind.
func (e *Engine) Attach(ctx context.Context, sessionID string, p Proposal) (*session.PendingClarification, error) {
	timeout := time.Duration(e.settings().TimeoutSeconds) * time.Second
	if rule, err := e.rules.Get(p.Kind); err == nil && rule.TimeoutSeconds != nil {
		timeout = time.Duration(*rule.TimeoutSeconds) * time.Second
	}
	now := time.Now()
	pc := &session.PendingClarification{
		Kind:           p.Kind,
		OriginalQuery:  p.OriginalQuery,
		OriginalIntent: p.OriginalIntent,
		Options:        p.Options,
		CreatedAt:      now,
		ExpiresAt:      now.Add(timeout),
	}
	if err := e.sessions.SetPendingClarification(ctx, sessionID, pc); err != nil {
		return nil, err
	}
	e.emit(analytics.KindClarificationTriggered, sessionID, p.Kind)
	return pc, nil
}

// Prompt renders the clarification question from the pending
// clarification's option labels. The wording is the same for every kind.
func Prompt(pc *session.PendingClarification) string {
	if len(pc.Options) == 0 {
		return "Could you clarify what you mean?"
	}
	var labels []string
	for _, opt := range pc.Options {
		labels = append(labels, opt.Label)
	}
	return "Did you mean " + strings.Join(labels, " or ") + "?"
}

// Resolve attempts to map replyText onto one of pc's options: exact match
// preferred, then prefix, then substring. It mutates the session's pending
// clarification (incrementing attempts, clearing on resolution or final
// timeout) and returns the outcome.
func (e *Engine) Resolve(ctx context.Context, sessionID string, pc *session.PendingClarification, replyText string) (Outcome, error) {
	now := time.Now()
	if now.After(pc.ExpiresAt) {
		if err := e.sessions.ClearPendingClarification(ctx, sessionID); err != nil {
			return Outcome{}, err
		}
		e.emit(analytics.KindClarificationTimeout, sessionID, pc.Kind)
		return Outcome{TimedOut: true}, nil
	}

	if optID, ok := match(pc.Options, replyText); ok {
		if err := e.sessions.ClearPendingClarification(ctx, sessionID); err != nil {
			return Outcome{}, err
		}
		e.emit(analytics.KindClarificationResolved, sessionID, pc.Kind)
		return Outcome{Resolved: true, ResolvedOptionID: optID, OriginalIntent: pc.OriginalIntent}, nil
	}

	pc.Attempts++
	if pc.Attempts >= maxUnmatchedAttempts {
		if err := e.sessions.ClearPendingClarification(ctx, sessionID); err != nil {
			return Outcome{}, err
		}
		e.emit(analytics.KindClarificationTimeout, sessionID, pc.Kind)
		return Outcome{TimedOut: true}, nil
	}
	if err := e.sessions.SetPendingClarification(ctx, sessionID, pc); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

func match(options []session.ClarificationOption, reply string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(reply))

	for _, opt := range options {
		if strings.ToLower(opt.Label) == lower || strings.ToLower(opt.ID) == lower {
			return opt.ID, true
		}
	}
	for _, opt := range options {
		if strings.HasPrefix(strings.ToLower(opt.Label), lower) && lower != "" {
			return opt.ID, true
		}
	}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), lower) && lower != "" {
			return opt.ID, true
		}
	}
	return "", false
}
