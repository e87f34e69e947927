// Package session implements bounded conversation history per session, an
// external key/value store as primary with an in-process mirror for
// low-latency access and outage tolerance, and a background reaper
// evicting expired sessions.
//
// Each session carries its own mutex with a Clone-for-reads shape, and the
// reaper follows a Start/Stop/run ticker loop.
package session

import (
	"sync"
	"time"
)

// MessageRole is who produced a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role      MessageRole       `json:"role"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Intent    string            `json:"intent,omitempty"`
	Entities  map[string]string `json:"entities,omitempty"`
}

// Context holds the classifier's follow-up-resolution state, plus at most
// one pending clarification.
type Context struct {
	LastIntent           string                `json:"last_intent,omitempty"`
	LastEntities         map[string]string     `json:"last_entities,omitempty"`
	PendingClarification *PendingClarification `json:"pending_clarification,omitempty"`
}

// ClarificationOption is one concrete choice offered to the caller.
type ClarificationOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PendingClarification records that the assistant is waiting on a
// disambiguating reply. Invariant: ExpiresAt > CreatedAt.
type PendingClarification struct {
	Kind           string                `json:"kind"`
	OriginalQuery  string                `json:"original_query"`
	OriginalIntent string                `json:"original_intent"`
	Options        []ClarificationOption `json:"options"`
	CreatedAt      time.Time             `json:"created_at"`
	ExpiresAt      time.Time             `json:"expires_at"`
	Attempts       int                   `json:"attempts"`
}

// Session is one caller's conversation state. mu serializes appends to
// this session; reads take the read lock so they may proceed in parallel
// with each other.
type Session struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	Context      Context   `json:"context"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	mu sync.RWMutex
}

// Expired reports whether the session has exceeded timeoutSeconds since its
// last activity.
func (s *Session) Expired(now time.Time, timeoutSeconds int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.LastActivity) > time.Duration(timeoutSeconds)*time.Second
}

// Clone returns a deep, lock-free copy safe to hand to callers: handlers
// see an immutable snapshot of SessionContext.
func (s *Session) Clone() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := make([]Message, len(s.Messages))
	copy(messages, s.Messages)
	ctx := s.Context
	if s.Context.LastEntities != nil {
		ctx.LastEntities = make(map[string]string, len(s.Context.LastEntities))
		for k, v := range s.Context.LastEntities {
			ctx.LastEntities[k] = v
		}
	}
	return Session{
		ID:           s.ID,
		Messages:     messages,
		Context:      ctx,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

func (s *Session) append(msg Message, maxMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	if over := len(s.Messages) - maxMessages; over > 0 {
		s.Messages = s.Messages[over:]
	}
	s.LastActivity = msg.Timestamp
}

func (s *Session) setContext(updates Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if updates.LastIntent != "" {
		s.Context.LastIntent = updates.LastIntent
	}
	if updates.LastEntities != nil {
		s.Context.LastEntities = updates.LastEntities
	}
}

func (s *Session) setPendingClarification(pc *PendingClarification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Context.PendingClarification = pc
}

func (s *Session) clearPendingClarification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Context.PendingClarification = nil
}

func (s *Session) history(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.Messages) {
		n = len(s.Messages)
	}
	out := make([]Message, n)
	copy(out, s.Messages[len(s.Messages)-n:])
	return out
}
