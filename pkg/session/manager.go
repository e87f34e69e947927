package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voiceorch/core/pkg/kvstore"
)

// DeriveID computes the stable opaque session identifier from a zone and a
// caller fingerprint (never user identity).
func DeriveID(zone, fingerprint string) string {
	sum := sha256.Sum256([]byte(zone + "|" + fingerprint))
	return hex.EncodeToString(sum[:16])
}

// ExportFormat selects how export() serializes a session for admin/debug.
type ExportFormat string

const (
	ExportStructured ExportFormat = "structured"
	ExportPlaintext  ExportFormat = "plaintext"
	ExportMarkedUp   ExportFormat = "marked-up"
)

const kvKeyPrefix = "session:"

// Manager is the session/context manager. The external key/value store is
// primary; the in-process mirror serves reads at low latency and keeps
// the process correct on its own during a key/value-store outage.
type Manager struct {
	kv  *kvstore.Client
	mu  sync.RWMutex
	mir map[string]*Session

	maxMessages           int
	timeoutSeconds        int
	sessionTTL            time.Duration
	maxLLMHistoryMessages int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Manager over a snapshot of the admin-managed
// ConversationSettings row; SetTimeoutSeconds may be called when the config
// loader reports a refreshed snapshot.
func New(kv *kvstore.Client, maxMessages, timeoutSeconds int, sessionTTL time.Duration, maxLLMHistoryMessages int) *Manager {
	return &Manager{
		kv:                    kv,
		mir:                   make(map[string]*Session),
		maxMessages:           maxMessages,
		timeoutSeconds:        timeoutSeconds,
		sessionTTL:            sessionTTL,
		maxLLMHistoryMessages: maxLLMHistoryMessages,
	}
}

// SetTimeoutSeconds updates the expiry window used by Expired checks and the
// reaper.
func (m *Manager) SetTimeoutSeconds(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeoutSeconds = seconds
}

func (m *Manager) lookup(ctx context.Context, id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.mir[id]
	m.mu.RUnlock()
	if ok {
		return s, true
	}

	raw, found, err := m.kv.Get(ctx, kvKeyPrefix+id)
	if err != nil {
		slog.Warn("session store unavailable, falling back to in-process mirror only", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var s2 Session
	if err := json.Unmarshal(raw, &s2); err != nil {
		slog.Warn("session record corrupt, discarding", "session_id", id, "error", err)
		return nil, false
	}
	m.mu.Lock()
	m.mir[id] = &s2
	m.mu.Unlock()
	return &s2, true
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	clone := s.Clone()
	raw, err := json.Marshal(&clone)
	if err != nil {
		slog.Error("failed to marshal session for persistence", "session_id", s.ID, "error", err)
		return
	}
	if err := m.kv.Set(ctx, kvKeyPrefix+s.ID, raw, m.sessionTTL); err != nil {
		slog.Warn("session store write failed, in-process mirror remains authoritative", "session_id", s.ID, "error", err)
	}
}

// GetOrCreate returns the session for id, or creates a fresh one if id is
// empty or refers to an expired/missing session. The second return value
// reports whether a new session was created.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, bool) {
	now := time.Now()
	if id != "" {
		if s, ok := m.lookup(ctx, id); ok && !s.Expired(now, m.timeoutSeconds) {
			return s, false
		}
		m.mu.Lock()
		delete(m.mir, id)
		m.mu.Unlock()
	}

	newID := id
	if newID == "" {
		newID = uuid.NewString()
	}
	s := &Session{ID: newID, CreatedAt: now, LastActivity: now}
	m.mu.Lock()
	m.mir[newID] = s
	m.mu.Unlock()
	m.persist(ctx, s)
	return s, true
}

// Append adds a message, enforcing max_messages by evicting the oldest.
// Atomic per session via the Session's own mutex.
func (m *Manager) Append(ctx context.Context, id string, role MessageRole, text string, intent string, entities map[string]string) error {
	s, ok := m.lookup(ctx, id)
	if !ok {
		return fmt.Errorf("session: append: %s not found", id)
	}
	s.append(Message{Role: role, Text: text, Timestamp: time.Now(), Intent: intent, Entities: entities}, m.maxMessages)
	m.persist(ctx, s)
	return nil
}

// History returns the last n messages in chronological order; n<=0 uses
// maxLLMHistoryMessages.
func (m *Manager) History(ctx context.Context, id string, n int) ([]Message, error) {
	s, ok := m.lookup(ctx, id)
	if !ok {
		return nil, fmt.Errorf("session: history: %s not found", id)
	}
	if n <= 0 {
		n = m.maxLLMHistoryMessages
	}
	return s.history(n), nil
}

// SetContext merges updates into the session's SessionContext.
func (m *Manager) SetContext(ctx context.Context, id string, updates Context) error {
	s, ok := m.lookup(ctx, id)
	if !ok {
		return fmt.Errorf("session: set_context: %s not found", id)
	}
	s.setContext(updates)
	m.persist(ctx, s)
	return nil
}

// SetPendingClarification attaches pc to the session.
func (m *Manager) SetPendingClarification(ctx context.Context, id string, pc *PendingClarification) error {
	s, ok := m.lookup(ctx, id)
	if !ok {
		return fmt.Errorf("session: set_pending_clarification: %s not found", id)
	}
	s.setPendingClarification(pc)
	m.persist(ctx, s)
	return nil
}

// ClearPendingClarification removes any pending clarification from the session.
func (m *Manager) ClearPendingClarification(ctx context.Context, id string) error {
	s, ok := m.lookup(ctx, id)
	if !ok {
		return fmt.Errorf("session: clear_pending_clarification: %s not found", id)
	}
	s.clearPendingClarification()
	m.persist(ctx, s)
	return nil
}

// Export serializes the session for admin/debug.
func (m *Manager) Export(ctx context.Context, id string, format ExportFormat) (string, error) {
	s, ok := m.lookup(ctx, id)
	if !ok {
		return "", fmt.Errorf("session: export: %s not found", id)
	}
	clone := s.Clone()
	switch format {
	case ExportPlaintext:
		var b strings.Builder
		for _, msg := range clone.Messages {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Text)
		}
		return b.String(), nil
	case ExportMarkedUp:
		var b strings.Builder
		for _, msg := range clone.Messages {
			fmt.Fprintf(&b, "**%s**: %s\n\n", msg.Role, msg.Text)
		}
		return b.String(), nil
	default:
		raw, err := json.MarshalIndent(&clone, "", "  ")
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// Delete removes a session from both the mirror and the external store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.mir, id)
	m.mu.Unlock()
	return m.kv.Delete(ctx, kvKeyPrefix+id)
}

// ActiveCount reports the number of sessions in the in-process mirror, used
// for the orchestrator's active_sessions gauge.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mir)
}

// Summary is the per-session projection List returns: enough to identify
// and sort sessions without pulling each one's full message history.
type Summary struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	MessageCount int
}

// List enumerates every known session ID from the external store (the
// authoritative set, since the in-process mirror only holds what this
// process has touched) and returns a Summary for each one it can still
// resolve.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	keys, err := m.kv.Keys(ctx, kvKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	out := make([]Summary, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, kvKeyPrefix)
		s, ok := m.lookup(ctx, id)
		if !ok {
			continue
		}
		clone := s.Clone()
		out = append(out, Summary{
			ID:           clone.ID,
			CreatedAt:    clone.CreatedAt,
			LastActivity: clone.LastActivity,
			MessageCount: len(clone.Messages),
		})
	}
	return out, nil
}

// Start launches the background reaper: cancel func + done channel,
// immediate pass, then tick every cleanup_interval_seconds until
// cancelled.
func (m *Manager) Start(ctx context.Context, cleanupInterval time.Duration) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, cleanupInterval)
}

func (m *Manager) run(ctx context.Context, interval time.Duration) {
	defer close(m.done)
	m.reapOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

func (m *Manager) reapOnce() {
	now := time.Now()
	m.mu.Lock()
	var expired []string
	for id, s := range m.mir {
		if s.Expired(now, m.timeoutSeconds) {
			delete(m.mir, id)
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()
	for _, id := range expired {
		if err := m.kv.Delete(context.Background(), kvKeyPrefix+id); err != nil {
			slog.Warn("session store delete failed during reap", "session_id", id, "error", err)
		}
	}
}

// Stop signals the reaper to exit and waits for it to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}
