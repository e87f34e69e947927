// Package analytics implements best-effort event emission and batched
// persistence for the admin surface's intent-distribution and
// handler-outcome summaries.
//
// The background flush loop follows a Start/Stop/run shape: it flushes on
// every tick, and Stop flushes once more after the loop exits. The emit path is append-only and lock-minimized,
// holding the lock only long enough to swap the pending buffer.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/voiceorch/core/pkg/adminstore"
	"github.com/voiceorch/core/pkg/obs"
)

// Event Kind values, matching the orchestrator lifecycle points that emit
// them. The set is open-ended; these are the ones the pipeline emits today.
const (
	KindSessionCreated         = "session_created"
	KindFollowupDetected       = "followup_detected"
	KindClarificationTriggered = "clarification_triggered"
	KindClarificationResolved  = "clarification_resolved"
	KindClarificationTimeout   = "clarification_timeout"
	KindCacheHit               = "cache_hit"
	KindCacheMiss              = "cache_miss"
	KindHandlerSelected        = "handler_selected"
	KindFallbackInvoked        = "fallback_invoked"
	KindHallucinationDetected  = "hallucination_detected"
	KindRequestCompleted       = "request_completed"
)

// Event is one orchestrated-request occurrence worth recording, append-only.
type Event struct {
	Kind       string // one of the Kind* constants
	Category   string
	Intent     string
	Outcome    string // "success", "failure", "clarification", "validation_retry"
	Latency    time.Duration
	SessionID  string
	OccurredAt time.Time
}

// Recorder persists a bounded in-memory buffer of Events
type Recorder struct {
	store         *adminstore.Store
	flushInterval time.Duration
	maxBatch      int

	mu   sync.Mutex
	buf  []Event

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Recorder. Events are buffered in-process and flushed to
// store on the configured interval or when maxBatch is reached.
func New(store *adminstore.Store, flushInterval time.Duration, maxBatch int) *Recorder {
	return &Recorder{store: store, flushInterval: flushInterval, maxBatch: maxBatch}
}

// Emit records an event. It never blocks on persistence: the event is
// appended to the in-process buffer and flushed asynchronously.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.buf = append(r.buf, e)
	full := len(r.buf) >= r.maxBatch
	r.mu.Unlock()

	if full {
		go r.flush(context.Background())
	}
}

// Start launches the periodic flush loop.
func (r *Recorder) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
}

// Stop signals the flush loop to exit, waits for it, and flushes any
// remaining buffered events.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.flush(context.Background())
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	rows := make([]adminstore.AnalyticsEventRow, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, adminstore.AnalyticsEventRow{
			Kind:       e.Kind,
			Category:   e.Category,
			Intent:     e.Intent,
			Outcome:    e.Outcome,
			LatencyMs:  int(e.Latency.Milliseconds()),
			SessionID:  e.SessionID,
			OccurredAt: e.OccurredAt,
		})
	}
	if err := r.store.InsertAnalyticsEvents(ctx, rows); err != nil {
		obs.L().Error("analytics flush failed", "error", err, "dropped", len(rows))
	}
}

// Summarize returns per-category aggregates over the trailing window.
func (r *Recorder) Summarize(ctx context.Context, since time.Time) ([]adminstore.CategorySummary, error) {
	return r.store.SummarizeSince(ctx, since)
}
