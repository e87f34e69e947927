// Package handlers implements the facade handlers: one component per
// category (weather, sports, events, streaming, flights, news, stocks,
// location, web-search, static), all sharing a cascade of cache lookup
// -> external data-source call -> typed absence. Each handler's HTTP
// calls share pkg/httpclient; rate-limit tracking is a ticker-driven
// daily reset with the same Start/Stop/run shape used elsewhere for
// background tasks.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/voiceorch/core/pkg/cachetier"
	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/httpclient"
	"github.com/voiceorch/core/pkg/orcherr"
)

// Response is a handler's successful output.
type Response struct {
	Text     string
	Category string
}

// Handler is the contract every facade handler implements.
type Handler interface {
	// Category is the data_source / cache category this handler owns.
	Category() string
	// Handle executes the cache -> source -> absence cascade for one intent.
	Handle(ctx context.Context, intent classify.Intent, zone string, sessCtx classify.SessionContext) (Response, error)
}

// NormalizeKey applies a fixed, documented per-handler key-normalization
// algorithm (lower-case, trim, sorted entity pairs) so cache keys are
// deterministic across handlers.
func NormalizeKey(category, query string, entities map[string]string) string {
	var b strings.Builder
	b.WriteString(category)
	b.WriteString(":")
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))
	if len(entities) > 0 {
		keys := make([]string, 0, len(entities))
		for k := range entities {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("|")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(strings.ToLower(entities[k]))
		}
	}
	return b.String()
}

// rateLimiter tracks a per-category daily request budget, reset by a
// background ticker.
type rateLimiter struct {
	budget  int64
	used    int64
	cancel  context.CancelFunc
	done    chan struct{}
}

func newRateLimiter(budget int) *rateLimiter {
	return &rateLimiter{budget: int64(budget)}
}

// Start begins the daily reset loop. Grounded structurally on
// pkg/cleanup/service.go: cancel func + done channel, then a 24-hour tick
// that zeroes the used count until ctx is cancelled. Nothing runs at start.
func (r *rateLimiter) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
}

func (r *rateLimiter) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			atomic.StoreInt64(&r.used, 0)
		}
	}
}

func (r *rateLimiter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Allow consumes one unit of budget; returns false if the daily budget is
// exhausted, in which case the caller short-circuits to a fallback message.
func (r *rateLimiter) Allow() bool {
	if r.budget <= 0 {
		return true // unbounded
	}
	return atomic.AddInt64(&r.used, 1) <= r.budget
}

// Fetcher performs the category-specific external call: build a request
// from the intent's entities, return the raw upstream response parsed into
// a display string.
type Fetcher func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error)

// CascadeHandler is the generic facade implementation shared by every
// data-backed category; only Fetcher and the category/budget differ.
type CascadeHandler struct {
	category    string
	cache       *cachetier.Tier
	client      *httpclient.Client
	fetch       Fetcher
	limiter     *rateLimiter
	fallbackMsg string
}

// NewCascadeHandler wires a category's cache, HTTP client, fetch function,
// and daily budget into the shared cascade.
func NewCascadeHandler(category string, cache *cachetier.Tier, client *httpclient.Client, fetch Fetcher, dailyBudget int, fallbackMsg string) *CascadeHandler {
	h := &CascadeHandler{
		category:    category,
		cache:       cache,
		client:      client,
		fetch:       fetch,
		limiter:     newRateLimiter(dailyBudget),
		fallbackMsg: fallbackMsg,
	}
	return h
}

// Start/Stop expose the rate limiter's background reset task to the
// process's lifecycle supervision.
func (h *CascadeHandler) Start(ctx context.Context) { h.limiter.Start(ctx) }
func (h *CascadeHandler) Stop()                     { h.limiter.Stop() }

func (h *CascadeHandler) Category() string { return h.category }

// Handle performs: (1) cache lookup; (2) external call with bounded
// timeout/retries (httpclient); (3) on failure, typed absence. Side
// effects: cache write on success, no session mutation.
func (h *CascadeHandler) Handle(ctx context.Context, intent classify.Intent, zone string, sessCtx classify.SessionContext) (Response, error) {
	key := NormalizeKey(h.category, intent.Text, intent.Entities)

	if cached, ok := h.cache.Get(ctx, key, h.category); ok {
		return Response{Text: string(cached), Category: h.category}, nil
	}

	if !h.limiter.Allow() {
		return Response{Text: h.fallbackMsg, Category: h.category}, nil
	}

	text, err := h.fetch(ctx, h.client, intent, zone)
	if err != nil {
		return Response{}, &orcherr.UpstreamUnavailableError{Service: h.category, Err: err}
	}
	if text == "" {
		return Response{}, fmt.Errorf("%w: %s produced empty response", orcherr.ErrNotApplicable, h.category)
	}

	h.cache.Set(ctx, key, h.category, []byte(text))
	return Response{Text: text, Category: h.category}, nil
}
