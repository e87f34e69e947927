// Package cachetier implements a three-layer cache: an in-process LRU
// (fastest, small), an external key/value store (persistent, shared),
// and an on-disk spill (last resort). Get probes layers in order and
// promotes a lower-layer hit upward; Set writes the in-process and
// external layers with a per-category TTL, and also copies the value to
// the on-disk layer when one is configured.
//
// The in-process layer checks and deletes an expired entry under the same
// mutex that guards the lookup, so two goroutines cannot race on it, and
// bounds itself with an LRU eviction list.
package cachetier

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// External is the key/value store layer (pkg/kvstore.Client satisfies this).
type External interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// categoryTTLs are the per-category bounds.
var categoryTTLs = map[string]time.Duration{
	"weather":          600 * time.Second,
	"events":           3600 * time.Second,
	"streaming-lookup": 86400 * time.Second,
	"news":             1800 * time.Second,
	"stock":            300 * time.Second,
	"web-search":       3600 * time.Second,
	"static":           86400 * time.Second,
}

// TTLFor returns the configured TTL for category, defaulting to the
// web-search bound if the category is unrecognized.
func TTLFor(category string) time.Duration {
	if ttl, ok := categoryTTLs[category]; ok {
		return ttl
	}
	return categoryTTLs["web-search"]
}

// Stats reports hit/miss counters, one set per category plus a total.
type Stats struct {
	HitsTotal   int64
	MissesTotal int64
	ByCategory  map[string]*CategoryStats
}

type CategoryStats struct {
	Hits   int64
	Misses int64
}

// Tier is the three-layer cache.
type Tier struct {
	mu       sync.Mutex
	lru      map[string]*list.Element
	order    *list.List
	capacity int

	external External
	disk     *bbolt.DB

	hitsTotal   int64
	missesTotal int64
	catMu       sync.Mutex
	byCategory  map[string]*CategoryStats
}

type lruEntry struct {
	key       string
	value     []byte
	category  string
	insertedAt time.Time
	ttl       time.Duration
}

// New creates a Tier with the given in-process capacity. disk may be nil to
// disable the on-disk spill layer (e.g. in unit tests).
func New(capacity int, external External, disk *bbolt.DB) *Tier {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Tier{
		lru:        make(map[string]*list.Element),
		order:      list.New(),
		capacity:   capacity,
		external:   external,
		disk:       disk,
		byCategory: make(map[string]*CategoryStats),
	}
}

func (t *Tier) recordHit(category string) {
	atomic.AddInt64(&t.hitsTotal, 1)
	t.catMu.Lock()
	defer t.catMu.Unlock()
	s, ok := t.byCategory[category]
	if !ok {
		s = &CategoryStats{}
		t.byCategory[category] = s
	}
	atomic.AddInt64(&s.Hits, 1)
}

func (t *Tier) recordMiss(category string) {
	atomic.AddInt64(&t.missesTotal, 1)
	t.catMu.Lock()
	defer t.catMu.Unlock()
	s, ok := t.byCategory[category]
	if !ok {
		s = &CategoryStats{}
		t.byCategory[category] = s
	}
	atomic.AddInt64(&s.Misses, 1)
}

// Get probes in-process, then external, then on-disk, in order. A hit in a
// lower layer is promoted into the in-process layer.
func (t *Tier) Get(ctx context.Context, key, category string) ([]byte, bool) {
	if v, ok := t.getLocal(key); ok {
		t.recordHit(category)
		return v, true
	}

	if t.external != nil {
		if v, ok, err := t.external.Get(ctx, key); err == nil && ok {
			t.recordHit(category)
			t.setLocal(key, v, category, TTLFor(category))
			return v, true
		} else if err != nil {
			slog.Warn("cachetier: external layer unavailable, degrading to in-process only", "error", err)
		}
	}

	if t.disk != nil {
		if v, ok := t.getDisk(key); ok {
			t.recordHit(category)
			t.setLocal(key, v, category, TTLFor(category))
			return v, true
		}
	}

	t.recordMiss(category)
	return nil, false
}

// Set writes the in-process and external layers with category's TTL, and
// the on-disk layer when one is configured.
func (t *Tier) Set(ctx context.Context, key, category string, value []byte) {
	ttl := TTLFor(category)
	t.setLocal(key, value, category, ttl)
	if t.external != nil {
		if err := t.external.Set(ctx, key, value, ttl); err != nil {
			slog.Warn("cachetier: external layer write failed, in-process only", "error", err)
		}
	}
	if t.disk != nil {
		t.setDisk(key, value)
	}
}

func (t *Tier) getLocal(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	el, ok := t.lru[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*lruEntry)
	if time.Since(e.insertedAt) > e.ttl {
		t.order.Remove(el)
		delete(t.lru, key)
		return nil, false
	}
	t.order.MoveToFront(el)
	return e.value, true
}

func (t *Tier) setLocal(key string, value []byte, category string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.lru[key]; ok {
		e := el.Value.(*lruEntry)
		e.value = value
		e.insertedAt = time.Now()
		e.ttl = ttl
		t.order.MoveToFront(el)
		return
	}
	e := &lruEntry{key: key, value: value, category: category, insertedAt: time.Now(), ttl: ttl}
	el := t.order.PushFront(e)
	t.lru[key] = el
	for t.order.Len() > t.capacity {
		back := t.order.Back()
		if back == nil {
			break
		}
		t.order.Remove(back)
		delete(t.lru, back.Value.(*lruEntry).key)
	}
}

var bucketName = []byte("cache")

func (t *Tier) getDisk(key string) ([]byte, bool) {
	var value []byte
	_ = t.disk.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, value != nil
}

func (t *Tier) setDisk(key string, value []byte) {
	_ = t.disk.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Stats returns a snapshot of hit/miss counters.
func (t *Tier) Stats() Stats {
	t.catMu.Lock()
	defer t.catMu.Unlock()
	byCat := make(map[string]*CategoryStats, len(t.byCategory))
	for k, v := range t.byCategory {
		cp := *v
		byCat[k] = &cp
	}
	return Stats{
		HitsTotal:   atomic.LoadInt64(&t.hitsTotal),
		MissesTotal: atomic.LoadInt64(&t.missesTotal),
		ByCategory:  byCat,
	}
}
