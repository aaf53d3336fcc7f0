// Package cache holds the hot-cache backends (in-process and Redis) and the
// URL cache built on top of them.
package cache

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

type lruEntry struct {
	key        string
	value      []byte
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryLRU is a mutex-guarded TTL store with a size-bounded recency list.
// The front of order is the most recently used entry.
type MemoryLRU struct {
	mu      sync.Mutex
	maxSize int
	clock   domain.Clock
	items   map[string]*list.Element
	order   *list.List
}

func NewMemoryLRU(maxSize int, clock domain.Clock) *MemoryLRU {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &MemoryLRU{
		maxSize: maxSize,
		clock:   clock,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Put stores value and marks key most recently used, evicting the least
// recently used entries while the cache is over size.
func (c *MemoryLRU) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = now.Add(ttl)
		entry.lastAccess = now
		c.order.MoveToFront(el)
		return nil
	}

	c.items[key] = c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: now.Add(ttl), lastAccess: now})
	for c.order.Len() > c.maxSize {
		c.drop(c.order.Back())
		metrics.CacheEvictions.Inc()
	}
	return nil
}

// Get returns the value and refreshes its recency. Expired entries miss.
func (c *MemoryLRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*lruEntry)
	now := c.clock.Now()
	if !now.Before(entry.expiresAt) {
		c.drop(el)
		return nil, false, nil
	}
	entry.lastAccess = now
	c.order.MoveToFront(el)
	return entry.value, true, nil
}

func (c *MemoryLRU) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if el, ok := c.items[key]; ok {
			c.drop(el)
		}
	}
	return nil
}

func (c *MemoryLRU) Stats(_ context.Context) (domain.LRUStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := domain.LRUStats{Count: int64(c.order.Len())}
	if c.order.Len() > 0 {
		oldest := c.order.Back().Value.(*lruEntry).lastAccess
		newest := c.order.Front().Value.(*lruEntry).lastAccess
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats, nil
}

func (c *MemoryLRU) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Len returns the number of indexed entries.
func (c *MemoryLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// drop unlinks el. Callers hold mu.
func (c *MemoryLRU) drop(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*lruEntry).key)
}

// MemoryHotTracker is an in-process popularity ranking. The whole ranking
// expires ttl after its last increment.
type MemoryHotTracker struct {
	mu        sync.Mutex
	ttl       time.Duration
	clock     domain.Clock
	scores    map[string]float64
	expiresAt time.Time
}

func NewMemoryHotTracker(ttl time.Duration, clock domain.Clock) *MemoryHotTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &MemoryHotTracker{ttl: ttl, clock: clock, scores: make(map[string]float64)}
}

func (h *MemoryHotTracker) Increment(_ context.Context, member string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	h.expireLocked(now)
	h.scores[member]++
	h.expiresAt = now.Add(h.ttl)
	return nil
}

func (h *MemoryHotTracker) Top(_ context.Context, n int) ([]ports.ScoredMember, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.expireLocked(h.clock.Now())
	out := make([]ports.ScoredMember, 0, len(h.scores))
	for m, s := range h.scores {
		out = append(out, ports.ScoredMember{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (h *MemoryHotTracker) Count(_ context.Context) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expireLocked(h.clock.Now())
	return int64(len(h.scores)), nil
}

func (h *MemoryHotTracker) Clear(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scores = make(map[string]float64)
	return nil
}

func (h *MemoryHotTracker) expireLocked(now time.Time) {
	if len(h.scores) > 0 && !now.Before(h.expiresAt) {
		h.scores = make(map[string]float64)
	}
}

var (
	_ ports.LRUCache   = (*MemoryLRU)(nil)
	_ ports.HotTracker = (*MemoryHotTracker)(nil)
)
