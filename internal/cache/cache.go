// Package cache implements the bounded, content-addressed cache: a
// hash index for key lookup, a doubly-linked LRU list for eviction, and
// a background reaper that deletes time-expired entries. Grounded on
// friggdb/backend/cache's ticker-plus-stopCh janitor goroutine for the
// reaper shape, generalized from disk-file pruning to a hash-bucket
// walk over in-memory entries.
package cache

import (
	"bytes"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/avdonina/cacheproxy/internal/cacheentry"
	"github.com/avdonina/cacheproxy/internal/config"
)

var (
	metricSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cache_proxy",
		Name:      "cache_size",
		Help:      "Current number of live cache entries.",
	})
	metricCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cache_proxy",
		Name:      "cache_capacity",
		Help:      "Configured maximum number of live cache entries.",
	})
	metricHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cache_proxy",
		Name:      "cache_hits_total",
		Help:      "Number of Get calls that found a live entry.",
	})
	metricMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cache_proxy",
		Name:      "cache_misses_total",
		Help:      "Number of Get calls that found no entry.",
	})
	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cache_proxy",
		Name:      "cache_evictions_total",
		Help:      "Number of entries evicted by the LRU or the reaper.",
	})
)

// Config sizes the cache and its reaper.
type Config struct {
	// Capacity is the maximum number of live entries.
	Capacity int
	// BucketCount sizes the hash table independently of Capacity, per
	// the reimplementation's decision to decouple the two concerns the
	// original conflated (see DESIGN.md's Open Questions section).
	BucketCount int
	// ExpiryMs is the per-entry TTL in milliseconds.
	ExpiryMs int64
}

// node wraps a CacheEntry with LRU and hash-chain bookkeeping. Each
// node carries its own lock protecting lastUsed and hashNext, one mutex
// per node rather than per bucket, for finer-grained reader
// concurrency than a single per-bucket lock would give.
type node struct {
	mu       sync.RWMutex
	entry    *cacheentry.Entry
	lastUsed time.Time
	hashNext *node

	lruPrev *node
	lruNext *node
}

// Cache is the bounded key->entry store: hash-bucket lookup, a
// separate LRU list for eviction, an atomic live count, and a reaper
// goroutine sweeping expired entries.
type Cache struct {
	logger log.Logger
	cfg    Config

	bucketMu sync.RWMutex // guards bucket head pointer reads/writes
	buckets  []*node

	lruMu   sync.Mutex
	lruHead *node // sentinel
	lruTail *node // sentinel

	size atomic.Int64

	reaperRunning atomic.Bool
	reaperStop    chan struct{}
	reaperDone    chan struct{}
}

// New constructs a Cache and starts its reaper goroutine.
func New(cfg Config, logger log.Logger) *Cache {
	if cfg.BucketCount <= 0 {
		cfg.BucketCount = cfg.Capacity
	}
	c := &Cache{
		logger:     logger,
		cfg:        cfg,
		buckets:    make([]*node, cfg.BucketCount),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	c.lruHead = &node{}
	c.lruTail = &node{}
	c.lruHead.lruNext = c.lruTail
	c.lruTail.lruPrev = c.lruHead

	metricCapacity.Set(float64(cfg.Capacity))

	c.reaperRunning.Store(true)
	go c.runReaper()

	return c
}

func (c *Cache) hash(key []byte) int {
	// Polynomial rolling hash: hash_value = hash_value*31 + byte,
	// reduced mod bucket count.
	var h uint64
	for _, b := range key {
		h = h*31 + uint64(b)
	}
	return int(h % uint64(len(c.buckets)))
}

// Get looks up req in the hash index. On a live match it refreshes
// last-used and moves the node to the LRU head, then returns the
// entry. It never returns a node that has already been unlinked, but
// may return one whose TTL has just lapsed; the reaper will catch that
// on its next sweep.
func (c *Cache) Get(req []byte) (*cacheentry.Entry, bool) {
	idx := c.hash(req)

	c.bucketMu.RLock()
	n := c.buckets[idx]
	c.bucketMu.RUnlock()

	for n != nil {
		n.mu.RLock()
		match := bytes.Equal(n.entry.Request(), req) && !n.entry.Deleted()
		next := n.hashNext
		n.mu.RUnlock()

		if match {
			n.mu.Lock()
			n.lastUsed = time.Now()
			n.mu.Unlock()
			c.touchLRU(n)
			metricHits.Inc()
			return n.entry, true
		}
		n = next
	}
	metricMisses.Inc()
	return nil, false
}

// Add inserts a new node for e. It is linked into the hash index
// before the LRU list, so a concurrent Get may observe it in the
// bucket before it has an LRU position; this is benign since LRU
// placement is only an eviction hint. If the insert pushes size above
// capacity, Add evicts LRU-tail entries (via the normal delete path)
// until size is back at or below capacity.
func (c *Cache) Add(e *cacheentry.Entry) error {
	idx := c.hash(e.Request())
	n := &node{entry: e, lastUsed: time.Now()}

	c.bucketMu.Lock()
	n.hashNext = c.buckets[idx]
	c.buckets[idx] = n
	c.bucketMu.Unlock()

	c.pushLRUHead(n)
	newSize := c.size.Add(1)
	metricSize.Set(float64(newSize))

	for c.size.Load() > int64(c.cfg.Capacity) {
		tail := c.lruTailNode()
		if tail == nil {
			break
		}
		metricEvictions.Inc()
		_ = c.Delete(tail.entry.Request())
	}
	return nil
}

// Delete removes the node keyed by req, marks its entry deleted and
// broadcasts that to any waiters, and decrements size. Returns
// config.ErrNotFound if no live node matches req.
func (c *Cache) Delete(req []byte) error {
	idx := c.hash(req)

	c.bucketMu.Lock()
	var prev *node
	n := c.buckets[idx]
	for n != nil {
		n.mu.RLock()
		match := bytes.Equal(n.entry.Request(), req)
		n.mu.RUnlock()
		if match {
			break
		}
		prev = n
		n = n.hashNext
	}
	if n == nil {
		c.bucketMu.Unlock()
		return errors.Wrap(config.ErrNotFound, "cache: delete")
	}
	if prev == nil {
		c.buckets[idx] = n.hashNext
	} else {
		prev.mu.Lock()
		prev.hashNext = n.hashNext
		prev.mu.Unlock()
	}
	c.bucketMu.Unlock()

	c.unlinkLRU(n)
	newSize := c.size.Add(-1)
	if newSize < 0 {
		c.size.Store(0)
		newSize = 0
	}
	metricSize.Set(float64(newSize))

	n.entry.MarkDeleted()
	return nil
}

// Size returns the current number of live entries.
func (c *Cache) Size() int {
	return int(c.size.Load())
}

// Destroy stops and joins the reaper. The node/bucket structures are
// simply dropped; Go's garbage collector reclaims them once the last
// handle (held by the index or by an in-flight handler) is released.
func (c *Cache) Destroy() {
	if !c.reaperRunning.CompareAndSwap(true, false) {
		return
	}
	close(c.reaperStop)
	<-c.reaperDone
}

func (c *Cache) runReaper() {
	defer close(c.reaperDone)

	interval := time.Duration(c.cfg.ExpiryMs/2) * time.Millisecond
	if interval <= 0 || interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	glog := level.Debug(log.With(c.logger, "thread", "garbage-collector"))

	for {
		select {
		case <-c.reaperStop:
			return
		case <-ticker.C:
			c.sweep(glog)
		}
	}
}

func (c *Cache) sweep(glog log.Logger) {
	now := time.Now()
	ttl := time.Duration(c.cfg.ExpiryMs) * time.Millisecond

	c.bucketMu.RLock()
	var expired [][]byte
	for _, head := range c.buckets {
		for n := head; n != nil; {
			n.mu.RLock()
			age := now.Sub(n.lastUsed)
			req := n.entry.Request()
			next := n.hashNext
			n.mu.RUnlock()
			if age >= ttl {
				expired = append(expired, req)
			}
			n = next
		}
	}
	c.bucketMu.RUnlock()

	for _, req := range expired {
		if err := c.Delete(req); err != nil {
			if config.Is(err, config.ErrNotFound) {
				continue
			}
			glog.Log("msg", "reaper delete failed", "err", err)
			continue
		}
		metricEvictions.Inc()
	}
}

func (c *Cache) pushLRUHead(n *node) {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()
	n.lruPrev = c.lruHead
	n.lruNext = c.lruHead.lruNext
	c.lruHead.lruNext.lruPrev = n
	c.lruHead.lruNext = n
}

func (c *Cache) unlinkLRU(n *node) {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()
	if n.lruPrev == nil && n.lruNext == nil {
		return // never linked (benign race, see hash-vs-LRU ordering note)
	}
	n.lruPrev.lruNext = n.lruNext
	n.lruNext.lruPrev = n.lruPrev
	n.lruPrev = nil
	n.lruNext = nil
}

func (c *Cache) touchLRU(n *node) {
	c.lruMu.Lock()
	if n.lruPrev == nil && n.lruNext == nil {
		c.lruMu.Unlock()
		return
	}
	n.lruPrev.lruNext = n.lruNext
	n.lruNext.lruPrev = n.lruPrev
	n.lruPrev = c.lruHead
	n.lruNext = c.lruHead.lruNext
	c.lruHead.lruNext.lruPrev = n
	c.lruHead.lruNext = n
	c.lruMu.Unlock()
}

func (c *Cache) lruTailNode() *node {
	c.lruMu.Lock()
	defer c.lruMu.Unlock()
	if c.lruTail.lruPrev == c.lruHead {
		return nil
	}
	return c.lruTail.lruPrev
}
