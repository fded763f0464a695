// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package querycache caches physical plans keyed by the canonical form of
// the optimized logical plan they were built from.
package querycache

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/util/cache"
	"github.com/cockroachdb/relcore/pkg/util/metric"
	"github.com/cockroachdb/relcore/pkg/util/syncutil"
)

// DefaultCapacity is the number of plans kept by a cache created with a
// non-positive capacity.
const DefaultCapacity = 128

// CachedData is the data associated with a cache entry.
type CachedData struct {
	// Canonical is the formatted canonical form of the optimized plan.
	Canonical string
	Plan      *physicalplan.Plan

	// lastUsed is the value of the cache clock at the last lookup or
	// insertion of the entry.
	lastUsed atomic.Int64
}

// Metrics are the counters maintained by a cache.
type Metrics struct {
	Hits      *metric.Counter
	Misses    *metric.Counter
	Evictions *metric.Counter
}

// MakeMetrics creates the cache metrics.
func MakeMetrics() Metrics {
	return Metrics{
		Hits: metric.NewCounter(metric.Metadata{
			Name: "sql_plan_cache_hits_total",
			Help: "Number of physical plans found in the plan cache",
		}),
		Misses: metric.NewCounter(metric.Metadata{
			Name: "sql_plan_cache_misses_total",
			Help: "Number of plan cache lookups that found no plan",
		}),
		Evictions: metric.NewCounter(metric.Metadata{
			Name: "sql_plan_cache_evictions_total",
			Help: "Number of plans evicted from the plan cache",
		}),
	}
}

// Cache is a cache of physical plans. Lookups take a shared lock and
// insertions an exclusive one. When full, the least recently used plan is
// evicted.
type Cache struct {
	capacity int
	metrics  *Metrics
	// clock orders lookups and insertions for the LRU policy.
	clock atomic.Int64

	mu struct {
		syncutil.RWMutex
		// The backing cache keeps no ordering of its own, so that lookups do
		// not modify it.
		cache *cache.TypedUnorderedCache[uint64, *CachedData]
	}
}

// New creates a cache of at most capacity plans. The metrics may be nil.
func New(capacity int, metrics *Metrics) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if metrics == nil {
		m := MakeMetrics()
		metrics = &m
	}
	c := &Cache{capacity: capacity, metrics: metrics}
	c.mu.cache = cache.NewTypedUnorderedCache[uint64, *CachedData](
		cache.TypedConfig[uint64, *CachedData]{Policy: cache.CacheNone},
	)
	return c
}

// Key returns the fingerprint and canonical form under which the plan
// built from the optimized expression e is cached.
func Key(e memo.RelExpr) (fingerprint uint64, canonical string) {
	canonical = memo.CanonicalString(e)
	// This is memo.Fingerprint(e), without formatting the plan twice.
	return xxhash.Sum64String(canonical), canonical
}

// Find returns the plan cached for the optimized expression e.
func (c *Cache) Find(e memo.RelExpr) (*physicalplan.Plan, bool) {
	fp, canonical := Key(e)
	return c.FindKey(fp, canonical)
}

// FindKey returns the plan cached under the given key.
func (c *Cache) FindKey(fingerprint uint64, canonical string) (*physicalplan.Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.mu.cache.Get(fingerprint)
	// Distinct plans can share a fingerprint.
	if !ok || entry.Canonical != canonical {
		c.metrics.Misses.Inc(1)
		return nil, false
	}
	entry.lastUsed.Store(c.clock.Add(1))
	c.metrics.Hits.Inc(1)
	return entry.Plan, true
}

// Add caches the plan built from the optimized expression e.
func (c *Cache) Add(e memo.RelExpr, plan *physicalplan.Plan) {
	fp, canonical := Key(e)
	c.AddKey(fp, canonical, plan)
}

// AddKey caches the plan under the given key, replacing any plan cached
// under the same fingerprint.
func (c *Cache) AddKey(fingerprint uint64, canonical string, plan *physicalplan.Plan) {
	entry := &CachedData{Canonical: canonical, Plan: plan}
	entry.lastUsed.Store(c.clock.Add(1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.mu.cache.Get(fingerprint); !ok {
		for c.mu.cache.Len() >= c.capacity {
			c.evictLocked()
		}
	}
	c.mu.cache.Add(fingerprint, entry)
}

// evictLocked removes the least recently used entry.
func (c *Cache) evictLocked() {
	c.mu.AssertHeld()
	var victim uint64
	oldest := int64(-1)
	c.mu.cache.Do(func(key uint64, entry *CachedData) {
		if used := entry.lastUsed.Load(); oldest < 0 || used < oldest {
			victim, oldest = key, used
		}
	})
	if oldest < 0 {
		return
	}
	c.mu.cache.Del(victim)
	c.metrics.Evictions.Inc(1)
}

// Clear removes all the entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.cache.Clear()
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.cache.Len()
}
