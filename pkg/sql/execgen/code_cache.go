// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execgen

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/relcore/pkg/util/cache"
	"github.com/cockroachdb/relcore/pkg/util/syncutil"
)

// CodeCache holds compiled units keyed by the hash of their source text.
// When full, the oldest entry is evicted. It is safe for concurrent use.
type CodeCache struct {
	mu struct {
		syncutil.RWMutex
		// units maps a source hash to the units whose source has that hash.
		units *cache.TypedUnorderedCache[uint64, []*Unit]
	}
}

// NewCodeCache creates a cache of at most capacity entries.
func NewCodeCache(capacity int) *CodeCache {
	if capacity < 1 {
		capacity = 1
	}
	c := &CodeCache{}
	c.mu.units = cache.NewTypedUnorderedCache(cache.TypedConfig[uint64, []*Unit]{
		Policy: cache.CacheFIFO,
		ShouldEvict: func(size int, _ uint64, _ []*Unit) bool {
			return size > capacity
		},
	})
	return c
}

// Get returns the unit compiled from the given source text.
func (c *CodeCache) Get(text string) (*Unit, bool) {
	h := xxhash.Sum64String(text)
	c.mu.RLock()
	defer c.mu.RUnlock()
	// Get does not reorder a FIFO cache, so a read lock suffices.
	bucket, _ := c.mu.units.Get(h)
	for _, u := range bucket {
		if u.text == text {
			return u, true
		}
	}
	return nil, false
}

// Add inserts a unit and returns the cached unit for its source text, which
// is u unless another unit was added concurrently.
func (c *CodeCache) Add(u *Unit) *Unit {
	h := xxhash.Sum64String(u.text)
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, _ := c.mu.units.Get(h)
	for _, existing := range bucket {
		if existing.text == u.text {
			return existing
		}
	}
	c.mu.units.Add(h, append(bucket[:len(bucket):len(bucket)], u))
	return u
}

// Len returns the number of cached entries.
func (c *CodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.units.Len()
}
