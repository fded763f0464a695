// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.
//
// This code is based on: https://github.com/golang/groupcache/

package cache

import "container/list"

// EvictionPolicy is the cache eviction policy enum.
type EvictionPolicy int

// Constants describing LRU and FIFO cache eviction policies respectively.
const (
	CacheLRU  EvictionPolicy = iota // Least recently used
	CacheFIFO                       // First in, first out
	CacheNone                       // No evictions; don't maintain ordering list
)

// TypedConfig specifies the eviction policy, eviction trigger callback,
// and eviction listener callback.
type TypedConfig[K comparable, V any] struct {
	// Policy is one of the consts listed for EvictionPolicy.
	Policy EvictionPolicy

	// ShouldEvict is a callback function executed each time a new entry is
	// added to the cache. It supplies the cache size, and the key and value
	// of the least recently used entry. Returns true if the entry should be
	// evicted.
	ShouldEvict func(size int, key K, value V) bool

	// OnEvicted optionally specifies a callback function to be executed when
	// an entry is purged from the cache.
	OnEvicted func(key K, value V)
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// TypedUnorderedCache is a cache which supports custom eviction triggers
// and two eviction policies: LRU and FIFO. It is not safe for concurrent
// use; callers provide their own locking.
type TypedUnorderedCache[K comparable, V any] struct {
	config TypedConfig[K, V]
	ll     *list.List
	hmap   map[K]*list.Element
}

// NewTypedUnorderedCache creates a new cache with the given configuration.
func NewTypedUnorderedCache[K comparable, V any](
	config TypedConfig[K, V],
) *TypedUnorderedCache[K, V] {
	return &TypedUnorderedCache[K, V]{
		config: config,
		ll:     list.New(),
		hmap:   make(map[K]*list.Element),
	}
}

// Add adds a value to the cache, replacing any existing value for the key.
func (c *TypedUnorderedCache[K, V]) Add(key K, value V) {
	if e, ok := c.hmap[key]; ok {
		e.Value.(*entry[K, V]).value = value
		if c.config.Policy == CacheLRU {
			c.ll.MoveToFront(e)
		}
		return
	}
	c.hmap[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value})
	c.evict()
}

// Get looks up a key's value from the cache.
func (c *TypedUnorderedCache[K, V]) Get(key K) (value V, ok bool) {
	e, ok := c.hmap[key]
	if !ok {
		return value, false
	}
	if c.config.Policy == CacheLRU {
		c.ll.MoveToFront(e)
	}
	return e.Value.(*entry[K, V]).value, true
}

// Del removes the provided key from the cache.
func (c *TypedUnorderedCache[K, V]) Del(key K) {
	if e, ok := c.hmap[key]; ok {
		c.removeElement(e)
	}
}

// Clear clears all entries from the cache.
func (c *TypedUnorderedCache[K, V]) Clear() {
	if c.config.OnEvicted != nil {
		for e := c.ll.Back(); e != nil; e = e.Prev() {
			ent := e.Value.(*entry[K, V])
			c.config.OnEvicted(ent.key, ent.value)
		}
	}
	c.ll.Init()
	c.hmap = make(map[K]*list.Element)
}

// Len returns the number of items in the cache.
func (c *TypedUnorderedCache[K, V]) Len() int {
	return len(c.hmap)
}

// Do invokes f on all of the entries in the cache, from the most recently
// added or used to the least.
func (c *TypedUnorderedCache[K, V]) Do(f func(key K, value V)) {
	for e := c.ll.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry[K, V])
		f(ent.key, ent.value)
	}
}

func (c *TypedUnorderedCache[K, V]) removeElement(e *list.Element) {
	ent := c.ll.Remove(e).(*entry[K, V])
	delete(c.hmap, ent.key)
	if c.config.OnEvicted != nil {
		c.config.OnEvicted(ent.key, ent.value)
	}
}

// evict removes entries from the back of the list for as long as the
// configured trigger asks for it.
func (c *TypedUnorderedCache[K, V]) evict() {
	if c.config.Policy == CacheNone || c.config.ShouldEvict == nil {
		return
	}
	for c.ll.Len() > 0 {
		e := c.ll.Back()
		ent := e.Value.(*entry[K, V])
		if !c.config.ShouldEvict(c.ll.Len(), ent.key, ent.value) {
			return
		}
		c.removeElement(e)
	}
}
