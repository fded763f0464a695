// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"bytes"
	"context"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/relcore/pkg/util/mon"
)

// objectEntryOverhead approximates the memory used by an entry of an
// ObjectHashMap beyond its key and value.
const objectEntryOverhead = 48

// ObjectHashMap maps byte keys to Go values whose size is not fixed, such
// as the state of imperative aggregates. Its memory is accounted for with a
// mon.BoundAccount, using sizes reported by the caller. Like BytesHashMap,
// a failure to grow the account is returned as an error marked
// mon.ErrBudgetExceeded.
type ObjectHashMap struct {
	acc     *mon.BoundAccount
	buckets map[uint64][]int
	keys    [][]byte
	vals    []interface{}
}

// NewObjectHashMap creates an empty map.
func NewObjectHashMap(acc *mon.BoundAccount) *ObjectHashMap {
	return &ObjectHashMap{acc: acc, buckets: make(map[uint64][]int)}
}

// Len returns the number of keys.
func (m *ObjectHashMap) Len() int { return len(m.keys) }

// Lookup returns the value of key.
func (m *ObjectHashMap) Lookup(key []byte) (interface{}, bool) {
	for _, i := range m.buckets[xxhash.Sum64(key)] {
		if bytes.Equal(m.keys[i], key) {
			return m.vals[i], true
		}
	}
	return nil, false
}

// Insert adds a key that is not in the map. size is the memory used by val.
func (m *ObjectHashMap) Insert(ctx context.Context, key []byte, val interface{}, size int64) error {
	if err := m.acc.Grow(ctx, int64(len(key))+size+objectEntryOverhead); err != nil {
		return err
	}
	h := xxhash.Sum64(key)
	m.buckets[h] = append(m.buckets[h], len(m.keys))
	m.keys = append(m.keys, append([]byte(nil), key...))
	m.vals = append(m.vals, val)
	return nil
}

// GrowValue accounts for delta more bytes used by a value of the map.
func (m *ObjectHashMap) GrowValue(ctx context.Context, delta int64) error {
	return m.acc.Grow(ctx, delta)
}

// ForEachSorted calls fn for every entry in key order.
func (m *ObjectHashMap) ForEachSorted(fn func(key []byte, val interface{}) error) error {
	idx := make([]int, len(m.keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return bytes.Compare(m.keys[idx[i]], m.keys[idx[j]]) < 0 })
	for _, i := range idx {
		if err := fn(m.keys[i], m.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes every entry and releases their memory.
func (m *ObjectHashMap) Reset(ctx context.Context) {
	m.buckets = make(map[uint64][]int)
	m.keys, m.vals = nil, nil
	m.acc.Clear(ctx)
}

// Close releases the memory of the map.
func (m *ObjectHashMap) Close(ctx context.Context) {
	m.Reset(ctx)
}
