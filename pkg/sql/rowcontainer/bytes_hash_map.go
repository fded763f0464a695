// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/relcore/pkg/util/mon"
)

const (
	// recordHeaderSize is the size of the key and value lengths that
	// precede every record.
	recordHeaderSize = 8
	// slotSize is the size of an index slot: the key hash and the address
	// of the record.
	slotSize           = 16
	minIndexCapacity   = 64
	maxLoadNumerator   = 1
	maxLoadDenominator = 2
)

// BytesHashMap maps byte keys to fixed-size byte values. Records are stored
// in pages obtained from a mon.PageAllocator, laid out as
//
//	[key length][value length][key][value][padding to 8 bytes]
//
// and located through an open-addressing index that is itself a page. A
// value is returned as a slice into its page, so it can be updated in place
// but never resized.
//
// When a page cannot be allocated, LookupOrInsert returns an error marked
// mon.ErrBudgetExceeded and leaves the map unchanged; the caller is
// expected to drain the map (see Sorted) and Reset it.
type BytesHashMap struct {
	alloc    mon.PageAllocator
	pageSize int

	pages [][]byte
	// used holds the number of bytes written to each page.
	used []int

	// index holds capacity slots. An address of zero marks an empty slot;
	// otherwise it is page<<32 | (offset+1).
	index    []byte
	capacity int
	numKeys  int
	memUsed  int64
}

// NewBytesHashMap creates an empty map that allocates pages of pageSize
// bytes. Records larger than a page get a page of their own.
func NewBytesHashMap(alloc mon.PageAllocator, pageSize int) *BytesHashMap {
	return &BytesHashMap{alloc: alloc, pageSize: pageSize}
}

// Len returns the number of keys.
func (m *BytesHashMap) Len() int { return m.numKeys }

// MemoryUsage returns the number of bytes held in pages, index included.
func (m *BytesHashMap) MemoryUsage() int64 { return m.memUsed }

func (m *BytesHashMap) allocate(ctx context.Context, size int) ([]byte, error) {
	page, err := m.alloc.TryAllocatePage(ctx, int64(size))
	if err != nil {
		return nil, err
	}
	m.memUsed += int64(len(page))
	return page, nil
}

func (m *BytesHashMap) release(ctx context.Context, page []byte) {
	m.memUsed -= int64(len(page))
	m.alloc.ReleasePage(ctx, page)
}

func (m *BytesHashMap) slot(i int) (hash, addr uint64) {
	s := m.index[i*slotSize:]
	return binary.LittleEndian.Uint64(s), binary.LittleEndian.Uint64(s[8:])
}

func (m *BytesHashMap) setSlot(i int, hash, addr uint64) {
	s := m.index[i*slotSize:]
	binary.LittleEndian.PutUint64(s, hash)
	binary.LittleEndian.PutUint64(s[8:], addr)
}

func (m *BytesHashMap) record(addr uint64) (key, val []byte) {
	page := m.pages[addr>>32]
	off := int(uint32(addr)) - 1
	keyLen := int(binary.LittleEndian.Uint32(page[off:]))
	valLen := int(binary.LittleEndian.Uint32(page[off+4:]))
	start := off + recordHeaderSize
	return page[start : start+keyLen], page[start+keyLen : start+keyLen+valLen]
}

// find returns the index of the slot holding key, or of the empty slot
// where it would be inserted.
func (m *BytesHashMap) find(key []byte, hash uint64) (int, bool) {
	mask := m.capacity - 1
	for i := int(hash) & mask; ; i = (i + 1) & mask {
		h, addr := m.slot(i)
		if addr == 0 {
			return i, false
		}
		if h == hash {
			if k, _ := m.record(addr); bytes.Equal(k, key) {
				return i, true
			}
		}
	}
}

// Lookup returns the value of key.
func (m *BytesHashMap) Lookup(key []byte) (val []byte, ok bool) {
	if m.numKeys == 0 {
		return nil, false
	}
	i, ok := m.find(key, xxhash.Sum64(key))
	if !ok {
		return nil, false
	}
	_, addr := m.slot(i)
	_, val = m.record(addr)
	return val, true
}

// LookupOrInsert returns the value of key, inserting a copy of initVal
// first if the key is absent.
func (m *BytesHashMap) LookupOrInsert(
	ctx context.Context, key, initVal []byte,
) (val []byte, inserted bool, _ error) {
	if m.index == nil {
		if err := m.growIndex(ctx, minIndexCapacity); err != nil {
			return nil, false, err
		}
	}
	hash := xxhash.Sum64(key)
	i, found := m.find(key, hash)
	if found {
		_, addr := m.slot(i)
		_, val = m.record(addr)
		return val, false, nil
	}

	if (m.numKeys+1)*maxLoadDenominator > m.capacity*maxLoadNumerator {
		if err := m.growIndex(ctx, m.capacity*2); err != nil {
			return nil, false, err
		}
		i, _ = m.find(key, hash)
	}
	addr, err := m.appendRecord(ctx, key, initVal)
	if err != nil {
		return nil, false, err
	}
	m.setSlot(i, hash, addr)
	m.numKeys++
	_, val = m.record(addr)
	return val, true, nil
}

func (m *BytesHashMap) appendRecord(ctx context.Context, key, val []byte) (uint64, error) {
	size := (recordHeaderSize + len(key) + len(val) + 7) &^ 7
	last := len(m.pages) - 1
	if last < 0 || m.used[last]+size > len(m.pages[last]) {
		pageSize := m.pageSize
		if size > pageSize {
			pageSize = size
		}
		page, err := m.allocate(ctx, pageSize)
		if err != nil {
			return 0, err
		}
		m.pages = append(m.pages, page)
		m.used = append(m.used, 0)
	}
	pageIdx := len(m.pages) - 1
	page := m.pages[pageIdx]
	off := m.used[pageIdx]
	binary.LittleEndian.PutUint32(page[off:], uint32(len(key)))
	binary.LittleEndian.PutUint32(page[off+4:], uint32(len(val)))
	copy(page[off+recordHeaderSize:], key)
	copy(page[off+recordHeaderSize+len(key):], val)
	m.used[pageIdx] += size
	return uint64(pageIdx)<<32 | uint64(off+1), nil
}

func (m *BytesHashMap) growIndex(ctx context.Context, capacity int) error {
	index, err := m.allocate(ctx, capacity*slotSize)
	if err != nil {
		return err
	}
	old, oldCap := m.index, m.capacity
	m.index, m.capacity = index, capacity
	for i := 0; i < oldCap; i++ {
		s := old[i*slotSize:]
		hash, addr := binary.LittleEndian.Uint64(s), binary.LittleEndian.Uint64(s[8:])
		if addr == 0 {
			continue
		}
		mask := capacity - 1
		j := int(hash) & mask
		for {
			if _, a := m.slot(j); a == 0 {
				break
			}
			j = (j + 1) & mask
		}
		m.setSlot(j, hash, addr)
	}
	if old != nil {
		m.release(ctx, old)
	}
	return nil
}

// ForEach calls fn for every record in insertion order.
func (m *BytesHashMap) ForEach(fn func(key, val []byte) error) error {
	for p, page := range m.pages {
		for off := 0; off < m.used[p]; {
			keyLen := int(binary.LittleEndian.Uint32(page[off:]))
			valLen := int(binary.LittleEndian.Uint32(page[off+4:]))
			key, val := m.record(uint64(p)<<32 | uint64(off+1))
			if err := fn(key, val); err != nil {
				return err
			}
			off += (recordHeaderSize + keyLen + valLen + 7) &^ 7
		}
	}
	return nil
}

// Sorted returns the addresses of the records, ordered by key. The records
// are read with the returned iterator.
func (m *BytesHashMap) Sorted() *SortedRecords {
	addrs := make([]uint64, 0, m.numKeys)
	for i := 0; i < m.capacity; i++ {
		if _, addr := m.slot(i); addr != 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		a, _ := m.record(addrs[i])
		b, _ := m.record(addrs[j])
		return bytes.Compare(a, b) < 0
	})
	return &SortedRecords{m: m, addrs: addrs, pos: -1}
}

// Reset removes every record and releases all the pages.
func (m *BytesHashMap) Reset(ctx context.Context) {
	for _, page := range m.pages {
		m.release(ctx, page)
	}
	if m.index != nil {
		m.release(ctx, m.index)
	}
	m.pages, m.used = nil, nil
	m.index, m.capacity, m.numKeys = nil, 0, 0
}

// Close releases the memory of the map.
func (m *BytesHashMap) Close(ctx context.Context) { m.Reset(ctx) }

// SortedRecords iterates over the records of a BytesHashMap in key order.
// The map must not be modified during the iteration.
type SortedRecords struct {
	m     *BytesHashMap
	addrs []uint64
	pos   int
}

var _ KVIterator = (*SortedRecords)(nil)

// Next implements the KVIterator interface.
func (s *SortedRecords) Next(context.Context) (bool, error) {
	if s.pos+1 >= len(s.addrs) {
		s.pos = len(s.addrs)
		return false, nil
	}
	s.pos++
	return true, nil
}

// Key implements the KVIterator interface.
func (s *SortedRecords) Key() []byte {
	k, _ := s.m.record(s.addrs[s.pos])
	return k
}

// Value implements the KVIterator interface.
func (s *SortedRecords) Value() []byte {
	_, v := s.m.record(s.addrs[s.pos])
	return v
}

// Close implements the KVIterator interface.
func (s *SortedRecords) Close() error { return nil }
