// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"bytes"
	"container/heap"
	"context"

	"github.com/cockroachdb/errors"
)

// mergingIterator merges sorted iterators. Among records with equal keys,
// those of earlier sources come first.
type mergingIterator struct {
	sources []KVIterator
	heap    mergeHeap
	started bool
}

// NewMergingIterator returns an iterator over the records of every source,
// in key order. Closing it closes the sources.
func NewMergingIterator(sources []KVIterator) KVIterator {
	return &mergingIterator{sources: sources}
}

type mergeHeap struct {
	items []heapItem
}

type heapItem struct {
	it  KVIterator
	idx int
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	if c := bytes.Compare(h.items[i].it.Key(), h.items[j].it.Key()); c != 0 {
		return c < 0
	}
	return h.items[i].idx < h.items[j].idx
}
func (h *mergeHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x interface{}) { h.items = append(h.items, x.(heapItem)) }
func (h *mergeHeap) Pop() interface{} {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}

func (m *mergingIterator) Next(ctx context.Context) (bool, error) {
	if !m.started {
		m.started = true
		for i, src := range m.sources {
			ok, err := src.Next(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				m.heap.items = append(m.heap.items, heapItem{it: src, idx: i})
			}
		}
		heap.Init(&m.heap)
		return m.heap.Len() > 0, nil
	}
	if m.heap.Len() == 0 {
		return false, nil
	}
	ok, err := m.heap.items[0].it.Next(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		heap.Fix(&m.heap, 0)
	} else {
		heap.Pop(&m.heap)
	}
	return m.heap.Len() > 0, nil
}

func (m *mergingIterator) Key() []byte   { return m.heap.items[0].it.Key() }
func (m *mergingIterator) Value() []byte { return m.heap.items[0].it.Value() }

func (m *mergingIterator) Close() error {
	var retErr error
	for _, src := range m.sources {
		retErr = errors.CombineErrors(retErr, src.Close())
	}
	return retErr
}
