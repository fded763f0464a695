// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowenc

import (
	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// AggBufferLayout is the layout of an aggregation buffer: the concatenation
// of the buffer slots of every aggregate function, in declaration order.
// The layout is computed once when the plan is built and never changes.
type AggBufferLayout struct {
	aggs    []*builtins.AggregateOverload
	typs    []*types.T
	offsets []int
	fixed   bool
}

// NewAggBufferLayout computes the layout of the buffers of aggs.
func NewAggBufferLayout(aggs []*builtins.AggregateOverload) *AggBufferLayout {
	l := &AggBufferLayout{aggs: aggs, offsets: make([]int, len(aggs)+1), fixed: true}
	for i, agg := range aggs {
		l.offsets[i] = len(l.typs)
		l.typs = append(l.typs, agg.BufferTypes...)
		if agg.IsImperative() {
			l.fixed = false
		}
	}
	l.offsets[len(aggs)] = len(l.typs)
	for _, typ := range l.typs {
		if !typ.IsFixedWidth() {
			l.fixed = false
		}
	}
	return l
}

// NumFunctions returns the number of aggregate functions.
func (l *AggBufferLayout) NumFunctions() int { return len(l.aggs) }

// Function returns aggregate function i.
func (l *AggBufferLayout) Function(i int) *builtins.AggregateOverload { return l.aggs[i] }

// Types returns the types of all the slots.
func (l *AggBufferLayout) Types() []*types.T { return l.typs }

// Width returns the total number of slots.
func (l *AggBufferLayout) Width() int { return len(l.typs) }

// Slots returns the range of slots [start, end) of function i.
func (l *AggBufferLayout) Slots(i int) (start, end int) {
	return l.offsets[i], l.offsets[i+1]
}

// FixedWidth returns true if every slot has a fixed-width type and no
// function is imperative. Such buffers can be stored as UnsafeRows and
// updated in place.
func (l *AggBufferLayout) FixedWidth() bool { return l.fixed }

// Initial returns a new buffer holding the initial value of every slot.
func (l *AggBufferLayout) Initial() tree.Datums {
	buf := make(tree.Datums, 0, len(l.typs))
	for _, agg := range l.aggs {
		buf = append(buf, agg.Initial...)
	}
	return buf
}
