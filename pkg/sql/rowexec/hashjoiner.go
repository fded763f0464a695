// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowcontainer"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/keyside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/cancelchecker"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
	"github.com/cockroachdb/relcore/pkg/util/mon"
)

type hashBucket struct {
	rows []int
}

const hashBucketSize = int64(unsafe.Sizeof(hashBucket{}))

// HashTable holds the rows of the build side of a join, grouped by the
// values of their key columns. Rows with a NULL key never match and are
// only kept to be emitted by outer joins. Once built, a table is read-only
// and may be probed by several partitions concurrently.
//
// A table without key columns puts every row in one bucket, which turns a
// probe into a nested loop over the build rows.
type HashTable struct {
	rows    []tree.Datums
	buckets *rowcontainer.ObjectHashMap
	acc     mon.BoundAccount
}

// BuildHashTable builds a table of the given rows, keyed by the values at
// keyOrds. The table takes ownership of rows.
func BuildHashTable(
	ctx context.Context, flowCtx *FlowCtx, rows []tree.Datums, keyOrds []int,
) (*HashTable, error) {
	t := &HashTable{rows: rows}
	if flowCtx.Mon != nil {
		t.acc = flowCtx.Mon.MakeBoundAccount()
	} else {
		t.acc = mon.NewMonitor("hash-table", 0, nil).MakeBoundAccount()
	}
	t.buckets = rowcontainer.NewObjectHashMap(&t.acc)
	var key []byte
	cancel := flowCtx.cancelChecker(ctx)
	for i, row := range rows {
		if err := cancel.Check(); err != nil {
			t.Close(ctx)
			return nil, err
		}
		if err := t.acc.Grow(ctx, int64(row.Size())); err != nil {
			t.Close(ctx)
			return nil, errors.Wrap(err, "building hash table")
		}
		var ok bool
		var err error
		if key, ok, err = encodeJoinKey(key[:0], row, keyOrds); err != nil {
			t.Close(ctx)
			return nil, err
		} else if !ok {
			continue
		}
		if v, found := t.buckets.Lookup(key); found {
			b := v.(*hashBucket)
			b.rows = append(b.rows, i)
			err = t.buckets.GrowValue(ctx, int64(unsafe.Sizeof(i)))
		} else {
			err = t.buckets.Insert(ctx, key, &hashBucket{rows: []int{i}}, hashBucketSize)
		}
		if err != nil {
			t.Close(ctx)
			return nil, errors.Wrap(err, "building hash table")
		}
	}
	return t, nil
}

// encodeJoinKey appends the encoding of the key of row to b. It returns
// false if a key column is NULL.
func encodeJoinKey(b []byte, row tree.Datums, ords []int) ([]byte, bool, error) {
	for _, o := range ords {
		if row[o] == tree.DNull {
			return b, false, nil
		}
		var err error
		if b, err = keyside.Encode(b, row[o], encoding.Ascending); err != nil {
			return nil, false, err
		}
	}
	return b, true, nil
}

// NumRows returns the number of build rows.
func (t *HashTable) NumRows() int { return len(t.rows) }

// lookup returns the indexes of the rows with the given key.
func (t *HashTable) lookup(key []byte) []int {
	v, ok := t.buckets.Lookup(key)
	if !ok {
		return nil
	}
	return v.(*hashBucket).rows
}

// Close releases the memory of the table.
func (t *HashTable) Close(ctx context.Context) {
	t.buckets.Close(ctx)
	t.acc.Close(ctx)
}

// hashJoiner joins the rows of a stream input with a hash table of the
// build input. Rows are produced in the order of the stream input, followed
// by the unmatched build rows if the join preserves the build side.
type hashJoiner struct {
	evalCtx    *eval.Context
	typ        memo.JoinType
	buildRight bool
	stream     RowSource
	table      *HashTable
	streamKeys []int
	// on is bound to the concatenation of the left and right columns.
	on         memo.ScalarExpr
	leftWidth  int
	rightWidth int
	ownsTable  bool

	// matched tracks the build rows that matched, if the build side is
	// preserved.
	matched []bool

	streamRow     tree.Datums
	candidates    []int
	candIdx       int
	streamMatched bool
	streamDone    bool
	unmatchedIdx  int

	key      []byte
	combined tree.Datums
	out      tree.Datums
	cancel   cancelchecker.CancelChecker
}

var _ RowSource = &hashJoiner{}

// joinSpec describes a join between a stream input and a build table.
type joinSpec struct {
	typ        memo.JoinType
	buildRight bool
	on         memo.ScalarExpr
	leftCols   opt.ColList
	rightCols  opt.ColList
	streamKeys opt.ColList
	ownsTable  bool
}

func newHashJoiner(
	ctx context.Context, flowCtx *FlowCtx, spec joinSpec, stream RowSource, table *HashTable,
) (*hashJoiner, error) {
	if spec.typ.IsSemiOrAnti() && !spec.buildRight {
		return nil, errors.AssertionFailedf("%s cannot build its left input", spec.typ)
	}
	layout := append(append(opt.ColList(nil), spec.leftCols...), spec.rightCols...)
	on, err := flowCtx.bind(spec.on, layout)
	if err != nil {
		return nil, err
	}
	if on != nil && memo.IsTrue(on) {
		on = nil
	}
	streamLayout := spec.leftCols
	if !spec.buildRight {
		streamLayout = spec.rightCols
	}
	streamKeys, err := ordinals(streamLayout, spec.streamKeys)
	if err != nil {
		return nil, err
	}
	h := &hashJoiner{
		evalCtx:    flowCtx.evalCtx(),
		typ:        spec.typ,
		buildRight: spec.buildRight,
		stream:     stream,
		table:      table,
		streamKeys: streamKeys,
		on:         on,
		leftWidth:  len(spec.leftCols),
		rightWidth: len(spec.rightCols),
		ownsTable:  spec.ownsTable,
		combined:   make(tree.Datums, len(layout)),
		cancel:     flowCtx.cancelChecker(ctx),
	}
	if h.buildPreserved() {
		h.matched = make([]bool, table.NumRows())
	}
	return h, nil
}

// NewHashJoiner returns a source joining the rows of stream with a table of
// the build input of n. The table may be shared with other partitions if
// it is a broadcast table; it is then owned by the caller.
func NewHashJoiner(
	ctx context.Context,
	flowCtx *FlowCtx,
	n *physicalplan.HashJoinNode,
	stream RowSource,
	table *HashTable,
	ownsTable bool,
) (RowSource, error) {
	streamKeys := n.LeftKeys
	if !n.BuildRight {
		streamKeys = n.RightKeys
	}
	return newHashJoiner(ctx, flowCtx, joinSpec{
		typ: n.Type, buildRight: n.BuildRight, on: n.On,
		leftCols: n.Left.OutputCols(), rightCols: n.Right.OutputCols(),
		streamKeys: streamKeys, ownsTable: ownsTable,
	}, stream, table)
}

// NewNestedLoopJoiner returns a source comparing every row of stream with
// every row of the broadcast build input of n.
func NewNestedLoopJoiner(
	ctx context.Context,
	flowCtx *FlowCtx,
	n *physicalplan.NestedLoopJoinNode,
	stream RowSource,
	table *HashTable,
	ownsTable bool,
) (RowSource, error) {
	return newHashJoiner(ctx, flowCtx, joinSpec{
		typ: n.Type, buildRight: n.BuildRight, on: n.On,
		leftCols: n.Left.OutputCols(), rightCols: n.Right.OutputCols(),
		ownsTable: ownsTable,
	}, stream, table)
}

// NewCartesianProduct returns a source pairing every row of left with
// every row of a table of a right partition.
func NewCartesianProduct(
	ctx context.Context,
	flowCtx *FlowCtx,
	n *physicalplan.CartesianProductNode,
	left RowSource,
	right *HashTable,
) (RowSource, error) {
	return newHashJoiner(ctx, flowCtx, joinSpec{
		typ: memo.InnerJoin, buildRight: true, on: n.On,
		leftCols: n.Left.OutputCols(), rightCols: n.Right.OutputCols(),
	}, left, right)
}

func (h *hashJoiner) buildPreserved() bool {
	if h.buildRight {
		return h.typ.PreservesRight()
	}
	return h.typ.PreservesLeft()
}

func (h *hashJoiner) streamPreserved() bool {
	if h.buildRight {
		return h.typ.PreservesLeft()
	}
	return h.typ.PreservesRight()
}

// combine lays out a stream row and a build row, either of which may be
// nil for NULLs, as a left row followed by a right row.
func (h *hashJoiner) combine(streamRow, buildRow tree.Datums) tree.Datums {
	left, right := streamRow, buildRow
	if !h.buildRight {
		left, right = buildRow, streamRow
	}
	copyOrNull(h.combined[:h.leftWidth], left)
	copyOrNull(h.combined[h.leftWidth:], right)
	return h.combined
}

func copyOrNull(dst, src tree.Datums) {
	if src == nil {
		for i := range dst {
			dst[i] = tree.DNull
		}
		return
	}
	copy(dst, src)
}

func (h *hashJoiner) output(row tree.Datums) tree.Datums {
	if h.typ.IsSemiOrAnti() {
		row = row[:h.leftWidth]
	}
	h.out = append(h.out[:0], row...)
	return h.out
}

func (h *hashJoiner) Next(ctx context.Context) (tree.Datums, error) {
	for !h.streamDone {
		if h.streamRow == nil {
			if err := h.cancel.Check(); err != nil {
				return nil, err
			}
			row, err := h.stream.Next(ctx)
			if err != nil {
				return nil, err
			}
			if row == nil {
				h.streamDone = true
				break
			}
			h.streamRow = row
			h.streamMatched = false
			h.candIdx = 0
			var ok bool
			if h.key, ok, err = encodeJoinKey(h.key[:0], row, h.streamKeys); err != nil {
				return nil, err
			}
			h.candidates = nil
			if ok {
				h.candidates = h.table.lookup(h.key)
			}
		}

		for h.candIdx < len(h.candidates) {
			idx := h.candidates[h.candIdx]
			h.candIdx++
			combined := h.combine(h.streamRow, h.table.rows[idx])
			if h.on != nil {
				ok, err := eval.Predicate(ctx, h.evalCtx, h.on, combined)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			h.streamMatched = true
			if h.matched != nil {
				h.matched[idx] = true
			}
			switch h.typ {
			case memo.SemiJoin:
				h.streamRow = nil
				return h.output(combined), nil
			case memo.AntiJoin:
				// A match eliminates the row.
				h.candIdx = len(h.candidates)
			default:
				return h.output(combined), nil
			}
		}

		row := h.streamRow
		h.streamRow = nil
		if !h.streamMatched && (h.typ == memo.AntiJoin || h.streamPreserved()) {
			return h.output(h.combine(row, nil)), nil
		}
	}

	for h.matched != nil && h.unmatchedIdx < len(h.matched) {
		idx := h.unmatchedIdx
		h.unmatchedIdx++
		if !h.matched[idx] {
			return h.output(h.combine(nil, h.table.rows[idx])), nil
		}
	}
	return nil, nil
}

func (h *hashJoiner) Close(ctx context.Context) {
	h.stream.Close(ctx)
	if h.ownsTable && h.table != nil {
		h.table.Close(ctx)
		h.table = nil
	}
}
