// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowcontainer"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/keyside"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/valueside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/cancelchecker"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/mon"
)

type aggregatorState int

const (
	// aggInserting: input rows are folded into the hash table, which is
	// spilled to sorted runs whenever it runs out of memory.
	aggInserting aggregatorState = iota
	// aggMerging: the spilled runs and the hash table are merged by key.
	aggMerging
	// aggOutputting: groups are read from the merged stream, combining
	// the buffers of equal keys.
	aggOutputting
	aggDone
)

// aggGroup is the state of a group whose buffer is held as Go values.
type aggGroup struct {
	buf tree.Datums
	// states holds the state of every imperative function, indexed by
	// function.
	states []builtins.ImperativeAggregate
	size   int64
}

// hashAggregator computes the aggregate functions of an AggregateNode over
// one partition.
//
// Groups are kept in a hash table keyed by the encoding of their grouping
// values. If every buffer slot has a fixed width, the table is a
// BytesHashMap of UnsafeRows updated in place; otherwise it is an
// ObjectHashMap of aggGroups. When the table cannot grow, its entries are
// written in key order to an external sorter as one sorted run, and the
// table is reset. Once the input is exhausted, the runs and the table are
// merged and the buffers of equal keys are combined with the merge
// expressions. Groups are therefore produced in the order of their key.
type hashAggregator struct {
	flowCtx *FlowCtx
	evalCtx *eval.Context
	node    *physicalplan.AggregateNode
	input   RowSource
	exprs   *physicalplan.AggregateExprs
	layout  *rowenc.AggBufferLayout
	state   aggregatorState

	groupOrds  []int
	groupTypes []*types.T
	// imperative lists the functions that keep opaque state.
	imperative []int

	update *evaluator
	merge  *evaluator

	monitor  *mon.BytesMonitor
	acc      mon.BoundAccount
	spillAcc mon.BoundAccount
	fixed    bool
	bytesMap *rowcontainer.BytesHashMap
	objMap   *rowcontainer.ObjectHashMap
	spilled  *rowcontainer.ExternalSorter
	spills   int

	initial []byte
	bufRow  rowenc.UnsafeRow

	iter      rowcontainer.KVIterator
	iterOK    bool
	numGroups int
	key       []byte
	groupVals tree.Datums
	scratch   tree.Datums
	args      tree.Datums
	cancel    cancelchecker.CancelChecker
}

var _ RowSource = &hashAggregator{}

// NewHashAggregator returns a source producing the groups of one partition
// of the input of n.
func NewHashAggregator(
	ctx context.Context, flowCtx *FlowCtx, n *physicalplan.AggregateNode, input RowSource,
) (RowSource, error) {
	if err := physicalplan.CheckModes(n); err != nil {
		return nil, err
	}
	exprs, err := physicalplan.BuildAggregateExprs(flowCtx.Metadata, n, flowCtx.Subqueries)
	if err != nil {
		return nil, err
	}
	groupOrds, err := ordinals(n.Input.OutputCols(), n.GroupingCols)
	if err != nil {
		return nil, err
	}
	a := &hashAggregator{
		flowCtx:    flowCtx,
		evalCtx:    flowCtx.evalCtx(),
		node:       n,
		input:      input,
		exprs:      exprs,
		layout:     exprs.Layout,
		groupOrds:  groupOrds,
		groupTypes: physicalplan.ColumnTypes(flowCtx.Metadata, n.GroupingCols),
		fixed:      exprs.Layout.FixedWidth(),
		monitor:    limitedMonitor(flowCtx, "hash-agg"),
		cancel:     flowCtx.cancelChecker(ctx),
	}
	for i := 0; i < a.layout.NumFunctions(); i++ {
		if a.layout.Function(i).IsImperative() {
			a.imperative = append(a.imperative, i)
		}
	}
	a.acc = a.monitor.MakeBoundAccount()
	a.spillAcc = a.monitor.MakeBoundAccount()

	compile := physicalplan.Stage(n) != 0
	a.update = newEvaluator(ctx, flowCtx, exprs.RowProgram(), compile)
	a.merge = newEvaluator(ctx, flowCtx, exprs.MergeProgram(), compile)

	if a.fixed {
		w, err := rowenc.NewUnsafeRowWriter(a.layout.Types(), 0 /* initialVarSize */)
		if err != nil {
			return nil, err
		}
		row, err := w.WriteRow(a.layout.Initial())
		if err != nil {
			return nil, err
		}
		a.initial = append([]byte(nil), row.Bytes()...)
		a.bufRow = rowenc.MakeUnsafeRow(a.layout.Types())
		pageSize := flowCtx.PageSize
		if pageSize <= 0 {
			pageSize = 64 << 10
		}
		a.bytesMap = rowcontainer.NewBytesHashMap(&a.acc, pageSize)
	} else {
		a.objMap = rowcontainer.NewObjectHashMap(&a.acc)
	}
	log.VEventf(ctx, 2, "hash aggregation with modes %v (fixed-width buffers: %t, compiled: %t)",
		n.Modes(), a.fixed, a.update.compiled())
	return a, nil
}

func (a *hashAggregator) Next(ctx context.Context) (tree.Datums, error) {
	for {
		switch a.state {
		case aggInserting:
			if err := a.consume(ctx); err != nil {
				return nil, err
			}
			a.state = aggMerging

		case aggMerging:
			it, err := a.mergedGroups(ctx)
			if err != nil {
				return nil, err
			}
			a.iter = it
			if a.iterOK, err = a.iter.Next(ctx); err != nil {
				return nil, err
			}
			a.state = aggOutputting

		case aggOutputting:
			if err := a.cancel.Check(); err != nil {
				return nil, err
			}
			row, err := a.nextGroup(ctx)
			if err != nil || row != nil {
				return row, err
			}
			a.state = aggDone
			if a.numGroups == 0 && len(a.groupOrds) == 0 && len(a.node.Aggs) > 0 && a.node.FinalStage() {
				// An aggregation without grouping columns has one group, even
				// over an empty input.
				return a.output(ctx, nil, a.layout.Initial(), a.newStates())
			}

		case aggDone:
			return nil, nil
		}
	}
}

// consume folds every input row into the hash table.
func (a *hashAggregator) consume(ctx context.Context) error {
	for {
		if err := a.cancel.Check(); err != nil {
			return err
		}
		row, err := a.input.Next(ctx)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		a.groupVals = project(a.groupVals, row, a.groupOrds)
		if a.key, err = keyside.EncodeRow(a.key[:0], a.groupVals, nil /* dirs */); err != nil {
			return err
		}
		if a.fixed {
			err = a.insertFixed(ctx, row)
		} else {
			err = a.insertObject(ctx, row)
		}
		if err != nil {
			return err
		}
	}
}

func (a *hashAggregator) insertFixed(ctx context.Context, row tree.Datums) error {
	val, _, err := a.bytesMap.LookupOrInsert(ctx, a.key, a.initial)
	if errors.Is(err, mon.ErrBudgetExceeded) && a.bytesMap.Len() > 0 {
		if err := a.spill(ctx); err != nil {
			return err
		}
		val, _, err = a.bytesMap.LookupOrInsert(ctx, a.key, a.initial)
	}
	if err != nil {
		return errors.Wrap(err, "inserting into aggregation hash table")
	}
	a.bufRow.PointTo(val)
	buf, err := a.bufRow.Datums()
	if err != nil {
		return err
	}
	out, err := a.apply(ctx, a.update, buf, row)
	if err != nil {
		return err
	}
	for i, d := range out {
		if err := a.bufRow.SetDatum(i, d); err != nil {
			return err
		}
	}
	return nil
}

func (a *hashAggregator) newStates() []builtins.ImperativeAggregate {
	if len(a.imperative) == 0 {
		return nil
	}
	states := make([]builtins.ImperativeAggregate, a.layout.NumFunctions())
	for _, i := range a.imperative {
		states[i] = a.layout.Function(i).NewImperative()
	}
	return states
}

func (a *hashAggregator) groupSize(g *aggGroup) int64 {
	size := int64(g.buf.Size())
	for _, i := range a.imperative {
		size += g.states[i].Size()
	}
	return size
}

func (a *hashAggregator) insertObject(ctx context.Context, row tree.Datums) error {
	var g *aggGroup
	if v, ok := a.objMap.Lookup(a.key); ok {
		g = v.(*aggGroup)
	} else {
		g = &aggGroup{buf: a.layout.Initial(), states: a.newStates()}
		g.size = a.groupSize(g)
		err := a.objMap.Insert(ctx, a.key, g, g.size)
		if errors.Is(err, mon.ErrBudgetExceeded) && a.objMap.Len() > 0 {
			if err := a.spill(ctx); err != nil {
				return err
			}
			err = a.objMap.Insert(ctx, a.key, g, g.size)
		}
		if err != nil {
			return errors.Wrap(err, "inserting into aggregation hash table")
		}
	}

	out, err := a.apply(ctx, a.update, g.buf, row)
	if err != nil {
		return err
	}
	copy(g.buf, out)
	for _, i := range a.imperative {
		if err := a.updateImperative(ctx, g.states[i], i, row); err != nil {
			return err
		}
	}

	size := a.groupSize(g)
	if delta := size - g.size; delta > 0 {
		if err := a.objMap.GrowValue(ctx, delta); err != nil {
			if !errors.Is(err, mon.ErrBudgetExceeded) {
				return err
			}
			// The group is already updated; it goes to the run with the
			// others.
			return a.spill(ctx)
		}
		g.size = size
	}
	return nil
}

// updateImperative feeds one input row to the state of function i.
func (a *hashAggregator) updateImperative(
	ctx context.Context, st builtins.ImperativeAggregate, i int, row tree.Datums,
) error {
	f := &a.node.Aggs[i]
	if !f.Mode.ConsumesRawRows() {
		return st.Merge(row[a.exprs.InputSlots[i][0]])
	}
	if filter := a.exprs.Filters[i]; filter != nil {
		ok, err := eval.Predicate(ctx, a.evalCtx, filter, row)
		if err != nil || !ok {
			return err
		}
	}
	a.args = a.args[:0]
	for _, e := range a.exprs.Args[i] {
		d, err := eval.Expr(ctx, a.evalCtx, e, row)
		if err != nil {
			return err
		}
		a.args = append(a.args, d)
	}
	return st.Add(a.args)
}

// apply runs a program over a buffer followed by another row.
func (a *hashAggregator) apply(
	ctx context.Context, ev *evaluator, buf, row tree.Datums,
) (tree.Datums, error) {
	a.scratch = append(append(a.scratch[:0], buf...), row...)
	out, _, err := ev.run(ctx, a.scratch)
	return out, err
}

// spill writes the hash table to a sorted run and empties it.
func (a *hashAggregator) spill(ctx context.Context) error {
	if a.spilled == nil {
		if a.flowCtx.TempFS == nil {
			return errors.New("aggregation exceeded its memory budget and no temporary storage is configured")
		}
		a.spilled = rowcontainer.NewExternalSorter(
			a.flowCtx.TempFS, a.flowCtx.TempDir, &a.spillAcc, a.flowCtx.SpillSem)
	}
	var groups int
	if a.fixed {
		groups = a.bytesMap.Len()
		if err := a.spilled.WriteSortedRun(ctx, a.bytesMap.Sorted()); err != nil {
			return errors.Wrap(err, "spilling aggregation")
		}
		a.bytesMap.Reset(ctx)
	} else {
		groups = a.objMap.Len()
		it, err := a.objectRecords()
		if err != nil {
			return err
		}
		if err := a.spilled.WriteSortedRun(ctx, it); err != nil {
			return errors.Wrap(err, "spilling aggregation")
		}
		a.objMap.Reset(ctx)
	}
	a.spills++
	log.VEventf(ctx, 1, "spilled %d groups to run %d", groups, a.spills)
	return nil
}

// encodeGroup encodes the buffer of an object group, with the serialized
// state of the imperative functions in their slots.
func (a *hashAggregator) encodeGroup(b []byte, g *aggGroup) ([]byte, error) {
	buf := g.buf
	if len(a.imperative) > 0 {
		buf = append(tree.Datums(nil), g.buf...)
		for _, i := range a.imperative {
			start, _ := a.layout.Slots(i)
			buf[start] = g.states[i].Serialize()
		}
	}
	return valueside.EncodeRow(b, buf)
}

// objectRecords returns the groups of the object map in key order, encoded
// like spilled groups.
func (a *hashAggregator) objectRecords() (rowcontainer.KVIterator, error) {
	it := &recordIterator{pos: -1}
	err := a.objMap.ForEachSorted(func(key []byte, val interface{}) error {
		enc, err := a.encodeGroup(nil, val.(*aggGroup))
		if err != nil {
			return err
		}
		it.keys = append(it.keys, key)
		it.vals = append(it.vals, enc)
		return nil
	})
	return it, err
}

// mergedGroups returns the groups of the hash table and of the spilled
// runs in key order. Keys appear once per run that holds them.
func (a *hashAggregator) mergedGroups(ctx context.Context) (rowcontainer.KVIterator, error) {
	var table rowcontainer.KVIterator
	if a.fixed {
		table = a.bytesMap.Sorted()
	} else {
		var err error
		if table, err = a.objectRecords(); err != nil {
			return nil, err
		}
	}
	if a.spilled == nil {
		return table, nil
	}
	runs, err := a.spilled.NewIterator(ctx)
	if err != nil {
		return nil, err
	}
	log.VEventf(ctx, 1, "merging %d spilled runs with %d groups in memory", a.spilled.NumRuns(), a.tableLen())
	return rowcontainer.NewMergingIterator([]rowcontainer.KVIterator{runs, table}), nil
}

func (a *hashAggregator) tableLen() int {
	if a.fixed {
		return a.bytesMap.Len()
	}
	return a.objMap.Len()
}

// decodeBuffer decodes an encoded group buffer.
func (a *hashAggregator) decodeBuffer(val []byte) (tree.Datums, error) {
	if a.fixed {
		a.bufRow.PointTo(val)
		return a.bufRow.Datums()
	}
	buf, _, err := valueside.DecodeRow(val)
	if err != nil {
		return nil, err
	}
	if len(buf) != a.layout.Width() {
		return nil, errors.AssertionFailedf("decoded buffer has %d slots, expected %d", len(buf), a.layout.Width())
	}
	return buf, nil
}

// nextGroup combines the records of the next key of the merged stream and
// returns the output row of the group, or nil at the end.
func (a *hashAggregator) nextGroup(ctx context.Context) (tree.Datums, error) {
	if !a.iterOK {
		return nil, nil
	}
	a.key = append(a.key[:0], a.iter.Key()...)
	buf, err := a.decodeBuffer(a.iter.Value())
	if err != nil {
		return nil, err
	}
	states := a.newStates()
	if err := a.mergeStates(states, buf); err != nil {
		return nil, err
	}
	for {
		if a.iterOK, err = a.iter.Next(ctx); err != nil {
			return nil, err
		}
		if !a.iterOK || !bytes.Equal(a.iter.Key(), a.key) {
			break
		}
		other, err := a.decodeBuffer(a.iter.Value())
		if err != nil {
			return nil, err
		}
		out, err := a.apply(ctx, a.merge, buf, other)
		if err != nil {
			return nil, err
		}
		copy(buf, out)
		if err := a.mergeStates(states, other); err != nil {
			return nil, err
		}
	}
	a.numGroups++
	return a.output(ctx, a.key, buf, states)
}

// mergeStates merges the serialized imperative states held by buf.
func (a *hashAggregator) mergeStates(states []builtins.ImperativeAggregate, buf tree.Datums) error {
	for _, i := range a.imperative {
		start, _ := a.layout.Slots(i)
		if err := states[i].Merge(buf[start]); err != nil {
			return err
		}
	}
	return nil
}

// output returns the row of a group: its grouping values followed by the
// buffer or the result of every function.
func (a *hashAggregator) output(
	ctx context.Context, key []byte, buf tree.Datums, states []builtins.ImperativeAggregate,
) (tree.Datums, error) {
	row := make(tree.Datums, 0, len(a.node.OutputCols()))
	if len(a.groupTypes) > 0 {
		vals, _, err := keyside.DecodeRow(a.groupTypes, key, nil /* dirs */)
		if err != nil {
			return nil, errors.Wrap(err, "decoding grouping key")
		}
		row = append(row, vals...)
	}
	for i := range a.node.Aggs {
		start, end := a.layout.Slots(i)
		imperative := states != nil && states[i] != nil
		switch {
		case a.node.Aggs[i].Mode.ProducesBuffers() && imperative:
			row = append(row, states[i].Serialize())
		case a.node.Aggs[i].Mode.ProducesBuffers():
			row = append(row, buf[start:end]...)
		case imperative:
			d, err := states[i].Result()
			if err != nil {
				return nil, err
			}
			row = append(row, d)
		default:
			d, err := eval.Expr(ctx, a.evalCtx, a.exprs.Results[i], buf)
			if err != nil {
				return nil, err
			}
			row = append(row, d)
		}
	}
	return row, nil
}

func (a *hashAggregator) Close(ctx context.Context) {
	if a.monitor == nil {
		return
	}
	a.input.Close(ctx)
	if a.iter != nil {
		if err := a.iter.Close(); err != nil {
			log.Warningf(ctx, "closing aggregation runs: %v", err)
		}
	}
	m := a.flowCtx.metrics()
	if a.spilled != nil {
		m.SpillBytes.Inc(a.spilled.SpilledBytes())
		m.SpillCount.Inc(int64(a.spills))
		if err := a.spilled.Close(ctx); err != nil {
			log.Warningf(ctx, "removing aggregation runs: %v", err)
		}
	}
	if a.fixed {
		a.bytesMap.Close(ctx)
	} else {
		a.objMap.Close(ctx)
	}
	a.acc.Close(ctx)
	a.spillAcc.Close(ctx)
	m.PeakMemory.UpdateIfHigher(a.monitor.MaximumBytes())
	a.monitor = nil
}

// recordIterator iterates over records sorted by key.
type recordIterator struct {
	keys, vals [][]byte
	pos        int
}

var _ rowcontainer.KVIterator = &recordIterator{}

func (it *recordIterator) Next(context.Context) (bool, error) {
	if it.pos+1 >= len(it.keys) {
		it.pos = len(it.keys)
		return false, nil
	}
	it.pos++
	return true, nil
}

func (it *recordIterator) Key() []byte   { return it.keys[it.pos] }
func (it *recordIterator) Value() []byte { return it.vals[it.pos] }
func (it *recordIterator) Close() error  { return nil }

