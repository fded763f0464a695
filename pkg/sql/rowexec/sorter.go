// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowcontainer"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/keyside"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/valueside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/cancelchecker"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/mon"
)

var operatorIDs int64

// limitedMonitor returns a monitor for one operator, limited to the work
// memory of the flow.
func limitedMonitor(flowCtx *FlowCtx, name string) *mon.BytesMonitor {
	id := atomic.AddInt64(&operatorIDs, 1)
	return mon.NewMonitor(redact.Sprintf("%s-%d", redact.SafeString(name), id), flowCtx.WorkMem, flowCtx.Mon)
}

// OrderingKey encodes the values of the ordering columns of rows so that
// the encodings compare like the rows.
type OrderingKey struct {
	ords []int
	dirs []encoding.Direction
}

// MakeOrderingKey returns the key of the given ordering, over rows with the
// given layout.
func MakeOrderingKey(layout opt.ColList, ordering opt.Ordering) (OrderingKey, error) {
	k := OrderingKey{ords: make([]int, len(ordering)), dirs: make([]encoding.Direction, len(ordering))}
	for i, oc := range ordering {
		idx, ok := layout.Find(oc.ID())
		if !ok {
			return OrderingKey{}, errors.AssertionFailedf("ordering column @%d is not in %s", oc.ID(), layout)
		}
		k.ords[i] = idx
		if oc.Descending() {
			k.dirs[i] = encoding.Descending
		}
	}
	return k, nil
}

// Encode appends the key of row to b.
func (k OrderingKey) Encode(b []byte, row tree.Datums) ([]byte, error) {
	var err error
	for i, o := range k.ords {
		if b, err = keyside.Encode(b, row[o], k.dirs[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// sorter sorts the rows of its input, spilling sorted runs to temporary
// storage when they do not fit in the work memory.
type sorter struct {
	flowCtx *FlowCtx
	input   RowSource
	key     OrderingKey

	monitor *mon.BytesMonitor
	acc     mon.BoundAccount
	rows    *rowcontainer.ExternalSorter
	iter    rowcontainer.KVIterator

	keyBuf, valBuf []byte
	cancel         cancelchecker.CancelChecker
}

var _ RowSource = &sorter{}

// NewSorter returns a source producing the rows of input sorted on the
// ordering of n.
func NewSorter(
	ctx context.Context, flowCtx *FlowCtx, n *physicalplan.SortNode, input RowSource,
) (RowSource, error) {
	key, err := MakeOrderingKey(n.Input.OutputCols(), n.Order)
	if err != nil {
		return nil, err
	}
	s := &sorter{
		flowCtx: flowCtx,
		input:   input,
		key:     key,
		monitor: limitedMonitor(flowCtx, "sorter"),
		cancel:  flowCtx.cancelChecker(ctx),
	}
	s.acc = s.monitor.MakeBoundAccount()
	s.rows = rowcontainer.NewExternalSorter(flowCtx.TempFS, flowCtx.TempDir, &s.acc, flowCtx.SpillSem)
	return s, nil
}

// fill adds every input row to the external sorter.
func (s *sorter) fill(ctx context.Context) error {
	for {
		if err := s.cancel.Check(); err != nil {
			return err
		}
		row, err := s.input.Next(ctx)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if s.keyBuf, err = s.key.Encode(s.keyBuf[:0], row); err != nil {
			return err
		}
		if s.valBuf, err = valueside.EncodeRow(s.valBuf[:0], row); err != nil {
			return err
		}
		if err := s.rows.Add(ctx, s.keyBuf, s.valBuf); err != nil {
			return errors.Wrap(err, "sorting")
		}
	}
}

func (s *sorter) Next(ctx context.Context) (tree.Datums, error) {
	if s.iter == nil {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
		if runs := s.rows.NumRuns(); runs > 0 {
			log.VEventf(ctx, 1, "sorter spilled %d runs", runs)
		}
		it, err := s.rows.NewIterator(ctx)
		if err != nil {
			return nil, err
		}
		s.iter = it
	}
	ok, err := s.iter.Next(ctx)
	if err != nil || !ok {
		return nil, err
	}
	row, _, err := valueside.DecodeRow(s.iter.Value())
	return row, err
}

func (s *sorter) Close(ctx context.Context) {
	if s.rows == nil {
		return
	}
	s.input.Close(ctx)
	if s.iter != nil {
		if err := s.iter.Close(); err != nil {
			log.Warningf(ctx, "closing sorted runs: %v", err)
		}
	}
	m := s.flowCtx.metrics()
	m.SpillBytes.Inc(s.rows.SpilledBytes())
	m.SpillCount.Inc(int64(s.rows.NumRuns()))
	if err := s.rows.Close(ctx); err != nil {
		log.Warningf(ctx, "removing sorted runs: %v", err)
	}
	s.rows = nil
	s.acc.Close(ctx)
	m.PeakMemory.UpdateIfHigher(s.monitor.MaximumBytes())
}
