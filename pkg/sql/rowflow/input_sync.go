// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.
//
// Input synchronizers combine the partitions of an exchange input into a
// single partition.

package rowflow

import (
	"context"

	"github.com/cockroachdb/relcore/pkg/sql/rowcontainer"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/valueside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// serialSync returns the rows of every source, one source after the other.
func serialSync(sources [][]tree.Datums) []tree.Datums {
	if len(sources) == 1 {
		return sources[0]
	}
	var n int
	for _, s := range sources {
		n += len(s)
	}
	rows := make([]tree.Datums, 0, n)
	for _, s := range sources {
		rows = append(rows, s...)
	}
	return rows
}

// orderedSync merges sources that are each sorted on key. Rows with equal
// keys are returned in the order of their sources.
func orderedSync(
	ctx context.Context, sources [][]tree.Datums, key rowexec.OrderingKey,
) ([]tree.Datums, error) {
	its := make([]rowcontainer.KVIterator, len(sources))
	var n int
	for i, s := range sources {
		its[i] = &sortedRowsIterator{rows: s, key: key, pos: -1}
		n += len(s)
	}
	merged := rowcontainer.NewMergingIterator(its)
	defer func() { _ = merged.Close() }()
	rows := make([]tree.Datums, 0, n)
	for {
		ok, err := merged.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		row, _, err := valueside.DecodeRow(merged.Value())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// sortedRowsIterator presents sorted rows as records keyed by their
// ordering key.
type sortedRowsIterator struct {
	rows []tree.Datums
	key  rowexec.OrderingKey
	pos  int
	kbuf []byte
	vbuf []byte
}

var _ rowcontainer.KVIterator = &sortedRowsIterator{}

func (it *sortedRowsIterator) Next(context.Context) (bool, error) {
	if it.pos+1 >= len(it.rows) {
		it.pos = len(it.rows)
		return false, nil
	}
	it.pos++
	row := it.rows[it.pos]
	var err error
	if it.kbuf, err = it.key.Encode(it.kbuf[:0], row); err != nil {
		return false, err
	}
	if it.vbuf, err = valueside.EncodeRow(it.vbuf[:0], row); err != nil {
		return false, err
	}
	return true, nil
}

func (it *sortedRowsIterator) Key() []byte   { return it.kbuf }
func (it *sortedRowsIterator) Value() []byte { return it.vbuf }
func (it *sortedRowsIterator) Close() error  { return nil }
