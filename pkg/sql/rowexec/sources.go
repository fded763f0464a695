// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec

import (
	"context"

	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// tableReader reads one partition of a table.
type tableReader struct {
	table     cat.Table
	partition int
	reader    cat.RowReader
	done      bool
}

var _ RowSource = &tableReader{}

// NewTableReader returns a source reading the rows of one partition of a
// table.
func NewTableReader(table cat.Table, partition int) RowSource {
	return &tableReader{table: table, partition: partition}
}

func (tr *tableReader) Next(ctx context.Context) (tree.Datums, error) {
	if tr.done {
		return nil, nil
	}
	if tr.reader == nil {
		r, err := tr.table.NewReader(ctx, tr.partition)
		if err != nil {
			return nil, err
		}
		tr.reader = r
	}
	row, err := tr.reader.Next(ctx)
	if err != nil || row == nil {
		tr.done = true
	}
	return row, err
}

func (tr *tableReader) Close(ctx context.Context) {
	tr.done = true
	if tr.reader != nil {
		tr.reader.Close(ctx)
		tr.reader = nil
	}
}

// RowsSource returns rows held in memory. The rows may be shared with
// other sources; they are never modified.
type RowsSource struct {
	rows []tree.Datums
	pos  int
}

var _ RowSource = &RowsSource{}

// NewRowsSource returns a source over the given rows.
func NewRowsSource(rows []tree.Datums) *RowsSource {
	return &RowsSource{rows: rows}
}

// Next is part of the RowSource interface. The returned rows stay valid
// after later calls.
func (rs *RowsSource) Next(context.Context) (tree.Datums, error) {
	if rs.pos >= len(rs.rows) {
		return nil, nil
	}
	rs.pos++
	return rs.rows[rs.pos-1], nil
}

// Close is part of the RowSource interface.
func (rs *RowsSource) Close(context.Context) { rs.pos = len(rs.rows) }

// Materialize reads every row of src into memory and closes it.
func Materialize(ctx context.Context, src RowSource) ([]tree.Datums, error) {
	defer src.Close(ctx)
	var rows []tree.Datums
	for {
		row, err := src.Next(ctx)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, append(tree.Datums(nil), row...))
	}
}

// remapper reorders the columns of its input.
type remapper struct {
	input RowSource
	ords  []int
	out   tree.Datums
}

// NewRemapper returns a source producing, for every row of input, the
// values at the given ordinals.
func NewRemapper(input RowSource, ords []int) RowSource {
	return &remapper{input: input, ords: ords}
}

func (r *remapper) Next(ctx context.Context) (tree.Datums, error) {
	row, err := r.input.Next(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	r.out = project(r.out, row, r.ords)
	return r.out, nil
}

func (r *remapper) Close(ctx context.Context) { r.input.Close(ctx) }

// limiter returns the first rows of its input.
type limiter struct {
	input RowSource
	count int64
	seen  int64
}

// NewLimiter returns a source producing at most count rows of input.
func NewLimiter(input RowSource, count int64) RowSource {
	return &limiter{input: input, count: count}
}

func (l *limiter) Next(ctx context.Context) (tree.Datums, error) {
	if l.seen >= l.count {
		return nil, nil
	}
	row, err := l.input.Next(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	l.seen++
	return row, nil
}

func (l *limiter) Close(ctx context.Context) { l.input.Close(ctx) }

// concat returns the rows of its inputs, one input after the other.
type concat struct {
	inputs []RowSource
	cur    int
}

// NewConcat returns a source producing the rows of every input in turn.
func NewConcat(inputs ...RowSource) RowSource {
	if len(inputs) == 1 {
		return inputs[0]
	}
	return &concat{inputs: inputs}
}

func (c *concat) Next(ctx context.Context) (tree.Datums, error) {
	for c.cur < len(c.inputs) {
		row, err := c.inputs[c.cur].Next(ctx)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row, nil
		}
		c.inputs[c.cur].Close(ctx)
		c.cur++
	}
	return nil, nil
}

func (c *concat) Close(ctx context.Context) {
	for ; c.cur < len(c.inputs); c.cur++ {
		c.inputs[c.cur].Close(ctx)
	}
}
