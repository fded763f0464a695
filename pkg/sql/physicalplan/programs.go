// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc"
	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// ColumnTypes returns the types of the given columns.
func ColumnTypes(md *opt.Metadata, cols opt.ColList) []*types.T {
	typs := make([]*types.T, len(cols))
	for i, c := range cols {
		typs[i] = md.ColumnMeta(c).Type
	}
	return typs
}

// chainProgram binds the filters and projections of a chain, listed from
// the top down, into a program over rows with the given layout.
func chainProgram(
	md *opt.Metadata, chain []Node, layout opt.ColList, subqueries SubqueryValues,
) (*execgen.Program, error) {
	p := &execgen.Program{InputTypes: ColumnTypes(md, layout)}
	for i := len(chain) - 1; i >= 0; i-- {
		switch t := chain[i].(type) {
		case *FilterNode:
			filter, err := subqueries.Bind(t.Filter, layout)
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, execgen.Step{Filter: filter})

		case *ProjectNode:
			projs := make([]memo.ScalarExpr, len(t.Exprs))
			for j, e := range t.Exprs {
				var err error
				if projs[j], err = subqueries.Bind(e, layout); err != nil {
					return nil, err
				}
			}
			p.Steps = append(p.Steps, execgen.Step{Projections: projs})
			layout = t.OutputCols()

		default:
			return nil, errors.AssertionFailedf("cannot fuse %T", t)
		}
	}
	return p, nil
}

// AggregateExprs are the bound expressions evaluated by an aggregate node.
// The buffer of a group is the concatenation of the slots of its functions,
// in the order of the functions.
type AggregateExprs struct {
	Layout *rowenc.AggBufferLayout

	// Row computes the new buffer of a group from its buffer followed by an
	// input row. Functions in the Partial and Complete modes apply their
	// update expressions, skipping rows for which their filter is not true;
	// the others merge the partial buffer read from the input row. Slots of
	// imperative functions are passed through unchanged.
	Row []memo.ScalarExpr

	// Merge combines a buffer with another buffer of the same group,
	// following it.
	Merge []memo.ScalarExpr

	// Results computes the result of each declarative function from the
	// buffer. It is nil for imperative functions.
	Results []memo.ScalarExpr

	// Args and Filters are the arguments and filter of each function in the
	// Partial and Complete modes, bound to the input row.
	Args    [][]memo.ScalarExpr
	Filters []memo.ScalarExpr

	// InputSlots lists, for each function in the PartialMerge and Final
	// modes, the ordinals of its buffer slots in the input row.
	InputSlots [][]int

	InputTypes []*types.T
}

// RowProgram returns the program computing Row.
func (e *AggregateExprs) RowProgram() *execgen.Program {
	typs := append(append([]*types.T(nil), e.Layout.Types()...), e.InputTypes...)
	return execgen.Projection(typs, e.Row)
}

// MergeProgram returns the program computing Merge.
func (e *AggregateExprs) MergeProgram() *execgen.Program {
	typs := append(append([]*types.T(nil), e.Layout.Types()...), e.Layout.Types()...)
	return execgen.Projection(typs, e.Merge)
}

// Overloads returns the aggregate functions of the node.
func (n *AggregateNode) Overloads() []*builtins.AggregateOverload {
	res := make([]*builtins.AggregateOverload, len(n.Aggs))
	for i := range n.Aggs {
		res[i] = n.Aggs[i].Overload
	}
	return res
}

// HasImperative returns true if one of the functions keeps opaque state.
func (n *AggregateNode) HasImperative() bool {
	for i := range n.Aggs {
		if n.Aggs[i].Overload.IsImperative() {
			return true
		}
	}
	return false
}

// mapOrdinals replaces every ordinal reference in e with the expression
// returned by fn.
func mapOrdinals(e memo.ScalarExpr, fn func(o *memo.OrdinalExpr) memo.ScalarExpr) memo.ScalarExpr {
	return memo.TransformScalar(e, func(s memo.ScalarExpr) memo.ScalarExpr {
		if o, ok := s.(*memo.OrdinalExpr); ok {
			return fn(o)
		}
		return s
	})
}

func shiftOrdinals(e memo.ScalarExpr, by int) memo.ScalarExpr {
	if e == nil || by == 0 {
		return e
	}
	return mapOrdinals(e, func(o *memo.OrdinalExpr) memo.ScalarExpr {
		return &memo.OrdinalExpr{Ordinal: o.Ordinal + by, Typ: o.Typ}
	})
}

func ordinal(i int, typ *types.T) memo.ScalarExpr {
	return &memo.OrdinalExpr{Ordinal: i, Typ: typ}
}

// BuildAggregateExprs binds the expressions of an aggregate node.
func BuildAggregateExprs(
	md *opt.Metadata, n *AggregateNode, subqueries SubqueryValues,
) (*AggregateExprs, error) {
	layout := rowenc.NewAggBufferLayout(n.Overloads())
	width := layout.Width()
	slotTypes := layout.Types()
	input := n.Input.OutputCols()
	res := &AggregateExprs{
		Layout:     layout,
		Results:    make([]memo.ScalarExpr, len(n.Aggs)),
		Args:       make([][]memo.ScalarExpr, len(n.Aggs)),
		Filters:    make([]memo.ScalarExpr, len(n.Aggs)),
		InputSlots: make([][]int, len(n.Aggs)),
		InputTypes: ColumnTypes(md, input),
	}

	for i := range n.Aggs {
		f := &n.Aggs[i]
		ov := f.Overload
		start, end := layout.Slots(i)
		numSlots := end - start
		buf := func(o *memo.OrdinalExpr) memo.ScalarExpr { return ordinal(start+o.Ordinal, o.Typ) }

		if f.Mode.ConsumesRawRows() {
			args := make([]memo.ScalarExpr, len(f.Args))
			for j, a := range f.Args {
				var err error
				if args[j], err = subqueries.Bind(a, input); err != nil {
					return nil, err
				}
			}
			filter, err := subqueries.Bind(f.Filter, input)
			if err != nil {
				return nil, err
			}
			res.Args[i], res.Filters[i] = args, filter

			for j := 0; j < numSlots; j++ {
				if ov.IsImperative() {
					res.Row = append(res.Row, ordinal(start+j, slotTypes[start+j]))
					continue
				}
				upd := mapOrdinals(ov.Update[j], func(o *memo.OrdinalExpr) memo.ScalarExpr {
					if o.Ordinal < numSlots {
						return buf(o)
					}
					return shiftOrdinals(args[o.Ordinal-numSlots], width)
				})
				if filter != nil {
					upd = &memo.IfExpr{
						Cond: shiftOrdinals(filter, width),
						Then: upd,
						Else: ordinal(start+j, slotTypes[start+j]),
						Typ:  slotTypes[start+j],
					}
				}
				res.Row = append(res.Row, upd)
			}
		} else {
			if len(f.BufferCols) != numSlots {
				return nil, errors.AssertionFailedf("%s has %d buffer columns, expected %d",
					ov.Signature(), len(f.BufferCols), numSlots)
			}
			slots := make([]int, numSlots)
			for j, c := range f.BufferCols {
				idx, ok := input.Find(c)
				if !ok {
					return nil, errors.AssertionFailedf("buffer column @%d of %s is not an input column",
						c, ov.Signature())
				}
				slots[j] = idx
			}
			res.InputSlots[i] = slots

			for j := 0; j < numSlots; j++ {
				if ov.IsImperative() {
					res.Row = append(res.Row, ordinal(start+j, slotTypes[start+j]))
					continue
				}
				res.Row = append(res.Row, mapOrdinals(ov.Merge[j], func(o *memo.OrdinalExpr) memo.ScalarExpr {
					if o.Ordinal < numSlots {
						return buf(o)
					}
					return ordinal(width+slots[o.Ordinal-numSlots], o.Typ)
				}))
			}
		}

		for j := 0; j < numSlots; j++ {
			if ov.IsImperative() {
				res.Merge = append(res.Merge, ordinal(start+j, slotTypes[start+j]))
				continue
			}
			res.Merge = append(res.Merge, mapOrdinals(ov.Merge[j], func(o *memo.OrdinalExpr) memo.ScalarExpr {
				if o.Ordinal < numSlots {
					return buf(o)
				}
				return ordinal(width+start+o.Ordinal-numSlots, o.Typ)
			}))
		}
		if !ov.IsImperative() {
			res.Results[i] = mapOrdinals(ov.Evaluate, buf)
		}
	}
	return res, nil
}
