// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// legalModeSets are the combinations of modes that the functions of one
// aggregate node may have.
var legalModeSets = [][]AggregateMode{
	{Partial},
	{PartialMerge},
	{Partial, PartialMerge},
	{Final},
	{Complete},
	{Final, Complete},
}

// CheckModes returns an assertion failure if the functions of the node mix
// modes in a way that no aggregation strategy produces.
func CheckModes(n *AggregateNode) error {
	modes := n.Modes()
	if len(modes) == 0 {
		return nil
	}
	for _, set := range legalModeSets {
		if len(set) != len(modes) {
			continue
		}
		match := true
		for i := range set {
			match = match && set[i] == modes[i]
		}
		if match {
			return nil
		}
	}
	return errors.WithHint(
		errors.AssertionFailedf("illegal combination of aggregate modes %v", modes),
		"please report this query",
	)
}

// clustered returns the partitioning required to compute the groups of the
// given columns locally.
func clustered(grouping opt.ColList) physical.Partitioning {
	if len(grouping) == 0 {
		return physical.Single()
	}
	return physical.Hash(grouping, 0)
}

func (p *Planner) buildGroupBy(g *memo.GroupByExpr) (Node, error) {
	input, err := p.build(g.Input)
	if err != nil {
		return nil, err
	}
	funcs := make([]AggregateFunc, len(g.Aggregations))
	var distinct []int
	for i := range g.Aggregations {
		item := &g.Aggregations[i]
		if err := p.planSubqueries(item.Agg); err != nil {
			return nil, err
		}
		f, err := p.aggregateFunc(item)
		if err != nil {
			return nil, err
		}
		funcs[i] = f
		if f.Distinct {
			distinct = append(distinct, i)
		}
	}
	stats := p.sb.Build(g)

	if len(distinct) == 0 {
		return p.planAggregate(input, g.GroupingCols, funcs, stats), nil
	}
	// A filter of a distinct aggregate is folded into its arguments: every
	// aggregate ignores NULL arguments.
	for _, i := range distinct {
		if f := &funcs[i]; f.Filter != nil {
			args := make([]memo.ScalarExpr, len(f.Args))
			for j, a := range f.Args {
				args[j] = &memo.IfExpr{Cond: f.Filter, Then: a, Else: typedNull(a.DataType()), Typ: a.DataType()}
			}
			f.Args, f.Filter = args, nil
		}
	}
	first := funcs[distinct[0]].Args
	for _, i := range distinct[1:] {
		if !sameArgs(first, funcs[i].Args) {
			return nil, errors.Mark(
				errors.Newf("aggregates over more than one set of distinct arguments"),
				memo.ErrUnsupported,
			)
		}
	}
	return p.planSingleDistinct(input, g.GroupingCols, funcs, stats)
}

func sameArgs(a, b []memo.ScalarExpr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !memo.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (p *Planner) aggregateFunc(item *memo.AggregationItem) (AggregateFunc, error) {
	agg := item.Agg
	argTypes := make([]*types.T, len(agg.Args))
	for i, a := range agg.Args {
		argTypes[i] = a.DataType()
	}
	ov, err := builtins.LookupAggregate(agg.Name, argTypes)
	if err != nil {
		return AggregateFunc{}, errors.Mark(err, memo.ErrUnresolved)
	}
	alias := p.md.ColumnMeta(item.Col).Alias
	f := AggregateFunc{
		Overload:  ov,
		Args:      agg.Args,
		Filter:    agg.Filter,
		ResultCol: item.Col,
		Distinct:  agg.Distinct,
	}
	for i, typ := range ov.BufferTypes {
		f.BufferCols = append(f.BufferCols, p.md.AddColumn(fmt.Sprintf("%s_buf%d", alias, i), typ))
	}
	return f, nil
}

func withMode(funcs []AggregateFunc, mode AggregateMode) []AggregateFunc {
	res := make([]AggregateFunc, len(funcs))
	for i := range funcs {
		res[i] = funcs[i]
		res[i].Mode = mode
	}
	return res
}

// planAggregate computes the aggregation in one stage if the input is
// already clustered by the grouping columns, and otherwise in a partial
// stage, an exchange on the grouping columns and a final stage.
func (p *Planner) planAggregate(
	input Node, grouping opt.ColList, funcs []AggregateFunc, stats *props.Statistics,
) Node {
	required := clustered(grouping)
	if input.Partitioning().Satisfies(required) {
		return p.aggregateNode(input, grouping, withMode(funcs, Complete), stats)
	}
	partial := p.aggregateNode(input, grouping, withMode(funcs, Partial),
		scaleStats(stats, float64(input.Partitioning().NumPartitions()), input.Statistics()))
	return p.aggregateNode(
		p.ensurePartitioning(partial, required), grouping, withMode(funcs, Final), stats)
}

// planSingleDistinct plans an aggregation in which every distinct
// aggregate has the same arguments D. With G the grouping columns:
//
//  1. the other aggregates are computed partially, grouped by G and D;
//  2. after an exchange on G and D, they are merged, which also removes the
//     duplicate values of D;
//  3. the distinct aggregates are computed partially over the now distinct
//     values of D, and the others are merged, grouped by G;
//  4. after an exchange on G, every aggregate is finalized.
func (p *Planner) planSingleDistinct(
	input Node, grouping opt.ColList, funcs []AggregateFunc, stats *props.Statistics,
) (Node, error) {
	var distinctArgs []memo.ScalarExpr
	for i := range funcs {
		if funcs[i].Distinct {
			if distinctArgs == nil {
				distinctArgs = funcs[i].Args
			} else if !sameArgs(distinctArgs, funcs[i].Args) {
				return nil, errors.WithHint(
					errors.AssertionFailedf("single distinct aggregation with several distinct argument sets"),
					"please report this query",
				)
			}
		}
	}

	// The distinct arguments become columns of the input.
	input, distinctCols := p.projectArgs(input, distinctArgs)
	groupAndDistinct := append(opt.ColList(nil), grouping...)
	groupSet := grouping.ToSet()
	for _, c := range distinctCols {
		if !groupSet.Contains(c) {
			groupAndDistinct = append(groupAndDistinct, c)
			groupSet.Add(c)
		}
	}

	var others []AggregateFunc
	for i := range funcs {
		if !funcs[i].Distinct {
			others = append(others, funcs[i])
		}
	}
	partitions := float64(input.Partitioning().NumPartitions())
	upper := input.Statistics()

	stage1 := p.aggregateNode(input, groupAndDistinct, withMode(others, Partial),
		scaleStats(upper, 1, upper))
	stage2 := p.aggregateNode(
		p.ensurePartitioning(stage1, physical.Hash(groupAndDistinct, 0)),
		groupAndDistinct, withMode(others, PartialMerge), scaleStats(upper, 1, upper))

	stage3Funcs := make([]AggregateFunc, len(funcs))
	for i := range funcs {
		stage3Funcs[i] = funcs[i]
		if funcs[i].Distinct {
			stage3Funcs[i].Mode = Partial
			args := make([]memo.ScalarExpr, len(distinctCols))
			for j, c := range distinctCols {
				args[j] = &memo.VariableExpr{Col: c, Typ: p.md.ColumnMeta(c).Type}
			}
			stage3Funcs[i].Args = args
		} else {
			stage3Funcs[i].Mode = PartialMerge
		}
	}
	stage3 := p.aggregateNode(stage2, grouping, stage3Funcs, scaleStats(stats, partitions, upper))
	if err := CheckModes(stage3); err != nil {
		return nil, err
	}
	final := p.aggregateNode(p.ensurePartitioning(stage3, clustered(grouping)), grouping,
		withMode(funcs, Final), stats)
	for i := range final.Aggs {
		final.Aggs[i].Args = stage3Funcs[i].Args
		final.Aggs[i].Filter = nil
	}
	return final, nil
}

// projectArgs returns the columns holding the values of the given
// expressions, adding a projection above the input for the expressions
// that are not column references.
func (p *Planner) projectArgs(input Node, args []memo.ScalarExpr) (Node, opt.ColList) {
	cols := make(opt.ColList, len(args))
	var exprs []memo.ScalarExpr
	var newCols opt.ColList
	for i, a := range args {
		if v, ok := a.(*memo.VariableExpr); ok {
			cols[i] = v.Col
			continue
		}
		cols[i] = p.md.AddColumn(fmt.Sprintf("distinct%d", i), a.DataType())
		exprs = append(exprs, a)
		newCols = append(newCols, cols[i])
	}
	if len(exprs) == 0 {
		return input, cols
	}
	prj := &ProjectNode{Input: input}
	keep := make(map[opt.ColumnID]opt.ColumnID)
	for _, c := range input.OutputCols() {
		prj.Exprs = append(prj.Exprs, &memo.VariableExpr{Col: c, Typ: p.md.ColumnMeta(c).Type})
		keep[c] = c
	}
	prj.Exprs = append(prj.Exprs, exprs...)
	prj.cols = append(append(opt.ColList(nil), input.OutputCols()...), newCols...)
	prj.part = input.Partitioning().Remap(keep)
	prj.ordering = input.Ordering()
	prj.stats = input.Statistics()
	return prj, cols
}

func (p *Planner) aggregateNode(
	input Node, grouping opt.ColList, funcs []AggregateFunc, stats *props.Statistics,
) *AggregateNode {
	n := &AggregateNode{Input: input, GroupingCols: grouping, Aggs: funcs}
	n.cols = append(opt.ColList(nil), grouping...)
	keep := make(map[opt.ColumnID]opt.ColumnID, len(grouping))
	for _, c := range grouping {
		keep[c] = c
	}
	for i := range funcs {
		if funcs[i].Mode.ProducesBuffers() {
			n.cols = append(n.cols, funcs[i].BufferCols...)
		} else {
			n.cols = append(n.cols, funcs[i].ResultCol)
		}
	}
	n.part = input.Partitioning().Remap(keep)
	n.stats = stats
	return n
}

func typedNull(typ *types.T) memo.ScalarExpr {
	return &memo.ConstExpr{Value: tree.DNull, Typ: typ}
}
