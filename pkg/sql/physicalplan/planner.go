// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package physicalplan turns optimized logical plans into physical plans:
// it chooses the join algorithms, splits aggregations into partial and
// final stages, inserts the exchanges that redistribute rows between
// partitions, and fuses chains of row-at-a-time operators into units of
// generated code.
package physicalplan

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/util/log"
)

// Config holds the physical planning settings.
type Config struct {
	// BroadcastThreshold is the estimated size in bytes under which a join
	// input is broadcast. A negative threshold disables broadcasting, except
	// for inputs named by a join hint.
	BroadcastThreshold int64

	// ShuffleHashRatio is how many times smaller than the other input the
	// build side of a shuffle hash join must be.
	ShuffleHashRatio float64

	// PreferSortMergeJoin disables shuffle hash joins on orderable keys.
	PreferSortMergeJoin bool

	// ShufflePartitions is the number of partitions produced by hash
	// exchanges.
	ShufflePartitions int

	// UnknownSelectivity is the selectivity of predicates that cannot be
	// estimated.
	UnknownSelectivity float64

	// Codegen configures whole-stage code generation. Chains are only fused
	// if it is enabled.
	Codegen execgen.Config
}

// DefaultConfig returns the default physical planning settings.
func DefaultConfig() Config {
	return Config{
		BroadcastThreshold:  10 << 20,
		ShuffleHashRatio:    3,
		PreferSortMergeJoin: true,
		ShufflePartitions:   4,
		UnknownSelectivity:  memo.DefaultUnknownSelectivity,
		Codegen:             execgen.DefaultConfig(),
	}
}

// Planner builds the physical plan of one query. It is not safe for
// concurrent use.
type Planner struct {
	md     *opt.Metadata
	cfg    Config
	sb     *memo.StatisticsBuilder
	plan   *Plan
	stages int
}

// New creates a planner for a query with the given metadata. Columns
// created by the planner, such as the buffers of partial aggregations, are
// added to md.
func New(md *opt.Metadata, cfg Config) *Planner {
	if cfg.ShufflePartitions < 1 {
		cfg.ShufflePartitions = 1
	}
	return &Planner{md: md, cfg: cfg, sb: memo.NewStatisticsBuilder(md, cfg.UnknownSelectivity)}
}

// Plan builds the physical plan of an optimized logical plan. The root of
// the plan produces a single partition, in the order of e if e is a sort.
func (p *Planner) Plan(ctx context.Context, e memo.RelExpr) (*Plan, error) {
	p.plan = &Plan{Metadata: p.md}
	p.stages = 0
	root, err := p.buildRoot(e)
	if err != nil {
		return nil, err
	}
	p.plan.Root = root
	for i := range p.plan.Subqueries {
		p.plan.Subqueries[i].Root = p.collapse(p.plan.Subqueries[i].Root)
	}
	p.plan.Root = p.collapse(p.plan.Root)
	if log.V(2) {
		log.VEventf(ctx, 2, "physical plan:\n%s", Explain(p.plan, ExplainShowStats))
	}
	return p.plan, nil
}

func (p *Planner) buildRoot(e memo.RelExpr) (Node, error) {
	n, err := p.build(e)
	if err != nil {
		return nil, err
	}
	return p.ensurePartitioning(n, physical.Single()), nil
}

func (p *Planner) build(e memo.RelExpr) (Node, error) {
	switch t := e.(type) {
	case *memo.ScanExpr:
		n := &ScanNode{Table: t.Table}
		n.cols = t.Cols
		n.part = physical.Any(t.Table.PartitionCount())
		if t.Table.PartitionCount() == 1 {
			n.part = physical.Single()
		}
		n.stats = p.sb.Build(t)
		return n, nil

	case *memo.ValuesExpr:
		n := &ValuesNode{Rows: t.Rows}
		n.cols = t.Cols
		n.part = physical.Single()
		n.stats = p.sb.Build(t)
		return n, nil

	case *memo.SelectExpr:
		input, err := p.build(t.Input)
		if err != nil {
			return nil, err
		}
		if err := p.planSubqueries(t.Filter); err != nil {
			return nil, err
		}
		n := &FilterNode{Input: input, Filter: t.Filter}
		n.cols = input.OutputCols()
		n.part = input.Partitioning()
		n.ordering = input.Ordering()
		n.stats = p.sb.Build(t)
		return n, nil

	case *memo.ProjectExpr:
		input, err := p.build(t.Input)
		if err != nil {
			return nil, err
		}
		return p.buildProject(t, input)

	case *memo.JoinExpr:
		return p.buildJoin(t)

	case *memo.GroupByExpr:
		return p.buildGroupBy(t)

	case *memo.UnionAllExpr:
		n := &UnionAllNode{InputCols: t.InputCols}
		count := 0
		for _, in := range t.Inputs {
			c, err := p.build(in)
			if err != nil {
				return nil, err
			}
			n.Inputs = append(n.Inputs, c)
			count += c.Partitioning().NumPartitions()
		}
		n.cols = t.Cols
		n.part = physical.Any(count)
		n.stats = p.sb.Build(t)
		return n, nil

	case *memo.LimitExpr:
		return p.buildLimit(t)

	case *memo.SortExpr:
		input, err := p.build(t.Input)
		if err != nil {
			return nil, err
		}
		return p.ensureOrdering(input, t.Ordering), nil
	}
	return nil, errors.AssertionFailedf("unhandled expression: %s", e.Op())
}

func (p *Planner) buildProject(t *memo.ProjectExpr, input Node) (Node, error) {
	n := &ProjectNode{Input: input}
	n.cols = t.OutputCols()
	keep := make(map[opt.ColumnID]opt.ColumnID, len(t.Passthrough))
	for _, c := range t.Passthrough {
		n.Exprs = append(n.Exprs, &memo.VariableExpr{Col: c, Typ: p.md.ColumnMeta(c).Type})
		keep[c] = c
	}
	for i := range t.Projections {
		if err := p.planSubqueries(t.Projections[i].Expr); err != nil {
			return nil, err
		}
		n.Exprs = append(n.Exprs, t.Projections[i].Expr)
	}
	n.part = input.Partitioning().Remap(keep)
	n.ordering = orderingPrefix(input.Ordering(), keep)
	n.stats = p.sb.Build(t)
	return n, nil
}

// orderingPrefix returns the longest prefix of the ordering whose columns
// are all kept.
func orderingPrefix(o opt.Ordering, keep map[opt.ColumnID]opt.ColumnID) opt.Ordering {
	for i, oc := range o {
		if _, ok := keep[oc.ID()]; !ok {
			return o[:i:i]
		}
	}
	return o
}

func (p *Planner) buildLimit(t *memo.LimitExpr) (Node, error) {
	input, err := p.build(t.Input)
	if err != nil {
		return nil, err
	}
	stats := p.sb.Build(t)
	if !input.Partitioning().Satisfies(physical.Single()) {
		local := &LimitNode{Input: input, Count: t.Count}
		local.cols = input.OutputCols()
		local.part = input.Partitioning()
		local.ordering = input.Ordering()
		local.stats = scaleStats(stats, float64(input.Partitioning().NumPartitions()), input.Statistics())
		input = p.ensurePartitioning(local, physical.Single())
	}
	n := &LimitNode{Input: input, Count: t.Count, Global: true}
	n.cols = input.OutputCols()
	n.part = input.Partitioning()
	n.ordering = input.Ordering()
	n.stats = stats
	return n, nil
}

// planSubqueries adds the subqueries of a scalar expression to the plan.
// Subqueries that refer to enclosing columns are not supported.
func (p *Planner) planSubqueries(e memo.ScalarExpr) error {
	if e == nil || !memo.ContainsSubquery(e) {
		return nil
	}
	var err error
	memo.TransformScalar(e, func(s memo.ScalarExpr) memo.ScalarExpr {
		if err != nil {
			return s
		}
		var input memo.RelExpr
		switch t := s.(type) {
		case *memo.ExistsExpr:
			input = t.Input
		case *memo.SubqueryExpr:
			input = t.Input
		default:
			return s
		}
		if memo.IsCorrelated(input) {
			err = errors.Mark(
				errors.WithHint(
					errors.Newf("correlated subquery: %s", memo.FormatScalar(s, p.md)),
					"only EXISTS subqueries correlated by equalities can be decorrelated",
				),
				memo.ErrUnsupported,
			)
			return s
		}
		var root Node
		if root, err = p.buildRoot(input); err != nil {
			return s
		}
		p.plan.Subqueries = append(p.plan.Subqueries, Subquery{Expr: s, Root: root})
		return s
	})
	return err
}

// ensurePartitioning adds an exchange above n if its partitioning does not
// satisfy the required one. An exchange into a single partition preserves
// the ordering of its input.
func (p *Planner) ensurePartitioning(n Node, required physical.Partitioning) Node {
	if n.Partitioning().Satisfies(required) {
		return n
	}
	target := required
	if target.Type == physical.HashPartitioning && target.Count == 0 {
		target.Count = p.cfg.ShufflePartitions
	}
	ex := &ExchangeNode{Input: n, Target: target}
	ex.cols = n.OutputCols()
	ex.part = target
	ex.stats = n.Statistics()
	if target.Type == physical.SinglePartition && len(n.Ordering()) > 0 {
		ex.Merge = n.Ordering()
		ex.ordering = n.Ordering()
	}
	if target.Type == physical.BroadcastPartitioning {
		ex.ordering = n.Ordering()
	}
	return ex
}

// ensureOrdering sorts the partitions of n if they are not already in the
// required order.
func (p *Planner) ensureOrdering(n Node, required opt.Ordering) Node {
	if n.Ordering().Provides(required) {
		return n
	}
	s := &SortNode{Input: n, Order: required}
	s.cols = n.OutputCols()
	s.part = n.Partitioning()
	s.ordering = required
	s.stats = n.Statistics()
	return s
}

// scaleStats returns a copy of s with the row count multiplied by factor,
// capped by the row count of bound.
func scaleStats(s *props.Statistics, factor float64, bound *props.Statistics) *props.Statistics {
	res := &props.Statistics{RowCount: s.RowCount, SizeBytes: s.SizeBytes, ColStats: s.ColStats}
	rows, ok := s.RowCount.Get()
	if !ok || factor == 1 {
		return res
	}
	scaled := rows * factor
	if limit, ok := bound.RowCount.Get(); ok && limit < scaled {
		scaled = limit
	}
	res.RowCount = res.RowCount.Map(func(float64) float64 { return scaled })
	if s.SizeKnown() && rows > 0 {
		res.SizeBytes = s.SizeBytes / rows * scaled
	}
	return res
}

func orderable(md *opt.Metadata, cols opt.ColList) bool {
	for _, c := range cols {
		if !md.ColumnMeta(c).Type.Orderable() {
			return false
		}
	}
	return true
}

func ascending(cols opt.ColList) opt.Ordering {
	o := make(opt.Ordering, len(cols))
	for i, c := range cols {
		o[i] = opt.MakeOrderingColumn(c, false)
	}
	return o
}
