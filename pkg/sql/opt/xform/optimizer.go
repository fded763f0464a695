// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package xform optimizes logical plans: it runs the normalization rules in
// batches with the rule executor, and reorders inner joins by estimated
// cost.
package xform

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/norm"
	"github.com/cockroachdb/relcore/pkg/util/log"
)

// Config holds the optimizer settings.
type Config struct {
	// MaxIterations bounds the passes of every fixed-point batch.
	MaxIterations int
	// Strict makes a non-converging batch an error.
	Strict bool
	// UnknownSelectivity is the selectivity of predicates that cannot be
	// estimated.
	UnknownSelectivity float64
	// ReorderJoins enables cost-based reordering of inner joins.
	ReorderJoins bool
	// StarSchema enables star-schema detection during join reordering.
	StarSchema bool
}

// DefaultConfig returns the default optimizer settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      100,
		UnknownSelectivity: memo.DefaultUnknownSelectivity,
		ReorderJoins:       true,
		StarSchema:         true,
	}
}

// ReorderJoins is the name of the cost-based join reordering rule.
const ReorderJoins norm.RuleName = "ReorderJoins"

// Optimizer transforms the logical plan of one query.
type Optimizer struct {
	md       *opt.Metadata
	cfg      Config
	f        norm.Factory
	sb       *memo.StatisticsBuilder
	executor RuleExecutor
}

// New creates an optimizer for a query with the given metadata. metrics may
// be nil.
func New(md *opt.Metadata, cfg Config, metrics *Metrics) *Optimizer {
	o := &Optimizer{
		md:  md,
		cfg: cfg,
		sb:  memo.NewStatisticsBuilder(md, cfg.UnknownSelectivity),
	}
	o.f.Init(md)
	o.executor = RuleExecutor{
		Batches:  o.batches(),
		Strict:   cfg.Strict,
		Metadata: md,
		Metrics:  metrics,
	}
	return o
}

// Factory returns the factory that owns the rules.
func (o *Optimizer) Factory() *norm.Factory { return &o.f }

// StatisticsBuilder returns the builder used for cost decisions.
func (o *Optimizer) StatisticsBuilder() *memo.StatisticsBuilder { return o.sb }

// Executor returns the rule executor, whose Runs and Stats describe the
// last call to Optimize.
func (o *Optimizer) Executor() *RuleExecutor { return &o.executor }

// Optimize checks and rewrites a logical plan. The result produces the same
// rows as e, with the same output columns in the same order.
func (o *Optimizer) Optimize(ctx context.Context, e memo.RelExpr) (memo.RelExpr, error) {
	if err := memo.CheckExpr(o.md, e); err != nil {
		return nil, err
	}
	res, err := o.executor.Execute(ctx, e)
	if err != nil {
		return nil, err
	}
	if !res.OutputCols().Equals(e.OutputCols()) {
		return nil, errors.AssertionFailedf("optimization changed the output columns from %s to %s",
			e.OutputCols(), res.OutputCols())
	}
	if log.V(2) {
		log.VEventf(ctx, 2, "optimized plan:\n%s", memo.FormatExpr(res, memo.ExprFmtHideStats, o.md))
	}
	return res, nil
}

func (o *Optimizer) rules(names ...norm.RuleName) []norm.Rule {
	rules, err := o.f.Rules(names...)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "invalid batch definition"))
	}
	return rules
}

// batches defines the optimizer's rule batches. Later batches rely on the
// normal form produced by earlier ones: types are coerced before constants
// are folded, and filters are simplified before they are pushed down.
func (o *Optimizer) batches() []Batch {
	fixed := FixedPoint(o.cfg.MaxIterations)
	batches := []Batch{
		{
			Name:     "type coercion",
			Strategy: Once,
			Rules:    o.rules(norm.TypeCoercion),
		},
		{
			Name:     "decorrelation",
			Strategy: fixed,
			Rules:    o.rules(norm.MergeSelects, norm.DecorrelateExists),
		},
		{
			Name:     "simplification",
			Strategy: fixed,
			Rules: o.rules(
				norm.FoldConstants,
				norm.SimplifyFilters,
				norm.EliminateSelect,
				norm.PropagateEmpty,
			),
		},
		{
			Name:     "pushdown",
			Strategy: fixed,
			Rules: o.rules(
				norm.MergeSelects,
				norm.PushSelectIntoJoin,
				norm.PushJoinCondIntoInputs,
				norm.PushSelectThroughProject,
				norm.PushSelectThroughGroupBy,
				norm.PushSelectThroughUnion,
				norm.PushSelectThroughSort,
				norm.MergeLimits,
				norm.PushLimitThroughProject,
				norm.PushLimitIntoUnion,
				norm.EliminateSort,
				norm.MergeProjects,
				norm.EliminateProject,
				norm.FoldConstants,
				norm.SimplifyFilters,
				norm.EliminateSelect,
				norm.PropagateEmpty,
			),
		},
	}
	if o.cfg.ReorderJoins {
		batches = append(batches, Batch{
			Name:     "join reorder",
			Strategy: Once,
			Rules:    []norm.Rule{{Name: ReorderJoins, Apply: o.reorderJoins}},
		})
	}
	return append(batches, Batch{
		Name:     "pruning",
		Strategy: fixed,
		Rules:    o.rules(norm.PruneColumns, norm.MergeProjects, norm.EliminateProject),
	})
}
