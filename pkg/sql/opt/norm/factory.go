// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package norm contains the logical rewrite rules of the optimizer. Every
// rule is a function from a plan to an equivalent plan; a rule that does not
// apply to any node of the plan returns the plan unchanged (the very same
// pointer), which is how the rule executor detects that a batch converged.
package norm

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
)

// RuleName identifies a rule in logs, metrics and test directives.
type RuleName string

// Rule is a named plan rewrite.
type Rule struct {
	Name  RuleName
	Apply func(e memo.RelExpr) memo.RelExpr
}

// Factory owns the rewrite rules. The rules share the query metadata, to
// which some of them add columns.
type Factory struct {
	md      *opt.Metadata
	evalCtx eval.Context
	funcs   CustomFuncs
	rules   map[RuleName]Rule
}

// Init initializes a Factory for a query with the given metadata.
func (f *Factory) Init(md *opt.Metadata) {
	*f = Factory{md: md}
	f.funcs.Init(f)
	f.rules = make(map[RuleName]Rule)
	for _, r := range f.allRules() {
		f.rules[r.Name] = r
	}
}

// Metadata returns the query metadata.
func (f *Factory) Metadata() *opt.Metadata { return f.md }

// CustomFuncs returns the helpers shared by the rules.
func (f *Factory) CustomFuncs() *CustomFuncs { return &f.funcs }

// Rule returns the rule with the given name.
func (f *Factory) Rule(name RuleName) (Rule, error) {
	r, ok := f.rules[name]
	if !ok {
		return Rule{}, errors.Newf("unknown rule %q", name)
	}
	return r, nil
}

// Rules returns the rules with the given names, in order.
func (f *Factory) Rules(names ...RuleName) ([]Rule, error) {
	res := make([]Rule, len(names))
	for i, n := range names {
		r, err := f.Rule(n)
		if err != nil {
			return nil, err
		}
		res[i] = r
	}
	return res, nil
}

// RuleNames returns the names of every rule, in definition order.
func (f *Factory) RuleNames() []RuleName {
	rules := f.allRules()
	res := make([]RuleName, len(rules))
	for i := range rules {
		res[i] = rules[i].Name
	}
	return res
}

const (
	TypeCoercion             RuleName = "TypeCoercion"
	DecorrelateExists        RuleName = "DecorrelateExists"
	SimplifyFilters          RuleName = "SimplifyFilters"
	FoldConstants            RuleName = "FoldConstants"
	EliminateSelect          RuleName = "EliminateSelect"
	MergeSelects             RuleName = "MergeSelects"
	PushSelectIntoJoin       RuleName = "PushSelectIntoJoin"
	PushJoinCondIntoInputs   RuleName = "PushJoinCondIntoInputs"
	PushSelectThroughProject RuleName = "PushSelectThroughProject"
	PushSelectThroughGroupBy RuleName = "PushSelectThroughGroupBy"
	PushSelectThroughUnion   RuleName = "PushSelectThroughUnion"
	PushSelectThroughSort    RuleName = "PushSelectThroughSort"
	MergeLimits              RuleName = "MergeLimits"
	PushLimitThroughProject  RuleName = "PushLimitThroughProject"
	PushLimitIntoUnion       RuleName = "PushLimitIntoUnion"
	EliminateSort            RuleName = "EliminateSort"
	MergeProjects            RuleName = "MergeProjects"
	EliminateProject         RuleName = "EliminateProject"
	PruneColumns             RuleName = "PruneColumns"
	PropagateEmpty           RuleName = "PropagateEmpty"
)

func (f *Factory) allRules() []Rule {
	c := &f.funcs
	return []Rule{
		{TypeCoercion, scalarRule(c.coerceTypes)},
		{DecorrelateExists, relRule(c.decorrelateExists)},
		{SimplifyFilters, scalarRule(c.simplifyBoolean)},
		{FoldConstants, scalarRule(c.foldConstant)},
		{EliminateSelect, relRule(c.eliminateSelect)},
		{MergeSelects, relRule(c.mergeSelects)},
		{PushSelectIntoJoin, relRule(c.pushSelectIntoJoin)},
		{PushJoinCondIntoInputs, relRule(c.pushJoinCondIntoInputs)},
		{PushSelectThroughProject, relRule(c.pushSelectThroughProject)},
		{PushSelectThroughGroupBy, relRule(c.pushSelectThroughGroupBy)},
		{PushSelectThroughUnion, relRule(c.pushSelectThroughUnion)},
		{PushSelectThroughSort, relRule(c.pushSelectThroughSort)},
		{MergeLimits, relRule(c.mergeLimits)},
		{PushLimitThroughProject, relRule(c.pushLimitThroughProject)},
		{PushLimitIntoUnion, relRule(c.pushLimitIntoUnion)},
		{EliminateSort, relRule(c.eliminateSort)},
		{MergeProjects, relRule(c.mergeProjects)},
		{EliminateProject, relRule(c.eliminateProject)},
		{PruneColumns, c.pruneColumns},
		{PropagateEmpty, relRule(c.propagateEmpty)},
	}
}

// relRule lifts a rewrite of a single relational node into a rule that is
// tried on every relational node of the plan, bottom-up, including the
// plans of subqueries.
func relRule(fn func(memo.RelExpr) memo.RelExpr) func(memo.RelExpr) memo.RelExpr {
	return func(e memo.RelExpr) memo.RelExpr {
		return memo.TransformRel(e, fn)
	}
}

// scalarRule lifts a rewrite of a single scalar node into a rule that is
// tried on every scalar node of the plan, bottom-up.
func scalarRule(fn func(memo.ScalarExpr) memo.ScalarExpr) func(memo.RelExpr) memo.RelExpr {
	return func(e memo.RelExpr) memo.RelExpr {
		return memo.Transform(e, func(e opt.Expr) opt.Expr {
			if s, ok := e.(memo.ScalarExpr); ok {
				return fn(s)
			}
			return e
		}).(memo.RelExpr)
	}
}
