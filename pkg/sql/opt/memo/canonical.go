// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
)

// Canonicalize returns a form of the plan that is free of cosmetic
// variation, so that two plans computing the same thing in the same shape
// canonicalize to structurally equal trees:
//
//   - Column ids are renumbered 1, 2, ... in definition order: the columns of
//     inputs before the columns defined by their parent. Outer references that
//     no node of the plan defines are numbered after all defined columns, in
//     ascending order of their original ids.
//   - The operands of commutative operators (AND, OR, =, !=, +, *) are sorted
//     by their formatted representation, and range comparisons are oriented
//     accordingly. Conjuncts and operands that embed subqueries keep their
//     relative order, since subqueries define columns.
//
// Canonicalize is idempotent. The result references columns that are not
// registered in the query metadata, so it is only meant for comparison and
// hashing, never for execution.
func Canonicalize(e RelExpr) RelExpr {
	m := canonicalColumnMap(e)
	res := RemapColumns(e, m).(RelExpr)
	return Transform(res, canonicalizeScalar).(RelExpr)
}

// CanonicalString formats the canonical form of the plan.
func CanonicalString(e RelExpr) string {
	return FormatExpr(Canonicalize(e), ExprFmtHideStats, nil)
}

// Fingerprint returns a hash of the canonical form of the plan. Plans with
// equal canonical forms have equal fingerprints.
func Fingerprint(e RelExpr) uint64 {
	return xxhash.Sum64String(CanonicalString(e))
}

// canonicalColumnMap assigns the canonical id of every column defined or
// referenced in the plan.
func canonicalColumnMap(e RelExpr) map[opt.ColumnID]opt.ColumnID {
	m := make(map[opt.ColumnID]opt.ColumnID)
	var referenced opt.ColSet
	define := func(cols ...opt.ColumnID) {
		for _, c := range cols {
			if _, ok := m[c]; !ok {
				m[c] = opt.ColumnID(len(m) + 1)
			}
		}
	}

	var visit func(e opt.Expr)
	visitScalar := func(s ScalarExpr) {
		walkScalar(s, func(s ScalarExpr) bool {
			switch t := s.(type) {
			case *VariableExpr:
				referenced.Add(t.Col)
			case *ExistsExpr:
				visit(t.Input)
			case *SubqueryExpr:
				visit(t.Input)
			}
			return true
		})
	}
	visit = func(e opt.Expr) {
		// Inputs first.
		for i, n := 0, e.ChildCount(); i < n; i++ {
			if rel, ok := e.Child(i).(RelExpr); ok {
				visit(rel)
			}
		}
		switch t := e.(type) {
		case *ScanExpr:
			define(t.Cols...)
		case *ValuesExpr:
			define(t.Cols...)
		case *ProjectExpr:
			for i := range t.Projections {
				define(t.Projections[i].Col)
			}
		case *GroupByExpr:
			for i := range t.Aggregations {
				define(t.Aggregations[i].Col)
			}
		case *UnionAllExpr:
			define(t.Cols...)
		case *SortExpr:
			referenced.UnionWith(t.Ordering.ColSet())
		}
		for i, n := 0, e.ChildCount(); i < n; i++ {
			if s, ok := e.Child(i).(ScalarExpr); ok {
				visitScalar(s)
			}
		}
	}
	visit(e)

	var outer []opt.ColumnID
	referenced.ForEach(func(c opt.ColumnID) {
		if _, ok := m[c]; !ok {
			outer = append(outer, c)
		}
	})
	define(outer...)
	return m
}

// canonicalizeScalar reorders the operands of a commutative scalar operator
// whose children are already canonical.
func canonicalizeScalar(e opt.Expr) opt.Expr {
	switch t := e.(type) {
	case *AndExpr:
		return sortChain(e.(ScalarExpr), opt.AndOp)
	case *OrExpr:
		return sortChain(e.(ScalarExpr), opt.OrOp)
	case *ComparisonExpr:
		if ContainsSubquery(t.Left) || ContainsSubquery(t.Right) {
			return e
		}
		if scalarKey(t.Left) > scalarKey(t.Right) {
			return &ComparisonExpr{Operator: t.Operator.Commute(), Left: t.Right, Right: t.Left}
		}
	case *BinaryExpr:
		if !t.Operator.Commutative() || ContainsSubquery(t.Left) || ContainsSubquery(t.Right) {
			return e
		}
		if scalarKey(t.Left) > scalarKey(t.Right) {
			return &BinaryExpr{Operator: t.Operator, Left: t.Right, Right: t.Left, Typ: t.Typ}
		}
	}
	return e
}

// sortChain flattens a tree of the given associative operator, sorts the
// operands and rebuilds a left-deep tree. Operands with subqueries are
// placed last, in their original order.
func sortChain(e ScalarExpr, op opt.Operator) ScalarExpr {
	var items []ScalarExpr
	var flatten func(e ScalarExpr)
	flatten = func(e ScalarExpr) {
		if e.Op() == op {
			flatten(e.Child(0).(ScalarExpr))
			flatten(e.Child(1).(ScalarExpr))
			return
		}
		items = append(items, e)
	}
	flatten(e)

	var plain, withSubquery []ScalarExpr
	for _, item := range items {
		if ContainsSubquery(item) {
			withSubquery = append(withSubquery, item)
		} else {
			plain = append(plain, item)
		}
	}
	keys := make(map[ScalarExpr]string, len(plain))
	for _, item := range plain {
		keys[item] = scalarKey(item)
	}
	sort.SliceStable(plain, func(i, j int) bool { return keys[plain[i]] < keys[plain[j]] })
	ordered := append(plain, withSubquery...)

	res := ordered[0]
	for _, item := range ordered[1:] {
		if op == opt.AndOp {
			res = &AndExpr{Left: res, Right: item}
		} else {
			res = &OrExpr{Left: res, Right: item}
		}
	}
	return res
}

func scalarKey(e ScalarExpr) string {
	return FormatExpr(e, ExprFmtHideAll, nil)
}
