// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
)

// eliminateProject removes a Project that passes through exactly the columns
// of its input, in order.
func (c *CustomFuncs) eliminateProject(e memo.RelExpr) memo.RelExpr {
	prj, ok := e.(*memo.ProjectExpr)
	if !ok || len(prj.Projections) != 0 {
		return e
	}
	if !prj.Passthrough.Equals(prj.Input.OutputCols()) {
		return e
	}
	return prj.Input
}

// mergeProjects combines a Project over a Project into one, substituting the
// inner synthesized columns into the outer expressions. The merge is only
// done when the merged Project produces its columns in the same order, and
// when no expression that would be duplicated or moved is volatile or embeds
// a subquery.
func (c *CustomFuncs) mergeProjects(e memo.RelExpr) memo.RelExpr {
	outer, ok := e.(*memo.ProjectExpr)
	if !ok {
		return e
	}
	inner, ok := outer.Input.(*memo.ProjectExpr)
	if !ok {
		return e
	}
	innerExprs := make(map[opt.ColumnID]memo.ScalarExpr, len(inner.Projections))
	for _, item := range inner.Projections {
		innerExprs[item.Col] = item.Expr
	}
	// The outer passthrough columns must be the inner passthrough columns
	// first, followed by inner synthesized columns.
	split := len(outer.Passthrough)
	for i, col := range outer.Passthrough {
		if _, ok := innerExprs[col]; ok {
			split = i
			break
		}
	}
	for _, col := range outer.Passthrough[split:] {
		if _, ok := innerExprs[col]; !ok {
			return e
		}
	}

	var referenced opt.ColSet
	for _, col := range outer.Passthrough[split:] {
		referenced.Add(col)
	}
	for _, item := range outer.Projections {
		referenced.UnionWith(memo.ScalarCols(item.Expr))
	}
	for _, item := range inner.Projections {
		if !referenced.Contains(item.Col) {
			continue
		}
		if !memo.IsDeterministic(item.Expr) || memo.ContainsSubquery(item.Expr) {
			return e
		}
	}

	projections := make([]memo.ProjectionItem, 0, len(outer.Passthrough)-split+len(outer.Projections))
	for _, col := range outer.Passthrough[split:] {
		projections = append(projections, memo.ProjectionItem{Col: col, Expr: innerExprs[col]})
	}
	for _, item := range outer.Projections {
		projections = append(projections, memo.ProjectionItem{
			Col:  item.Col,
			Expr: memo.ReplaceColumns(item.Expr, innerExprs),
		})
	}
	return &memo.ProjectExpr{
		Input:       inner.Input,
		Passthrough: outer.Passthrough[:split:split],
		Projections: projections,
	}
}
