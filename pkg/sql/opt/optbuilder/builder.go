// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package optbuilder binds the names of an unresolved query to column ids
// and builds the equivalent logical plan.
package optbuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// Builder holds the context needed for building a logical plan from an
// unresolved query.
//
// The builder allocates a fresh column id for every column it binds, so
// that ids are unique across the whole plan, including subqueries. Errors
// are propagated internally as panics carrying a builderError and are
// converted back to errors by Build.
type Builder struct {
	md      *opt.Metadata
	catalog cat.Catalog
}

// New creates a new Builder structure initialized with the given arguments.
func New(md *opt.Metadata, catalog cat.Catalog) *Builder {
	return &Builder{md: md, catalog: catalog}
}

// builderError is used to wrap errors returned by various external APIs that
// occur during the build process. It exists for us to be able to recover the
// wrapped errors and return them from Build.
type builderError struct {
	error
}

func unresolvedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), memo.ErrUnresolved)
}

func panicf(format string, args ...interface{}) {
	panic(builderError{unresolvedf(format, args...)})
}

// Build binds the query and returns the resolved plan. The plan is verified
// with memo.CheckExpr before it is returned.
func (b *Builder) Build(n RelNode) (_ memo.RelExpr, err error) {
	defer func() {
		if r := recover(); r != nil {
			// This code allows us to propagate builder errors without adding
			// lots of checks for `if err != nil` throughout the code.
			if bldErr, ok := r.(builderError); ok {
				err = bldErr.error
			} else {
				panic(r)
			}
		}
	}()

	e, _ := b.buildRel(n, &scope{})
	if err := memo.CheckExpr(b.md, e); err != nil {
		return nil, err
	}
	return e, nil
}

// buildRel builds a relational node. The returned scope holds the output
// columns of the expression, in order; its parent is the scope that was
// passed in, so that subqueries can see the columns of enclosing queries.
func (b *Builder) buildRel(n RelNode, inScope *scope) (memo.RelExpr, *scope) {
	switch t := n.(type) {
	case *Table:
		return b.buildTable(t, inScope)
	case *Values:
		return b.buildValues(t, inScope)
	case *Filter:
		input, s := b.buildRel(t.Input, inScope)
		cond := b.buildCondition(t.Cond, s, "WHERE")
		return &memo.SelectExpr{Input: input, Filter: cond}, s
	case *Project:
		return b.buildProject(t, inScope)
	case *Join:
		return b.buildJoin(t, inScope)
	case *Aggregate:
		return b.buildAggregate(t, inScope)
	case *UnionAll:
		return b.buildUnionAll(t, inScope)
	case *Limit:
		input, s := b.buildRel(t.Input, inScope)
		if t.Count < 0 {
			panicf("LIMIT must not be negative")
		}
		return &memo.LimitExpr{Input: input, Count: t.Count}, s
	case *OrderBy:
		input, s := b.buildRel(t.Input, inScope)
		ordering := make(opt.Ordering, len(t.Cols))
		for i, c := range t.Cols {
			col := b.resolveLocal(c.Name, s)
			ordering[i] = opt.MakeOrderingColumn(col.id, c.Desc)
		}
		return &memo.SortExpr{Input: input, Ordering: ordering}, s
	case nil:
		panic(builderError{errors.AssertionFailedf("missing relational input")})
	}
	panic(builderError{errors.AssertionFailedf("unhandled relational node %T", n)})
}

func (b *Builder) buildTable(t *Table, inScope *scope) (memo.RelExpr, *scope) {
	tab, err := b.catalog.ResolveTable(t.Name)
	if err != nil {
		panic(builderError{errors.Mark(err, memo.ErrUnresolved)})
	}
	alias := t.Alias
	if alias == "" {
		alias = tab.Name()
	}
	outScope := inScope.push()
	cols := make(opt.ColList, tab.ColumnCount())
	for i := range cols {
		c := tab.Column(i)
		cols[i] = b.md.AddTableColumn(alias, c.Name, c.Type)
		outScope.cols = append(outScope.cols, scopeColumn{name: c.Name, table: alias, id: cols[i], typ: c.Type})
	}
	return &memo.ScanExpr{Table: tab, Cols: cols}, outScope
}

func (b *Builder) buildValues(t *Values, inScope *scope) (memo.RelExpr, *scope) {
	outScope := inScope.push()
	cols := make(opt.ColList, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = b.md.AddColumn(c.Name, c.Type)
		outScope.cols = append(outScope.cols, scopeColumn{name: c.Name, id: cols[i], typ: c.Type})
	}
	for _, row := range t.Rows {
		if len(row) != len(cols) {
			panicf("VALUES row has %d columns, expected %d", len(row), len(cols))
		}
		for i, d := range row {
			if !d.ResolvedType().Equivalent(t.Columns[i].Type) {
				panicf("VALUES column %q expects type %s, found %s",
					t.Columns[i].Name, t.Columns[i].Type, d.ResolvedType())
			}
		}
	}
	return &memo.ValuesExpr{Cols: cols, Rows: t.Rows}, outScope
}

func (b *Builder) buildProject(t *Project, inScope *scope) (memo.RelExpr, *scope) {
	input, s := b.buildRel(t.Input, inScope)
	prj := &memo.ProjectExpr{Input: input}
	var passthrough, projected []scopeColumn
	var seen opt.ColSet
	for _, ne := range t.Exprs {
		if ref, ok := ne.Expr.(*ColRef); ok {
			col := b.resolveLocal(ref.Name, s)
			if !seen.Contains(col.id) && (ne.Alias == "" || ne.Alias == col.name) {
				seen.Add(col.id)
				prj.Passthrough = append(prj.Passthrough, col.id)
				passthrough = append(passthrough, *col)
				continue
			}
		}
		e := b.buildScalar(ne.Expr, s, nil)
		name := ne.Alias
		if name == "" {
			name = exprName(ne.Expr)
		}
		id := b.md.AddColumn(name, e.DataType())
		prj.Projections = append(prj.Projections, memo.ProjectionItem{Col: id, Expr: e})
		projected = append(projected, scopeColumn{name: name, id: id, typ: e.DataType()})
	}
	outScope := inScope.push()
	outScope.cols = append(passthrough, projected...)
	return prj, outScope
}

func (b *Builder) buildJoin(t *Join, inScope *scope) (memo.RelExpr, *scope) {
	left, ls := b.buildRel(t.Left, inScope)
	right, rs := b.buildRel(t.Right, inScope)
	joined := inScope.push()
	joined.cols = append(append(joined.cols, ls.cols...), rs.cols...)

	var on memo.ScalarExpr = memo.TrueSingleton
	if t.On != nil {
		on = b.buildCondition(t.On, joined, "ON")
	}
	outScope := joined
	if t.Type.IsSemiOrAnti() {
		outScope = inScope.push()
		outScope.cols = ls.cols
	}
	return &memo.JoinExpr{Type: t.Type, Left: left, Right: right, On: on, Hint: t.Hint}, outScope
}

func (b *Builder) buildUnionAll(t *UnionAll, inScope *scope) (memo.RelExpr, *scope) {
	if len(t.Inputs) == 0 {
		panic(builderError{errors.AssertionFailedf("UNION ALL without inputs")})
	}
	union := &memo.UnionAllExpr{}
	var first *scope
	for i, in := range t.Inputs {
		e, s := b.buildRel(in, inScope)
		if i == 0 {
			first = s
		} else if len(s.cols) != len(first.cols) {
			panicf("each UNION ALL input must have the same number of columns: %d vs %d",
				len(first.cols), len(s.cols))
		}
		union.Inputs = append(union.Inputs, e)
		union.InputCols = append(union.InputCols, s.colList())
	}

	outScope := inScope.push()
	for j := range first.cols {
		typ := types.Unknown
		for i := range union.Inputs {
			ct := b.md.ColumnMeta(union.InputCols[i][j]).Type
			if !ct.Equivalent(typ) {
				panicf("UNION ALL types %s and %s cannot be matched", typ, ct)
			}
			if typ == types.Unknown {
				typ = ct
			}
		}
		id := b.md.AddColumn(first.cols[j].name, typ)
		union.Cols = append(union.Cols, id)
		outScope.cols = append(outScope.cols, scopeColumn{name: first.cols[j].name, id: id, typ: typ})
	}
	return union, outScope
}

// resolveLocal resolves a name that must refer to a column of s itself.
func (b *Builder) resolveLocal(name string, s *scope) *scopeColumn {
	col, err := s.resolve(name)
	if err != nil {
		panic(builderError{err})
	}
	if s.isOuter(col.id) {
		panicf("column %q must be produced by the input", name)
	}
	return col
}

// exprName derives a column name from an expression, the way a SQL engine
// names unaliased select-list items.
func exprName(n ScalarNode) string {
	switch t := n.(type) {
	case *ColRef:
		return t.Name
	case *Call:
		return t.Name
	case *Cast:
		return exprName(t.Input)
	case *Exists:
		return "exists"
	}
	return "?column?"
}
