// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package optbuilder

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// aggContext collects the aggregates found while building the output
// expressions of an aggregation.
type aggContext struct {
	grouping opt.ColSet
	aggs     []memo.AggregationItem
}

func (a *aggContext) isAggCol(col opt.ColumnID) bool {
	for i := range a.aggs {
		if a.aggs[i].Col == col {
			return true
		}
	}
	return false
}

// buildCondition builds a boolean expression that is not allowed to
// contain aggregates.
func (b *Builder) buildCondition(n ScalarNode, s *scope, context string) memo.ScalarExpr {
	e := b.buildScalar(n, s, nil)
	if !e.DataType().Equivalent(types.Bool) {
		panicf("argument of %s must be type bool, not type %s", context, e.DataType())
	}
	return e
}

// buildScalar builds a scalar expression in scope s. If agg is non-nil, the
// expression is an output of an aggregation over s: aggregate calls are
// extracted into agg and replaced by references to their columns, and other
// references to columns of s must be grouping columns.
func (b *Builder) buildScalar(n ScalarNode, s *scope, agg *aggContext) memo.ScalarExpr {
	switch t := n.(type) {
	case *ColRef:
		col, err := s.resolve(t.Name)
		if err != nil {
			panic(builderError{err})
		}
		if agg != nil && !s.isOuter(col.id) && !agg.grouping.Contains(col.id) {
			panicf("column %q must appear in the GROUP BY clause or be used in an aggregate function", t.Name)
		}
		return &memo.VariableExpr{Col: col.id, Typ: col.typ}

	case *Lit:
		if t.Value == nil {
			panic(builderError{errors.AssertionFailedf("literal without value")})
		}
		return memo.NewConst(t.Value)

	case *Null:
		if t.Type == nil || t.Type == types.Unknown {
			return memo.NullSingleton
		}
		return &memo.ConstExpr{Value: tree.DNull, Typ: t.Type}

	case *And:
		l, r := b.buildBool(t.Left, s, agg, "AND"), b.buildBool(t.Right, s, agg, "AND")
		return &memo.AndExpr{Left: l, Right: r}

	case *Or:
		l, r := b.buildBool(t.Left, s, agg, "OR"), b.buildBool(t.Right, s, agg, "OR")
		return &memo.OrExpr{Left: l, Right: r}

	case *Not:
		return &memo.NotExpr{Input: b.buildBool(t.Input, s, agg, "NOT")}

	case *Cmp:
		l, r := b.buildScalar(t.Left, s, agg), b.buildScalar(t.Right, s, agg)
		lt, rt := l.DataType(), r.DataType()
		if !lt.Equivalent(rt) && !(lt.IsNumeric() && rt.IsNumeric()) {
			panicf("unsupported comparison operator: %s %s %s", lt, t.Op, rt)
		}
		return &memo.ComparisonExpr{Operator: t.Op, Left: l, Right: r}

	case *Bin:
		l, r := b.buildScalar(t.Left, s, agg), b.buildScalar(t.Right, s, agg)
		typ := tree.BinaryResultType(t.Op, l.DataType(), r.DataType())
		if typ == nil {
			panicf("unsupported binary operator: %s %s %s", l.DataType(), t.Op, r.DataType())
		}
		return &memo.BinaryExpr{Operator: t.Op, Left: l, Right: r, Typ: typ}

	case *Neg:
		in := b.buildScalar(t.Input, s, agg)
		if typ := in.DataType(); !typ.IsNumeric() {
			panicf("unsupported unary operator: -%s", typ)
		}
		return &memo.UnaryMinusExpr{Input: in}

	case *IsNull:
		return &memo.IsNullExpr{Input: b.buildScalar(t.Input, s, agg)}

	case *Coalesce:
		if len(t.Args) == 0 {
			panicf("COALESCE requires at least one argument")
		}
		args := make([]memo.ScalarExpr, len(t.Args))
		for i := range t.Args {
			args[i] = b.buildScalar(t.Args[i], s, agg)
		}
		typ := unifyTypes("COALESCE", args)
		return &memo.CoalesceExpr{Args: args, Typ: typ}

	case *If:
		cond := b.buildBool(t.Cond, s, agg, "IF")
		branches := []memo.ScalarExpr{b.buildScalar(t.Then, s, agg), b.buildScalar(t.Else, s, agg)}
		typ := unifyTypes("IF", branches)
		return &memo.IfExpr{Cond: cond, Then: branches[0], Else: branches[1], Typ: typ}

	case *Cast:
		in := b.buildScalar(t.Input, s, agg)
		if !tree.CanCast(in.DataType(), t.Type) {
			panicf("invalid cast: %s -> %s", in.DataType(), t.Type)
		}
		return &memo.CastExpr{Input: in, Typ: t.Type}

	case *Call:
		if builtins.IsAggregate(aggregateName(t)) {
			return b.buildAggregateCall(t, s, agg)
		}
		if t.Star || t.Distinct || t.Filter != nil {
			panicf("%s() is not an aggregate function", t.Name)
		}
		args := make([]memo.ScalarExpr, len(t.Args))
		argTypes := make([]*types.T, len(t.Args))
		for i := range t.Args {
			args[i] = b.buildScalar(t.Args[i], s, agg)
			argTypes[i] = args[i].DataType()
		}
		ov, err := builtins.LookupScalar(t.Name, argTypes)
		if err != nil {
			panic(builderError{errors.Mark(err, memo.ErrUnresolved)})
		}
		return &memo.FunctionExpr{Overload: ov, Args: args}

	case *Exists:
		sub, _ := b.buildRel(t.Sub, s)
		return &memo.ExistsExpr{Input: sub}

	case *Subquery:
		sub, subScope := b.buildRel(t.Sub, s)
		if len(subScope.cols) != 1 {
			panicf("subquery must return only one column, found %d", len(subScope.cols))
		}
		return &memo.SubqueryExpr{Input: sub, Typ: subScope.cols[0].typ}

	case nil:
		panic(builderError{errors.AssertionFailedf("missing scalar expression")})
	}
	panic(builderError{errors.AssertionFailedf("unhandled scalar node %T", n)})
}

func (b *Builder) buildBool(n ScalarNode, s *scope, agg *aggContext, op string) memo.ScalarExpr {
	e := b.buildScalar(n, s, agg)
	if !e.DataType().Equivalent(types.Bool) {
		panicf("argument of %s must be type bool, not type %s", op, e.DataType())
	}
	return e
}

func aggregateName(c *Call) string {
	if c.Star && c.Name == "count" {
		return "count_rows"
	}
	return c.Name
}

// buildAggregateCall adds an aggregate to the aggregation context and
// returns a reference to the column that will hold its result.
func (b *Builder) buildAggregateCall(t *Call, s *scope, agg *aggContext) memo.ScalarExpr {
	if agg == nil {
		panicf("aggregate function %s() is not allowed in this context", t.Name)
	}
	name := aggregateName(t)
	if t.Star && name != "count_rows" {
		panicf("%s(*) is not supported", t.Name)
	}
	args := make([]memo.ScalarExpr, len(t.Args))
	argTypes := make([]*types.T, len(t.Args))
	for i := range t.Args {
		// Aggregate arguments are built without an aggregation context, so a
		// nested aggregate is an error.
		args[i] = b.buildScalar(t.Args[i], s, nil)
		argTypes[i] = args[i].DataType()
	}
	ov, err := builtins.LookupAggregate(name, argTypes)
	if err != nil {
		panic(builderError{errors.Mark(err, memo.ErrUnresolved)})
	}
	var filter memo.ScalarExpr
	if t.Filter != nil {
		filter = b.buildCondition(t.Filter, s, "FILTER")
	}
	e := &memo.AggregateExpr{Name: name, Args: args, Distinct: t.Distinct, Filter: filter, Typ: ov.ReturnType}
	col := b.md.AddColumn(t.Name, ov.ReturnType)
	agg.aggs = append(agg.aggs, memo.AggregationItem{Col: col, Agg: e})
	return &memo.VariableExpr{Col: col, Typ: ov.ReturnType}
}

// unifyTypes returns the common type of the branches of a COALESCE or IF.
// Numeric branches of different types are cast to their common type in
// place.
func unifyTypes(op string, args []memo.ScalarExpr) *types.T {
	typ := types.Unknown
	for _, arg := range args {
		at := arg.DataType()
		switch {
		case at == types.Unknown || at == typ:
		case typ == types.Unknown:
			typ = at
		case typ.IsNumeric() && at.IsNumeric():
			typ = types.CommonNumeric(typ, at)
		default:
			panicf("%s types %s and %s cannot be matched", op, typ, at)
		}
	}
	for i, arg := range args {
		if at := arg.DataType(); at != typ && at != types.Unknown {
			args[i] = &memo.CastExpr{Input: arg, Typ: typ}
		}
	}
	return typ
}

func (b *Builder) buildAggregate(t *Aggregate, inScope *scope) (memo.RelExpr, *scope) {
	input, s := b.buildRel(t.Input, inScope)
	agg := &aggContext{}
	gb := &memo.GroupByExpr{Input: input}
	var groupCols []scopeColumn
	for _, name := range t.GroupBy {
		col := b.resolveLocal(name, s)
		if agg.grouping.Contains(col.id) {
			continue
		}
		agg.grouping.Add(col.id)
		gb.GroupingCols = append(gb.GroupingCols, col.id)
		groupCols = append(groupCols, *col)
	}

	type outItem struct {
		e    memo.ScalarExpr
		name string
	}
	items := make([]outItem, len(t.Aggs))
	for i, ne := range t.Aggs {
		items[i].e = b.buildScalar(ne.Expr, s, agg)
		items[i].name = ne.Alias
		if items[i].name == "" {
			items[i].name = exprName(ne.Expr)
		}
	}
	gb.Aggregations = agg.aggs

	// Bare aggregates are output by the GroupBy itself. Unaliased grouping
	// columns are already part of its output.
	outScope := inScope.push()
	outScope.cols = append(outScope.cols, groupCols...)
	var bare []scopeColumn
	var computed []outItem
	var used opt.ColSet
	for _, it := range items {
		if v, ok := it.e.(*memo.VariableExpr); ok && !used.Contains(v.Col) {
			if agg.isAggCol(v.Col) {
				used.Add(v.Col)
				b.md.ColumnMeta(v.Col).Alias = it.name
				bare = append(bare, scopeColumn{name: it.name, id: v.Col, typ: v.Typ})
				continue
			}
			if agg.grouping.Contains(v.Col) && it.name == b.md.ColumnMeta(v.Col).Alias {
				continue
			}
		}
		computed = append(computed, it)
	}
	outScope.cols = append(outScope.cols, bare...)
	if len(computed) == 0 {
		return gb, outScope
	}

	prj := &memo.ProjectExpr{Input: gb, Passthrough: outScope.colList()}
	for _, it := range computed {
		id := b.md.AddColumn(it.name, it.e.DataType())
		prj.Projections = append(prj.Projections, memo.ProjectionItem{Col: id, Expr: it.e})
		outScope.cols = append(outScope.cols, scopeColumn{name: it.name, id: id, typ: it.e.DataType()})
	}
	return prj, outScope
}
