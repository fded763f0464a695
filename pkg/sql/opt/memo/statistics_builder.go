// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/optional"
)

const (
	// DefaultUnknownSelectivity is the selectivity of a predicate whose
	// effect cannot be estimated from statistics.
	DefaultUnknownSelectivity = 0.5

	// rowOverhead is the per-row size, in bytes, added to the width of the
	// columns of a row.
	rowOverhead = 8

	// When subtracting floating point numbers, avoid precision errors by
	// making sure the result is greater than or equal to epsilon.
	epsilon = 1e-10
)

// StatisticsBuilder derives the statistics of relational expressions
// bottom-up. The statistics of an expression are a deterministic function
// of the statistics of its inputs and of its own semantics; they are
// computed on first request and memoized on the expression.
//
// Missing statistics propagate as unknown rather than defaulting to zero:
// a row count is either known or unknown, and a size that cannot be derived
// is props.UnknownSizeBytes, which callers treat as "large".
//
// Selectivities of the conjuncts of a filter are multiplied under the
// assumption that they are independent. This is a known source of
// estimation error for correlated predicates.
type StatisticsBuilder struct {
	md                 *opt.Metadata
	unknownSelectivity float64
}

// NewStatisticsBuilder returns a statistics builder for plans whose columns
// are registered in md. Statistics memoized on an expression are reused by
// every builder, so the selectivity of the first builder to reach an
// expression wins.
func NewStatisticsBuilder(md *opt.Metadata, unknownSelectivity float64) *StatisticsBuilder {
	return &StatisticsBuilder{md: md, unknownSelectivity: unknownSelectivity}
}

// Build returns the statistics of the expression, deriving them (and those
// of its inputs) if necessary.
func (sb *StatisticsBuilder) Build(e RelExpr) *props.Statistics {
	slot := e.statsSlot()
	if s := slot.Load(); s != nil {
		return s
	}
	var s *props.Statistics
	switch t := e.(type) {
	case *ScanExpr:
		s = sb.buildScan(t)
	case *ValuesExpr:
		s = sb.buildValues(t)
	case *SelectExpr:
		s = sb.buildSelect(t)
	case *ProjectExpr:
		s = sb.buildProject(t)
	case *JoinExpr:
		s = sb.buildJoin(t)
	case *GroupByExpr:
		s = sb.buildGroupBy(t)
	case *UnionAllExpr:
		s = sb.buildUnionAll(t)
	case *LimitExpr:
		s = sb.buildLimit(t)
	case *SortExpr:
		s = sb.Build(t.Input)
	default:
		panic(errors.AssertionFailedf("unhandled relational expression: %s", e.Op()))
	}
	slot.CompareAndSwap(nil, s)
	return slot.Load()
}

// colsWidth returns the estimated size of a row with the given columns.
func (sb *StatisticsBuilder) colsWidth(cols opt.ColList) float64 {
	w := float64(rowOverhead)
	for _, c := range cols {
		w += float64(sb.md.ColumnMeta(c).Type.Width())
	}
	return w
}

// rowWidth returns the average size of a row of e, preferring the size
// derived from the input statistics when it is known.
func (sb *StatisticsBuilder) rowWidth(e RelExpr) float64 {
	s := sb.Build(e)
	if rows, ok := s.RowCount.Get(); ok && rows > 0 && s.SizeKnown() {
		return s.SizeBytes / rows
	}
	return sb.colsWidth(e.OutputCols())
}

// setSize sets the size of s from its row count and the given row width.
func setSize(s *props.Statistics, width float64) {
	if rows, ok := s.RowCount.Get(); ok {
		s.SizeBytes = rows * width
	} else {
		s.SizeBytes = props.UnknownSizeBytes
	}
}

func (sb *StatisticsBuilder) buildScan(scan *ScanExpr) *props.Statistics {
	s := &props.Statistics{SizeBytes: props.UnknownSizeBytes}
	ts := scan.Table.Statistics()
	if ts == nil {
		return s
	}
	s.RowCount = optional.MakeFloat(ts.RowCount)
	if ts.SizeBytes > 0 {
		s.SizeBytes = ts.SizeBytes
	} else {
		setSize(s, sb.colsWidth(scan.Cols))
	}
	for i, cs := range ts.Columns {
		if cs == nil || i >= len(scan.Cols) {
			continue
		}
		col := scan.Cols[i]
		colStat := s.EnsureColStat(col)
		colStat.DistinctCount = optional.MakeFloat(cs.DistinctCount)
		colStat.NullCount = optional.MakeFloat(cs.NullCount)
		colStat.Min, colStat.Max = cs.Min, cs.Max
		if len(cs.Histogram) > 0 {
			h := &props.Histogram{}
			h.Init(col, cs.Histogram)
			colStat.Histogram = h
		}
	}
	return s
}

func (sb *StatisticsBuilder) buildValues(values *ValuesExpr) *props.Statistics {
	s := &props.Statistics{RowCount: optional.MakeFloat(float64(len(values.Rows)))}
	for i, col := range values.Cols {
		distinct := make(map[string]struct{})
		var nulls float64
		var min, max tree.Datum
		for _, row := range values.Rows {
			d := row[i]
			distinct[d.String()] = struct{}{}
			if d == tree.DNull {
				nulls++
				continue
			}
			if min == nil || d.Compare(min) < 0 {
				min = d
			}
			if max == nil || d.Compare(max) > 0 {
				max = d
			}
		}
		colStat := s.EnsureColStat(col)
		colStat.DistinctCount = optional.MakeFloat(float64(len(distinct)))
		colStat.NullCount = optional.MakeFloat(nulls)
		colStat.Min, colStat.Max = min, max
	}
	setSize(s, sb.colsWidth(values.Cols))
	return s
}

func (sb *StatisticsBuilder) buildSelect(sel *SelectExpr) *props.Statistics {
	in := sb.Build(sel.Input)
	selectivity := sb.Selectivity(sel.Filter, in)
	s := &props.Statistics{RowCount: in.RowCount.Map(func(r float64) float64 { return r * selectivity })}
	inRows, inKnown := in.RowCount.Get()
	outRows, _ := s.RowCount.Get()
	for col, cs := range in.ColStats {
		c := cs.Copy()
		if inKnown {
			c.DistinctCount = c.DistinctCount.Map(func(d float64) float64 {
				return distinctAfterSelection(d, inRows, outRows)
			})
		}
		c.NullCount = c.NullCount.Map(func(n float64) float64 { return n * selectivity })
		if c.Histogram != nil {
			c.Histogram = c.Histogram.ApplySelectivity(selectivity)
		}
		s.EnsureColStat(col)
		s.ColStats[col] = c
	}
	for _, cond := range ConjunctionList(sel.Filter) {
		sb.constrainColStat(s, cond)
	}
	setSize(s, sb.rowWidth(sel.Input))
	return s
}

// distinctAfterSelection estimates the number of distinct values that
// remain after selecting outRows of inRows rows at random, given d distinct
// values that are evenly distributed:
//
//	d * (1 - (1 - outRows/inRows) ^ (inRows/d))
func distinctAfterSelection(d, inRows, outRows float64) float64 {
	if d <= 0 || inRows <= 0 {
		return 0
	}
	if outRows >= inRows {
		return d
	}
	res := d * (1 - math.Pow(1-outRows/inRows, inRows/d))
	return math.Max(math.Min(res, outRows), math.Min(1, outRows))
}

// constrainColStat refines the statistics of a column constrained by a
// conjunct of a filter.
func (sb *StatisticsBuilder) constrainColStat(s *props.Statistics, cond ScalarExpr) {
	rows, known := s.RowCount.Get()
	switch t := cond.(type) {
	case *ComparisonExpr:
		v, d, op, ok := columnComparison(t)
		if !ok || d == tree.DNull {
			return
		}
		cs := s.EnsureColStat(v.Col)
		if !comparableWith(d, cs.Min) || !comparableWith(d, cs.Max) {
			return
		}
		cs.NullCount = optional.MakeFloat(0)
		switch op {
		case tree.EQ:
			if known {
				cs.DistinctCount = optional.MakeFloat(math.Min(1, rows))
			}
			cs.Min, cs.Max = d, d
		case tree.LT, tree.LE:
			if cs.Max == nil || d.Compare(cs.Max) < 0 {
				cs.Max = d
			}
		case tree.GT, tree.GE:
			if cs.Min == nil || d.Compare(cs.Min) > 0 {
				cs.Min = d
			}
		}

	case *IsNullExpr:
		if v, ok := t.Input.(*VariableExpr); ok && known {
			cs := s.EnsureColStat(v.Col)
			cs.NullCount = optional.MakeFloat(rows)
			cs.DistinctCount = optional.MakeFloat(math.Min(1, rows))
			cs.Min, cs.Max = nil, nil
		}

	case *NotExpr:
		if isNull, ok := t.Input.(*IsNullExpr); ok {
			if v, ok := isNull.Input.(*VariableExpr); ok {
				s.EnsureColStat(v.Col).NullCount = optional.MakeFloat(0)
			}
		}
	}
}

// columnComparison matches a comparison between a column and a constant,
// orienting it so that the column is on the left.
func columnComparison(
	cmp *ComparisonExpr,
) (v *VariableExpr, d tree.Datum, op tree.ComparisonOperator, ok bool) {
	if l, lok := cmp.Left.(*VariableExpr); lok {
		if r, rok := cmp.Right.(*ConstExpr); rok {
			return l, r.Value, cmp.Operator, true
		}
	}
	if r, rok := cmp.Right.(*VariableExpr); rok {
		if l, lok := cmp.Left.(*ConstExpr); lok {
			return r, l.Value, cmp.Operator.Commute(), true
		}
	}
	return nil, nil, 0, false
}

// Selectivity estimates the fraction of the rows described by the input
// statistics that satisfy the filter. The result is always between 0 and 1.
func (sb *StatisticsBuilder) Selectivity(filter ScalarExpr, in *props.Statistics) float64 {
	sel := 1.0
	for _, cond := range ConjunctionList(filter) {
		sel *= sb.conditionSelectivity(cond, in)
	}
	return clampSelectivity(sel)
}

func clampSelectivity(sel float64) float64 {
	switch {
	case sel < 0 || math.IsNaN(sel):
		return 0
	case sel > 1:
		return 1
	}
	return sel
}

func (sb *StatisticsBuilder) conditionSelectivity(cond ScalarExpr, in *props.Statistics) float64 {
	switch t := cond.(type) {
	case *ConstExpr:
		if IsTrue(t) {
			return 1
		}
		if IsFalseOrNull(t) {
			return 0
		}
	case *AndExpr:
		return sb.Selectivity(t, in)
	case *OrExpr:
		l := sb.Selectivity(t.Left, in)
		r := sb.Selectivity(t.Right, in)
		return clampSelectivity(l + r - l*r)
	case *NotExpr:
		return clampSelectivity(1 - sb.conditionSelectivity(t.Input, in))
	case *IsNullExpr:
		if v, ok := t.Input.(*VariableExpr); ok {
			if frac, ok := nullFraction(in, v.Col); ok {
				return frac
			}
		}
	case *ComparisonExpr:
		return sb.comparisonSelectivity(t, in)
	}
	return sb.unknownSelectivity
}

// nullFraction returns the fraction of rows for which the column is NULL.
func nullFraction(in *props.Statistics, col opt.ColumnID) (float64, bool) {
	cs := in.ColStat(col)
	if cs == nil {
		return 0, false
	}
	nulls, nok := cs.NullCount.Get()
	rows, rok := in.RowCount.Get()
	if !nok || !rok {
		return 0, false
	}
	if rows <= 0 {
		return 0, true
	}
	return clampSelectivity(nulls / rows), true
}

func (sb *StatisticsBuilder) comparisonSelectivity(
	cmp *ComparisonExpr, in *props.Statistics,
) float64 {
	if v, d, op, ok := columnComparison(cmp); ok {
		if d == tree.DNull {
			return 0
		}
		if sel, ok := sb.constComparisonSelectivity(v.Col, op, d, in); ok {
			return sel
		}
		return sb.unknownSelectivity
	}

	// Equality between two columns of the same input.
	l, lok := cmp.Left.(*VariableExpr)
	r, rok := cmp.Right.(*VariableExpr)
	if lok && rok && cmp.Operator == tree.EQ {
		ld, lknown := distinctCount(in, l.Col)
		rd, rknown := distinctCount(in, r.Col)
		if lknown && rknown {
			return clampSelectivity(1 / math.Max(math.Max(ld, rd), 1))
		}
	}
	return sb.unknownSelectivity
}

func distinctCount(in *props.Statistics, col opt.ColumnID) (float64, bool) {
	if cs := in.ColStat(col); cs != nil {
		return cs.DistinctCount.Get()
	}
	return 0, false
}

// constComparisonSelectivity estimates the selectivity of (col op d). It
// uses the column's histogram if there is one, and otherwise its distinct
// count for equalities and its min/max range for inequalities.
func (sb *StatisticsBuilder) constComparisonSelectivity(
	col opt.ColumnID, op tree.ComparisonOperator, d tree.Datum, in *props.Statistics,
) (float64, bool) {
	cs := in.ColStat(col)
	if cs == nil {
		return 0, false
	}
	nullFrac, _ := nullFraction(in, col)
	nonNull := 1 - nullFrac

	if !comparableWith(d, cs.Min) || !comparableWith(d, cs.Max) {
		return 0, false
	}
	outOfRange := func() bool {
		return (cs.Min != nil && d.Compare(cs.Min) < 0) || (cs.Max != nil && d.Compare(cs.Max) > 0)
	}

	eq := func() (float64, bool) {
		if outOfRange() {
			return 0, true
		}
		if cs.Histogram != nil {
			return cs.Histogram.EqualsFraction(d) * nonNull, true
		}
		distinct, ok := cs.DistinctCount.Get()
		if !ok {
			return 0, false
		}
		if nulls, _ := cs.NullCount.Get(); nulls > 0 && distinct > 1 {
			// NULL is counted as one of the distinct values.
			distinct--
		}
		return nonNull / math.Max(distinct, 1), true
	}

	lessThan := func(inclusive bool) (float64, bool) {
		if cs.Histogram != nil {
			return cs.Histogram.LessThanFraction(d, inclusive) * nonNull, true
		}
		if cs.Min == nil || cs.Max == nil {
			return 0, false
		}
		if c := d.Compare(cs.Min); c < 0 || (c == 0 && !inclusive) {
			return 0, true
		}
		if c := d.Compare(cs.Max); c > 0 || (c == 0 && inclusive) {
			return nonNull, true
		}
		lo, lok := datumToFloat(cs.Min)
		hi, hok := datumToFloat(cs.Max)
		v, vok := datumToFloat(d)
		if !lok || !hok || !vok || hi-lo < epsilon {
			return 0, false
		}
		return clampSelectivity((v-lo)/(hi-lo)) * nonNull, true
	}

	var sel float64
	var ok bool
	switch op {
	case tree.EQ:
		sel, ok = eq()
	case tree.NE:
		sel, ok = eq()
		sel = nonNull - sel
	case tree.LT:
		sel, ok = lessThan(false)
	case tree.LE:
		sel, ok = lessThan(true)
	case tree.GT:
		sel, ok = lessThan(true)
		sel = nonNull - sel
	case tree.GE:
		sel, ok = lessThan(false)
		sel = nonNull - sel
	}
	return clampSelectivity(sel), ok
}

// comparableWith returns true if d can be compared with the bound, which may be
// unknown.
func comparableWith(d, bound tree.Datum) bool {
	if bound == nil {
		return true
	}
	_, err := tree.CompareError(d, bound)
	return err == nil
}

func datumToFloat(d tree.Datum) (float64, bool) {
	if !d.ResolvedType().IsNumeric() {
		return 0, false
	}
	f, err := tree.PerformCast(d, types.Float)
	if err != nil {
		return 0, false
	}
	return float64(*f.(*tree.DFloat)), true
}

func (sb *StatisticsBuilder) buildProject(prj *ProjectExpr) *props.Statistics {
	in := sb.Build(prj.Input)
	s := &props.Statistics{RowCount: in.RowCount}
	for _, col := range prj.Passthrough {
		if cs := in.ColStat(col); cs != nil {
			s.EnsureColStat(col)
			s.ColStats[col] = cs.Copy()
		}
	}
	for i := range prj.Projections {
		item := &prj.Projections[i]
		switch t := item.Expr.(type) {
		case *VariableExpr:
			if cs := in.ColStat(t.Col); cs != nil {
				s.EnsureColStat(item.Col)
				c := cs.Copy()
				c.Histogram = nil
				s.ColStats[item.Col] = c
			}
		case *ConstExpr:
			cs := s.EnsureColStat(item.Col)
			if rows, ok := in.RowCount.Get(); ok {
				cs.DistinctCount = optional.MakeFloat(math.Min(1, rows))
				if t.Value == tree.DNull {
					cs.NullCount = optional.MakeFloat(rows)
				} else {
					cs.NullCount = optional.MakeFloat(0)
				}
			}
			if t.Value != tree.DNull {
				cs.Min, cs.Max = t.Value, t.Value
			}
		}
	}
	setSize(s, sb.colsWidth(prj.OutputCols()))
	return s
}

func (sb *StatisticsBuilder) buildJoin(join *JoinExpr) *props.Statistics {
	left := sb.Build(join.Left)
	right := sb.Build(join.Right)
	leftCols, rightCols := join.Left.OutputCols().ToSet(), join.Right.OutputCols().ToSet()
	leftEq, rightEq, remaining := ExtractEquiCols(join.On, leftCols, rightCols)

	// Combined input statistics, used to estimate the non-equality
	// conditions.
	combined := &props.Statistics{
		RowCount: left.RowCount.Combine(right.RowCount, func(l, r float64) float64 { return l * r }),
	}
	for col, cs := range left.ColStats {
		combined.EnsureColStat(col)
		combined.ColStats[col] = cs.Copy()
	}
	for col, cs := range right.ColStats {
		combined.EnsureColStat(col)
		combined.ColStats[col] = cs.Copy()
	}
	remainingSel := sb.Selectivity(MakeConjunction(remaining), combined)

	l, lok := left.RowCount.Get()
	r, rok := right.RowCount.Get()
	s := &props.Statistics{}
	if lok && rok {
		// Containment: every value of the join key on the side with fewer
		// distinct values has a match on the other side. A key column with an
		// unknown distinct count is assumed to be unique.
		inner := l * r
		matchFrac := sb.unknownSelectivity
		for i := range leftEq {
			dl, ok := distinctCount(left, leftEq[i])
			if !ok {
				dl = l
			}
			dr, ok := distinctCount(right, rightEq[i])
			if !ok {
				dr = r
			}
			inner = math.Min(inner, l*r/math.Max(math.Max(dl, dr), 1))
			if i == 0 {
				matchFrac = 1
			}
			if dl > 0 {
				matchFrac = math.Min(matchFrac, dr/dl)
			}
		}
		inner *= remainingSel
		matchFrac = clampSelectivity(matchFrac * remainingSel)

		var rows float64
		switch join.Type {
		case InnerJoin:
			rows = inner
		case LeftJoin:
			rows = math.Max(inner, l)
		case RightJoin:
			rows = math.Max(inner, r)
		case FullJoin:
			rows = math.Max(inner, math.Max(l, r))
		case SemiJoin:
			rows = l * matchFrac
		case AntiJoin:
			rows = l * (1 - matchFrac)
		}
		s.RowCount = optional.MakeFloat(rows)
	}

	rows, rowsKnown := s.RowCount.Get()
	copyCols := func(from *props.Statistics) {
		for col, cs := range from.ColStats {
			c := cs.Copy()
			c.Histogram = nil
			if rowsKnown {
				c.DistinctCount = c.DistinctCount.Map(func(d float64) float64 { return math.Min(d, rows) })
			}
			s.EnsureColStat(col)
			s.ColStats[col] = c
		}
	}
	copyCols(left)
	width := sb.rowWidth(join.Left)
	if !join.Type.IsSemiOrAnti() {
		copyCols(right)
		width += sb.rowWidth(join.Right)
		if join.Type == InnerJoin {
			// The key columns of an inner join share their surviving values.
			for i := range leftEq {
				lcs, rcs := s.ColStat(leftEq[i]), s.ColStat(rightEq[i])
				if lcs == nil || rcs == nil {
					continue
				}
				d := lcs.DistinctCount.Min(rcs.DistinctCount)
				lcs.DistinctCount, rcs.DistinctCount = d, d
			}
		}
	}
	setSize(s, width)
	return s
}

func (sb *StatisticsBuilder) buildGroupBy(groupBy *GroupByExpr) *props.Statistics {
	in := sb.Build(groupBy.Input)
	s := &props.Statistics{}
	if len(groupBy.GroupingCols) == 0 {
		s.RowCount = optional.MakeFloat(1)
	} else {
		product := optional.MakeFloat(1)
		for _, col := range groupBy.GroupingCols {
			if cs := in.ColStat(col); cs != nil {
				product = product.Combine(cs.DistinctCount, func(a, b float64) float64 { return a * b })
			} else {
				product = optional.Float{}
			}
		}
		// The number of groups is bounded by the product of the distinct
		// counts of the grouping columns and by the number of input rows.
		s.RowCount = product.Min(in.RowCount)
	}
	rows, rowsKnown := s.RowCount.Get()
	for _, col := range groupBy.GroupingCols {
		if cs := in.ColStat(col); cs != nil {
			c := cs.Copy()
			c.Histogram = nil
			if rowsKnown {
				c.DistinctCount = c.DistinctCount.Map(func(d float64) float64 { return math.Min(d, rows) })
			}
			s.EnsureColStat(col)
			s.ColStats[col] = c
		}
	}
	setSize(s, sb.colsWidth(groupBy.OutputCols()))
	return s
}

func (sb *StatisticsBuilder) buildUnionAll(union *UnionAllExpr) *props.Statistics {
	inputs := make([]*props.Statistics, len(union.Inputs))
	s := &props.Statistics{RowCount: optional.MakeFloat(0)}
	sizeKnown := true
	var size float64
	for i, in := range union.Inputs {
		inputs[i] = sb.Build(in)
		s.RowCount = s.RowCount.Combine(inputs[i].RowCount, func(a, b float64) float64 { return a + b })
		if !inputs[i].SizeKnown() {
			sizeKnown = false
		}
		size += inputs[i].SizeBytes
	}
	if sizeKnown && s.RowCount.Known() {
		s.SizeBytes = size
	} else {
		s.SizeBytes = props.UnknownSizeBytes
	}

	rows, rowsKnown := s.RowCount.Get()
	for j, col := range union.Cols {
		var out props.ColumnStatistic
		out.DistinctCount = optional.MakeFloat(0)
		out.NullCount = optional.MakeFloat(0)
		allKnown := true
		for i := range union.Inputs {
			cs := inputs[i].ColStat(union.InputCols[i][j])
			if cs == nil {
				allKnown = false
				break
			}
			sum := func(a, b float64) float64 { return a + b }
			out.DistinctCount = out.DistinctCount.Combine(cs.DistinctCount, sum)
			out.NullCount = out.NullCount.Combine(cs.NullCount, sum)
			if i == 0 {
				out.Min, out.Max = cs.Min, cs.Max
				continue
			}
			if out.Min == nil || cs.Min == nil {
				out.Min = nil
			} else if cs.Min.Compare(out.Min) < 0 {
				out.Min = cs.Min
			}
			if out.Max == nil || cs.Max == nil {
				out.Max = nil
			} else if cs.Max.Compare(out.Max) > 0 {
				out.Max = cs.Max
			}
		}
		if !allKnown || len(union.Inputs) == 0 {
			continue
		}
		if rowsKnown {
			out.DistinctCount = out.DistinctCount.Map(func(d float64) float64 { return math.Min(d, rows) })
		}
		s.EnsureColStat(col)
		s.ColStats[col] = &out
	}
	return s
}

func (sb *StatisticsBuilder) buildLimit(limit *LimitExpr) *props.Statistics {
	in := sb.Build(limit.Input)
	s := &props.Statistics{RowCount: in.RowCount.Min(optional.MakeFloat(float64(limit.Count)))}
	rows, _ := s.RowCount.Get()
	for col, cs := range in.ColStats {
		c := cs.Copy()
		c.Histogram = nil
		c.DistinctCount = c.DistinctCount.Map(func(d float64) float64 { return math.Min(d, rows) })
		c.NullCount = c.NullCount.Map(func(n float64) float64 { return math.Min(n, rows) })
		s.EnsureColStat(col)
		s.ColStats[col] = c
	}
	setSize(s, sb.rowWidth(limit.Input))
	return s
}
