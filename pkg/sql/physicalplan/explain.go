// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/util/humanizeutil"
	"github.com/cockroachdb/relcore/pkg/util/treeprinter"
)

// ExplainFlags control the output of Explain.
type ExplainFlags uint8

const (
	// ExplainShowStats shows the estimated row count and size of each node.
	ExplainShowStats ExplainFlags = 1 << iota
	// ExplainShowPartitioning shows the partitioning and ordering of each
	// node.
	ExplainShowPartitioning
	// ExplainShowColumns shows the output columns of each node.
	ExplainShowColumns
)

// ExplainVerbose shows everything.
const ExplainVerbose = ExplainShowStats | ExplainShowPartitioning | ExplainShowColumns

// Explain renders a physical plan as a tree. Nodes that are part of a
// generated code unit are prefixed with "*(id)", the id of the unit.
func Explain(plan *Plan, flags ExplainFlags) string {
	e := explainer{md: plan.Metadata, flags: flags}
	tp := treeprinter.New()
	root := tp
	if len(plan.Subqueries) > 0 {
		root = tp.Child("root")
	}
	e.node(plan.Root, root)
	for i := range plan.Subqueries {
		sq := tp.Childf("subquery %d: %s", i+1, memo.FormatScalar(plan.Subqueries[i].Expr, e.md))
		e.node(plan.Subqueries[i].Root, sq)
	}
	return tp.String()
}

type explainer struct {
	md    *opt.Metadata
	flags ExplainFlags
}

func (e *explainer) node(n Node, tp treeprinter.Node) {
	var buf strings.Builder
	if id := Stage(n); id != 0 {
		fmt.Fprintf(&buf, "*(%d) ", id)
	}
	var details []string
	var children []Node
	switch t := n.(type) {
	case *ScanNode:
		fmt.Fprintf(&buf, "scan %s", t.Table.Name())

	case *ValuesNode:
		fmt.Fprintf(&buf, "values (%d rows)", len(t.Rows))

	case *FilterNode:
		buf.WriteString("filter")
		details = append(details, "filter: "+e.scalar(t.Filter))
		children = []Node{t.Input}

	case *ProjectNode:
		buf.WriteString("project")
		details = append(details, e.projections(t)...)
		children = []Node{t.Input}

	case *WholeStageNode:
		// The fused nodes are shown in place of the whole-stage node.
		for i, c := range t.Chain {
			tp = e.header(c, tp, e.chainDetails(c))
			if i == len(t.Chain)-1 {
				e.node(t.Input, tp)
			}
		}
		return

	case *HashJoinNode:
		strategy := ShuffleHashJoin
		if t.Broadcast {
			strategy = BroadcastHashJoin
		}
		side := "left"
		if t.BuildRight {
			side = "right"
		}
		fmt.Fprintf(&buf, "%s (%s, build %s)", strategy, t.Type, side)
		details = append(details, "keys: "+e.keys(t.LeftKeys, t.RightKeys))
		if !memo.IsTrue(t.On) {
			details = append(details, "on: "+e.scalar(t.On))
		}
		children = []Node{t.Left, t.Right}

	case *MergeJoinNode:
		fmt.Fprintf(&buf, "%s (%s)", SortMergeJoin, t.Type)
		details = append(details, "keys: "+e.keys(t.LeftKeys, t.RightKeys))
		if !memo.IsTrue(t.On) {
			details = append(details, "on: "+e.scalar(t.On))
		}
		children = []Node{t.Left, t.Right}

	case *NestedLoopJoinNode:
		side := "left"
		if t.BuildRight {
			side = "right"
		}
		fmt.Fprintf(&buf, "%s (%s, build %s)", BroadcastNestedLoopJoin, t.Type, side)
		if !memo.IsTrue(t.On) {
			details = append(details, "on: "+e.scalar(t.On))
		}
		children = []Node{t.Left, t.Right}

	case *CartesianProductNode:
		buf.WriteString(CartesianProduct.String())
		if !memo.IsTrue(t.On) {
			details = append(details, "on: "+e.scalar(t.On))
		}
		children = []Node{t.Left, t.Right}

	case *AggregateNode:
		mode := "distinct"
		if len(t.Aggs) > 0 {
			modes := t.Modes()
			names := make([]string, len(modes))
			for i, m := range modes {
				names[i] = m.String()
			}
			mode = strings.Join(names, "+")
		}
		fmt.Fprintf(&buf, "hash-aggregate (%s)", mode)
		if len(t.GroupingCols) > 0 {
			details = append(details, "group by: "+e.cols(t.GroupingCols))
		}
		for i := range t.Aggs {
			details = append(details, e.aggregate(&t.Aggs[i]))
		}
		children = []Node{t.Input}

	case *SortNode:
		fmt.Fprintf(&buf, "sort %s", t.Order)
		children = []Node{t.Input}

	case *LimitNode:
		kind := "local"
		if t.Global {
			kind = "global"
		}
		fmt.Fprintf(&buf, "%s-limit %d", kind, t.Count)
		children = []Node{t.Input}

	case *UnionAllNode:
		buf.WriteString("union-all")
		children = t.Inputs

	case *ExchangeNode:
		fmt.Fprintf(&buf, "exchange %s", t.Target)
		if len(t.Merge) > 0 {
			fmt.Fprintf(&buf, " (merge %s)", t.Merge)
		}
		children = []Node{t.Input}

	default:
		fmt.Fprintf(&buf, "%T", n)
	}
	tp = tp.Child(buf.String())
	e.props(n, tp)
	for _, d := range details {
		tp.Child(d)
	}
	for _, c := range children {
		e.node(c, tp)
	}
}

// header renders a fused node and returns the tree node under which its
// input is rendered.
func (e *explainer) header(n Node, tp treeprinter.Node, details []string) treeprinter.Node {
	name := "filter"
	if _, ok := n.(*ProjectNode); ok {
		name = "project"
	}
	tp = tp.Childf("*(%d) %s", Stage(n), name)
	e.props(n, tp)
	for _, d := range details {
		tp.Child(d)
	}
	return tp
}

func (e *explainer) chainDetails(n Node) []string {
	switch t := n.(type) {
	case *FilterNode:
		return []string{"filter: " + e.scalar(t.Filter)}
	case *ProjectNode:
		return e.projections(t)
	}
	return nil
}

func (e *explainer) props(n Node, tp treeprinter.Node) {
	if e.flags&ExplainShowColumns != 0 {
		tp.Child("columns: " + e.cols(n.OutputCols()))
	}
	if e.flags&ExplainShowPartitioning != 0 {
		line := "partitioning: " + n.Partitioning().String()
		if len(n.Ordering()) > 0 {
			line += " ordering: " + n.Ordering().String()
		}
		tp.Child(line)
	}
	if e.flags&ExplainShowStats != 0 && n.Statistics() != nil {
		tp.Child(explainStats(n.Statistics()))
	}
}

func explainStats(s *props.Statistics) string {
	size := "unknown"
	if s.SizeKnown() {
		size = humanizeutil.IBytes(int64(s.SizeBytes))
	}
	return fmt.Sprintf("estimated: rows=%s size=%s", s.RowCount, size)
}

func (e *explainer) projections(n *ProjectNode) []string {
	var res []string
	for i, expr := range n.Exprs {
		if v, ok := expr.(*memo.VariableExpr); ok && v.Col == n.cols[i] {
			continue
		}
		res = append(res, fmt.Sprintf("%s := %s", e.col(n.cols[i]), e.scalar(expr)))
	}
	return res
}

func (e *explainer) aggregate(f *AggregateFunc) string {
	var buf strings.Builder
	buf.WriteString(f.Overload.Name)
	buf.WriteByte('(')
	if f.Mode.ConsumesRawRows() {
		if f.Distinct {
			buf.WriteString("DISTINCT ")
		}
		for i, a := range f.Args {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(e.scalar(a))
		}
	} else {
		buf.WriteString(e.cols(f.BufferCols))
	}
	buf.WriteByte(')')
	if f.Filter != nil && f.Mode.ConsumesRawRows() {
		fmt.Fprintf(&buf, " FILTER (WHERE %s)", e.scalar(f.Filter))
	}
	if f.Mode.ProducesBuffers() {
		fmt.Fprintf(&buf, " -> %s", e.cols(f.BufferCols))
	} else {
		fmt.Fprintf(&buf, " -> %s", e.col(f.ResultCol))
	}
	return fmt.Sprintf("%s [%s]", buf.String(), f.Mode)
}

func (e *explainer) keys(left, right opt.ColList) string {
	parts := make([]string, len(left))
	for i := range left {
		parts[i] = fmt.Sprintf("%s = %s", e.col(left[i]), e.col(right[i]))
	}
	return strings.Join(parts, ", ")
}

func (e *explainer) scalar(s memo.ScalarExpr) string {
	return memo.FormatScalar(s, e.md)
}

func (e *explainer) col(c opt.ColumnID) string {
	if e.md == nil || !e.md.HasColumn(c) {
		return fmt.Sprintf("@%d", c)
	}
	return fmt.Sprintf("%s:%d", e.md.ColumnMeta(c).Alias, c)
}

func (e *explainer) cols(cols opt.ColList) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = e.col(c)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
