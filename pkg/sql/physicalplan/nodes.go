// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// Node is an operator of a physical plan. Every node produces its rows in
// one or more partitions, which are processed independently.
type Node interface {
	// Children returns the inputs of the node.
	Children() []Node

	// OutputCols returns the columns of the rows produced by the node, in
	// the order in which they appear in the rows.
	OutputCols() opt.ColList

	// Partitioning returns how the rows produced by the node are split
	// into partitions.
	Partitioning() physical.Partitioning

	// Ordering returns the order of the rows within each partition.
	Ordering() opt.Ordering

	// Statistics returns the estimated statistics of the rows produced by
	// the node, across all partitions.
	Statistics() *props.Statistics

	base() *nodeBase
}

type nodeBase struct {
	cols     opt.ColList
	part     physical.Partitioning
	ordering opt.Ordering
	stats    *props.Statistics

	// stage is the id of the whole-stage code generation unit the node
	// belongs to, or zero.
	stage int
}

func (n *nodeBase) OutputCols() opt.ColList             { return n.cols }
func (n *nodeBase) Partitioning() physical.Partitioning { return n.part }
func (n *nodeBase) Ordering() opt.Ordering              { return n.ordering }
func (n *nodeBase) Statistics() *props.Statistics       { return n.stats }
func (n *nodeBase) base() *nodeBase                     { return n }

// Stage returns the id of the whole-stage code generation unit the node
// belongs to, or zero if it is evaluated by the interpreter.
func Stage(n Node) int { return n.base().stage }

// ScanNode reads every partition of a table.
type ScanNode struct {
	nodeBase
	Table cat.Table
}

// ValuesNode produces constant rows in a single partition.
type ValuesNode struct {
	nodeBase
	Rows []tree.Datums
}

// FilterNode keeps the rows for which Filter is true.
type FilterNode struct {
	nodeBase
	Input  Node
	Filter memo.ScalarExpr
}

// ProjectNode computes one expression per output column. Passthrough
// columns are variable references.
type ProjectNode struct {
	nodeBase
	Input Node
	Exprs []memo.ScalarExpr
}

// WholeStageNode evaluates a chain of filters and projections as a single
// generated program. Chain lists the fused nodes from the top down; the
// input of the last one is Input.
type WholeStageNode struct {
	nodeBase
	ID    int
	Chain []Node
	Input Node
}

// Program returns the fused chain as a program over the rows of Input,
// with the subqueries replaced by their values.
func (n *WholeStageNode) Program(
	md *opt.Metadata, subqueries SubqueryValues,
) (*execgen.Program, error) {
	return chainProgram(md, n.Chain, n.Input.OutputCols(), subqueries)
}

// HashJoinNode joins by building a hash table of one input, keyed by the
// equality columns, and probing it with the rows of the other. A broadcast
// hash join replicates the build side to every partition of the probe side;
// otherwise both sides are hash partitioned on their keys.
type HashJoinNode struct {
	nodeBase
	Type        memo.JoinType
	Left, Right Node
	LeftKeys    opt.ColList
	RightKeys   opt.ColList
	// On holds the conditions other than the key equalities.
	On         memo.ScalarExpr
	BuildRight bool
	Broadcast  bool
}

// MergeJoinNode joins inputs that are hash partitioned and sorted on their
// equality columns.
type MergeJoinNode struct {
	nodeBase
	Type        memo.JoinType
	Left, Right Node
	LeftKeys    opt.ColList
	RightKeys   opt.ColList
	On          memo.ScalarExpr
}

// NestedLoopJoinNode compares every row of the stream side with every row
// of the broadcast build side.
type NestedLoopJoinNode struct {
	nodeBase
	Type        memo.JoinType
	Left, Right Node
	On          memo.ScalarExpr
	BuildRight  bool
}

// CartesianProductNode pairs every partition of the left input with every
// partition of the right input. It only implements inner joins.
type CartesianProductNode struct {
	nodeBase
	Left, Right Node
	On          memo.ScalarExpr
}

// AggregateMode is the stage of a two-stage aggregation performed by an
// aggregate function.
type AggregateMode uint8

const (
	// Partial consumes raw rows and produces a partial buffer.
	Partial AggregateMode = iota
	// PartialMerge consumes partial buffers and produces a partial buffer.
	PartialMerge
	// Final consumes partial buffers and produces the result.
	Final
	// Complete consumes raw rows and produces the result.
	Complete
)

var aggregateModeNames = [...]string{
	Partial:      "partial",
	PartialMerge: "partial-merge",
	Final:        "final",
	Complete:     "complete",
}

func (m AggregateMode) String() string { return aggregateModeNames[m] }

// ConsumesRawRows returns true if the mode evaluates the update
// expressions over input rows.
func (m AggregateMode) ConsumesRawRows() bool { return m == Partial || m == Complete }

// ProducesBuffers returns true if the mode outputs the buffer rather than
// the result.
func (m AggregateMode) ProducesBuffers() bool { return m == Partial || m == PartialMerge }

// AggregateFunc is an aggregate function computed by an AggregateNode.
type AggregateFunc struct {
	Overload *builtins.AggregateOverload
	Mode     AggregateMode

	// Args and Filter are evaluated over input rows in the Partial and
	// Complete modes. Filter may be nil.
	Args   []memo.ScalarExpr
	Filter memo.ScalarExpr

	// BufferCols hold the slots of the buffer in the rows exchanged between
	// stages. They are read in the PartialMerge and Final modes and written
	// in the Partial and PartialMerge modes.
	BufferCols opt.ColList

	// ResultCol is written in the Final and Complete modes.
	ResultCol opt.ColumnID

	// Distinct is set if the function aggregates distinct argument values.
	// It is only used for display: the planner removes duplicates with
	// extra grouping stages.
	Distinct bool
}

// AggregateNode groups its input by the grouping columns and computes
// aggregate functions with hash tables, spilling to disk when memory runs
// out. With no grouping columns and the Final or Complete mode, it produces
// one row even if the input is empty.
type AggregateNode struct {
	nodeBase
	Input        Node
	GroupingCols opt.ColList
	Aggs         []AggregateFunc
}

// Modes returns the distinct modes of the functions of the node, in
// increasing order.
func (n *AggregateNode) Modes() []AggregateMode {
	var seen [Complete + 1]bool
	for i := range n.Aggs {
		seen[n.Aggs[i].Mode] = true
	}
	var modes []AggregateMode
	for m := Partial; m <= Complete; m++ {
		if seen[m] {
			modes = append(modes, m)
		}
	}
	return modes
}

// FinalStage returns true if the node produces aggregate results rather
// than buffers. A grouping-only node with no functions is final.
func (n *AggregateNode) FinalStage() bool {
	return len(n.Aggs) == 0 || !n.Aggs[0].Mode.ProducesBuffers()
}

// SortNode sorts the rows of each partition.
type SortNode struct {
	nodeBase
	Input Node
	Order opt.Ordering
}

// LimitNode returns at most Count rows of each partition. A global limit
// has a single-partition input.
type LimitNode struct {
	nodeBase
	Input  Node
	Count  int64
	Global bool
}

// UnionAllNode concatenates the partitions of its inputs. InputCols[i]
// lists the columns of Inputs[i] that map positionally to the output.
type UnionAllNode struct {
	nodeBase
	Inputs    []Node
	InputCols []opt.ColList
}

// ExchangeNode redistributes the rows of its input. When the target is a
// single partition and Merge is set, the input partitions, which are each
// sorted by Merge, are merged preserving the order.
type ExchangeNode struct {
	nodeBase
	Input  Node
	Target physical.Partitioning
	Merge  opt.Ordering
}

func (n *ScanNode) Children() []Node             { return nil }
func (n *ValuesNode) Children() []Node           { return nil }
func (n *FilterNode) Children() []Node           { return []Node{n.Input} }
func (n *ProjectNode) Children() []Node          { return []Node{n.Input} }
func (n *WholeStageNode) Children() []Node       { return []Node{n.Input} }
func (n *HashJoinNode) Children() []Node         { return []Node{n.Left, n.Right} }
func (n *MergeJoinNode) Children() []Node        { return []Node{n.Left, n.Right} }
func (n *NestedLoopJoinNode) Children() []Node   { return []Node{n.Left, n.Right} }
func (n *CartesianProductNode) Children() []Node { return []Node{n.Left, n.Right} }
func (n *AggregateNode) Children() []Node        { return []Node{n.Input} }
func (n *SortNode) Children() []Node             { return []Node{n.Input} }
func (n *LimitNode) Children() []Node            { return []Node{n.Input} }
func (n *UnionAllNode) Children() []Node         { return n.Inputs }
func (n *ExchangeNode) Children() []Node         { return []Node{n.Input} }

// Subquery is an uncorrelated subquery, executed before the main plan.
type Subquery struct {
	// Expr is the *memo.ExistsExpr or *memo.SubqueryExpr that the value of
	// the subquery replaces.
	Expr memo.ScalarExpr
	Root Node
}

// Plan is a physical plan.
type Plan struct {
	Root Node
	// Subqueries are executed in order, before Root. A subquery may refer to
	// the values of the subqueries that precede it.
	Subqueries []Subquery
	Metadata   *opt.Metadata
}

// SubqueryValues maps the subqueries of a plan to their values.
type SubqueryValues map[memo.ScalarExpr]tree.Datum

// Substitute replaces the subqueries of e by constants holding their
// values. Subqueries without a value are left in place.
func (v SubqueryValues) Substitute(e memo.ScalarExpr) memo.ScalarExpr {
	if e == nil || len(v) == 0 || !memo.ContainsSubquery(e) {
		return e
	}
	return memo.TransformScalar(e, func(s memo.ScalarExpr) memo.ScalarExpr {
		switch s.(type) {
		case *memo.ExistsExpr, *memo.SubqueryExpr:
			if d, ok := v[s]; ok {
				return &memo.ConstExpr{Value: d, Typ: s.DataType()}
			}
		}
		return s
	})
}

// Bind substitutes the subqueries of e and binds its column references to
// the given row layout.
func (v SubqueryValues) Bind(e memo.ScalarExpr, layout opt.ColList) (memo.ScalarExpr, error) {
	if e == nil {
		return nil, nil
	}
	return memo.BindScalar(v.Substitute(e), layout)
}

// Walk calls fn on every node of the tree rooted at n, parents first.
func Walk(n Node, fn func(Node)) {
	fn(n)
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}
