// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// collapse fuses the maximal chains of filters and projections of the tree
// rooted at n into whole-stage nodes, and assigns stage ids to the
// aggregations whose expressions can be generated. Ids are assigned to
// children before their parents.
func (p *Planner) collapse(n Node) Node {
	if !p.cfg.Codegen.Enabled {
		return n
	}
	switch t := n.(type) {
	case *FilterNode, *ProjectNode:
		var chain []Node
		cur := n
		for fusing := true; fusing; {
			switch c := cur.(type) {
			case *FilterNode:
				chain = append(chain, c)
				cur = c.Input
			case *ProjectNode:
				chain = append(chain, c)
				cur = c.Input
			default:
				fusing = false
			}
		}
		input := p.collapse(cur)
		setInput(chain[len(chain)-1], input)
		if !p.canGenerate(func(sq SubqueryValues) (*execgen.Program, error) {
			return chainProgram(p.md, chain, input.OutputCols(), sq)
		}) {
			return n
		}
		ws := &WholeStageNode{Chain: chain, Input: input}
		ws.nodeBase = *n.base()
		ws.ID = p.nextStage()
		ws.stage = ws.ID
		for _, c := range chain {
			c.base().stage = ws.ID
		}
		return ws

	case *AggregateNode:
		t.Input = p.collapse(t.Input)
		if t.HasImperative() {
			return t
		}
		ok := p.canGenerate(func(sq SubqueryValues) (*execgen.Program, error) {
			exprs, err := BuildAggregateExprs(p.md, t, sq)
			if err != nil {
				return nil, err
			}
			return exprs.RowProgram(), nil
		}) && p.canGenerate(func(sq SubqueryValues) (*execgen.Program, error) {
			exprs, err := BuildAggregateExprs(p.md, t, sq)
			if err != nil {
				return nil, err
			}
			return exprs.MergeProgram(), nil
		})
		if !ok {
			return t
		}
		if ws, isStage := t.Input.(*WholeStageNode); isStage {
			t.stage = ws.ID
		} else {
			t.stage = p.nextStage()
		}
		return t

	default:
		children := n.Children()
		for i := range children {
			setChild(n, i, p.collapse(children[i]))
		}
		return n
	}
}

func (p *Planner) nextStage() int {
	p.stages++
	return p.stages
}

// canGenerate returns true if the program returned by build can be
// generated. Subqueries are replaced by typed NULLs: their values are only
// known at execution, and constants do not change the generated code.
func (p *Planner) canGenerate(build func(SubqueryValues) (*execgen.Program, error)) bool {
	placeholders := make(SubqueryValues, len(p.plan.Subqueries))
	for _, sq := range p.plan.Subqueries {
		placeholders[sq.Expr] = tree.DNull
	}
	prog, err := build(placeholders)
	if err != nil {
		return false
	}
	_, err = execgen.Generate(p.cfg.Codegen, prog)
	return err == nil
}

func setInput(n Node, input Node) {
	switch t := n.(type) {
	case *FilterNode:
		t.Input = input
	case *ProjectNode:
		t.Input = input
	}
}

func setChild(n Node, i int, c Node) {
	switch t := n.(type) {
	case *WholeStageNode:
		t.Input = c
	case *HashJoinNode:
		if i == 0 {
			t.Left = c
		} else {
			t.Right = c
		}
	case *MergeJoinNode:
		if i == 0 {
			t.Left = c
		} else {
			t.Right = c
		}
	case *NestedLoopJoinNode:
		if i == 0 {
			t.Left = c
		} else {
			t.Right = c
		}
	case *CartesianProductNode:
		if i == 0 {
			t.Left = c
		} else {
			t.Right = c
		}
	case *AggregateNode:
		t.Input = c
	case *SortNode:
		t.Input = c
	case *LimitNode:
		t.Input = c
	case *UnionAllNode:
		t.Inputs[i] = c
	case *ExchangeNode:
		t.Input = c
	}
}
