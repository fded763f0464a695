// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec

import (
	"context"

	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/cancelchecker"
	"github.com/cockroachdb/relcore/pkg/util/log"
)

// interpreter evaluates the steps of a program one expression at a time.
type interpreter struct {
	evalCtx *eval.Context
	prog    *execgen.Program
	scratch []tree.Datums
}

func newInterpreter(evalCtx *eval.Context, prog *execgen.Program) *interpreter {
	return &interpreter{evalCtx: evalCtx, prog: prog, scratch: make([]tree.Datums, len(prog.Steps))}
}

// run has the semantics of execgen.Instance.Run.
func (in *interpreter) run(ctx context.Context, row tree.Datums) (tree.Datums, bool, error) {
	for i := range in.prog.Steps {
		step := &in.prog.Steps[i]
		if step.Filter != nil {
			ok, err := eval.Predicate(ctx, in.evalCtx, step.Filter, row)
			if err != nil || !ok {
				return nil, false, err
			}
			continue
		}
		out := in.scratch[i][:0]
		for _, e := range step.Projections {
			d, err := eval.Expr(ctx, in.evalCtx, e, row)
			if err != nil {
				return nil, false, err
			}
			out = append(out, d)
		}
		in.scratch[i] = out
		row = out
	}
	return row, true, nil
}

// evaluator runs a program with generated code if it was compiled, and
// with the interpreter otherwise.
type evaluator struct {
	inst   *execgen.Instance
	interp *interpreter
}

// newEvaluator prepares a program. Generated code is only used if compile
// is set and the flow has a compiler; a failure to compile or instantiate
// falls back to interpretation.
func newEvaluator(
	ctx context.Context, flowCtx *FlowCtx, prog *execgen.Program, compile bool,
) *evaluator {
	ev := &evaluator{}
	if compile && flowCtx.Compiler != nil {
		if src, unit := flowCtx.Compiler.Build(ctx, prog); unit != nil {
			inst, err := execgen.NewInstance(unit, src)
			if err == nil {
				ev.inst = inst
				return ev
			}
			log.Warningf(ctx, "falling back to interpretation: %v", err)
		}
	}
	ev.interp = newInterpreter(flowCtx.evalCtx(), prog)
	return ev
}

// compiled returns true if the program runs generated code.
func (ev *evaluator) compiled() bool { return ev.inst != nil }

func (ev *evaluator) run(ctx context.Context, row tree.Datums) (tree.Datums, bool, error) {
	if ev.inst != nil {
		return ev.inst.Run(row)
	}
	return ev.interp.run(ctx, row)
}

// programRunner applies a program to every row of its input.
type programRunner struct {
	input  RowSource
	ev     *evaluator
	cancel cancelchecker.CancelChecker
}

var _ RowSource = &programRunner{}

func newProgramRunner(
	ctx context.Context, flowCtx *FlowCtx, input RowSource, prog *execgen.Program, compile bool,
) *programRunner {
	return &programRunner{
		input:  input,
		ev:     newEvaluator(ctx, flowCtx, prog, compile),
		cancel: flowCtx.cancelChecker(ctx),
	}
}

func (pr *programRunner) Next(ctx context.Context) (tree.Datums, error) {
	for {
		if err := pr.cancel.Check(); err != nil {
			return nil, err
		}
		row, err := pr.input.Next(ctx)
		if err != nil || row == nil {
			return nil, err
		}
		out, ok, err := pr.ev.run(ctx, row)
		if err != nil {
			return nil, err
		}
		if ok {
			return out, nil
		}
	}
}

func (pr *programRunner) Close(ctx context.Context) { pr.input.Close(ctx) }

// NewFilterer returns a source producing the rows of input that pass the
// filter of n.
func NewFilterer(
	ctx context.Context, flowCtx *FlowCtx, n *physicalplan.FilterNode, input RowSource,
) (RowSource, error) {
	layout := n.Input.OutputCols()
	filter, err := flowCtx.bind(n.Filter, layout)
	if err != nil {
		return nil, err
	}
	prog := &execgen.Program{
		InputTypes: physicalplan.ColumnTypes(flowCtx.Metadata, layout),
		Steps:      []execgen.Step{{Filter: filter}},
	}
	return newProgramRunner(ctx, flowCtx, input, prog, false /* compile */), nil
}

// NewProjector returns a source computing the expressions of n over the
// rows of input.
func NewProjector(
	ctx context.Context, flowCtx *FlowCtx, n *physicalplan.ProjectNode, input RowSource,
) (RowSource, error) {
	layout := n.Input.OutputCols()
	exprs := make([]memo.ScalarExpr, len(n.Exprs))
	for i, e := range n.Exprs {
		var err error
		if exprs[i], err = flowCtx.bind(e, layout); err != nil {
			return nil, err
		}
	}
	prog := execgen.Projection(physicalplan.ColumnTypes(flowCtx.Metadata, layout), exprs)
	return newProgramRunner(ctx, flowCtx, input, prog, false /* compile */), nil
}

// NewWholeStage returns a source evaluating the fused chain of n over the
// rows of input as one generated program.
func NewWholeStage(
	ctx context.Context, flowCtx *FlowCtx, n *physicalplan.WholeStageNode, input RowSource,
) (RowSource, error) {
	prog, err := n.Program(flowCtx.Metadata, flowCtx.Subqueries)
	if err != nil {
		return nil, err
	}
	ctx = log.WithLogTag(ctx, "stage", n.ID)
	return newProgramRunner(ctx, flowCtx, input, prog, true /* compile */), nil
}
