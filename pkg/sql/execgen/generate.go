// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execgen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// ProcessFunc is the name of the generated entry point. It takes the input
// row and the tuple of constants, and returns the output row, or None if
// the row is filtered out.
const ProcessFunc = "process"

const funcTmpl = `def {{.Name}}({{join .Params ", "}}):
{{- range .Lines}}
    {{.}}
{{- end}}
    return {{.Result}}
`

var funcTemplate = template.Must(template.New("func").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(funcTmpl))

type funcDef struct {
	Name   string
	Params []string
	Lines  []string
	Result string
}

func (f *funcDef) render() string {
	var sb strings.Builder
	if err := funcTemplate.Execute(&sb, f); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "rendering %s", f.Name))
	}
	return sb.String()
}

// Source is the generated code of a program.
type Source struct {
	// Text is the source text. It depends only on the shape of the program,
	// not on its constants.
	Text string
	// Consts are the constants of the program, bound at instantiation.
	Consts tree.Datums
	// OutputTypes are the types of the produced rows.
	OutputTypes []*types.T
	// NumFuncs is the number of generated functions, the entry point
	// included.
	NumFuncs int
	// MaxMethodSize is the size in bytes of the largest generated function.
	MaxMethodSize int
}

// CodeSize is the size in bytes of the generated source.
func (s *Source) CodeSize() int { return len(s.Text) }

// value is the result of a generated expression: a local name, a literal
// or an element of the constants tuple, along with the names it refers to.
type value struct {
	expr string
	free []string
}

// fragment is the code that computes a value.
type fragment struct {
	lines []string
	value
}

func (f *fragment) size() int {
	n := 0
	for _, l := range f.lines {
		n += len(l) + 1
	}
	return n
}

type generator struct {
	cfg    Config
	consts tree.Datums
	temps  int
	funcs  []funcDef
	inputs map[int]bool
}

func ineligible(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrIneligible)
}

// Generate produces the source of a program. It returns an error marked
// with ErrIneligible if the program uses expressions or types that code
// generation does not support.
func Generate(cfg Config, p *Program) (*Source, error) {
	if len(p.InputTypes) > cfg.WholeStageMaxFields {
		return nil, ineligible("%d input columns exceed the limit of %d", len(p.InputTypes), cfg.WholeStageMaxFields)
	}
	for _, typ := range p.InputTypes {
		if !supportedType(typ) {
			return nil, ineligible("input column type %s is not supported", typ)
		}
	}
	g := generator{cfg: cfg, inputs: make(map[int]bool)}
	cols := make([]value, len(p.InputTypes))
	for i := range cols {
		name := fmt.Sprintf("c%d", i)
		cols[i] = value{expr: name, free: []string{name}}
	}

	var body []string
	for _, step := range p.Steps {
		if step.Filter != nil {
			f, err := g.gen(step.Filter, cols)
			if err != nil {
				return nil, err
			}
			body = append(body, f.lines...)
			body = append(body, fmt.Sprintf("if %s != True:", f.expr), "    return None")
			continue
		}
		if len(step.Projections) > cfg.WholeStageMaxFields {
			return nil, ineligible("%d projections exceed the limit of %d", len(step.Projections), cfg.WholeStageMaxFields)
		}
		next := make([]value, len(step.Projections))
		for i, e := range step.Projections {
			f, err := g.gen(e, cols)
			if err != nil {
				return nil, err
			}
			body = append(body, f.lines...)
			next[i] = ref(f.expr)
		}
		cols = next
	}

	ordinals := make([]int, 0, len(g.inputs))
	for i := range g.inputs {
		ordinals = append(ordinals, i)
	}
	sort.Ints(ordinals)
	lines := make([]string, 0, len(ordinals)+len(body))
	for _, i := range ordinals {
		lines = append(lines, fmt.Sprintf("c%d = row[%d]", i, i))
	}
	lines = append(lines, body...)

	results := make([]string, len(cols))
	for i := range cols {
		results[i] = cols[i].expr
	}
	result := "()"
	if len(results) > 0 {
		result = "(" + strings.Join(results, ", ") + ",)"
	}
	g.funcs = append(g.funcs, funcDef{
		Name: ProcessFunc, Params: []string{"row", "k"}, Lines: lines, Result: result,
	})

	src := &Source{
		Consts:      g.consts,
		OutputTypes: p.OutputTypes(),
		NumFuncs:    len(g.funcs),
	}
	var sb strings.Builder
	for i := range g.funcs {
		def := g.funcs[i].render()
		if len(def) > src.MaxMethodSize {
			src.MaxMethodSize = len(def)
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(def)
	}
	src.Text = sb.String()
	return src, nil
}

// ref returns the value of a name, a literal or a constant computed by an
// earlier step.
func ref(expr string) value {
	switch {
	case expr == "None":
		return value{expr: expr}
	case strings.HasPrefix(expr, "k["):
		return value{expr: expr, free: []string{"k"}}
	}
	return value{expr: expr, free: []string{expr}}
}

func supportedType(typ *types.T) bool {
	switch typ.Family() {
	case types.UnknownFamily, types.BoolFamily, types.IntFamily, types.FloatFamily, types.StringFamily:
		return true
	}
	return false
}

func (g *generator) temp() string {
	g.temps++
	return fmt.Sprintf("t%d", g.temps)
}

// assign computes the given expression of the children's values into a new
// temporary.
func (g *generator) assign(format string, children ...fragment) fragment {
	args := make([]interface{}, len(children))
	var res fragment
	for i := range children {
		res.lines = append(res.lines, children[i].lines...)
		res.free = union(res.free, children[i].free)
		args[i] = children[i].expr
	}
	res.expr = g.temp()
	res.lines = append(res.lines, res.expr+" = "+fmt.Sprintf(format, args...))
	return g.maybeSplit(res)
}

// maybeSplit moves the code of a large fragment into a function of its free
// variables. Fragments with too many free variables stay inline.
func (g *generator) maybeSplit(f fragment) fragment {
	if f.size() <= g.cfg.SplitThreshold || len(f.lines) <= 1 {
		return f
	}
	if len(f.free) > g.cfg.MaxParams {
		return f
	}
	def := funcDef{
		Name:   fmt.Sprintf("_f%d", len(g.funcs)),
		Params: f.free,
		Lines:  f.lines,
		Result: f.expr,
	}
	g.funcs = append(g.funcs, def)
	res := fragment{value: value{expr: g.temp(), free: f.free}}
	res.lines = []string{fmt.Sprintf("%s = %s(%s)", res.expr, def.Name, strings.Join(f.free, ", "))}
	return res
}

// union merges two sorted name lists.
func union(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	res := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			res = append(res, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			res = append(res, b[j])
			j++
		default:
			res = append(res, a[i])
			i++
			j++
		}
	}
	return res
}

func indent(lines []string) []string {
	res := make([]string, len(lines))
	for i, l := range lines {
		res[i] = "    " + l
	}
	return res
}

var comparisonOps = [...]string{
	tree.EQ: "==", tree.NE: "!=", tree.LT: "<", tree.LE: "<=", tree.GT: ">", tree.GE: ">=",
}

func (g *generator) gen(e memo.ScalarExpr, cols []value) (fragment, error) {
	if !supportedType(e.DataType()) {
		return fragment{}, ineligible("type %s is not supported", e.DataType())
	}
	switch t := e.(type) {
	case *memo.ConstExpr:
		if t.Value == tree.DNull {
			return fragment{value: value{expr: "None"}}, nil
		}
		g.consts = append(g.consts, t.Value)
		return fragment{value: value{expr: fmt.Sprintf("k[%d]", len(g.consts)-1), free: []string{"k"}}}, nil

	case *memo.OrdinalExpr:
		if t.Ordinal >= len(cols) {
			return fragment{}, errors.AssertionFailedf("ordinal $%d out of range for row of %d columns", t.Ordinal, len(cols))
		}
		v := cols[t.Ordinal]
		for _, name := range v.free {
			if strings.HasPrefix(name, "c") {
				if i, err := strconv.Atoi(name[1:]); err == nil {
					g.inputs[i] = true
				}
			}
		}
		return fragment{value: v}, nil

	case *memo.AndExpr:
		l, r, err := g.genPair(t.Left, t.Right, cols)
		if err != nil {
			return fragment{}, err
		}
		return g.assign("False if (%[1]s == False or %[2]s == False) else (None if (%[1]s == None or %[2]s == None) else True)", l, r), nil

	case *memo.OrExpr:
		l, r, err := g.genPair(t.Left, t.Right, cols)
		if err != nil {
			return fragment{}, err
		}
		return g.assign("True if (%[1]s == True or %[2]s == True) else (None if (%[1]s == None or %[2]s == None) else False)", l, r), nil

	case *memo.NotExpr:
		in, err := g.gen(t.Input, cols)
		if err != nil {
			return fragment{}, err
		}
		return g.assign("None if %[1]s == None else (not %[1]s)", in), nil

	case *memo.IsNullExpr:
		in, err := g.gen(t.Input, cols)
		if err != nil {
			return fragment{}, err
		}
		return g.assign("(%s == None)", in), nil

	case *memo.ComparisonExpr:
		return g.genComparison(t, cols)

	case *memo.BinaryExpr:
		return g.genBinary(t, cols)

	case *memo.UnaryMinusExpr:
		in, err := g.gen(t.Input, cols)
		if err != nil {
			return fragment{}, err
		}
		if t.DataType().Family() == types.IntFamily {
			return g.assign("None if %[1]s == None else _ck(-%[1]s)", in), nil
		}
		return g.assign("None if %[1]s == None else -%[1]s", in), nil

	case *memo.CastExpr:
		in, err := g.gen(t.Input, cols)
		if err != nil {
			return fragment{}, err
		}
		from := t.Input.DataType()
		switch {
		case from == t.Typ || from.Family() == types.UnknownFamily:
			return in, nil
		case from.Family() == types.IntFamily && t.Typ.Family() == types.FloatFamily:
			return g.assign("None if %[1]s == None else float(%[1]s)", in), nil
		}
		return fragment{}, ineligible("cast from %s to %s is not supported", from, t.Typ)

	case *memo.IfExpr:
		return g.genIf(t, cols)

	case *memo.CoalesceExpr:
		return g.genCoalesce(t, cols)
	}
	return fragment{}, ineligible("%s is not supported", redact.SafeString(fmt.Sprintf("%T", e)))
}

func (g *generator) genPair(
	left, right memo.ScalarExpr, cols []value,
) (l, r fragment, err error) {
	if l, err = g.gen(left, cols); err != nil {
		return fragment{}, fragment{}, err
	}
	if r, err = g.gen(right, cols); err != nil {
		return fragment{}, fragment{}, err
	}
	return l, r, nil
}

func (g *generator) genComparison(t *memo.ComparisonExpr, cols []value) (fragment, error) {
	l, r, err := g.genPair(t.Left, t.Right, cols)
	if err != nil {
		return fragment{}, err
	}
	lf, rf := t.Left.DataType().Family(), t.Right.DataType().Family()
	op := comparisonOps[t.Operator]
	if lf == types.FloatFamily || rf == types.FloatFamily {
		// Floats compare with NaN ordered before every other value.
		return g.assign("None if (%[1]s == None or %[2]s == None) else (_fcmp(%[1]s, %[2]s) "+op+" 0)", l, r), nil
	}
	if lf != rf && lf != types.UnknownFamily && rf != types.UnknownFamily {
		return fragment{}, ineligible("comparison between %s and %s is not supported", t.Left.DataType(), t.Right.DataType())
	}
	return g.assign("None if (%[1]s == None or %[2]s == None) else (%[1]s "+op+" %[2]s)", l, r), nil
}

func (g *generator) genBinary(t *memo.BinaryExpr, cols []value) (fragment, error) {
	l, r, err := g.genPair(t.Left, t.Right, cols)
	if err != nil {
		return fragment{}, err
	}
	const guard = "None if (%[1]s == None or %[2]s == None) else "
	switch t.Typ.Family() {
	case types.StringFamily:
		if t.Operator == tree.Concat {
			return g.assign(guard+"(%[1]s + %[2]s)", l, r), nil
		}
	case types.IntFamily:
		switch t.Operator {
		case tree.Plus, tree.Minus, tree.Mult:
			return g.assign(guard+"_ck(%[1]s "+t.Operator.String()+" %[2]s)", l, r), nil
		case tree.Mod:
			return g.assign(guard+"_mod(%[1]s, %[2]s)", l, r), nil
		}
	case types.FloatFamily:
		switch t.Operator {
		case tree.Plus, tree.Minus, tree.Mult:
			return g.assign(guard+"(float(%[1]s) "+t.Operator.String()+" float(%[2]s))", l, r), nil
		case tree.Div:
			return g.assign(guard+"_div(float(%[1]s), float(%[2]s))", l, r), nil
		case tree.Mod:
			return g.assign(guard+"_mod(float(%[1]s), float(%[2]s))", l, r), nil
		}
	}
	return fragment{}, ineligible("binary operator %s of type %s is not supported", t.Operator, t.Typ)
}

// genIf evaluates only the branch selected by the condition.
func (g *generator) genIf(t *memo.IfExpr, cols []value) (fragment, error) {
	cond, err := g.gen(t.Cond, cols)
	if err != nil {
		return fragment{}, err
	}
	then, err := g.gen(t.Then, cols)
	if err != nil {
		return fragment{}, err
	}
	els, err := g.gen(t.Else, cols)
	if err != nil {
		return fragment{}, err
	}
	res := fragment{value: value{expr: g.temp()}}
	res.free = union(union(cond.free, then.free), els.free)
	res.lines = append(res.lines, cond.lines...)
	res.lines = append(res.lines, fmt.Sprintf("if %s == True:", cond.expr))
	res.lines = append(res.lines, indent(then.lines)...)
	res.lines = append(res.lines, fmt.Sprintf("    %s = %s", res.expr, then.expr), "else:")
	res.lines = append(res.lines, indent(els.lines)...)
	res.lines = append(res.lines, fmt.Sprintf("    %s = %s", res.expr, els.expr))
	return g.maybeSplit(res), nil
}

// genCoalesce evaluates the arguments in order until one is not NULL.
func (g *generator) genCoalesce(t *memo.CoalesceExpr, cols []value) (fragment, error) {
	args := make([]fragment, len(t.Args))
	for i, arg := range t.Args {
		var err error
		if args[i], err = g.gen(arg, cols); err != nil {
			return fragment{}, err
		}
	}
	res := fragment{value: value{expr: g.temp()}}
	if len(args) == 0 {
		res.lines = []string{res.expr + " = None"}
		return res, nil
	}
	var nest func(i int) []string
	nest = func(i int) []string {
		lines := append([]string(nil), args[i].lines...)
		lines = append(lines, fmt.Sprintf("%s = %s", res.expr, args[i].expr))
		if i+1 < len(args) {
			lines = append(lines, fmt.Sprintf("if %s == None:", res.expr))
			lines = append(lines, indent(nest(i+1))...)
		}
		return lines
	}
	for i := range args {
		res.free = union(res.free, args[i].free)
	}
	res.lines = nest(0)
	return g.maybeSplit(res), nil
}
