// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package optbuilder

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/yamlutil"
)

// ParseQuery decodes a query written in the YAML query algebra. A
// relational node is a map with a single key naming the operator:
//
//	scan: t                     # or {table: t, as: u}
//	values: {columns: [{name: x, type: int}], rows: [[1], [2]]}
//	filter: {input: <rel>, cond: <scalar>}
//	project: {input: <rel>, exprs: [a, {expr: <scalar>, as: b}]}
//	join: {type: inner, left: <rel>, right: <rel>, on: <scalar>, hint: broadcast-right}
//	aggregate: {input: <rel>, group-by: [a], aggs: [{expr: [sum, b], as: s}]}
//	union-all: [<rel>, <rel>]
//	limit: {input: <rel>, count: 10}
//	order-by: {input: <rel>, cols: [a, -b]}
//
// A scalar is a column name, a YAML number, true, false or null, or a list
// whose first element names the operator. The other YAML 1.1 boolean words
// (y, n, yes, no, on, off) are read as names:
//
//	[and, <s>, <s>]  [or, ...]  [not, <s>]  [=, <s>, <s>]  ["<", ...]  [+, ...]
//	[neg, <s>]  [is-null, <s>]  [coalesce, ...]  [if, <c>, <t>, <e>]
//	[cast, <s>, decimal]  [str, abc]  [dec, "1.5"]  [null, int]
//	[exists, <rel>]  [subquery, <rel>]  [count, "*"]  [<function>, <s>...]
//
// Aggregates with modifiers are maps: {call: sum, args: [b], distinct: true,
// filter: <scalar>}.
func ParseQuery(data []byte) (RelNode, error) {
	v, err := yamlutil.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing query")
	}
	return DecodeRel(v)
}

// DecodeRel converts a YAML value decoded by yamlutil to a relational node.
func DecodeRel(v interface{}) (_ RelNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			if bldErr, ok := r.(builderError); ok {
				err = bldErr.error
			} else {
				panic(r)
			}
		}
	}()
	return decodeRel(v), nil
}

// DecodeScalar converts a decoded YAML value to a scalar node.
func DecodeScalar(v interface{}) (_ ScalarNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			if bldErr, ok := r.(builderError); ok {
				err = bldErr.error
			} else {
				panic(r)
			}
		}
	}()
	return decodeScalar(v), nil
}

func decodeErrorf(format string, args ...interface{}) {
	panic(builderError{errors.Newf(format, args...)})
}

type yamlMap map[interface{}]interface{}

func asMap(v interface{}, what string) yamlMap {
	m, ok := v.(map[interface{}]interface{})
	if !ok {
		decodeErrorf("%s: expected a map, found %T", what, v)
	}
	return m
}

func (m yamlMap) str(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (m yamlMap) list(key string) []interface{} {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	l, ok := v.([]interface{})
	if !ok {
		decodeErrorf("%s: expected a list, found %T", key, v)
	}
	return l
}

func (m yamlMap) rel(key string) RelNode {
	v, ok := m[key]
	if !ok {
		decodeErrorf("missing %q", key)
	}
	return decodeRel(v)
}

func decodeRel(v interface{}) RelNode {
	m := asMap(v, "relational expression")
	if len(m) != 1 {
		decodeErrorf("relational expression must have exactly one operator key, found %d", len(m))
	}
	for k, body := range m {
		op := fmt.Sprint(k)
		switch op {
		case "scan":
			if name, ok := body.(string); ok {
				return &Table{Name: name}
			}
			bm := asMap(body, op)
			return &Table{Name: bm.str("table"), Alias: bm.str("as")}

		case "values":
			bm := asMap(body, op)
			vals := &Values{}
			for _, c := range bm.list("columns") {
				cm := asMap(c, "values column")
				vals.Columns = append(vals.Columns, ValuesColumn{Name: cm.str("name"), Type: decodeType(cm.str("type"))})
			}
			for _, r := range bm.list("rows") {
				l, ok := r.([]interface{})
				if !ok || len(l) != len(vals.Columns) {
					decodeErrorf("values row %v must be a list of %d values", r, len(vals.Columns))
				}
				row := make(tree.Datums, len(l))
				for i := range l {
					d, err := tree.DatumFromGo(vals.Columns[i].Type, l[i])
					if err != nil {
						panic(builderError{err})
					}
					row[i] = d
				}
				vals.Rows = append(vals.Rows, row)
			}
			return vals

		case "filter":
			bm := asMap(body, op)
			return &Filter{Input: bm.rel("input"), Cond: decodeScalar(bm["cond"])}

		case "project":
			bm := asMap(body, op)
			return &Project{Input: bm.rel("input"), Exprs: decodeNamedExprs(bm.list("exprs"))}

		case "join":
			bm := asMap(body, op)
			j := &Join{Left: bm.rel("left"), Right: bm.rel("right"), Type: decodeJoinType(bm.str("type"))}
			if on, ok := bm["on"]; ok {
				j.On = decodeScalar(on)
			}
			switch h := bm.str("hint"); h {
			case "":
			case "broadcast-left":
				j.Hint = memo.BroadcastLeft
			case "broadcast-right":
				j.Hint = memo.BroadcastRight
			default:
				decodeErrorf("unknown join hint %q", h)
			}
			return j

		case "aggregate":
			bm := asMap(body, op)
			a := &Aggregate{Input: bm.rel("input"), Aggs: decodeNamedExprs(bm.list("aggs"))}
			for _, g := range bm.list("group-by") {
				a.GroupBy = append(a.GroupBy, fmt.Sprint(g))
			}
			return a

		case "union-all":
			l, ok := body.([]interface{})
			if !ok {
				decodeErrorf("union-all: expected a list of inputs")
			}
			u := &UnionAll{}
			for _, in := range l {
				u.Inputs = append(u.Inputs, decodeRel(in))
			}
			return u

		case "limit":
			bm := asMap(body, op)
			n, ok := bm["count"].(int)
			if !ok {
				decodeErrorf("limit: count must be an integer")
			}
			return &Limit{Input: bm.rel("input"), Count: int64(n)}

		case "order-by":
			bm := asMap(body, op)
			o := &OrderBy{Input: bm.rel("input")}
			for _, c := range bm.list("cols") {
				name := fmt.Sprint(c)
				desc := strings.HasPrefix(name, "-")
				name = strings.TrimLeft(name, "+-")
				o.Cols = append(o.Cols, OrderColumn{Name: name, Desc: desc})
			}
			return o

		default:
			decodeErrorf("unknown relational operator %q", op)
		}
	}
	panic("unreachable")
}

func decodeNamedExprs(l []interface{}) []NamedExpr {
	res := make([]NamedExpr, len(l))
	for i, item := range l {
		if m, ok := item.(map[interface{}]interface{}); ok {
			if e, ok := m["expr"]; ok {
				res[i] = NamedExpr{Expr: decodeScalar(e), Alias: yamlMap(m).str("as")}
				continue
			}
		}
		res[i] = NamedExpr{Expr: decodeScalar(item)}
	}
	return res
}

func decodeType(name string) *types.T {
	typ, ok := types.FromString(name)
	if !ok {
		decodeErrorf("unknown type %q", name)
	}
	return typ
}

func decodeJoinType(name string) memo.JoinType {
	switch name {
	case "", "inner":
		return memo.InnerJoin
	case "left":
		return memo.LeftJoin
	case "right":
		return memo.RightJoin
	case "full":
		return memo.FullJoin
	case "semi":
		return memo.SemiJoin
	case "anti":
		return memo.AntiJoin
	}
	decodeErrorf("unknown join type %q", name)
	return 0
}

var comparisonOps = map[string]tree.ComparisonOperator{
	"=": tree.EQ, "!=": tree.NE, "<": tree.LT, "<=": tree.LE, ">": tree.GT, ">=": tree.GE,
}

var binaryOps = map[string]tree.BinaryOperator{
	"+": tree.Plus, "-": tree.Minus, "*": tree.Mult, "/": tree.Div, "%": tree.Mod, "||": tree.Concat,
}

func decodeScalar(v interface{}) ScalarNode {
	switch t := v.(type) {
	case nil:
		return &Null{}
	case bool:
		return &Lit{Value: tree.MakeDBool(tree.DBool(t))}
	case int:
		return &Lit{Value: tree.NewDInt(tree.DInt(t))}
	case int64:
		return &Lit{Value: tree.NewDInt(tree.DInt(t))}
	case float64:
		return &Lit{Value: tree.NewDFloat(tree.DFloat(t))}
	case string:
		return &ColRef{Name: t}
	case map[interface{}]interface{}:
		m := yamlMap(t)
		name := m.str("call")
		if name == "" {
			decodeErrorf("scalar map must name a function with \"call\"")
		}
		c := &Call{Name: name, Distinct: m["distinct"] == true}
		for _, a := range m.list("args") {
			if a == "*" {
				c.Star = true
				continue
			}
			c.Args = append(c.Args, decodeScalar(a))
		}
		if f, ok := m["filter"]; ok {
			c.Filter = decodeScalar(f)
		}
		return c
	case []interface{}:
		if len(t) == 0 {
			decodeErrorf("empty scalar expression")
		}
		if t[0] == nil {
			return decodeScalarList("null", t[1:])
		}
		return decodeScalarList(fmt.Sprint(t[0]), t[1:])
	}
	decodeErrorf("cannot decode scalar expression %v (%T)", v, v)
	return nil
}

func decodeScalarList(op string, args []interface{}) ScalarNode {
	arity := func(n int) {
		if len(args) != n {
			decodeErrorf("%s expects %d arguments, found %d", op, n, len(args))
		}
	}
	if cmp, ok := comparisonOps[op]; ok {
		arity(2)
		return &Cmp{Op: cmp, Left: decodeScalar(args[0]), Right: decodeScalar(args[1])}
	}
	if bin, ok := binaryOps[op]; ok {
		arity(2)
		return &Bin{Op: bin, Left: decodeScalar(args[0]), Right: decodeScalar(args[1])}
	}
	switch op {
	case "and", "or":
		if len(args) < 2 {
			decodeErrorf("%s expects at least 2 arguments", op)
		}
		res := decodeScalar(args[0])
		for _, a := range args[1:] {
			if op == "and" {
				res = &And{Left: res, Right: decodeScalar(a)}
			} else {
				res = &Or{Left: res, Right: decodeScalar(a)}
			}
		}
		return res
	case "not":
		arity(1)
		return &Not{Input: decodeScalar(args[0])}
	case "neg":
		arity(1)
		return &Neg{Input: decodeScalar(args[0])}
	case "is-null":
		arity(1)
		return &IsNull{Input: decodeScalar(args[0])}
	case "coalesce":
		c := &Coalesce{}
		for _, a := range args {
			c.Args = append(c.Args, decodeScalar(a))
		}
		return c
	case "if":
		arity(3)
		return &If{Cond: decodeScalar(args[0]), Then: decodeScalar(args[1]), Else: decodeScalar(args[2])}
	case "cast":
		arity(2)
		return &Cast{Input: decodeScalar(args[0]), Type: decodeType(fmt.Sprint(args[1]))}
	case "str":
		arity(1)
		return &Lit{Value: tree.NewDString(fmt.Sprint(args[0]))}
	case "dec":
		arity(1)
		d, err := tree.ParseDDecimal(fmt.Sprint(args[0]))
		if err != nil {
			panic(builderError{err})
		}
		return &Lit{Value: d}
	case "null":
		arity(1)
		return &Null{Type: decodeType(fmt.Sprint(args[0]))}
	case "exists":
		arity(1)
		return &Exists{Sub: decodeRel(args[0])}
	case "subquery":
		arity(1)
		return &Subquery{Sub: decodeRel(args[0])}
	}
	c := &Call{Name: op}
	for _, a := range args {
		if a == "*" {
			c.Star = true
			continue
		}
		c.Args = append(c.Args, decodeScalar(a))
	}
	return c
}
