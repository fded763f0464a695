// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execgen_test

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/stretchr/testify/require"
)

var inputTypes = []*types.T{types.Int, types.Int, types.Float, types.String, types.Bool}

func ord(i int) memo.ScalarExpr {
	return &memo.OrdinalExpr{Ordinal: i, Typ: inputTypes[i]}
}

func intConst(i int64) memo.ScalarExpr { return memo.NewConst(tree.NewDInt(tree.DInt(i))) }

func cmp(op tree.ComparisonOperator, l, r memo.ScalarExpr) memo.ScalarExpr {
	return &memo.ComparisonExpr{Operator: op, Left: l, Right: r}
}

func bin(op tree.BinaryOperator, l, r memo.ScalarExpr) memo.ScalarExpr {
	return &memo.BinaryExpr{Operator: op, Left: l, Right: r, Typ: tree.BinaryResultType(op, l.DataType(), r.DataType())}
}

// testExprs covers every expression kind supported by code generation.
func testExprs() []memo.ScalarExpr {
	return []memo.ScalarExpr{
		bin(tree.Plus, ord(0), ord(1)),
		bin(tree.Minus, ord(0), ord(1)),
		bin(tree.Mult, ord(0), ord(1)),
		bin(tree.Mod, ord(0), ord(1)),
		bin(tree.Div, ord(0), ord(1)),
		bin(tree.Minus, ord(2), ord(0)),
		bin(tree.Mod, ord(2), ord(0)),
		bin(tree.Concat, ord(3), memo.NewConst(tree.NewDString("x"))),
		cmp(tree.LT, ord(0), ord(2)),
		cmp(tree.EQ, ord(2), ord(2)),
		cmp(tree.GE, ord(0), intConst(0)),
		cmp(tree.GT, ord(3), memo.NewConst(tree.NewDString("b"))),
		cmp(tree.NE, ord(4), memo.TrueSingleton),
		&memo.NotExpr{Input: ord(4)},
		&memo.AndExpr{Left: ord(4), Right: cmp(tree.GT, ord(0), intConst(0))},
		&memo.OrExpr{Left: ord(4), Right: &memo.IsNullExpr{Input: ord(1)}},
		&memo.IfExpr{Cond: cmp(tree.GT, ord(0), ord(1)), Then: ord(0), Else: ord(1), Typ: types.Int},
		&memo.CoalesceExpr{Args: []memo.ScalarExpr{ord(0), ord(1), intConst(7)}, Typ: types.Int},
		&memo.UnaryMinusExpr{Input: ord(0)},
		&memo.UnaryMinusExpr{Input: ord(2)},
		&memo.CastExpr{Input: ord(0), Typ: types.Float},
		memo.NullSingleton,
	}
}

func randRow(rng *rand.Rand) tree.Datums {
	row := make(tree.Datums, len(inputTypes))
	for i, typ := range inputTypes {
		if rng.Intn(5) == 0 {
			row[i] = tree.DNull
			continue
		}
		switch typ.Family() {
		case types.IntFamily:
			if rng.Intn(20) == 0 {
				row[i] = tree.NewDInt(math.MaxInt64)
			} else {
				row[i] = tree.NewDInt(tree.DInt(rng.Intn(11) - 5))
			}
		case types.FloatFamily:
			if rng.Intn(20) == 0 {
				row[i] = tree.NewDFloat(tree.DFloat(math.NaN()))
			} else {
				row[i] = tree.NewDFloat(tree.DFloat(rng.Intn(9)-4) / 2)
			}
		case types.StringFamily:
			row[i] = tree.NewDString(string(rune('a' + rng.Intn(3))))
		case types.BoolFamily:
			row[i] = tree.MakeDBool(tree.DBool(rng.Intn(2) == 0))
		}
	}
	return row
}

func requireSameDatums(t *testing.T, expected, actual tree.Datums, msg string) {
	require.Len(t, actual, len(expected), msg)
	for i := range expected {
		if expected[i] == tree.DNull || actual[i] == tree.DNull {
			require.Equal(t, expected[i], actual[i], "column %d: %s", i, msg)
			continue
		}
		require.Equal(t, expected[i].ResolvedType(), actual[i].ResolvedType(), "column %d: %s", i, msg)
		require.Zero(t, expected[i].Compare(actual[i]), "column %d: expected %s, found %s: %s",
			i, expected[i], actual[i], msg)
	}
}

// interpret evaluates a program with the interpreter.
func interpret(t *testing.T, p *execgen.Program, row tree.Datums) (tree.Datums, bool, error) {
	ctx := context.Background()
	evalCtx := &eval.Context{}
	for _, step := range p.Steps {
		if step.Filter != nil {
			ok, err := eval.Predicate(ctx, evalCtx, step.Filter, row)
			if err != nil || !ok {
				return nil, false, err
			}
			continue
		}
		next := make(tree.Datums, len(step.Projections))
		for i, e := range step.Projections {
			d, err := eval.Expr(ctx, evalCtx, e, row)
			if err != nil {
				return nil, false, err
			}
			next[i] = d
		}
		row = next
	}
	return row, true, nil
}

func compile(t *testing.T, c *execgen.Compiler, p *execgen.Program) (*execgen.Source, *execgen.Instance) {
	src, err := execgen.Generate(c.Config(), p)
	require.NoError(t, err)
	u, err := c.Compile(context.Background(), src)
	require.NoError(t, err, "%s", src.Text)
	in, err := execgen.NewInstance(u, src)
	require.NoError(t, err)
	return src, in
}

func checkEquivalent(t *testing.T, c *execgen.Compiler, p *execgen.Program, numRows int) *execgen.Source {
	src, in := compile(t, c, p)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < numRows; i++ {
		row := randRow(rng)
		exp, expOK, expErr := interpret(t, p, row)
		res, ok, err := in.Run(row)
		msg := fmt.Sprintf("row %s\n%s", row, src.Text)
		if expErr != nil {
			require.Error(t, err, "expected %v: %s", expErr, msg)
			continue
		}
		require.NoError(t, err, msg)
		require.Equal(t, expOK, ok, msg)
		if ok {
			requireSameDatums(t, exp, res, msg)
		}
	}
	return src
}

func TestGeneratedCodeMatchesInterpreter(t *testing.T) {
	c := execgen.NewCompiler(execgen.DefaultConfig(), nil, nil)
	for _, e := range testExprs() {
		t.Run(memo.FormatScalar(e, nil), func(t *testing.T) {
			checkEquivalent(t, c, execgen.Projection(inputTypes, []memo.ScalarExpr{e}), 500)
		})
	}
}

func TestFusedSteps(t *testing.T) {
	c := execgen.NewCompiler(execgen.DefaultConfig(), nil, nil)
	p := &execgen.Program{
		InputTypes: inputTypes,
		Steps: []execgen.Step{
			{Filter: cmp(tree.GT, ord(0), ord(1))},
			{Projections: []memo.ScalarExpr{bin(tree.Minus, ord(0), ord(1)), ord(3)}},
			{Filter: cmp(tree.NE, &memo.OrdinalExpr{Ordinal: 1, Typ: types.String}, memo.NewConst(tree.NewDString("a")))},
			{Projections: []memo.ScalarExpr{
				bin(tree.Mult, &memo.OrdinalExpr{Ordinal: 0, Typ: types.Int}, intConst(2)),
				&memo.OrdinalExpr{Ordinal: 1, Typ: types.String},
				intConst(5),
			}},
		},
	}
	require.Equal(t, []*types.T{types.Int, types.String, types.Int}, p.OutputTypes())
	checkEquivalent(t, c, p, 1000)
}

// wideSum returns $0 + $1 + ... repeated to produce a large expression.
func wideSum(n int) memo.ScalarExpr {
	var e memo.ScalarExpr = ord(0)
	for i := 0; i < n; i++ {
		e = bin(tree.Plus, e, &memo.CoalesceExpr{Args: []memo.ScalarExpr{ord(1), intConst(int64(i))}, Typ: types.Int})
	}
	return e
}

func TestSplitLargeExpressions(t *testing.T) {
	cfg := execgen.DefaultConfig()
	cfg.SplitThreshold = 256
	c := execgen.NewCompiler(cfg, nil, nil)
	p := execgen.Projection(inputTypes, []memo.ScalarExpr{wideSum(50), cmp(tree.LT, ord(0), ord(2))})
	src := checkEquivalent(t, c, p, 200)
	require.Greater(t, src.NumFuncs, 1)
	require.Contains(t, src.Text, "def _f0(")
	require.Less(t, src.MaxMethodSize, src.CodeSize())

	// Fragments with more free variables than parameters allowed stay
	// inline.
	cfg.MaxParams = 1
	c = execgen.NewCompiler(cfg, nil, nil)
	src = checkEquivalent(t, c, p, 200)
	require.Equal(t, 1, src.NumFuncs)
	require.Equal(t, src.CodeSize(), src.MaxMethodSize)
}

func TestCacheSharesUnitsAcrossConstants(t *testing.T) {
	ctx := context.Background()
	metrics := execgen.MakeMetrics()
	cache := execgen.NewCodeCache(10)
	c := execgen.NewCompiler(execgen.DefaultConfig(), cache, &metrics)

	var results []tree.Datum
	for _, k := range []int64{1, 2} {
		p := execgen.Projection(inputTypes, []memo.ScalarExpr{bin(tree.Plus, ord(0), intConst(k))})
		src, u := c.Build(ctx, p)
		require.NotNil(t, u)
		in, err := execgen.NewInstance(u, src)
		require.NoError(t, err)
		res, ok, err := in.Run(tree.Datums{tree.NewDInt(10), tree.DNull, tree.DNull, tree.DNull, tree.DNull})
		require.NoError(t, err)
		require.True(t, ok)
		results = append(results, res[0])
	}
	require.Equal(t, []tree.Datum{tree.NewDInt(11), tree.NewDInt(12)}, results)
	require.Equal(t, int64(1), metrics.CompileCount.Count())
	require.Equal(t, int64(1), metrics.CacheHits.Count())
	require.Equal(t, 1, cache.Len())
}

func TestCodeCacheEviction(t *testing.T) {
	ctx := context.Background()
	cache := execgen.NewCodeCache(2)
	c := execgen.NewCompiler(execgen.DefaultConfig(), cache, nil)
	var texts []string
	for i := 0; i < 3; i++ {
		exprs := make([]memo.ScalarExpr, i+1)
		for j := range exprs {
			exprs[j] = ord(0)
		}
		src, err := execgen.Generate(c.Config(), execgen.Projection(inputTypes, exprs))
		require.NoError(t, err)
		_, err = c.Compile(ctx, src)
		require.NoError(t, err)
		texts = append(texts, src.Text)
	}
	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get(texts[0])
	require.False(t, ok)
	_, ok = cache.Get(texts[2])
	require.True(t, ok)
}

func TestCompileFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	metrics := execgen.MakeMetrics()
	cfg := execgen.DefaultConfig()
	cfg.HugeMethodLimit = 16
	c := execgen.NewCompiler(cfg, nil, &metrics)
	src, u := c.Build(ctx, execgen.Projection(inputTypes, []memo.ScalarExpr{wideSum(3)}))
	require.Nil(t, src)
	require.Nil(t, u)
	require.Equal(t, int64(1), metrics.Fallbacks.Count())
	require.Equal(t, int64(0), metrics.CompileCount.Count())

	_, err := execgen.NewCompiler(execgen.DefaultConfig(), nil, nil).Compile(ctx, &execgen.Source{Text: "def process(row, k):\n    return (\n"})
	require.True(t, errors.Is(err, execgen.ErrCompile), "%v", err)
}

func TestHugeMethodWarning(t *testing.T) {
	var warnings []string
	defer log.Intercept(func(entry log.Entry) {
		if entry.Severity == log.SeverityWarning {
			warnings = append(warnings, entry.Message.StripMarkers())
		}
	})()
	metrics := execgen.MakeMetrics()
	cfg := execgen.DefaultConfig()
	cfg.HugeMethodWarning = 100
	c := execgen.NewCompiler(cfg, nil, &metrics)
	src, u := c.Build(context.Background(), execgen.Projection(inputTypes, []memo.ScalarExpr{wideSum(5)}))
	require.NotNil(t, u)
	require.Len(t, warnings, 1)
	require.True(t, strings.Contains(warnings[0], "exceeds 100 bytes"), warnings[0])
	require.Equal(t, int64(src.MaxMethodSize), metrics.MaxMethodSize.Value())
}

func TestIneligiblePrograms(t *testing.T) {
	cfg := execgen.DefaultConfig()
	decimal := &memo.OrdinalExpr{Ordinal: 0, Typ: types.Decimal}
	testCases := []struct {
		name string
		p    *execgen.Program
	}{
		{"decimal input", execgen.Projection([]*types.T{types.Decimal}, []memo.ScalarExpr{decimal})},
		{"aggregate", execgen.Projection(inputTypes, []memo.ScalarExpr{
			&memo.AggregateExpr{Name: "sum", Args: []memo.ScalarExpr{ord(0)}, Typ: types.Int},
		})},
		{"string cast", execgen.Projection(inputTypes, []memo.ScalarExpr{
			&memo.CastExpr{Input: ord(0), Typ: types.String},
		})},
		{"too many fields", execgen.Projection(make([]*types.T, cfg.WholeStageMaxFields+1), nil)},
	}
	for i := range testCases[3].p.InputTypes {
		testCases[3].p.InputTypes[i] = types.Int
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execgen.Generate(cfg, tc.p)
			require.True(t, errors.Is(err, execgen.ErrIneligible), "%v", err)
		})
	}

	// Ineligible programs are interpreted without counting a fallback.
	metrics := execgen.MakeMetrics()
	_, u := execgen.NewCompiler(cfg, nil, &metrics).Build(context.Background(), testCases[0].p)
	require.Nil(t, u)
	require.Equal(t, int64(0), metrics.Fallbacks.Count())
}
