// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package execgen

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/metric"
	"github.com/google/skylark"
	"github.com/google/skylark/resolve"
)

func init() {
	resolve.AllowFloat = true
}

// Metrics are the code generation metrics shared by every query of an
// engine.
type Metrics struct {
	CompileCount  *metric.Counter
	CacheHits     *metric.Counter
	Fallbacks     *metric.Counter
	CodeSize      *metric.Histogram
	MaxMethodSize *metric.Gauge
}

// MakeMetrics creates the code generation metrics.
func MakeMetrics() Metrics {
	return Metrics{
		CompileCount: metric.NewCounter(metric.Metadata{
			Name: "sql_codegen_compilations_total",
			Help: "Number of generated programs compiled",
		}),
		CacheHits: metric.NewCounter(metric.Metadata{
			Name: "sql_codegen_cache_hits_total",
			Help: "Number of generated programs found in the code cache",
		}),
		Fallbacks: metric.NewCounter(metric.Metadata{
			Name: "sql_codegen_fallbacks_total",
			Help: "Number of generated programs that failed to compile and were interpreted",
		}),
		CodeSize: metric.NewHistogram(metric.Metadata{
			Name: "sql_codegen_source_bytes",
			Help: "Size of compiled generated source",
		}, 64, 2, 12),
		MaxMethodSize: metric.NewGauge(metric.Metadata{
			Name: "sql_codegen_max_method_bytes",
			Help: "Size of the largest generated function compiled",
		}),
	}
}

// Unit is a compiled program. It is immutable and may be shared by
// concurrent instances.
type Unit struct {
	text    string
	process skylark.Value
}

var predeclared = skylark.StringDict{
	"_ck":   skylark.NewBuiltin("_ck", checkInt),
	"_mod":  skylark.NewBuiltin("_mod", mod),
	"_div":  skylark.NewBuiltin("_div", div),
	"_fcmp": skylark.NewBuiltin("_fcmp", fcmp),
}

// Compiler compiles generated sources into units, through a cache.
type Compiler struct {
	cfg     Config
	cache   *CodeCache
	metrics *Metrics

	warnEvery *log.EveryN
}

// NewCompiler creates a compiler. cache and metrics may be nil.
func NewCompiler(cfg Config, cache *CodeCache, metrics *Metrics) *Compiler {
	if metrics == nil {
		m := MakeMetrics()
		metrics = &m
	}
	return &Compiler{cfg: cfg, cache: cache, metrics: metrics, warnEvery: log.Every(10 * time.Second)}
}

// Config returns the compiler's settings.
func (c *Compiler) Config() Config { return c.cfg }

// Compile compiles a generated source. Errors are marked with ErrCompile.
func (c *Compiler) Compile(ctx context.Context, src *Source) (*Unit, error) {
	if c.cache != nil {
		if u, ok := c.cache.Get(src.Text); ok {
			c.metrics.CacheHits.Inc(1)
			return u, nil
		}
	}
	if src.MaxMethodSize > c.cfg.HugeMethodLimit {
		return nil, errors.Mark(
			errors.Newf("generated function of %d bytes exceeds the limit of %d bytes",
				src.MaxMethodSize, c.cfg.HugeMethodLimit),
			ErrCompile)
	}
	if src.MaxMethodSize > c.cfg.HugeMethodWarning && c.warnEvery.ShouldLog() {
		log.Warningf(ctx, "generated function of %d bytes exceeds %d bytes; it may run slowly",
			src.MaxMethodSize, c.cfg.HugeMethodWarning)
	}

	globals, err := skylark.ExecFile(&skylark.Thread{}, "generated.sky", src.Text, predeclared)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "compiling generated code"), ErrCompile)
	}
	process, ok := globals[ProcessFunc]
	if !ok {
		return nil, errors.Mark(errors.Newf("generated code does not define %s", ProcessFunc), ErrCompile)
	}
	c.metrics.CompileCount.Inc(1)
	c.metrics.CodeSize.RecordValue(int64(src.CodeSize()))
	c.metrics.MaxMethodSize.UpdateIfHigher(int64(src.MaxMethodSize))
	if log.V(3) {
		log.VEventf(ctx, 3, "compiled generated code:\n%s", src.Text)
	}

	u := &Unit{text: src.Text, process: process}
	if c.cache != nil {
		u = c.cache.Add(u)
	}
	return u, nil
}

// Build generates and compiles a program. It returns nil without an error
// if code generation is disabled or the program is not eligible, and when
// compilation fails; the program must then be interpreted.
func (c *Compiler) Build(ctx context.Context, p *Program) (*Source, *Unit) {
	if !c.cfg.Enabled {
		return nil, nil
	}
	src, err := Generate(c.cfg, p)
	if err != nil {
		log.VEventf(ctx, 2, "interpreting program: %v", err)
		return nil, nil
	}
	u, err := c.Compile(ctx, src)
	if err != nil {
		c.metrics.Fallbacks.Inc(1)
		if c.warnEvery.ShouldLog() {
			log.Warningf(ctx, "falling back to interpretation: %v", err)
		}
		return nil, nil
	}
	return src, u
}

// Instance runs a unit with the constants of one program. It is not safe
// for concurrent use; every partition uses its own instance.
type Instance struct {
	unit     *Unit
	thread   *skylark.Thread
	consts   skylark.Tuple
	outTypes []*types.T
	args     skylark.Tuple
	row      skylark.Tuple
	out      tree.Datums
}

// NewInstance binds the constants of a source to its compiled unit.
func NewInstance(u *Unit, src *Source) (*Instance, error) {
	consts := make(skylark.Tuple, len(src.Consts))
	for i, d := range src.Consts {
		v, err := toValue(d)
		if err != nil {
			return nil, err
		}
		consts[i] = v
	}
	return &Instance{
		unit:     u,
		thread:   &skylark.Thread{},
		consts:   consts,
		outTypes: src.OutputTypes,
		args:     make(skylark.Tuple, 2),
	}, nil
}

// Run applies the program to a row. It returns false if the row is
// filtered out. The returned row is only valid until the next call.
func (in *Instance) Run(row tree.Datums) (tree.Datums, bool, error) {
	if cap(in.row) < len(row) {
		in.row = make(skylark.Tuple, len(row))
	}
	in.row = in.row[:len(row)]
	for i, d := range row {
		v, err := toValue(d)
		if err != nil {
			return nil, false, err
		}
		in.row[i] = v
	}
	in.args[0], in.args[1] = in.row, in.consts
	res, err := skylark.Call(in.thread, in.unit.process, in.args, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "running generated code")
	}
	if res == skylark.None {
		return nil, false, nil
	}
	tuple, ok := res.(skylark.Tuple)
	if !ok || len(tuple) != len(in.outTypes) {
		return nil, false, errors.AssertionFailedf("generated code returned %s", res)
	}
	if cap(in.out) < len(tuple) {
		in.out = make(tree.Datums, len(tuple))
	}
	in.out = in.out[:len(tuple)]
	for i, v := range tuple {
		if in.out[i], err = toDatum(v, in.outTypes[i]); err != nil {
			return nil, false, err
		}
	}
	return in.out, true, nil
}

func toValue(d tree.Datum) (skylark.Value, error) {
	switch t := d.(type) {
	case *tree.DBool:
		return skylark.Bool(*t), nil
	case *tree.DInt:
		return skylark.MakeInt64(int64(*t)), nil
	case *tree.DFloat:
		return skylark.Float(*t), nil
	case *tree.DString:
		return skylark.String(*t), nil
	}
	if d == tree.DNull {
		return skylark.None, nil
	}
	return nil, errors.AssertionFailedf("%s values are not supported by generated code", d.ResolvedType())
}

func toDatum(v skylark.Value, typ *types.T) (tree.Datum, error) {
	if v == skylark.None {
		return tree.DNull, nil
	}
	switch t := v.(type) {
	case skylark.Bool:
		return tree.MakeDBool(tree.DBool(t)), nil
	case skylark.Int:
		i, ok := t.Int64()
		if !ok {
			return nil, tree.ErrIntOutOfRange
		}
		if typ.Family() == types.FloatFamily {
			return tree.NewDFloat(tree.DFloat(i)), nil
		}
		return tree.NewDInt(tree.DInt(i)), nil
	case skylark.Float:
		return tree.NewDFloat(tree.DFloat(t)), nil
	case skylark.String:
		return tree.NewDString(string(t)), nil
	}
	return nil, errors.AssertionFailedf("unexpected %s value returned by generated code", v.Type())
}

func checkInt(
	_ *skylark.Thread, b *skylark.Builtin, args skylark.Tuple, _ []skylark.Tuple,
) (skylark.Value, error) {
	if len(args) != 1 {
		return nil, errors.Newf("%s: got %d arguments, want 1", b.Name(), len(args))
	}
	x, ok := args[0].(skylark.Int)
	if !ok {
		return nil, errors.Newf("%s: unsupported operand %s", b.Name(), args[0].Type())
	}
	if _, ok := x.Int64(); !ok {
		return nil, tree.ErrIntOutOfRange
	}
	return x, nil
}

func toFloat(v skylark.Value) (float64, bool) {
	switch t := v.(type) {
	case skylark.Float:
		return float64(t), true
	case skylark.Int:
		i, ok := t.Int64()
		return float64(i), ok
	}
	return 0, false
}

func floatPair(b *skylark.Builtin, args skylark.Tuple) (x, y float64, err error) {
	if len(args) != 2 {
		return 0, 0, errors.Newf("%s: got %d arguments, want 2", b.Name(), len(args))
	}
	x, xok := toFloat(args[0])
	y, yok := toFloat(args[1])
	if !xok || !yok {
		return 0, 0, errors.Newf("%s: unsupported operands %s and %s", b.Name(), args[0].Type(), args[1].Type())
	}
	return x, y, nil
}

// mod computes the remainder with the sign of the dividend.
func mod(
	_ *skylark.Thread, b *skylark.Builtin, args skylark.Tuple, _ []skylark.Tuple,
) (skylark.Value, error) {
	if len(args) == 2 {
		if x, ok := args[0].(skylark.Int); ok {
			if y, ok := args[1].(skylark.Int); ok {
				a, aok := x.Int64()
				d, dok := y.Int64()
				switch {
				case !aok || !dok:
					return nil, tree.ErrIntOutOfRange
				case d == 0:
					return nil, tree.ErrDivByZero
				case d == -1:
					return skylark.MakeInt64(0), nil
				}
				return skylark.MakeInt64(a % d), nil
			}
		}
	}
	x, y, err := floatPair(b, args)
	if err != nil {
		return nil, err
	}
	if y == 0 {
		return nil, tree.ErrDivByZero
	}
	return skylark.Float(math.Mod(x, y)), nil
}

func div(
	_ *skylark.Thread, b *skylark.Builtin, args skylark.Tuple, _ []skylark.Tuple,
) (skylark.Value, error) {
	x, y, err := floatPair(b, args)
	if err != nil {
		return nil, err
	}
	if y == 0 {
		return nil, tree.ErrDivByZero
	}
	return skylark.Float(x / y), nil
}

// fcmp compares two numbers as floats, ordering NaN before every other
// value and equal to itself.
func fcmp(
	_ *skylark.Thread, b *skylark.Builtin, args skylark.Tuple, _ []skylark.Tuple,
) (skylark.Value, error) {
	x, y, err := floatPair(b, args)
	if err != nil {
		return nil, err
	}
	c, err := tree.CompareError(tree.NewDFloat(tree.DFloat(x)), tree.NewDFloat(tree.DFloat(y)))
	if err != nil {
		return nil, err
	}
	return skylark.MakeInt(c), nil
}
