// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package engine ties the optimizer, the physical planner and the executor
// together. An Engine owns the state shared by the queries it runs: the
// code and plan caches, the metrics, the memory monitor and the temporary
// storage used for spilling.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/relcore/pkg/base"
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/xform"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/querycache"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/rowflow"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/stats"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/metric"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"github.com/marusama/semaphore"
)

// CodegenConfig returns the code generation settings of cfg.
func CodegenConfig(cfg base.EngineConfig) execgen.Config {
	return execgen.Config{
		Enabled:             cfg.Codegen,
		MaxParams:           cfg.CodegenMaxParams,
		SplitThreshold:      int(cfg.CodegenSplit),
		HugeMethodWarning:   int(cfg.HugeMethodWarning),
		HugeMethodLimit:     int(cfg.HugeMethodLimit),
		WholeStageMaxFields: cfg.WholeStageMaxFields,
		CacheCapacity:       cfg.CodeCacheCapacity,
	}
}

// OptimizerConfig returns the optimizer settings of cfg.
func OptimizerConfig(cfg base.EngineConfig) xform.Config {
	return xform.Config{
		MaxIterations:      cfg.MaxIterations,
		Strict:             cfg.Strict,
		UnknownSelectivity: cfg.UnknownSelectivity,
		ReorderJoins:       cfg.ReorderJoins,
		StarSchema:         cfg.StarSchema,
	}
}

// PlannerConfig returns the physical planning settings of cfg.
func PlannerConfig(cfg base.EngineConfig) physicalplan.Config {
	return physicalplan.Config{
		BroadcastThreshold:  int64(cfg.BroadcastThreshold),
		ShuffleHashRatio:    cfg.ShuffleHashRatio,
		PreferSortMergeJoin: cfg.PreferSortMergeJoin,
		ShufflePartitions:   cfg.ShufflePartitions,
		UnknownSelectivity:  cfg.UnknownSelectivity,
		Codegen:             CodegenConfig(cfg),
	}
}

// statisticsSetter is implemented by the tables that ANALYZE can install
// statistics into.
type statisticsSetter interface {
	SetStatistics(*cat.TableStatistic)
}

// engineSeq distinguishes the temporary directories of the engines of a
// process.
var engineSeq atomic.Int64

// Engine plans and runs queries over a catalog. It is safe for concurrent
// use, but Analyze must not run concurrently with queries over the same
// table.
type Engine struct {
	cfg     base.EngineConfig
	catalog cat.Catalog

	metrics  Metrics
	registry *metric.Registry

	mon      *mon.BytesMonitor
	tempFS   vfs.FS
	tempDir  string
	spillSem semaphore.Semaphore

	compiler  *execgen.Compiler
	planCache *querycache.Cache
}

// New creates an engine. Spill files are written to tempFS, or to the
// local file system if it is nil.
func New(cfg base.EngineConfig, catalog cat.Catalog, tempFS vfs.FS) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tempFS == nil {
		tempFS = vfs.Default
	}
	parent := cfg.TempDir
	if parent == "" {
		parent = tempFS.PathJoin(os.TempDir(), base.TempDirName)
	}
	tempDir := tempFS.PathJoin(parent, fmt.Sprintf("engine-%d-%d", os.Getpid(), engineSeq.Add(1)))
	if err := tempFS.MkdirAll(tempDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating temporary directory %s", tempDir)
	}

	e := &Engine{
		cfg:      cfg,
		catalog:  catalog,
		metrics:  MakeMetrics(),
		registry: metric.NewRegistry(),
		mon:      mon.NewMonitor("engine", int64(cfg.MemoryLimit), nil /* parent */),
		tempFS:   tempFS,
		tempDir:  tempDir,
		spillSem: semaphore.New(cfg.MaxSpillWriters),
	}
	if err := e.metrics.register(e.registry); err != nil {
		return nil, err
	}
	if cfg.Codegen {
		codegenCfg := CodegenConfig(cfg)
		e.compiler = execgen.NewCompiler(
			codegenCfg, execgen.NewCodeCache(codegenCfg.CacheCapacity), &e.metrics.Codegen)
	}
	e.planCache = querycache.New(cfg.PlanCacheCapacity, &e.metrics.PlanCache)
	return e, nil
}

// Config returns the settings of the engine.
func (e *Engine) Config() base.EngineConfig { return e.cfg }

// Catalog returns the catalog the engine resolves tables in.
func (e *Engine) Catalog() cat.Catalog { return e.catalog }

// Metrics returns the metrics of the engine.
func (e *Engine) Metrics() *Metrics { return &e.metrics }

// Registry returns the registry exporting the metrics of the engine.
func (e *Engine) Registry() *metric.Registry { return e.registry }

// PlanCache returns the cache of physical plans.
func (e *Engine) PlanCache() *querycache.Cache { return e.planCache }

// Close removes the temporary files of the engine.
func (e *Engine) Close(ctx context.Context) {
	if err := e.tempFS.RemoveAll(e.tempDir); err != nil {
		log.Warningf(ctx, "removing %s: %v", e.tempDir, err)
	}
}

// Query is a planned query.
type Query struct {
	Metadata  *opt.Metadata
	Logical   memo.RelExpr
	Optimized memo.RelExpr
	// Plan may have been built for an earlier query with the same
	// optimized plan, in which case CacheHit is set.
	Plan     *physicalplan.Plan
	CacheHit bool
	// Batches describes how the optimizer's rule batches terminated.
	Batches []xform.BatchRun
}

// Columns returns the names of the output columns of the query.
func (q *Query) Columns() []string {
	cols := q.Optimized.OutputCols()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = q.Metadata.ColumnMeta(c).Alias
	}
	return names
}

// PrepareYAML parses a query in the YAML query algebra and plans it.
func (e *Engine) PrepareYAML(ctx context.Context, data []byte) (*Query, error) {
	n, err := optbuilder.ParseQuery(data)
	if err != nil {
		return nil, err
	}
	return e.Prepare(ctx, n)
}

// Prepare builds, optimizes and plans a query.
func (e *Engine) Prepare(ctx context.Context, n optbuilder.RelNode) (*Query, error) {
	md := &opt.Metadata{}
	logical, err := optbuilder.New(md, e.catalog).Build(n)
	if err != nil {
		return nil, err
	}
	o := xform.New(md, OptimizerConfig(e.cfg), &e.metrics.Opt)
	optimized, err := o.Optimize(ctx, logical)
	if err != nil {
		return nil, err
	}
	q := &Query{
		Metadata:  md,
		Logical:   logical,
		Optimized: optimized,
		Batches:   append([]xform.BatchRun(nil), o.Executor().Runs...),
	}

	fingerprint, canonical := querycache.Key(optimized)
	if plan, ok := e.planCache.FindKey(fingerprint, canonical); ok {
		log.VEventf(ctx, 1, "plan cache hit for %x", fingerprint)
		q.Plan, q.CacheHit = plan, true
		return q, nil
	}
	plan, err := physicalplan.New(md, PlannerConfig(e.cfg)).Plan(ctx, optimized)
	if err != nil {
		return nil, err
	}
	e.planCache.AddKey(fingerprint, canonical, plan)
	q.Plan = plan
	return q, nil
}

// Explain formats the physical plan of a query.
func (e *Engine) Explain(q *Query, flags physicalplan.ExplainFlags) string {
	return physicalplan.Explain(q.Plan, flags)
}

// Result holds the rows produced by a query.
type Result struct {
	Columns []string
	Rows    []tree.Datums
	// PeakMemory is the largest amount of memory the query used at once.
	PeakMemory int64
	Elapsed    time.Duration
}

// Run executes a planned query.
func (e *Engine) Run(ctx context.Context, q *Query) (*Result, error) {
	start := time.Now()
	queryMon := mon.NewMonitor("query", 0 /* limit */, e.mon)
	flowCtx := &rowexec.FlowCtx{
		Metadata:            q.Plan.Metadata,
		Compiler:            e.compiler,
		Mon:                 queryMon,
		WorkMem:             int64(e.cfg.WorkMem),
		PageSize:            int(e.cfg.PageSize),
		TempFS:              e.tempFS,
		TempDir:             e.tempDir,
		SpillSem:            e.spillSem,
		CancelCheckInterval: e.cfg.CancelCheckInterval,
		Metrics:             &e.metrics.Exec,
	}
	rows, err := rowflow.NewFlow(flowCtx, q.Plan).Run(ctx)
	peak := queryMon.MaximumBytes()
	e.metrics.Exec.PeakMemory.UpdateIfHigher(peak)
	if err != nil {
		return nil, err
	}
	return &Result{
		Columns:    q.Columns(),
		Rows:       rows,
		PeakMemory: peak,
		Elapsed:    time.Since(start),
	}, nil
}

// Analyze computes the statistics of a table and installs them in the
// catalog. Cached plans are discarded, since they were planned with the
// previous statistics.
func (e *Engine) Analyze(ctx context.Context, table string) (*cat.TableStatistic, error) {
	tab, err := e.catalog.ResolveTable(table)
	if err != nil {
		return nil, err
	}
	setter, ok := tab.(statisticsSetter)
	if !ok {
		return nil, errors.Newf("cannot install statistics into table %s", table)
	}
	stat, err := stats.Analyze(ctx, tab, stats.DefaultOptions())
	if err != nil {
		return nil, err
	}
	setter.SetStatistics(stat)
	e.planCache.Clear()
	log.Infof(ctx, "analyzed %s: %.0f rows", table, stat.RowCount)
	return stat, nil
}
