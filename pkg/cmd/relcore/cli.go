// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/relcore/pkg/base"
	"github.com/cockroachdb/relcore/pkg/sql/engine"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/stats"
	"github.com/cockroachdb/relcore/pkg/util/humanizeutil"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/metric"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// cliContext holds the values of the flags shared by every command.
type cliContext struct {
	workloadFile string
	configFile   string
	verbosity    int32
	engineCfg    base.EngineConfig

	// explain
	verbose bool
	logical bool

	// run
	repeat      int
	showMetrics bool
}

// Run executes the command line given by args.
func Run(args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func newRootCmd() *cobra.Command {
	cliCtx := &cliContext{engineCfg: base.DefaultEngineConfig()}
	root := &cobra.Command{
		Use:   "relcore [command] (flags)",
		Short: "relational query planner and executor",
		Long: `
Plans and runs a query written in the YAML query algebra over the tables
declared in a workload file.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&cliCtx.workloadFile, "file", "f", "", "workload file declaring tables and a query")
	pf.StringVar(&cliCtx.configFile, "config", "", "YAML file of engine settings")
	pf.Int32VarP(&cliCtx.verbosity, "verbosity", "v", 0, "log verbosity")
	cliCtx.engineCfg.AddFlags(pf)

	explainCmd := &cobra.Command{
		Use:   "explain -f <workload>",
		Short: "show the physical plan of the workload query",
		Args:  cobra.NoArgs,
		RunE:  cliCtx.withEngine(runExplain),
	}
	explainCmd.Flags().BoolVar(&cliCtx.verbose, "verbose", false,
		"show the columns, partitioning and estimates of every node")
	explainCmd.Flags().BoolVar(&cliCtx.logical, "logical", false,
		"also show the optimized logical plan")

	runCmd := &cobra.Command{
		Use:   "run -f <workload>",
		Short: "run the workload query and print its rows",
		Args:  cobra.NoArgs,
		RunE:  cliCtx.withEngine(runQuery),
	}
	runCmd.Flags().IntVar(&cliCtx.repeat, "repeat", 1, "number of times the query is planned and run")
	runCmd.Flags().BoolVar(&cliCtx.showMetrics, "metrics", false, "print the engine metrics afterwards")

	analyzeCmd := &cobra.Command{
		Use:   "analyze -f <workload> [table...]",
		Short: "compute and print table statistics",
		Long: `
Computes the statistics of the given tables, or of every table of the
workload if none is given.
`,
		RunE: cliCtx.withEngine(runAnalyze),
	}

	cobra.EnableCommandSorting = false
	root.AddCommand(explainCmd, runCmd, analyzeCmd)
	return root
}

type engineCmd func(ctx context.Context, cliCtx *cliContext, cmd *cobra.Command, e *engine.Engine, w *workload, args []string) error

// withEngine loads the workload and creates the engine the command runs
// against.
func (cliCtx *cliContext) withEngine(fn engineCmd) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer log.SetVModule(cliCtx.verbosity)()
		ctx := log.WithLogTag(context.Background(), "cmd", cmd.Name())

		w, err := loadWorkload(cliCtx.workloadFile)
		if err != nil {
			return err
		}
		cfg, err := w.engineConfig(cliCtx.configFile, cliCtx.engineCfg, cmd.Flags())
		if err != nil {
			return err
		}
		catalog, err := w.catalog()
		if err != nil {
			return err
		}
		e, err := engine.New(cfg, catalog, nil /* tempFS */)
		if err != nil {
			return err
		}
		defer e.Close(ctx)
		if cmd.Name() != "analyze" {
			for _, name := range w.Analyze {
				if _, err := e.Analyze(ctx, name); err != nil {
					return err
				}
			}
		}
		return fn(ctx, cliCtx, cmd, e, w, args)
	}
}

func runExplain(
	ctx context.Context, cliCtx *cliContext, cmd *cobra.Command, e *engine.Engine, w *workload, _ []string,
) error {
	n, err := w.query()
	if err != nil {
		return err
	}
	q, err := e.Prepare(ctx, n)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if cliCtx.logical {
		fmt.Fprintf(out, "logical plan:\n%s\n", memo.FormatExpr(q.Optimized, memo.ExprFmtHideTypes, q.Metadata))
		for _, b := range q.Batches {
			if !b.Converged {
				fmt.Fprintf(out, "batch %s did not converge after %d iterations\n", b.Name, b.Iterations)
			}
		}
		fmt.Fprintln(out, "physical plan:")
	}
	flags := physicalplan.ExplainShowStats
	if cliCtx.verbose {
		flags = physicalplan.ExplainVerbose
	}
	fmt.Fprint(out, e.Explain(q, flags))
	return nil
}

func runQuery(
	ctx context.Context, cliCtx *cliContext, cmd *cobra.Command, e *engine.Engine, w *workload, _ []string,
) error {
	n, err := w.query()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var res *engine.Result
	var total time.Duration
	for i := 0; i < cliCtx.repeat || i == 0; i++ {
		q, err := e.Prepare(ctx, n)
		if err != nil {
			return err
		}
		if res, err = e.Run(ctx, q); err != nil {
			return err
		}
		total += res.Elapsed
	}
	printRows(out, res)
	fmt.Fprintf(out, "(%s %s, %s, peak memory %s)\n",
		humanize.Comma(int64(len(res.Rows))), plural(len(res.Rows), "row", "rows"),
		humanizeutil.Duration(total), humanizeutil.IBytes(res.PeakMemory))
	if cliCtx.showMetrics {
		printMetrics(out, e.Registry())
	}
	return nil
}

func runAnalyze(
	ctx context.Context, _ *cliContext, cmd *cobra.Command, e *engine.Engine, w *workload, args []string,
) error {
	tables := args
	if len(tables) == 0 {
		for i := range w.Tables {
			tables = append(tables, w.Tables[i].Name)
		}
	}
	out := cmd.OutOrStdout()
	for i, name := range tables {
		stat, err := e.Analyze(ctx, name)
		if err != nil {
			return err
		}
		tab, err := e.Catalog().ResolveTable(name)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		stats.Format(out, tab, stat)
	}
	return nil
}

func printRows(w io.Writer, res *engine.Result) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(res.Columns)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, d := range row {
			cells[i] = datumString(d)
		}
		tw.Append(cells)
	}
	tw.Render()
}

func printMetrics(w io.Writer, r *metric.Registry) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"metric", "value"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	r.Each(func(name string, m metric.Iterable) {
		var v string
		switch t := m.(type) {
		case *metric.Counter:
			v = humanize.Comma(t.Count())
		case *metric.Gauge:
			v = humanize.Comma(t.Value())
		case *metric.Histogram:
			v = fmt.Sprintf("count=%s max=%s", humanize.Comma(t.TotalCount()), humanize.Comma(t.Max()))
		default:
			return
		}
		tw.Append([]string{name, v})
	})
	tw.Render()
}

// datumString formats a value without the quotes of string literals.
func datumString(d tree.Datum) string {
	if s, ok := d.(*tree.DString); ok {
		return string(*s)
	}
	return d.String()
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
