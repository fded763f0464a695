// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/relcore/pkg/base"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const testWorkload = `
config:
  shuffle-partitions: 2
tables:
- name: kv
  columns: [{name: k, type: string}, {name: v, type: int}]
  partitions: [[[a, 1], [b, 2]], [[a, 3]], [[b, 4], [a, 5]]]
- name: small
  columns: [{name: sk, type: int}, {name: sv, type: string}]
  rows: [[1, s1], [2, s2]]
analyze: [small]
query:
  order-by:
    input: {aggregate: {input: {scan: kv}, group-by: [k], aggs: [{expr: [sum, v], as: total}]}}
    cols: [k]
`

func writeWorkload(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--temp-dir", t.TempDir()))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	path := writeWorkload(t, testWorkload)
	out, err := runCLI(t, "run", "-f", path, "--metrics", "--repeat", "2")
	require.NoError(t, err)
	require.Contains(t, out, "| k | total |")
	require.Contains(t, out, "| a |     9 |")
	require.Contains(t, out, "| b |     6 |")
	require.Contains(t, out, "(2 rows, ")
	// The second run reuses the cached plan.
	require.Contains(t, out, "sql_plan_cache_hits_total")
}

// TestRunBooleanWords checks that the YAML 1.1 boolean words are read as
// names and strings in workloads.
func TestRunBooleanWords(t *testing.T) {
	path := writeWorkload(t, `
tables:
- name: u
  columns: [{name: y, type: int}, {name: n, type: string}]
  rows: [[1, y], [2, n], [3, "yes"]]
query:
  order-by:
    input:
      project:
        input: {filter: {input: {scan: u}, cond: [">", y, 1]}}
        exprs: [n, {expr: [str, no], as: off}]
    cols: [n]
`)
	out, err := runCLI(t, "run", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, " off |")
	require.Contains(t, out, "| n   | no  |")
	require.Contains(t, out, "| yes | no  |")
	require.Contains(t, out, "(2 rows, ")
}

func TestExplain(t *testing.T) {
	path := writeWorkload(t, testWorkload)
	out, err := runCLI(t, "explain", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, "scan kv")
	require.NotContains(t, out, "logical plan:")

	out, err = runCLI(t, "explain", "-f", path, "--logical", "--verbose")
	require.NoError(t, err)
	require.Contains(t, out, "logical plan:")
	require.Contains(t, out, "physical plan:")
	require.Contains(t, out, "partitioning: ")
}

func TestAnalyze(t *testing.T) {
	path := writeWorkload(t, testWorkload)
	out, err := runCLI(t, "analyze", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, "kv: 5 rows")
	require.Contains(t, out, "small: 2 rows")

	out, err = runCLI(t, "analyze", "-f", path, "small")
	require.NoError(t, err)
	require.NotContains(t, out, "kv:")

	_, err = runCLI(t, "analyze", "-f", path, "missing")
	require.Error(t, err)
}

func TestWorkloadErrors(t *testing.T) {
	_, err := runCLI(t, "run")
	require.ErrorContains(t, err, "no workload file")

	_, err = runCLI(t, "run", "-f", writeWorkload(t, `tables: []`))
	require.ErrorContains(t, err, "declares no tables")

	_, err = runCLI(t, "run", "-f", writeWorkload(t, `
tables: [{name: t, columns: [{name: a, type: int}]}]
`))
	require.ErrorContains(t, err, "no query")

	_, err = runCLI(t, "run", "-f", writeWorkload(t, `
tables: [{name: t, columns: [{name: a, type: int}]}]
query: {scan: u}
`))
	require.Error(t, err)

	_, err = runCLI(t, "run", "-f", writeWorkload(t, `
config: {shuffle-partitons: 2}
tables: [{name: t, columns: [{name: a, type: int}]}]
query: {scan: t}
`))
	require.ErrorContains(t, err, "workload config")
}

func TestEngineConfigLayers(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("work-mem: 1MiB\nshuffle-partitions: 3\n"), 0644))

	w, err := loadWorkload(writeWorkload(t, testWorkload))
	require.NoError(t, err)

	flagCfg := base.DefaultEngineConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagCfg.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--page-size=4KiB"}))

	cfg, err := w.engineConfig(configFile, flagCfg, fs)
	require.NoError(t, err)
	require.Equal(t, base.ByteSize(1<<20), cfg.WorkMem)
	// The workload overrides the config file.
	require.Equal(t, 2, cfg.ShufflePartitions)
	require.Equal(t, base.ByteSize(4<<10), cfg.PageSize)

	// Flags override the workload.
	require.NoError(t, fs.Parse([]string{"--shuffle-partitions=5"}))
	cfg, err = w.engineConfig(configFile, flagCfg, fs)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.ShufflePartitions)
}
