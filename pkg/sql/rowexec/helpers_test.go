// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"github.com/stretchr/testify/require"
)

type testPlan struct {
	catalog *testcat.Catalog
	md      *opt.Metadata
	plan    *physicalplan.Plan
}

func planQuery(t *testing.T, tables, query string, cfg physicalplan.Config) testPlan {
	t.Helper()
	catalog := testcat.New()
	require.NoError(t, catalog.LoadYAML([]byte(tables)))
	q, err := optbuilder.ParseQuery([]byte(query))
	require.NoError(t, err)
	md := &opt.Metadata{}
	e, err := optbuilder.New(md, catalog).Build(q)
	require.NoError(t, err)
	plan, err := physicalplan.New(md, cfg).Plan(context.Background(), e)
	require.NoError(t, err)
	return testPlan{catalog: catalog, md: md, plan: plan}
}

func (tp testPlan) table(t *testing.T, name string) *testcat.Table {
	t.Helper()
	tab, err := tp.catalog.Table(name)
	require.NoError(t, err)
	return tab
}

func findOne[T physicalplan.Node](t *testing.T, root physicalplan.Node) T {
	t.Helper()
	var res []T
	physicalplan.Walk(root, func(n physicalplan.Node) {
		if t, ok := n.(T); ok {
			res = append(res, t)
		}
	})
	require.Len(t, res, 1, "plan:\n%s", physicalplan.Explain(&physicalplan.Plan{Root: root}, 0))
	return res[0]
}

// newFlowCtx returns a flow context with unlimited memory and an in-memory
// temporary file system.
func newFlowCtx(md *opt.Metadata) *rowexec.FlowCtx {
	m := rowexec.MakeMetrics()
	return &rowexec.FlowCtx{
		Metadata:            md,
		Mon:                 mon.NewMonitor("test", 0 /* limit */, nil /* parent */),
		WorkMem:             64 << 20,
		PageSize:            64 << 10,
		TempFS:              vfs.NewMem(),
		TempDir:             "tmp",
		CancelCheckInterval: 16,
		Metrics:             &m,
	}
}

// drain returns the rows of src, formatted, and closes it.
func drain(t *testing.T, src rowexec.RowSource) []string {
	t.Helper()
	ctx := context.Background()
	defer src.Close(ctx)
	var res []string
	for {
		row, err := src.Next(ctx)
		require.NoError(t, err)
		if row == nil {
			return res
		}
		res = append(res, row.String())
	}
}

func row(vals ...interface{}) tree.Datums {
	res := make(tree.Datums, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
			res[i] = tree.DNull
		case int:
			res[i] = tree.NewDInt(tree.DInt(v))
		case string:
			res[i] = tree.NewDString(v)
		case bool:
			res[i] = tree.MakeDBool(tree.DBool(v))
		default:
			panic("unsupported test value")
		}
	}
	return res
}
