// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package stats_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/stats"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/stretchr/testify/require"
)

// makeTable returns a table with 1000 rows in two partitions. Column a
// holds 100 distinct values, and every tenth value of column b is NULL.
func makeTable(t *testing.T) *testcat.Table {
	tab := testcat.NewTable("t", testcat.Col("a", types.Int), testcat.Col("b", types.String))
	for i := 0; i < 1000; i++ {
		var b tree.Datum = tree.NewDString(fmt.Sprintf("s%d", i%250))
		if i%10 == 0 {
			b = tree.DNull
		}
		require.NoError(t, tab.AddRows(i%2, tree.Datums{tree.NewDInt(tree.DInt(i % 100)), b}))
	}
	return tab
}

func TestAnalyze(t *testing.T) {
	tab := makeTable(t)
	stat, err := stats.Analyze(context.Background(), tab, stats.DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, float64(1000), stat.RowCount)
	require.Greater(t, stat.SizeBytes, float64(0))
	require.Len(t, stat.Columns, 2)

	a := stat.Columns[0]
	require.Zero(t, a.NullCount)
	require.InEpsilon(t, 100, a.DistinctCount, 0.05)
	require.Equal(t, "0", a.Min.String())
	require.Equal(t, "99", a.Max.String())

	b := stat.Columns[1]
	require.Equal(t, float64(100), b.NullCount)
	require.InEpsilon(t, 225, b.DistinctCount, 0.05)
	require.Equal(t, `"s1"`, b.Min.String())
	require.Equal(t, `"s99"`, b.Max.String())

	// The histograms cover every non-NULL row, with increasing bounds.
	for i, cs := range stat.Columns {
		require.NotEmpty(t, cs.Histogram, "column %d", i)
		var total float64
		for j, bucket := range cs.Histogram {
			total += bucket.NumEq + bucket.NumRange
			if j > 0 {
				require.Negative(t, cs.Histogram[j-1].UpperBound.Compare(bucket.UpperBound))
			}
		}
		require.InDelta(t, stat.RowCount-cs.NullCount, total, 1e-6, "column %d", i)
		require.Equal(t, cs.Max, cs.Histogram[len(cs.Histogram)-1].UpperBound)
	}
}

func TestAnalyzeSampled(t *testing.T) {
	tab := makeTable(t)
	opts := stats.Options{MaxBuckets: 10, SampleSize: 100, Seed: 7}
	stat, err := stats.Analyze(context.Background(), tab, opts)
	require.NoError(t, err)

	for _, cs := range stat.Columns {
		require.LessOrEqual(t, len(cs.Histogram), 10)
		var total float64
		for _, bucket := range cs.Histogram {
			total += bucket.NumEq + bucket.NumRange
		}
		require.InDelta(t, stat.RowCount-cs.NullCount, total, 1e-6)
	}

	// The same seed gives the same result.
	again, err := stats.Analyze(context.Background(), tab, opts)
	require.NoError(t, err)
	require.Equal(t, stat, again)
}

func TestAnalyzeEmpty(t *testing.T) {
	tab := testcat.NewTable("e", testcat.Col("a", types.Int))
	stat, err := stats.Analyze(context.Background(), tab, stats.DefaultOptions())
	require.NoError(t, err)
	require.Zero(t, stat.RowCount)
	require.Zero(t, stat.Columns[0].DistinctCount)
	require.Nil(t, stat.Columns[0].Min)
	require.Nil(t, stat.Columns[0].Histogram)
}

func TestAnalyzeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stats.Analyze(ctx, makeTable(t), stats.DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormat(t *testing.T) {
	tab := makeTable(t)
	stat, err := stats.Analyze(context.Background(), tab, stats.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	stats.Format(&buf, tab, stat)
	out := buf.String()
	require.Contains(t, out, "t: 1,000 rows")
	require.Contains(t, out, "column")
	require.Contains(t, out, `"s99"`)

	buf.Reset()
	stats.Format(&buf, tab, nil)
	require.Equal(t, "t: no statistics\n", buf.String())

	buf.Reset()
	stats.FormatHistogram(&buf, stat.Columns[0].Histogram)
	require.Contains(t, buf.String(), "upper_bound")
}
