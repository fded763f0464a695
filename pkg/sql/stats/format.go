// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package stats

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// Format writes a summary of the statistics of a table to w: one line with
// the row count and size, followed by a table with one row per column.
func Format(w io.Writer, table cat.Table, stat *cat.TableStatistic) {
	if stat == nil {
		fmt.Fprintf(w, "%s: no statistics\n", table.Name())
		return
	}
	fmt.Fprintf(w, "%s: %s rows, %s\n", table.Name(),
		humanize.Comma(int64(stat.RowCount)), humanize.IBytes(uint64(stat.SizeBytes)))

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeader([]string{"column", "distinct", "nulls", "min", "max", "buckets"})
	for i, cs := range stat.Columns {
		if cs == nil {
			continue
		}
		tw.Append([]string{
			table.Column(i).Name,
			strconv.FormatFloat(cs.DistinctCount, 'f', 0, 64),
			strconv.FormatFloat(cs.NullCount, 'f', 0, 64),
			datumString(cs.Min),
			datumString(cs.Max),
			strconv.Itoa(len(cs.Histogram)),
		})
	}
	tw.Render()
}

// FormatHistogram writes the buckets of a column histogram to w.
func FormatHistogram(w io.Writer, buckets []cat.HistogramBucket) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"upper_bound", "num_eq", "num_range", "distinct_range"})
	for _, b := range buckets {
		tw.Append([]string{
			datumString(b.UpperBound),
			strconv.FormatFloat(b.NumEq, 'f', 2, 64),
			strconv.FormatFloat(b.NumRange, 'f', 2, 64),
			strconv.FormatFloat(b.DistinctRange, 'f', 2, 64),
		})
	}
	tw.Render()
}

func datumString(d tree.Datum) string {
	if d == nil {
		return ""
	}
	return d.String()
}
