// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package testcat is an in-memory catalog of partitioned tables, used by
// tests and by the command-line tool.
package testcat

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// Catalog holds a set of tables by name.
type Catalog struct {
	tables map[string]*Table
}

// New creates a new empty instance of the test catalog.
func New() *Catalog {
	return &Catalog{tables: make(map[string]*Table)}
}

// AddTable adds a table to the catalog, replacing any table of the same
// name.
func (tc *Catalog) AddTable(tab *Table) {
	tc.tables[tab.TabName] = tab
}

// Table returns the table with the given name.
func (tc *Catalog) Table(name string) (*Table, error) {
	tab, ok := tc.tables[name]
	if !ok {
		return nil, errors.Newf("relation %q does not exist", name)
	}
	return tab, nil
}

// ResolveTable is part of the cat.Catalog interface.
func (tc *Catalog) ResolveTable(name string) (cat.Table, error) {
	tab, err := tc.Table(name)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

// TableNames returns the names of all tables, in sorted order.
func (tc *Catalog) TableNames() []string {
	res := make([]string, 0, len(tc.tables))
	for name := range tc.tables {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Table implements the cat.Table interface for testing purposes. Its rows
// are held in memory, split into partitions.
type Table struct {
	TabName    string
	Columns    []cat.Column
	Partitions [][]tree.Datums
	Stats      *cat.TableStatistic
}

var _ cat.Catalog = &Catalog{}
var _ cat.Table = &Table{}

// NewTable creates a table with the given columns and a single empty
// partition.
func NewTable(name string, cols ...cat.Column) *Table {
	return &Table{TabName: name, Columns: cols, Partitions: [][]tree.Datums{nil}}
}

// Col is a shorthand for a nullable column definition.
func Col(name string, typ *types.T) cat.Column {
	return cat.Column{Name: name, Type: typ, Nullable: true}
}

// Name is part of the cat.Table interface.
func (tt *Table) Name() string { return tt.TabName }

// ColumnCount is part of the cat.Table interface.
func (tt *Table) ColumnCount() int { return len(tt.Columns) }

// Column is part of the cat.Table interface.
func (tt *Table) Column(i int) cat.Column { return tt.Columns[i] }

// Statistics is part of the cat.Table interface.
func (tt *Table) Statistics() *cat.TableStatistic { return tt.Stats }

// PartitionCount is part of the cat.Table interface.
func (tt *Table) PartitionCount() int { return len(tt.Partitions) }

// ColumnOrdinal returns the ordinal of the column with the given name.
func (tt *Table) ColumnOrdinal(name string) (int, bool) {
	for i := range tt.Columns {
		if tt.Columns[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// AddRows appends rows to the given partition, creating partitions as
// needed.
func (tt *Table) AddRows(partition int, rows ...tree.Datums) error {
	for _, row := range rows {
		if len(row) != len(tt.Columns) {
			return errors.Newf("table %s has %d columns, row has %d", tt.TabName, len(tt.Columns), len(row))
		}
		for i, d := range row {
			if !d.ResolvedType().Equivalent(tt.Columns[i].Type) {
				return errors.Newf("value %s is not of type %s", d, tt.Columns[i].Type)
			}
		}
	}
	for len(tt.Partitions) <= partition {
		tt.Partitions = append(tt.Partitions, nil)
	}
	tt.Partitions[partition] = append(tt.Partitions[partition], rows...)
	return nil
}

// RowCount returns the number of rows across all partitions.
func (tt *Table) RowCount() int {
	n := 0
	for _, p := range tt.Partitions {
		n += len(p)
	}
	return n
}

// SetStatistics installs statistics computed by ANALYZE.
func (tt *Table) SetStatistics(stat *cat.TableStatistic) { tt.Stats = stat }

// SetRowCount installs statistics with only a row count and an estimated
// size. It is used to simulate large tables without materializing them.
func (tt *Table) SetRowCount(rows float64) {
	tt.Stats = &cat.TableStatistic{RowCount: rows}
}

// NewReader is part of the cat.Table interface.
func (tt *Table) NewReader(_ context.Context, partition int) (cat.RowReader, error) {
	if partition < 0 || partition >= len(tt.Partitions) {
		return nil, errors.AssertionFailedf("table %s has no partition %d", tt.TabName, partition)
	}
	return &rowReader{rows: tt.Partitions[partition]}, nil
}

type rowReader struct {
	rows []tree.Datums
	idx  int
}

func (r *rowReader) Next(context.Context) (tree.Datums, error) {
	if r.idx >= len(r.rows) {
		return nil, nil
	}
	row := r.rows[r.idx]
	r.idx++
	return row, nil
}

func (r *rowReader) Close(context.Context) {}
