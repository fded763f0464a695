// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testcat

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/yamlutil"
	yaml "gopkg.in/yaml.v2"
)

// TableDef is the YAML definition of a table:
//
//	name: t
//	columns: [{name: a, type: int}, {name: b, type: string, not-null: true}]
//	partitions: [[[1, x], [2, y]], [[3, z]]]
//	stats: {row-count: 10000000, columns: {a: {distinct: 100, min: 1, max: 100}}}
//
// Rows may be given either as a list of partitions or as a flat list under
// "rows", which produces a single partition. Stats, if set, installs
// statistics without materializing the rows, simulating a large table.
// Row values are decoded with yamlutil, so y and n are strings.
type TableDef struct {
	Name    string `yaml:"name"`
	Columns []struct {
		Name    string `yaml:"name"`
		Type    string `yaml:"type"`
		NotNull bool   `yaml:"not-null"`
	} `yaml:"columns"`
	Rows       [][]yamlutil.Value   `yaml:"rows"`
	Partitions [][][]yamlutil.Value `yaml:"partitions"`
	Stats      *StatsDef            `yaml:"stats"`
}

// StatsDef is the YAML definition of table statistics.
type StatsDef struct {
	RowCount  float64                   `yaml:"row-count"`
	SizeBytes float64                   `yaml:"size-bytes"`
	Columns   map[string]ColumnStatsDef `yaml:"columns"`
}

// ColumnStatsDef is the YAML definition of the statistics of a column.
type ColumnStatsDef struct {
	Distinct float64        `yaml:"distinct"`
	Nulls    float64        `yaml:"nulls"`
	Min      yamlutil.Value `yaml:"min"`
	Max      yamlutil.Value `yaml:"max"`
}

// LoadYAML adds the tables defined by a YAML list of table definitions.
func (tc *Catalog) LoadYAML(data []byte) error {
	var defs []TableDef
	if err := yaml.UnmarshalStrict(data, &defs); err != nil {
		return errors.Wrap(err, "parsing table definitions")
	}
	return tc.AddTableDefs(defs)
}

// AddTableDefs creates and adds the tables with the given definitions.
func (tc *Catalog) AddTableDefs(defs []TableDef) error {
	for i := range defs {
		tab, err := newTableFromDef(&defs[i])
		if err != nil {
			return errors.Wrapf(err, "table %s", defs[i].Name)
		}
		tc.AddTable(tab)
	}
	return nil
}

func newTableFromDef(def *TableDef) (*Table, error) {
	if def.Name == "" {
		return nil, errors.New("table name is required")
	}
	cols := make([]cat.Column, len(def.Columns))
	for i, c := range def.Columns {
		typ, ok := types.FromString(c.Type)
		if !ok {
			return nil, errors.Newf("unknown type %q for column %s", c.Type, c.Name)
		}
		cols[i] = cat.Column{Name: c.Name, Type: typ, Nullable: !c.NotNull}
	}
	tab := NewTable(def.Name, cols...)

	partitions := def.Partitions
	if def.Rows != nil {
		partitions = append([][][]yamlutil.Value{def.Rows}, partitions...)
	}
	for p, rows := range partitions {
		for _, r := range rows {
			vals := yamlutil.Values(r)
			if len(vals) != len(cols) {
				return nil, errors.Newf("row %v has %d values, expected %d", vals, len(vals), len(cols))
			}
			row := make(tree.Datums, len(vals))
			for i, v := range vals {
				d, err := tree.DatumFromGo(cols[i].Type, v)
				if err != nil {
					return nil, err
				}
				if d == tree.DNull && !cols[i].Nullable {
					return nil, errors.Newf("null value in column %q violates not-null constraint", cols[i].Name)
				}
				row[i] = d
			}
			if err := tab.AddRows(p, row); err != nil {
				return nil, err
			}
		}
	}
	for len(tab.Partitions) < len(partitions) {
		tab.Partitions = append(tab.Partitions, nil)
	}
	if def.Stats != nil {
		stats, err := statsFromDef(tab, def.Stats)
		if err != nil {
			return nil, err
		}
		tab.Stats = stats
	}
	return tab, nil
}

func statsFromDef(tab *Table, def *StatsDef) (*cat.TableStatistic, error) {
	stats := &cat.TableStatistic{
		RowCount:  def.RowCount,
		SizeBytes: def.SizeBytes,
		Columns:   make([]*cat.ColumnStatistic, len(tab.Columns)),
	}
	for name, cs := range def.Columns {
		ord, ok := tab.ColumnOrdinal(name)
		if !ok {
			return nil, errors.Newf("statistics for unknown column %q", name)
		}
		typ := tab.Columns[ord].Type
		colStat := &cat.ColumnStatistic{DistinctCount: cs.Distinct, NullCount: cs.Nulls}
		if cs.Min.V != nil {
			d, err := tree.DatumFromGo(typ, cs.Min.V)
			if err != nil {
				return nil, err
			}
			colStat.Min = d
		}
		if cs.Max.V != nil {
			d, err := tree.DatumFromGo(typ, cs.Max.V)
			if err != nil {
				return nil, err
			}
			colStat.Max = d
		}
		stats.Columns[ord] = colStat
	}
	return stats, nil
}
