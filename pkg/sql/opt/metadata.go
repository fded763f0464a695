// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// ColumnID uniquely identifies the usage of a column within the scope of a
// query. It is the ground truth for binding and equality; display names are
// only metadata. ColumnID 0 is reserved to mean "unknown column".
type ColumnID int32

// ColList is a list of column ids.
type ColList []ColumnID

// ToSet converts a column id list to a column id set.
func (cl ColList) ToSet() ColSet {
	var r ColSet
	for _, col := range cl {
		r.Add(col)
	}
	return r
}

// Find searches for a column in the list and returns its index in the list
// (if successful).
func (cl ColList) Find(col ColumnID) (idx int, ok bool) {
	for i := range cl {
		if cl[i] == col {
			return i, true
		}
	}
	return -1, false
}

// Equals returns true if this column list has the same columns as the given
// column list, in the same order.
func (cl ColList) Equals(other ColList) bool {
	if len(cl) != len(other) {
		return false
	}
	for i := range cl {
		if cl[i] != other[i] {
			return false
		}
	}
	return true
}

func (cl ColList) String() string {
	parts := make([]string, len(cl))
	for i, c := range cl {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// ColumnMeta stores information about one of the columns stored in the
// metadata.
type ColumnMeta struct {
	// MetaID is the identifier for this column that is unique within the
	// query metadata.
	MetaID ColumnID

	// Alias is the best-effort name of this column.
	Alias string

	// Type is the scalar SQL type of this column.
	Type *types.T

	// Table is the name of the base table this column comes from, if any.
	Table string
}

// Metadata assigns ColumnIDs for a query. Every column produced anywhere in
// a plan (base table columns, projections, aggregations, union outputs) is
// registered here and receives a fresh id.
type Metadata struct {
	cols []ColumnMeta
}

// AddColumn assigns a new unique id to a column within the query and records
// its alias and type.
func (md *Metadata) AddColumn(alias string, typ *types.T) ColumnID {
	return md.AddTableColumn("", alias, typ)
}

// AddTableColumn is like AddColumn for a column of a base table.
func (md *Metadata) AddTableColumn(table, alias string, typ *types.T) ColumnID {
	col := ColumnID(len(md.cols) + 1)
	md.cols = append(md.cols, ColumnMeta{MetaID: col, Alias: alias, Type: typ, Table: table})
	return col
}

// NumColumns returns the count of columns tracked by this Metadata instance.
func (md *Metadata) NumColumns() int { return len(md.cols) }

// ColumnMeta looks up the metadata for the column associated with the given
// column id. The same column can be added multiple times to the query
// metadata and will be associated with a different column id each time.
func (md *Metadata) ColumnMeta(colID ColumnID) *ColumnMeta {
	return &md.cols[colID-1]
}

// HasColumn returns true if the id was assigned by this metadata.
func (md *Metadata) HasColumn(colID ColumnID) bool {
	return colID > 0 && int(colID) <= len(md.cols)
}

// QualifiedAlias returns the column alias, possibly qualified with the table
// name.
func (md *Metadata) QualifiedAlias(colID ColumnID, fullyQualify bool) string {
	cm := md.ColumnMeta(colID)
	if fullyQualify && cm.Table != "" {
		return cm.Table + "." + cm.Alias
	}
	return cm.Alias
}
