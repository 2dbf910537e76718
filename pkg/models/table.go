package models

import (
	"fmt"
	"strconv"
)

// TableDef describes one output table. It is immutable once a writer has
// been opened for it.
type TableDef struct {
	// Name is the table name, also used as the output file stem
	Name string

	// Columns is the declared column order. An empty list means the
	// columns are fixed by the first row written.
	Columns []string

	// PrimaryKey lists the columns that identify a row
	PrimaryKey []string

	// Incremental marks the table for incremental loading downstream
	Incremental bool
}

// HasColumn reports whether the definition declares column c
func (t TableDef) HasColumn(c string) bool {
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// FlatRow is a single-level mapping from column name to scalar value.
// Columns carries the producing schema's declared order.
type FlatRow struct {
	Columns []string
	Values  map[string]interface{}
}

// NewFlatRow returns an empty row with the given column order
func NewFlatRow(columns []string) FlatRow {
	return FlatRow{
		Columns: columns,
		Values:  make(map[string]interface{}, len(columns)),
	}
}

// Get returns the value stored under column c
func (r FlatRow) Get(c string) (interface{}, bool) {
	v, ok := r.Values[c]
	return v, ok
}

// Set stores v under column c
func (r FlatRow) Set(c string, v interface{}) {
	r.Values[c] = v
}

// ChildRow is a FlatRow destined for a linked child table. Its foreign key
// column holds a copy of the parent row's primary key value.
type ChildRow struct {
	Table string
	Row   FlatRow
}

// Manifest is the metadata emitted for every table a writer produced.
// Only PrimaryKey and Incremental are serialized into the manifest file.
type Manifest struct {
	Table       string   `json:"-"`
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
	Columns     []string `json:"-"`
	RowsWritten int      `json:"-"`
	Path        string   `json:"-"`
}

// FormatValue renders a scalar as CSV cell text. Nil becomes the empty
// string.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
