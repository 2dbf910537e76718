// Package schema declares how nested API records map onto flat tables and
// implements the flattener that applies those declarations.
//
// A Schema is an ordered list of rules. FieldRule copies one value
// addressed by a dot path, ObjectRule expands a known nested object into
// one column per declared field, and ListRule turns a nested list into rows
// of a linked child table. Supporting a new nested shape means declaring a
// new rule, not changing the flattener.
package schema

import (
	"sort"
	"strings"

	"github.com/ajitpratap0/nebula-hubspot/pkg/json"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
)

// VersionedFields are the fields of a versioned HubSpot property
var VersionedFields = []string{"source", "sourceId", "timestamp", "value", "versions"}

// Rule contributes columns to the resource table
type Rule interface {
	// Columns returns the columns the rule fills, in order
	Columns() []string
	// root returns the top level record key the rule reads
	root() string
	// apply copies the rule's values from rec into row
	apply(rec models.Record, row models.FlatRow) bool
}

// FieldRule copies the value at Path into Column. Lists and objects are
// stored as compact JSON.
type FieldRule struct {
	Column string
	// Path is a dot separated path into the record; empty means Column
	Path string
}

// Field returns a FieldRule whose column name is its path
func Field(path string) FieldRule {
	return FieldRule{Column: path, Path: path}
}

// Fields returns one FieldRule per path
func Fields(paths ...string) []Rule {
	rules := make([]Rule, 0, len(paths))
	for _, p := range paths {
		rules = append(rules, Field(p))
	}
	return rules
}

func (f FieldRule) path() string {
	if f.Path == "" {
		return f.Column
	}
	return f.Path
}

// Columns implements Rule
func (f FieldRule) Columns() []string { return []string{f.Column} }

func (f FieldRule) root() string { return rootOf(f.path()) }

func (f FieldRule) apply(rec models.Record, row models.FlatRow) bool {
	v, _ := navigate(map[string]interface{}(rec), f.path())
	row.Set(f.Column, scalar(v))
	return true
}

// ObjectRule expands the object at Path into the columns Path.<field> for
// every declared field. A missing object leaves every column empty; an
// object of the wrong shape does the same and reports false.
type ObjectRule struct {
	Path   string
	Fields []string
}

// Versioned returns the rule for the versioned property name under
// "properties".
func Versioned(name string) ObjectRule {
	return ObjectRule{Path: "properties." + name, Fields: VersionedFields}
}

// VersionedAll returns one Versioned rule per property name
func VersionedAll(names ...string) []Rule {
	rules := make([]Rule, 0, len(names))
	for _, n := range names {
		rules = append(rules, Versioned(n))
	}
	return rules
}

// Columns implements Rule
func (o ObjectRule) Columns() []string {
	cols := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		cols[i] = o.Path + "." + f
	}
	return cols
}

func (o ObjectRule) root() string { return rootOf(o.Path) }

func (o ObjectRule) apply(rec models.Record, row models.FlatRow) bool {
	v, found := navigate(map[string]interface{}(rec), o.Path)
	obj, isObj := v.(map[string]interface{})
	for _, f := range o.Fields {
		var val interface{}
		if isObj {
			val = scalar(obj[f])
		}
		row.Set(o.Path+"."+f, val)
	}
	return !found || v == nil || isObj
}

// ListRule extracts the list at Path into rows of the child table Table.
// Every child row carries ForeignKey set to the parent's primary key value.
type ListRule struct {
	Table      string
	Path       string
	ForeignKey string
	// Columns lists the element fields copied into the child table. Empty
	// means every field of each element, in sorted order.
	Columns    []string
	PrimaryKey []string
}

// TableDef returns the definition of the child table. Without declared
// columns the writer fixes them at the first row.
func (l ListRule) TableDef(incremental bool) models.TableDef {
	var cols []string
	if len(l.Columns) > 0 {
		cols = append([]string{l.ForeignKey}, l.Columns...)
	}
	return models.TableDef{
		Name:        l.Table,
		Columns:     cols,
		PrimaryKey:  l.PrimaryKey,
		Incremental: incremental,
	}
}

func (l ListRule) root() string { return rootOf(l.Path) }

// rows returns the child rows for rec; ok is false when the value at Path
// is present with a shape other than a list of objects.
func (l ListRule) rows(rec models.Record, parentKey string) (rows []models.ChildRow, ok bool) {
	v, found := navigate(map[string]interface{}(rec), l.Path)
	if !found || v == nil {
		return nil, true
	}
	list, isList := v.([]interface{})
	if !isList {
		return nil, false
	}

	rows = make([]models.ChildRow, 0, len(list))
	for _, item := range list {
		elem, isObj := item.(map[string]interface{})
		if !isObj {
			return nil, false
		}

		cols := l.Columns
		if len(cols) == 0 {
			cols = sortedKeys(elem)
		}
		row := models.NewFlatRow(append([]string{l.ForeignKey}, cols...))
		row.Set(l.ForeignKey, parentKey)
		for _, c := range cols {
			row.Set(c, scalar(elem[c]))
		}
		rows = append(rows, models.ChildRow{Table: l.Table, Row: row})
	}
	return rows, true
}

// navigate follows a dot path through nested objects. found is false when
// any segment is missing or a non-object is met before the last segment.
func navigate(obj map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// scalar converts a raw value into a cell value. Nested values become
// compact JSON text.
func scalar(v interface{}) interface{} {
	switch v.(type) {
	case nil, string, bool, float64, int64, json.Number:
		return v
	case map[string]interface{}, []interface{}:
		s, err := json.MarshalCompact(v)
		if err != nil {
			return nil
		}
		return s
	default:
		return v
	}
}

func rootOf(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
