package schema

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/metrics"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
)

// KeySeparator joins the values of a composite primary key
const KeySeparator = "|"

// Schema is the declared mapping of one resource onto its tables
type Schema struct {
	Table       string
	PrimaryKey  []string
	Incremental bool
	// Rules fill the resource table, in column order
	Rules []Rule
	// Lists produce the linked child tables
	Lists []ListRule
}

// Columns returns the resource table columns in declared order. A column
// declared twice keeps its first position.
func (s Schema) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range s.Rules {
		for _, c := range r.Columns() {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	return cols
}

// TableDef returns the resource table definition
func (s Schema) TableDef() models.TableDef {
	return models.TableDef{
		Name:        s.Table,
		Columns:     s.Columns(),
		PrimaryKey:  s.PrimaryKey,
		Incremental: s.Incremental,
	}
}

// ChildTableDefs returns the definitions of the child tables
func (s Schema) ChildTableDefs() []models.TableDef {
	defs := make([]models.TableDef, 0, len(s.Lists))
	for _, l := range s.Lists {
		defs = append(defs, l.TableDef(s.Incremental))
	}
	return defs
}

// Validate checks that the schema can produce linked rows
func (s Schema) Validate() error {
	if s.Table == "" {
		return errors.New(errors.ErrorTypeConfig, "schema has no table name")
	}
	def := s.TableDef()
	for _, pk := range s.PrimaryKey {
		if !def.HasColumn(pk) {
			return errors.New(errors.ErrorTypeConfig, "primary key column is not declared").
				WithDetail("table", s.Table).
				WithDetail("column", pk)
		}
	}
	for _, l := range s.Lists {
		if l.Table == "" || l.ForeignKey == "" || l.Path == "" {
			return errors.New(errors.ErrorTypeConfig, "list rule needs table, path and foreign key").
				WithDetail("table", s.Table)
		}
		if len(s.PrimaryKey) == 0 {
			return errors.New(errors.ErrorTypeConfig, "child tables need a parent primary key").
				WithDetail("table", s.Table).
				WithDetail("child", l.Table)
		}
	}
	return nil
}

// Flattener applies a Schema to raw records
type Flattener struct {
	schema  Schema
	columns []string
	roots   map[string]struct{}
	logger  *zap.Logger
}

// NewFlattener validates s and returns a flattener for it
func NewFlattener(s Schema, logger *zap.Logger) (*Flattener, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	roots := make(map[string]struct{})
	for _, r := range s.Rules {
		roots[r.root()] = struct{}{}
	}
	for _, l := range s.Lists {
		roots[l.root()] = struct{}{}
	}

	return &Flattener{
		schema:  s,
		columns: s.Columns(),
		roots:   roots,
		logger:  logger.With(zap.String("component", "flattener"), zap.String("table", s.Table)),
	}, nil
}

// Schema returns the flattener's schema
func (f *Flattener) Schema() Schema {
	return f.schema
}

// Flatten maps rec onto one row of the resource table and rows of the
// child tables.
//
// Columns follow the declared order. The primary key links child rows to
// their parent, so when the schema has child lists a record without a
// primary key value fails with ErrorTypeData. A nested list of the wrong
// shape is skipped for this record and counted; it never fails the record.
func (f *Flattener) Flatten(rec models.Record) (models.FlatRow, []models.ChildRow, error) {
	row := models.NewFlatRow(f.columns)
	for _, r := range f.schema.Rules {
		if !r.apply(rec, row) {
			metrics.MalformedNested.WithLabelValues(f.schema.Table).Inc()
			f.logger.Debug("nested object has unexpected shape", zap.Strings("columns", r.Columns()))
		}
	}

	if dropped := f.countDropped(rec); dropped > 0 {
		metrics.DroppedFields.WithLabelValues(f.schema.Table).Add(float64(dropped))
		f.logger.Debug("dropped unmapped fields", zap.Int("count", dropped))
	}

	if len(f.schema.PrimaryKey) == 0 || len(f.schema.Lists) == 0 {
		return row, nil, nil
	}
	key, err := f.primaryKey(row)
	if err != nil {
		return models.FlatRow{}, nil, err
	}

	var children []models.ChildRow
	for _, l := range f.schema.Lists {
		rows, ok := l.rows(rec, key)
		if !ok {
			err := errors.New(errors.ErrorTypeMalformedData, "nested list has unexpected shape").
				WithDetail("table", l.Table).
				WithDetail("path", l.Path)
			metrics.MalformedNested.WithLabelValues(l.Table).Inc()
			f.logger.Debug("skipping nested list", zap.String("key", key), zap.Error(err))
			continue
		}
		children = append(children, rows...)
	}
	return row, children, nil
}

// PrimaryKey returns the joined primary key value of row
func (f *Flattener) PrimaryKey(row models.FlatRow) (string, error) {
	return f.primaryKey(row)
}

func (f *Flattener) primaryKey(row models.FlatRow) (string, error) {
	parts := make([]string, 0, len(f.schema.PrimaryKey))
	for _, col := range f.schema.PrimaryKey {
		v, _ := row.Get(col)
		s := models.FormatValue(v)
		if s == "" {
			return "", errors.New(errors.ErrorTypeData, "record has no primary key value").
				WithDetail("table", f.schema.Table).
				WithDetail("column", col)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, KeySeparator), nil
}

func (f *Flattener) countDropped(rec models.Record) int {
	n := 0
	for k := range rec {
		if _, ok := f.roots[k]; !ok {
			n++
		}
	}
	return n
}
