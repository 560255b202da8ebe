package frame

import (
	"errors"
	"fmt"
)

type Row []any

// Frame is an immutable table of rows sharing one schema.
type Frame struct {
	schema Schema
	rows   []Row
}

// New builds a frame, coercing every value to its column type. It fails on
// values that cannot be coerced and on nulls in non-nullable columns.
func New(schema Schema, rows []Row) (*Frame, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("row %d: got %d values, want %d", i, len(row), len(schema))
		}
		coerced := make(Row, len(row))
		for j, f := range schema {
			v, ok := Cast(row[j], f.Type)
			if !ok {
				return nil, fmt.Errorf("row %d column %q: cannot use %v as %s", i, f.Name, row[j], f.Type)
			}
			if v == nil && !f.Nullable {
				return nil, fmt.Errorf("row %d column %q: null in non-nullable column", i, f.Name)
			}
			coerced[j] = v
		}
		out[i] = coerced
	}
	return &Frame{schema: schema.clone(), rows: out}, nil
}

// Empty returns a frame with the schema and no rows.
func Empty(schema Schema) *Frame {
	return &Frame{schema: schema.clone()}
}

// FromRecords infers a schema from the first non-null value of each column.
// Columns that are null everywhere become nullable strings.
func FromRecords(names []string, records [][]any) (*Frame, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one column name is required")
	}
	schema := make(Schema, len(names))
	for j, name := range names {
		schema[j] = Field{Name: name, Type: TypeString}
		typed := false
		for _, rec := range records {
			if j >= len(rec) {
				continue
			}
			if rec[j] == nil {
				schema[j].Nullable = true
				continue
			}
			if !typed {
				if t, ok := TypeOf(rec[j]); ok {
					schema[j].Type = t
					typed = true
				}
			}
		}
		if !typed {
			schema[j].Nullable = true
		}
	}
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row(rec)
	}
	return New(schema, rows)
}

func (f *Frame) Schema() Schema {
	return f.schema.clone()
}

func (f *Frame) Columns() []string {
	return f.schema.Names()
}

func (f *Frame) Len() int {
	return len(f.rows)
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) Row {
	out := make(Row, len(f.rows[i]))
	copy(out, f.rows[i])
	return out
}

// Rows returns copies of every row.
func (f *Frame) Rows() []Row {
	out := make([]Row, len(f.rows))
	for i := range f.rows {
		out[i] = f.Row(i)
	}
	return out
}

func (f *Frame) Column(name string) ([]any, error) {
	idx := f.schema.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]any, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Record is a read-only view of one row used by column expressions.
type Record struct {
	schema Schema
	values Row
}

func (r Record) Get(name string) (any, bool) {
	idx := r.schema.Index(name)
	if idx < 0 {
		return nil, false
	}
	return r.values[idx], true
}

func (f *Frame) record(i int) Record {
	return Record{schema: f.schema, values: f.rows[i]}
}

// Filter keeps the rows for which keep returns true.
func (f *Frame) Filter(keep func(Record) bool) *Frame {
	out := &Frame{schema: f.schema.clone()}
	for i := range f.rows {
		if keep(f.record(i)) {
			out.rows = append(out.rows, f.rows[i])
		}
	}
	return out
}

// Select projects the named columns in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	idx := make([]int, len(names))
	schema := make(Schema, len(names))
	for i, name := range names {
		j := f.schema.Index(name)
		if j < 0 {
			return nil, fmt.Errorf("column %q not found", name)
		}
		idx[i] = j
		schema[i] = f.schema[j]
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	rows := make([]Row, len(f.rows))
	for i, row := range f.rows {
		out := make(Row, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return &Frame{schema: schema, rows: rows}, nil
}

// Drop removes the named columns; unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	keep := make([]string, 0, len(f.schema))
	for _, field := range f.schema {
		if _, ok := drop[field.Name]; !ok {
			keep = append(keep, field.Name)
		}
	}
	out, _ := f.Select(keep...)
	return out
}

// Concat stacks frames onto schema, matching columns by name. Columns a
// frame lacks are null. An empty schema takes the union of the inputs'
// columns in order of first appearance.
func Concat(schema Schema, frames ...*Frame) (*Frame, error) {
	if len(schema) == 0 {
		for _, fr := range frames {
			for _, field := range fr.schema {
				if schema.Index(field.Name) < 0 {
					schema = append(schema, field)
				}
			}
		}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	target := schema.clone()
	for i := range target {
		for _, fr := range frames {
			if fr.Len() > 0 && fr.schema.Index(target[i].Name) < 0 {
				target[i].Nullable = true
			}
		}
	}

	out := &Frame{schema: target}
	for _, fr := range frames {
		idx := make([]int, len(target))
		for i, field := range target {
			idx[i] = fr.schema.Index(field.Name)
		}
		for _, row := range fr.rows {
			next := make(Row, len(target))
			for i, j := range idx {
				if j < 0 {
					continue
				}
				v, _ := Cast(row[j], target[i].Type)
				if v == nil {
					out.schema[i].Nullable = true
				}
				next[i] = v
			}
			out.rows = append(out.rows, next)
		}
	}
	return out, nil
}
