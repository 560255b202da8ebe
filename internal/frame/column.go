package frame

import (
	"fmt"
	"strings"
	"time"
)

// Expr computes a column value from a row.
type Expr func(Record) (any, error)

func Lit(v any) Expr {
	return func(Record) (any, error) { return v, nil }
}

func Col(name string) Expr {
	return func(r Record) (any, error) {
		v, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		return v, nil
	}
}

// CurrentTimestamp evaluates to the same instant for every row of a
// transform.
func CurrentTimestamp(now time.Time) Expr {
	return Lit(now.UTC())
}

// WithColumn adds the column or replaces an existing one in place. The
// expression result is cast to typ; uncastable results become null.
func (f *Frame) WithColumn(name string, typ Type, expr Expr) (*Frame, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("column name is required")
	}
	if _, err := ParseType(string(typ)); err != nil {
		return nil, err
	}
	if expr == nil {
		return nil, fmt.Errorf("column %q: expression is required", name)
	}

	schema := f.schema.clone()
	idx := schema.Index(name)
	field := Field{Name: name, Type: typ}
	if idx < 0 {
		idx = len(schema)
		schema = append(schema, field)
	} else {
		schema[idx] = field
	}

	rows := make([]Row, len(f.rows))
	for i := range f.rows {
		v, err := expr(f.record(i))
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		v, _ = Cast(v, typ)
		if v == nil {
			schema[idx].Nullable = true
		}
		out := make(Row, len(schema))
		copy(out, f.rows[i])
		out[idx] = v
		rows[i] = out
	}
	return &Frame{schema: schema, rows: rows}, nil
}
