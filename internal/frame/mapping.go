package frame

import (
	"fmt"
	"strings"
)

// Mapping renames and retypes one column.
type Mapping struct {
	SourceName string
	SourceType string
	DestName   string
	DestType   string
}

// M is shorthand for a Mapping tuple.
func M(sourceName, sourceType, destName, destType string) Mapping {
	return Mapping{SourceName: sourceName, SourceType: sourceType, DestName: destName, DestType: destType}
}

// ApplyMapping keeps only the mapped columns, in mapping order. Values are
// read as the source type and cast to the destination type; values that do
// not survive either cast become null. Mappings whose source column is
// absent produce no column.
func (f *Frame) ApplyMapping(mappings []Mapping) (*Frame, error) {
	type plan struct {
		src     int
		srcType Type
		field   Field
	}
	plans := make([]plan, 0, len(mappings))
	schema := make(Schema, 0, len(mappings))
	for i, m := range mappings {
		if strings.TrimSpace(m.SourceName) == "" || strings.TrimSpace(m.DestName) == "" {
			return nil, fmt.Errorf("mapping[%d]: source and destination names are required", i)
		}
		srcType, err := ParseType(m.SourceType)
		if err != nil {
			return nil, fmt.Errorf("mapping[%d] source: %w", i, err)
		}
		dstType, err := ParseType(m.DestType)
		if err != nil {
			return nil, fmt.Errorf("mapping[%d] destination: %w", i, err)
		}
		src := f.schema.Index(m.SourceName)
		if src < 0 {
			continue
		}
		field := Field{Name: m.DestName, Type: dstType, Nullable: f.schema[src].Nullable}
		plans = append(plans, plan{src: src, srcType: srcType, field: field})
		schema = append(schema, field)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	rows := make([]Row, len(f.rows))
	for i, row := range f.rows {
		out := make(Row, len(plans))
		for k, p := range plans {
			v, ok := Cast(row[p.src], p.srcType)
			if ok {
				v, ok = Cast(v, p.field.Type)
			}
			if !ok || v == nil {
				schema[k].Nullable = true
				continue
			}
			out[k] = v
		}
		rows[i] = out
	}
	return &Frame{schema: schema, rows: rows}, nil
}
