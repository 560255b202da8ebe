// Package frame holds the in-memory tabular dataset that jobs read, map and
// write. A Frame is immutable: every transform returns a new Frame and never
// mutates its input.
//
// Column values are carried as Go values matching the column type:
//
//	string    -> string
//	int       -> int32
//	long      -> int64
//	double    -> float64
//	boolean   -> bool
//	timestamp -> time.Time (UTC)
//
// A nil value is a null.
package frame

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeString    Type = "string"
	TypeInt       Type = "int"
	TypeLong      Type = "long"
	TypeDouble    Type = "double"
	TypeBoolean   Type = "boolean"
	TypeTimestamp Type = "timestamp"
)

// ParseType accepts the type names used in catalogs and mapping tuples,
// including the common aliases.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "varchar", "char", "text":
		return TypeString, nil
	case "int", "integer", "int32":
		return TypeInt, nil
	case "long", "bigint", "int64":
		return TypeLong, nil
	case "double", "float", "float64", "decimal":
		return TypeDouble, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "timestamp", "datetime":
		return TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unsupported column type %q", name)
	}
}

func MustParseType(name string) Type {
	t, err := ParseType(name)
	if err != nil {
		panic(err)
	}
	return t
}

type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

type Schema []Field

func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of the named column or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Field(name string) (Field, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i], true
	}
	return Field{}, false
}

func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, f := range s {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("schema[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("schema[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[name] = struct{}{}
		if _, err := ParseType(string(f.Type)); err != nil {
			return fmt.Errorf("schema[%d]: %w", i, err)
		}
	}
	return nil
}

func (s Schema) clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}
