// Package quality evaluates declarative data-quality rules against a frame
// and produces a JSON report.
package quality

import (
	"errors"
	"fmt"
	"strings"
)

const (
	RuleSpecSchemaV1 = "gluejobs.quality.rule.v1"

	CheckRequiredColumns = "required_columns"
	CheckNonNullColumns  = "non_null_columns"
	CheckRowCount        = "row_count"
	CheckAllowedValues   = "allowed_values"
)

type RuleSpec struct {
	Schema  string      `json:"schema" yaml:"schema"`
	Enforce bool        `json:"enforce,omitempty" yaml:"enforce,omitempty"`
	Checks  []CheckSpec `json:"checks" yaml:"checks"`
}

type CheckSpec struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`

	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Column  string   `json:"column,omitempty" yaml:"column,omitempty"`
	Allowed []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`

	MinRows *int64 `json:"min_rows,omitempty" yaml:"min_rows,omitempty"`
	MaxRows *int64 `json:"max_rows,omitempty" yaml:"max_rows,omitempty"`
}

func (s RuleSpec) Validate() error {
	if strings.TrimSpace(s.Schema) != RuleSpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", RuleSpecSchemaV1)
	}
	if len(s.Checks) == 0 {
		return errors.New("spec.checks must be non-empty")
	}

	seen := make(map[string]struct{}, len(s.Checks))
	for i, check := range s.Checks {
		id := strings.TrimSpace(check.ID)
		if id == "" {
			return fmt.Errorf("spec.checks[%d].id is required", i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("spec.checks[%d].id must be unique (duplicate %q)", i, id)
		}
		seen[id] = struct{}{}

		kind := strings.ToLower(strings.TrimSpace(check.Type))
		if kind == "" {
			return fmt.Errorf("spec.checks[%d].type is required", i)
		}

		switch kind {
		case CheckRequiredColumns, CheckNonNullColumns:
			if len(trimNonEmpty(check.Columns)) == 0 {
				return fmt.Errorf("spec.checks[%d] %s requires columns", i, kind)
			}
		case CheckRowCount:
			if check.MinRows == nil && check.MaxRows == nil {
				return fmt.Errorf("spec.checks[%d] row_count requires min_rows or max_rows", i)
			}
			if check.MinRows != nil && *check.MinRows < 0 {
				return fmt.Errorf("spec.checks[%d].min_rows must be >= 0", i)
			}
			if check.MaxRows != nil && *check.MaxRows < 0 {
				return fmt.Errorf("spec.checks[%d].max_rows must be >= 0", i)
			}
			if check.MinRows != nil && check.MaxRows != nil && *check.MinRows > *check.MaxRows {
				return fmt.Errorf("spec.checks[%d].min_rows must be <= max_rows", i)
			}
		case CheckAllowedValues:
			if strings.TrimSpace(check.Column) == "" {
				return fmt.Errorf("spec.checks[%d] allowed_values requires column", i)
			}
			if len(check.Allowed) == 0 {
				return fmt.Errorf("spec.checks[%d] allowed_values requires allowed", i)
			}
		default:
			return fmt.Errorf("spec.checks[%d].type unsupported: %q", i, kind)
		}
	}
	return nil
}

// trimNonEmpty trims items and drops blanks and duplicates. Column names
// are case-sensitive, so duplicates are compared exactly.
func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
