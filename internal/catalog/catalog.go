// Package catalog is the table registry jobs read from and sinks update: a
// table names a storage location, a file format and a column list, and may be
// split into Hive-style partitions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/animus-labs/gluejobs/internal/frame"
)

var ErrTableNotFound = errors.New("table not found")

type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

type Table struct {
	Database      string            `json:"database" yaml:"database"`
	Name          string            `json:"name" yaml:"name"`
	Location      string            `json:"location" yaml:"location"`
	Format        string            `json:"format" yaml:"format"`
	Compression   string            `json:"compression,omitempty" yaml:"compression,omitempty"`
	Columns       []Column          `json:"columns" yaml:"columns"`
	PartitionKeys []Column          `json:"partition_keys,omitempty" yaml:"partition_keys,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	CreatedAt     time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" yaml:"updated_at"`
}

// Partition is one value combination of a table's partition keys, in key
// order, and the prefix holding its files.
type Partition struct {
	Values   []string `json:"values"`
	Location string   `json:"location"`
}

type Catalog interface {
	GetTable(ctx context.Context, database, name string) (Table, error)
	ListTables(ctx context.Context, database string) ([]Table, error)
	// UpsertTable creates the table or replaces its definition, keeping the
	// original creation time.
	UpsertTable(ctx context.Context, table Table) (Table, error)
	// AddPartitions registers partitions of an existing table. Re-adding a
	// known partition updates its location.
	AddPartitions(ctx context.Context, database, name string, partitions []Partition) error
	ListPartitions(ctx context.Context, database, name string) ([]Partition, error)
}

// NormalizeName trims and lower-cases database and table names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (t Table) Validate() error {
	if NormalizeName(t.Database) == "" {
		return errors.New("database is required")
	}
	if NormalizeName(t.Name) == "" {
		return errors.New("table name is required")
	}
	if strings.TrimSpace(t.Location) == "" {
		return errors.New("location is required")
	}
	seen := make(map[string]struct{}, len(t.Columns)+len(t.PartitionKeys))
	for _, c := range append(append([]Column{}, t.Columns...), t.PartitionKeys...) {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return errors.New("column name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
		if c.Type != "" {
			if _, err := frame.ParseType(c.Type); err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
		}
	}
	return nil
}

// Schema is the table's data columns followed by its partition keys. Columns
// without a known type read as strings.
func (t Table) Schema() frame.Schema {
	out := make(frame.Schema, 0, len(t.Columns)+len(t.PartitionKeys))
	for _, c := range append(append([]Column{}, t.Columns...), t.PartitionKeys...) {
		typ, err := frame.ParseType(c.Type)
		if err != nil {
			typ = frame.TypeString
		}
		out = append(out, frame.Field{Name: c.Name, Type: typ, Nullable: true})
	}
	return out
}

// PartitionKeyNames lists the partition key names in order.
func (t Table) PartitionKeyNames() []string {
	out := make([]string, len(t.PartitionKeys))
	for i, c := range t.PartitionKeys {
		out[i] = c.Name
	}
	return out
}

// ColumnsFromSchema converts a frame schema to catalog columns.
func ColumnsFromSchema(schema frame.Schema) []Column {
	out := make([]Column, len(schema))
	for i, f := range schema {
		out[i] = Column{Name: f.Name, Type: string(f.Type)}
	}
	return out
}

func normalizeTable(t Table) Table {
	t.Database = NormalizeName(t.Database)
	t.Name = NormalizeName(t.Name)
	t.Location = strings.TrimSpace(t.Location)
	t.Format = strings.ToLower(strings.TrimSpace(t.Format))
	t.Columns = append([]Column(nil), t.Columns...)
	t.PartitionKeys = append([]Column(nil), t.PartitionKeys...)
	params := make(map[string]string, len(t.Parameters))
	for k, v := range t.Parameters {
		params[k] = v
	}
	t.Parameters = params
	return t
}

func partitionKey(values []string) string {
	return strings.Join(values, "\x00")
}

func sortPartitions(parts []Partition) {
	sort.Slice(parts, func(i, j int) bool {
		return partitionKey(parts[i].Values) < partitionKey(parts[j].Values)
	})
}

func validatePartitions(t Table, partitions []Partition) error {
	for _, p := range partitions {
		if len(p.Values) != len(t.PartitionKeys) {
			return fmt.Errorf("partition %v: expected %d values for table %s.%s", p.Values, len(t.PartitionKeys), t.Database, t.Name)
		}
		if strings.TrimSpace(p.Location) == "" {
			return fmt.Errorf("partition %v: location is required", p.Values)
		}
	}
	return nil
}
