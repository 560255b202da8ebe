package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryCatalog keeps tables in process memory.
type MemoryCatalog struct {
	mu         sync.RWMutex
	now        func() time.Time
	tables     map[string]Table
	partitions map[string]map[string]Partition
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		now:        func() time.Time { return time.Now().UTC() },
		tables:     make(map[string]Table),
		partitions: make(map[string]map[string]Partition),
	}
}

func tableKey(database, name string) string {
	return NormalizeName(database) + "." + NormalizeName(name)
}

func (c *MemoryCatalog) GetTable(_ context.Context, database, name string) (Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableKey(database, name)]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s.%s", ErrTableNotFound, database, name)
	}
	return normalizeTable(t), nil
}

func (c *MemoryCatalog) ListTables(_ context.Context, database string) ([]Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	db := NormalizeName(database)
	out := make([]Table, 0)
	for _, t := range c.tables {
		if db == "" || t.Database == db {
			out = append(out, normalizeTable(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return tableKey(out[i].Database, out[i].Name) < tableKey(out[j].Database, out[j].Name)
	})
	return out, nil
}

func (c *MemoryCatalog) UpsertTable(_ context.Context, table Table) (Table, error) {
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	table = normalizeTable(table)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	key := tableKey(table.Database, table.Name)
	table.CreatedAt = now
	if existing, ok := c.tables[key]; ok {
		table.CreatedAt = existing.CreatedAt
	}
	table.UpdatedAt = now
	c.tables[key] = table
	return normalizeTable(table), nil
}

func (c *MemoryCatalog) AddPartitions(_ context.Context, database, name string, partitions []Partition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tableKey(database, name)
	t, ok := c.tables[key]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrTableNotFound, database, name)
	}
	if err := validatePartitions(t, partitions); err != nil {
		return err
	}
	parts := c.partitions[key]
	if parts == nil {
		parts = make(map[string]Partition)
		c.partitions[key] = parts
	}
	for _, p := range partitions {
		parts[partitionKey(p.Values)] = Partition{Values: append([]string(nil), p.Values...), Location: p.Location}
	}
	return nil
}

func (c *MemoryCatalog) ListPartitions(_ context.Context, database, name string) ([]Partition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key := tableKey(database, name)
	if _, ok := c.tables[key]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, database, name)
	}
	out := make([]Partition, 0, len(c.partitions[key]))
	for _, p := range c.partitions[key] {
		out = append(out, Partition{Values: append([]string(nil), p.Values...), Location: p.Location})
	}
	sortPartitions(out)
	return out, nil
}
