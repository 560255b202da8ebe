// Package sink writes frames to object storage as Hive-style partitioned
// datasets and optionally registers the result in the catalog.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/animus-labs/gluejobs/internal/catalog"
	"github.com/animus-labs/gluejobs/internal/codec"
	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/google/uuid"
)

const (
	UpdateInDatabase = "UPDATE_IN_DATABASE"
	UpdateLog        = "LOG"

	// DefaultPartition names the directory for null partition values.
	DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

	OptionCompression    = "compression"
	schemaRegistryPrefix = "schema.registry."
)

var ErrMissingPartitionKeys = errors.New("partition keys not found in frame")

type Config struct {
	Path                string
	Format              string
	Compression         string
	PartitionKeys       []string
	EnableUpdateCatalog bool
	// UpdateBehavior is UPDATE_IN_DATABASE (default) or LOG.
	UpdateBehavior  string
	CatalogDatabase string
	CatalogTable    string
	Options         map[string]string
}

type Result struct {
	Location    string
	Format      string
	Compression string
	Files       []string
	Partitions  []catalog.Partition
	Rows        int
	// Table is set when the catalog was updated in the database.
	Table *catalog.Table
}

type Writer struct {
	store   objectstore.Store
	catalog catalog.Catalog
	logger  *slog.Logger
	newID   func() string
}

func NewWriter(store objectstore.Store, cat catalog.Catalog, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, catalog: cat, logger: logger, newID: uuid.NewString}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return errors.New("sink path is required")
	}
	if !c.EnableUpdateCatalog {
		return nil
	}
	switch c.updateBehavior() {
	case UpdateInDatabase, UpdateLog:
	default:
		return fmt.Errorf("unsupported update behavior %q", c.UpdateBehavior)
	}
	if strings.TrimSpace(c.CatalogDatabase) == "" || strings.TrimSpace(c.CatalogTable) == "" {
		return errors.New("catalog database and table are required to update the catalog")
	}
	return nil
}

func (c Config) updateBehavior() string {
	b := strings.ToUpper(strings.TrimSpace(c.UpdateBehavior))
	if b == "" {
		return UpdateInDatabase
	}
	return b
}

func (c Config) compression(def string) (string, error) {
	value := c.Compression
	if strings.TrimSpace(value) == "" {
		value = c.Options[OptionCompression]
	}
	return codec.NormalizeCompression(value, def)
}

// SchemaRegistryOptions returns the schema.registry.* options.
func (c Config) SchemaRegistryOptions() map[string]string {
	out := make(map[string]string)
	for k, v := range c.Options {
		if strings.HasPrefix(k, schemaRegistryPrefix) {
			out[k] = v
		}
	}
	return out
}

type partitionGroup struct {
	values []string
	dir    string
	rows   []frame.Row
}

// Write encodes f under cfg.Path. Partition columns become key=value
// directories and are left out of the data files.
func (w *Writer) Write(ctx context.Context, f *frame.Frame, cfg Config) (Result, error) {
	if w == nil || w.store == nil {
		return Result{}, errors.New("sink writer not initialized")
	}
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	root, err := objectstore.ParseURI(cfg.Path)
	if err != nil {
		return Result{}, err
	}
	enc, err := codec.Lookup(cfg.Format)
	if err != nil {
		return Result{}, err
	}
	compression, err := cfg.compression(enc.DefaultCompression())
	if err != nil {
		return Result{}, err
	}

	schema := f.Schema()
	missing := make([]string, 0)
	keyIdx := make([]int, len(cfg.PartitionKeys))
	for i, key := range cfg.PartitionKeys {
		keyIdx[i] = schema.Index(key)
		if keyIdx[i] < 0 {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrMissingPartitionKeys, strings.Join(missing, ", "))
	}
	data := f.Drop(cfg.PartitionKeys...)
	if len(data.Columns()) == 0 {
		return Result{}, errors.New("frame has no data columns to write")
	}
	dataIdx := make([]int, 0, len(data.Columns()))
	for _, name := range data.Columns() {
		dataIdx = append(dataIdx, schema.Index(name))
	}

	groups := groupRows(f, cfg.PartitionKeys, keyIdx, dataIdx)
	if len(groups) == 0 && len(cfg.PartitionKeys) == 0 {
		groups = []*partitionGroup{{}}
	}

	writeID := w.newID()
	result := Result{
		Location:    root.Join("/").String(),
		Format:      enc.Name(),
		Compression: compression,
		Rows:        f.Len(),
	}
	for i, g := range groups {
		part, err := frame.New(data.Schema(), g.rows)
		if err != nil {
			return Result{}, err
		}
		var buf bytes.Buffer
		if err := enc.Encode(&buf, part, codec.Options{Compression: compression}); err != nil {
			return Result{}, fmt.Errorf("encode %s: %w", enc.Name(), err)
		}
		name := fmt.Sprintf("part-%05d-%s%s", i, writeID, enc.Extension(compression))
		loc := root.Join(g.dir, name)
		if g.dir == "" {
			loc = root.Join(name)
		}
		if err := objectstore.WriteAll(ctx, w.store, loc, buf.Bytes(), enc.ContentType()); err != nil {
			return Result{}, err
		}
		result.Files = append(result.Files, loc.String())
		if len(cfg.PartitionKeys) > 0 {
			result.Partitions = append(result.Partitions, catalog.Partition{
				Values:   g.values,
				Location: root.Join(g.dir + "/").String(),
			})
		}
	}
	w.logger.Info("sink write complete",
		"path", result.Location,
		"format", result.Format,
		"compression", compression,
		"rows", result.Rows,
		"files", len(result.Files),
		"partitions", len(result.Partitions),
	)

	if cfg.EnableUpdateCatalog {
		table, err := w.updateCatalog(ctx, cfg, result, data.Schema(), schema)
		if err != nil {
			return Result{}, err
		}
		result.Table = table
	}
	return result, nil
}

func groupRows(f *frame.Frame, keys []string, keyIdx, dataIdx []int) []*partitionGroup {
	byDir := make(map[string]*partitionGroup)
	order := make([]*partitionGroup, 0)
	for i := 0; i < f.Len(); i++ {
		src := f.Row(i)
		values := make([]string, len(keys))
		segments := make([]string, len(keys))
		for j, idx := range keyIdx {
			values[j] = partitionValue(src[idx])
			segments[j] = keys[j] + "=" + escapePartitionValue(values[j])
		}
		dir := strings.Join(segments, "/")
		g, ok := byDir[dir]
		if !ok {
			g = &partitionGroup{values: values, dir: dir}
			byDir[dir] = g
			order = append(order, g)
		}
		row := make(frame.Row, len(dataIdx))
		for j, idx := range dataIdx {
			row[j] = src[idx]
		}
		g.rows = append(g.rows, row)
	}
	if len(keys) > 0 {
		sort.SliceStable(order, func(a, b int) bool { return order[a].dir < order[b].dir })
	}
	return order
}

func partitionValue(v any) string {
	if v == nil {
		return DefaultPartition
	}
	s := frame.FormatValue(v)
	if s == "" {
		return DefaultPartition
	}
	return s
}

// escapePartitionValue percent-encodes the characters Hive escapes in
// partition directory names.
func escapePartitionValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < 0x20 || c == 0x7f || strings.IndexByte("\"#%'*/:=?\\{[]^", c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UnescapePartitionValue reverses escapePartitionValue.
func UnescapePartitionValue(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '%' && i+2 < len(v) {
			if c, err := strconv.ParseUint(v[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += 2
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func (w *Writer) updateCatalog(ctx context.Context, cfg Config, result Result, dataSchema, fullSchema frame.Schema) (*catalog.Table, error) {
	keys := make([]catalog.Column, len(cfg.PartitionKeys))
	for i, key := range cfg.PartitionKeys {
		field, _ := fullSchema.Field(key)
		keys[i] = catalog.Column{Name: key, Type: string(field.Type)}
	}
	params := map[string]string{"classification": result.Format}
	if result.Compression != codec.CompressionNone {
		params["compressionType"] = result.Compression
	}
	for k, v := range cfg.SchemaRegistryOptions() {
		params[k] = v
	}
	table := catalog.Table{
		Database:      cfg.CatalogDatabase,
		Name:          cfg.CatalogTable,
		Location:      result.Location,
		Format:        result.Format,
		Compression:   result.Compression,
		Columns:       catalog.ColumnsFromSchema(dataSchema),
		PartitionKeys: keys,
		Parameters:    params,
	}

	if cfg.updateBehavior() == UpdateLog {
		w.logger.Info("catalog update skipped",
			"behavior", UpdateLog,
			"database", table.Database,
			"table", table.Name,
			"location", table.Location,
			"columns", len(table.Columns),
			"partitions", len(result.Partitions),
		)
		return nil, nil
	}
	if w.catalog == nil {
		return nil, errors.New("catalog update requested but no catalog is configured")
	}
	stored, err := w.catalog.UpsertTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("update catalog table %s.%s: %w", table.Database, table.Name, err)
	}
	if len(result.Partitions) > 0 {
		if err := w.catalog.AddPartitions(ctx, stored.Database, stored.Name, result.Partitions); err != nil {
			return nil, fmt.Errorf("update catalog partitions %s.%s: %w", stored.Database, stored.Name, err)
		}
	}
	w.logger.Info("catalog updated",
		"database", stored.Database,
		"table", stored.Name,
		"partitions", len(result.Partitions),
	)
	return &stored, nil
}
