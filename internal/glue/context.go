// Package glue is the runtime a job script talks to: it reads frames through
// the catalog or straight from storage, writes them through the sink, and
// tracks the run lifecycle.
package glue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/gluejobs/internal/catalog"
	"github.com/animus-labs/gluejobs/internal/codec"
	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/platform/lineageevent"
	"github.com/animus-labs/gluejobs/internal/platform/metrics"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/animus-labs/gluejobs/internal/platform/runlog"
	"github.com/animus-labs/gluejobs/internal/sink"
	"github.com/google/uuid"
)

type Options struct {
	Logger  *slog.Logger
	Store   objectstore.Store
	Catalog catalog.Catalog
	// Runs and Lineage are optional; nil recorders drop events.
	Runs    *runlog.Recorder
	Lineage *lineageevent.Recorder
	Pusher  metrics.Pusher
	Now     func() time.Time
	NewID   func() string
}

type Context struct {
	logger  *slog.Logger
	store   objectstore.Store
	catalog catalog.Catalog
	writer  *sink.Writer
	runs    *runlog.Recorder
	lineage *lineageevent.Recorder
	pusher  metrics.Pusher
	now     func() time.Time
	newID   func() string

	job *Job
}

func NewContext(opts Options) (*Context, error) {
	if opts.Store == nil {
		return nil, errors.New("object store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Context{
		logger:  opts.Logger,
		store:   opts.Store,
		catalog: opts.Catalog,
		writer:  sink.NewWriter(opts.Store, opts.Catalog, opts.Logger),
		runs:    opts.Runs,
		lineage: opts.Lineage,
		pusher:  opts.Pusher,
		now:     opts.Now,
		newID:   opts.NewID,
	}, nil
}

func (c *Context) Logger() *slog.Logger     { return c.logger }
func (c *Context) Store() objectstore.Store { return c.store }
func (c *Context) Catalog() catalog.Catalog { return c.catalog }
func (c *Context) Now() time.Time           { return c.now() }

// FromCatalog reads every data file under the table's location. Values from
// key=value directories fill the table's partition columns.
func (c *Context) FromCatalog(ctx context.Context, database, table string) (*frame.Frame, error) {
	if c.catalog == nil {
		return nil, errors.New("no catalog configured")
	}
	t, err := c.catalog.GetTable(ctx, database, table)
	if err != nil {
		return nil, err
	}
	enc, err := codec.Lookup(t.Format)
	if err != nil {
		return nil, fmt.Errorf("table %s.%s: %w", t.Database, t.Name, err)
	}
	root, err := objectstore.ParseURI(t.Location)
	if err != nil {
		return nil, fmt.Errorf("table %s.%s: %w", t.Database, t.Name, err)
	}

	frames, objects, err := c.readPrefix(ctx, root, enc, t.Schema(), t.PartitionKeys)
	if err != nil {
		return nil, fmt.Errorf("read table %s.%s: %w", t.Database, t.Name, err)
	}
	out, err := frame.Concat(t.Schema(), frames...)
	if err != nil {
		return nil, err
	}
	c.logger.Info("catalog table read",
		"database", t.Database,
		"table", t.Name,
		"location", t.Location,
		"objects", objects,
		"rows", out.Len(),
	)
	if err := c.trackRead(ctx, lineageevent.DatasetCatalogTable, t.Database+"."+t.Name, out.Len()); err != nil {
		return nil, err
	}
	return out, nil
}

// FromOptions reads a storage path directly. A path naming an existing
// object reads just that object; otherwise it is treated as a prefix.
func (c *Context) FromOptions(ctx context.Context, path, format string) (*frame.Frame, error) {
	enc, err := codec.Lookup(format)
	if err != nil {
		return nil, err
	}
	loc, err := objectstore.ParseURI(path)
	if err != nil {
		return nil, err
	}

	var frames []*frame.Frame
	objects := 0
	single := false
	if loc.Key != "" && !strings.HasSuffix(loc.Key, "/") {
		if _, err := c.store.Stat(ctx, loc.Bucket, loc.Key); err == nil {
			single = true
		} else if !errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("stat %s: %w", loc, err)
		}
	}
	if single {
		f, err := c.readObject(ctx, loc, enc, nil)
		if err != nil {
			return nil, err
		}
		frames, objects = []*frame.Frame{f}, 1
	} else {
		frames, objects, err = c.readPrefix(ctx, loc, enc, nil, nil)
		if err != nil {
			return nil, err
		}
	}

	out, err := frame.Concat(nil, frames...)
	if err != nil {
		return nil, err
	}
	c.logger.Info("storage path read", "path", loc.String(), "format", enc.Name(), "objects", objects, "rows", out.Len())
	if err := c.trackRead(ctx, lineageevent.DatasetStoragePath, loc.String(), out.Len()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Context) readPrefix(ctx context.Context, root objectstore.Location, enc codec.Codec, hint frame.Schema, partitionKeys []catalog.Column) ([]*frame.Frame, int, error) {
	prefix := root.Prefix()
	infos, err := c.store.List(ctx, root.Bucket, prefix)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", root, err)
	}
	frames := make([]*frame.Frame, 0, len(infos))
	for _, info := range infos {
		rel := strings.TrimPrefix(info.Key, prefix)
		if info.Size == 0 || hiddenPath(rel) {
			continue
		}
		f, err := c.readObject(ctx, objectstore.Location{Scheme: root.Scheme, Bucket: root.Bucket, Key: info.Key}, enc, hint)
		if err != nil {
			return nil, 0, err
		}
		if len(partitionKeys) > 0 {
			if f, err = withPartitionValues(f, rel, partitionKeys); err != nil {
				return nil, 0, fmt.Errorf("%s: %w", info.Key, err)
			}
		}
		frames = append(frames, f)
	}
	return frames, len(frames), nil
}

func (c *Context) readObject(ctx context.Context, loc objectstore.Location, enc codec.Codec, hint frame.Schema) (*frame.Frame, error) {
	data, err := objectstore.ReadAll(ctx, c.store, loc)
	if err != nil {
		return nil, err
	}
	f, err := enc.Decode(data, hint)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", loc, err)
	}
	return f, nil
}

// hiddenPath reports objects that readers skip: any path element starting
// with "_" or ".", and directory markers.
func hiddenPath(rel string) bool {
	if rel == "" || strings.HasSuffix(rel, "/") {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, "_") || strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func withPartitionValues(f *frame.Frame, rel string, keys []catalog.Column) (*frame.Frame, error) {
	values := make(map[string]string)
	dirs := strings.Split(rel, "/")
	for _, dir := range dirs[:len(dirs)-1] {
		if k, v, ok := strings.Cut(dir, "="); ok {
			values[k] = sink.UnescapePartitionValue(v)
		}
	}
	for _, key := range keys {
		raw, ok := values[key.Name]
		var v any
		if ok && raw != sink.DefaultPartition {
			v = raw
		}
		typ, err := frame.ParseType(key.Type)
		if err != nil {
			typ = frame.TypeString
		}
		if f, err = f.WithColumn(key.Name, typ, frame.Lit(v)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteFrame writes f through the sink.
func (c *Context) WriteFrame(ctx context.Context, f *frame.Frame, cfg sink.Config) (sink.Result, error) {
	res, err := c.writer.Write(ctx, f, cfg)
	if err != nil {
		return sink.Result{}, err
	}
	if err := c.trackWrite(ctx, lineageevent.DatasetStoragePath, res.Location, res.Rows, len(res.Files)); err != nil {
		return sink.Result{}, err
	}
	if res.Table != nil {
		err := c.trackLineage(ctx, lineageevent.Event{
			Direction:   lineageevent.DirectionWrite,
			DatasetType: lineageevent.DatasetCatalogTable,
			Dataset:     res.Table.Database + "." + res.Table.Name,
			Rows:        int64(res.Rows),
			Metadata:    map[string]any{"location": res.Location, "partitions": len(res.Partitions)},
		})
		if err != nil {
			return sink.Result{}, err
		}
	}
	return res, nil
}

// WriteObject encodes f as a single object at uri, for jobs that name their
// output files themselves.
func (c *Context) WriteObject(ctx context.Context, f *frame.Frame, uri, format, compression string) error {
	enc, err := codec.Lookup(format)
	if err != nil {
		return err
	}
	loc, err := objectstore.ParseURI(uri)
	if err != nil {
		return err
	}
	if loc.Key == "" || strings.HasSuffix(loc.Key, "/") {
		return fmt.Errorf("%s does not name an object", loc)
	}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, f, codec.Options{Compression: compression}); err != nil {
		return fmt.Errorf("encode %s: %w", enc.Name(), err)
	}
	if err := objectstore.WriteAll(ctx, c.store, loc, buf.Bytes(), enc.ContentType()); err != nil {
		return err
	}
	c.logger.Info("object written", "path", loc.String(), "format", enc.Name(), "rows", f.Len(), "bytes", buf.Len())
	return c.trackWrite(ctx, lineageevent.DatasetStoragePath, loc.String(), f.Len(), 1)
}

func (c *Context) trackRead(ctx context.Context, datasetType, dataset string, rows int) error {
	if c.job != nil {
		c.job.Metrics.RowsRead.Add(float64(rows))
	}
	return c.trackLineage(ctx, lineageevent.Event{
		Direction:   lineageevent.DirectionRead,
		DatasetType: datasetType,
		Dataset:     dataset,
		Rows:        int64(rows),
	})
}

func (c *Context) trackWrite(ctx context.Context, datasetType, dataset string, rows, objects int) error {
	if c.job != nil {
		c.job.Metrics.RowsWritten.Add(float64(rows))
		c.job.Metrics.ObjectsWritten.Add(float64(objects))
	}
	return c.trackLineage(ctx, lineageevent.Event{
		Direction:   lineageevent.DirectionWrite,
		DatasetType: datasetType,
		Dataset:     dataset,
		Rows:        int64(rows),
		Objects:     int64(objects),
	})
}

func (c *Context) trackLineage(ctx context.Context, event lineageevent.Event) error {
	if c.job == nil || c.lineage == nil {
		return nil
	}
	event.OccurredAt = c.now()
	event.JobName = c.job.Name
	event.RunID = c.job.RunID
	if err := c.lineage.Record(ctx, event); err != nil {
		return fmt.Errorf("record lineage: %w", err)
	}
	return nil
}
