package glue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/animus-labs/gluejobs/internal/catalog"
	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/platform/database"
	"github.com/animus-labs/gluejobs/internal/platform/lineageevent"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/animus-labs/gluejobs/internal/platform/runlog"
	"github.com/animus-labs/gluejobs/internal/sink"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestContext(t *testing.T, db *database.DB) (*Context, *objectstore.MemoryStore, *catalog.MemoryCatalog) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	cat := catalog.NewMemoryCatalog()
	opts := Options{
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Store:   store,
		Catalog: cat,
		Now:     func() time.Time { return fixedNow },
		NewID:   func() string { return "run-1" },
	}
	if db != nil {
		opts.Runs = runlog.NewRecorder(db)
		opts.Lineage = lineageevent.NewRecorder(db)
	}
	gc, err := NewContext(opts)
	if err != nil {
		t.Fatalf("NewContext() err=%v", err)
	}
	return gc, store, cat
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, URL: ":memory:", PingTimeout: time.Second, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := runlog.EnsureSchema(ctx, db, db.Dialect); err != nil {
		t.Fatalf("runlog.EnsureSchema() err=%v", err)
	}
	if err := lineageevent.EnsureSchema(ctx, db, db.Dialect); err != nil {
		t.Fatalf("lineageevent.EnsureSchema() err=%v", err)
	}
	return db
}

func put(t *testing.T, store objectstore.Store, bucket, key, body string) {
	t.Helper()
	if err := objectstore.WriteAll(context.Background(), store, objectstore.Location{Bucket: bucket, Key: key}, []byte(body), "text/plain"); err != nil {
		t.Fatalf("WriteAll() err=%v", err)
	}
}

func TestNewContextRequiresStore(t *testing.T) {
	if _, err := NewContext(Options{}); err == nil {
		t.Fatalf("NewContext() expected error")
	}
}

func TestFromCatalogPartitionedCSV(t *testing.T) {
	ctx := context.Background()
	gc, store, cat := newTestContext(t, nil)
	_, err := cat.UpsertTable(ctx, catalog.Table{
		Database:      "sales",
		Name:          "orders",
		Location:      "s3://lake/orders",
		Format:        "csv",
		Columns:       []catalog.Column{{Name: "id", Type: "string"}, {Name: "amount", Type: "double"}},
		PartitionKeys: []catalog.Column{{Name: "year", Type: "int"}},
	})
	if err != nil {
		t.Fatalf("UpsertTable() err=%v", err)
	}
	put(t, store, "lake", "orders/year=2023/part-0.csv", "id,amount\n1,2.5\n2,3\n")
	put(t, store, "lake", "orders/year=2024/part-0.csv", "id,amount\n3,4.5\n")
	put(t, store, "lake", "orders/year=__HIVE_DEFAULT_PARTITION__/part-0.csv", "id,amount\n4,\n")
	put(t, store, "lake", "orders/_SUCCESS", "")
	put(t, store, "lake", "orders/_temporary/part-9.csv", "id,amount\n9,9\n")
	put(t, store, "lake", "orders/.part-0.csv.crc", "junk")

	f, err := gc.FromCatalog(ctx, "sales", "orders")
	if err != nil {
		t.Fatalf("FromCatalog() err=%v", err)
	}
	if got := f.Columns(); !reflect.DeepEqual(got, []string{"id", "amount", "year"}) {
		t.Fatalf("Columns()=%v", got)
	}
	want := []frame.Row{
		{"1", 2.5, int32(2023)},
		{"2", 3.0, int32(2023)},
		{"3", 4.5, int32(2024)},
		{"4", nil, nil},
	}
	if !reflect.DeepEqual(f.Rows(), want) {
		t.Fatalf("Rows()=%#v, want %#v", f.Rows(), want)
	}
}

func TestFromCatalogMissingTable(t *testing.T) {
	gc, _, _ := newTestContext(t, nil)
	if _, err := gc.FromCatalog(context.Background(), "sales", "nope"); !errors.Is(err, catalog.ErrTableNotFound) {
		t.Fatalf("FromCatalog() err=%v", err)
	}
}

func TestFromOptions(t *testing.T) {
	ctx := context.Background()
	gc, store, _ := newTestContext(t, nil)
	put(t, store, "raw", "in/a.csv", "id,name\n1,x\n")
	put(t, store, "raw", "in/b.csv", "id,name,extra\n2,y,z\n")

	single, err := gc.FromOptions(ctx, "s3://raw/in/a.csv", "csv")
	if err != nil {
		t.Fatalf("FromOptions(object) err=%v", err)
	}
	if single.Len() != 1 {
		t.Fatalf("single Len()=%d", single.Len())
	}

	all, err := gc.FromOptions(ctx, "s3://raw/in", "csv")
	if err != nil {
		t.Fatalf("FromOptions(prefix) err=%v", err)
	}
	if all.Len() != 2 || !reflect.DeepEqual(all.Columns(), []string{"id", "name", "extra"}) {
		t.Fatalf("prefix len=%d columns=%v", all.Len(), all.Columns())
	}
	if _, err := gc.FromOptions(ctx, "s3://raw/in", "avro"); err == nil {
		t.Fatalf("FromOptions() expected format error")
	}
}

func TestWriteThenReadThroughCatalog(t *testing.T) {
	ctx := context.Background()
	gc, _, _ := newTestContext(t, nil)
	src, err := frame.New(frame.Schema{
		{Name: "id", Type: frame.TypeString},
		{Name: "value", Type: frame.TypeDouble, Nullable: true},
		{Name: "category", Type: frame.TypeString, Nullable: true},
	}, []frame.Row{{"1", 1.0, "a"}, {"2", 2.0, "b"}, {"3", 3.0, nil}})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if _, err := gc.WriteFrame(ctx, src, sink.Config{
		Path:                "s3://lake/events_processed/",
		Format:              "glueparquet",
		PartitionKeys:       []string{"category"},
		EnableUpdateCatalog: true,
		CatalogDatabase:     "analytics",
		CatalogTable:        "events_processed",
	}); err != nil {
		t.Fatalf("WriteFrame() err=%v", err)
	}

	got, err := gc.FromCatalog(ctx, "analytics", "events_processed")
	if err != nil {
		t.Fatalf("FromCatalog() err=%v", err)
	}
	if got.Len() != src.Len() {
		t.Fatalf("Len()=%d, want %d", got.Len(), src.Len())
	}
	cols := got.Columns()
	sort.Strings(cols)
	if !reflect.DeepEqual(cols, []string{"category", "id", "value"}) {
		t.Fatalf("Columns()=%v", got.Columns())
	}
	nulls := 0
	values, _ := got.Column("category")
	for _, v := range values {
		if v == nil {
			nulls++
		}
	}
	if nulls != 1 {
		t.Fatalf("null categories=%d, want 1", nulls)
	}
}

func countRows(t *testing.T, db *database.DB, query string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), query).Scan(&n); err != nil {
		t.Fatalf("count err=%v", err)
	}
	return n
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	gc, store, _ := newTestContext(t, db)
	put(t, store, "raw", "in/a.csv", "id\n1\n2\n")

	job, err := gc.InitJob(ctx, "nightly", jobparams.New(map[string]string{"JOB_NAME": "nightly"}))
	if err != nil {
		t.Fatalf("InitJob() err=%v", err)
	}
	if job.RunID != "run-1" {
		t.Fatalf("RunID=%q", job.RunID)
	}
	f, err := gc.FromOptions(ctx, "s3://raw/in/a.csv", "csv")
	if err != nil {
		t.Fatalf("FromOptions() err=%v", err)
	}
	if err := gc.WriteObject(ctx, f, "s3://out/a.json", "json", ""); err != nil {
		t.Fatalf("WriteObject() err=%v", err)
	}
	if got := testutil.ToFloat64(job.Metrics.RowsRead); got != 2 {
		t.Fatalf("RowsRead=%v", got)
	}
	if got := testutil.ToFloat64(job.Metrics.ObjectsWritten); got != 1 {
		t.Fatalf("ObjectsWritten=%v", got)
	}

	if err := job.Commit(ctx); err != nil {
		t.Fatalf("Commit() err=%v", err)
	}
	if err := job.Commit(ctx); err != nil {
		t.Fatalf("second Commit() err=%v", err)
	}
	if err := job.Fail(ctx, errors.New("late")); !errors.Is(err, ErrJobCommitted) {
		t.Fatalf("Fail() after commit err=%v", err)
	}

	if n := countRows(t, db, `SELECT COUNT(*) FROM job_run_events WHERE run_id = 'run-1'`); n != 2 {
		t.Fatalf("job_run_events=%d, want 2", n)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM job_run_events WHERE status = 'succeeded'`); n != 1 {
		t.Fatalf("succeeded events=%d, want 1", n)
	}
	events, err := lineageevent.ListRun(ctx, db, db.Dialect, "run-1")
	if err != nil {
		t.Fatalf("ListRun() err=%v", err)
	}
	var edges []string
	for _, e := range events {
		edges = append(edges, e.Edge())
	}
	want := []string{
		"storage_path:s3://raw/in/a.csv -> run:run-1",
		"run:run-1 -> storage_path:s3://out/a.json",
	}
	if !reflect.DeepEqual(edges, want) {
		t.Fatalf("lineage edges=%v, want %v", edges, want)
	}
}

func TestJobFailThenCommit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	gc, _, _ := newTestContext(t, db)
	job, err := gc.InitJob(ctx, "nightly", jobparams.New(nil))
	if err != nil {
		t.Fatalf("InitJob() err=%v", err)
	}
	if err := job.Fail(ctx, errors.New("boom")); err != nil {
		t.Fatalf("Fail() err=%v", err)
	}
	if err := job.Fail(ctx, errors.New("again")); err != nil {
		t.Fatalf("second Fail() err=%v", err)
	}
	if err := job.Commit(ctx); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("Commit() after fail err=%v", err)
	}
	var message string
	if err := db.QueryRowContext(ctx, `SELECT message FROM job_run_events WHERE status = 'failed'`).Scan(&message); err != nil {
		t.Fatalf("select err=%v", err)
	}
	if message != "boom" {
		t.Fatalf("message=%q", message)
	}
	if got := testutil.ToFloat64(job.Metrics.Failed); got != 1 {
		t.Fatalf("Failed gauge=%v", got)
	}
}

func TestInitJobRequiresName(t *testing.T) {
	gc, _, _ := newTestContext(t, nil)
	if _, err := gc.InitJob(context.Background(), " ", jobparams.New(nil)); err == nil {
		t.Fatalf("InitJob() expected error")
	}
}
