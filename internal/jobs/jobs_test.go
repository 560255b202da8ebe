package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/gluejobs/internal/catalog"
	"github.com/animus-labs/gluejobs/internal/codec"
	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/jobutil"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/animus-labs/gluejobs/internal/quality"
	"github.com/animus-labs/gluejobs/internal/schema"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	rt      Runtime
	store   *objectstore.MemoryStore
	catalog *catalog.MemoryCatalog
	out     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := objectstore.NewMemoryStore()
	cat := catalog.NewMemoryCatalog()
	gc, err := glue.NewContext(glue.Options{
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Store:   store,
		Catalog: cat,
		Now:     func() time.Time { return testNow },
		NewID:   func() string { return "run-1" },
	})
	if err != nil {
		t.Fatalf("NewContext() err=%v", err)
	}
	out := &bytes.Buffer{}
	return &harness{
		rt: Runtime{
			Glue:   gc,
			Status: &jobutil.StatusLogger{Out: out, Now: func() time.Time { return testNow }},
			Out:    out,
		},
		store:   store,
		catalog: cat,
		out:     out,
	}
}

func (h *harness) put(t *testing.T, uri, body string) {
	t.Helper()
	loc, err := objectstore.ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI() err=%v", err)
	}
	if err := objectstore.WriteAll(context.Background(), h.store, loc, []byte(body), "text/plain"); err != nil {
		t.Fatalf("WriteAll() err=%v", err)
	}
}

func (h *harness) get(t *testing.T, uri string) []byte {
	t.Helper()
	loc, err := objectstore.ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI() err=%v", err)
	}
	data, err := objectstore.ReadAll(context.Background(), h.store, loc)
	if err != nil {
		t.Fatalf("ReadAll(%s) err=%v", uri, err)
	}
	return data
}

func (h *harness) keys(t *testing.T, bucket, prefix string) []string {
	t.Helper()
	infos, err := h.store.List(context.Background(), bucket, prefix)
	if err != nil {
		t.Fatalf("List() err=%v", err)
	}
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Key
	}
	return out
}

func (h *harness) table(t *testing.T, tb catalog.Table) {
	t.Helper()
	if _, err := h.catalog.UpsertTable(context.Background(), tb); err != nil {
		t.Fatalf("UpsertTable() err=%v", err)
	}
}

func run(t *testing.T, h *harness, name string, args ...string) error {
	t.Helper()
	def, ok := Lookup(name)
	if !ok {
		t.Fatalf("Lookup(%q) not found", name)
	}
	params, err := jobparams.Resolve(args, def.Required)
	if err != nil {
		t.Fatalf("Resolve() err=%v", err)
	}
	return def.Run(context.Background(), h.rt, params)
}

func TestRegistry(t *testing.T) {
	names := make([]string, 0)
	for _, def := range All() {
		names = append(names, def.Name)
		if def.Run == nil || len(def.Required) == 0 || def.Required[0] != "JOB_NAME" {
			t.Fatalf("definition %q incomplete", def.Name)
		}
	}
	want := []string{"process-data", "sample-etl", "schema-aware-etl", "simple-job"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("All()=%v, want %v", names, want)
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatalf("Lookup(nope) found a job")
	}
}

func TestSimpleJob(t *testing.T) {
	h := newHarness(t)
	if err := run(t, h, "simple-job", "--JOB_NAME", "simple"); err != nil {
		t.Fatalf("simple-job err=%v", err)
	}
	for _, want := range []string{"name", "age", "John", "Alice", "Bob", "35"} {
		if !strings.Contains(h.out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, h.out.String())
		}
	}
}

func TestSampleETL(t *testing.T) {
	h := newHarness(t)
	h.table(t, catalog.Table{
		Database: "raw",
		Name:     "input",
		Location: "s3://lake/input/",
		Format:   "csv",
		Columns: []catalog.Column{
			{Name: "column1", Type: "string"},
			{Name: "column2", Type: "string"},
			{Name: "column3", Type: "string"},
			{Name: "ignored", Type: "string"},
		},
	})
	h.put(t, "s3://lake/input/data.csv", "column1,column2,column3,ignored\na,1,1.5,x\nb,two,2,y\n")

	err := run(t, h, "sample-etl", "--JOB_NAME", "sample", "--database_name", "raw", "--table_name", "input", "--output_path", "s3://lake/output/")
	if err != nil {
		t.Fatalf("sample-etl err=%v", err)
	}
	keys := h.keys(t, "lake", "output/")
	if len(keys) != 1 || !strings.HasSuffix(keys[0], ".snappy.parquet") {
		t.Fatalf("output objects=%v", keys)
	}
	out, err := codec.Parquet{}.Decode(h.get(t, "s3://lake/"+keys[0]), nil)
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	want := []frame.Row{{"a", int32(1), 1.5}, {"b", nil, 2.0}}
	if !reflect.DeepEqual(out.Columns(), []string{"column1", "column2", "column3"}) || !reflect.DeepEqual(out.Rows(), want) {
		t.Fatalf("output columns=%v rows=%#v", out.Columns(), out.Rows())
	}
}

func TestSampleETLMissingParamFailsBeforeRun(t *testing.T) {
	_, err := jobparams.Resolve([]string{"--JOB_NAME", "sample"}, sampleETL.Required)
	var missing *jobparams.MissingParamsError
	if !errors.As(err, &missing) {
		t.Fatalf("Resolve() err=%v", err)
	}
	if !reflect.DeepEqual(missing.Missing, []string{"database_name", "table_name", "output_path"}) {
		t.Fatalf("Missing=%v", missing.Missing)
	}
}

func eventsTable(columns ...string) catalog.Table {
	cols := make([]catalog.Column, 0, len(columns))
	for _, c := range columns {
		name, typ, _ := strings.Cut(c, ":")
		cols = append(cols, catalog.Column{Name: name, Type: typ})
	}
	return catalog.Table{Database: "analytics", Name: "events", Location: "s3://lake/events/", Format: "csv", Columns: cols}
}

func schemaAwareArgs(extra ...string) []string {
	return append([]string{
		"--JOB_NAME", "schema-aware",
		"--database_name", "analytics",
		"--table_name", "events",
		"--output_path", "s3://lake/events_processed/",
	}, extra...)
}

func TestSchemaAwareETL(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.table(t, eventsTable("id:string", "value:double", "category:string"))
	h.put(t, "s3://lake/events/part-0.csv", "id,value,category\n1,1.5,a\n2,2.5,b\n3,,a\n")
	h.put(t, "s3://cfg/etl.json", `{"quality": {"enforce": true, "checks": [{"id": "ids", "type": "non_null_columns", "columns": ["id"]}]}}`)

	args := schemaAwareArgs(
		"--enable_schema_validation", "true",
		"--schema_registry_name", "registry",
		"--schema_name", "events",
		"--config_path", "s3://cfg/etl.json",
	)
	if err := run(t, h, "schema-aware-etl", args...); err != nil {
		t.Fatalf("schema-aware-etl err=%v", err)
	}

	status := h.out.String()
	for _, want := range []string{
		"[2024-05-01 12:00:00] Job schema-aware - Status: STARTED",
		"Status: INFO - Schema validation passed successfully",
		"Status: COMPLETED",
	} {
		if !strings.Contains(status, want) {
			t.Fatalf("status output missing %q:\n%s", want, status)
		}
	}

	table, err := h.catalog.GetTable(ctx, "analytics", "events_processed")
	if err != nil {
		t.Fatalf("GetTable() err=%v", err)
	}
	if table.Parameters["schema.registry.name"] != "registry" || !reflect.DeepEqual(table.PartitionKeyNames(), []string{"category"}) {
		t.Fatalf("table=%+v", table)
	}
	parts, err := h.catalog.ListPartitions(ctx, "analytics", "events_processed")
	if err != nil || len(parts) != 2 {
		t.Fatalf("ListPartitions()=%v err=%v", parts, err)
	}

	var report quality.Report
	if err := json.Unmarshal(h.get(t, "s3://lake/events_processed/_quality/run-1.json"), &report); err != nil {
		t.Fatalf("report err=%v", err)
	}
	if report.Status != quality.StatusPass || report.Dataset != "analytics.events" {
		t.Fatalf("report=%+v", report)
	}

	processed, err := h.rt.Glue.FromCatalog(ctx, "analytics", "events_processed")
	if err != nil {
		t.Fatalf("FromCatalog() err=%v", err)
	}
	if processed.Len() != 3 {
		t.Fatalf("processed rows=%d", processed.Len())
	}
	if err := schema.ValidateFrame(processed, processedSchema); err != nil {
		t.Fatalf("processed schema err=%v", err)
	}
	stamps, _ := processed.Column("timestamp")
	for _, v := range stamps {
		if v != testNow.Unix() {
			t.Fatalf("timestamp=%#v, want %d", v, testNow.Unix())
		}
	}
}

func TestSchemaAwareETLValidationFailure(t *testing.T) {
	h := newHarness(t)
	h.table(t, eventsTable("id:string", "category:string"))
	h.put(t, "s3://lake/events/part-0.csv", "id,category\n1,a\n")

	err := run(t, h, "schema-aware-etl", schemaAwareArgs("--enable_schema_validation", "TRUE")...)
	var missing *schema.MissingColumnsError
	if !errors.As(err, &missing) || !reflect.DeepEqual(missing.Missing, []string{"value"}) {
		t.Fatalf("schema-aware-etl err=%v", err)
	}
	if keys := h.keys(t, "lake", "events_processed/"); len(keys) != 0 {
		t.Fatalf("unexpected output %v", keys)
	}
}

func TestSchemaAwareETLValidationDisabled(t *testing.T) {
	h := newHarness(t)
	h.table(t, eventsTable("id:string", "category:string"))
	h.put(t, "s3://lake/events/part-0.csv", "id,category\n1,a\n")
	if err := run(t, h, "schema-aware-etl", schemaAwareArgs("--enable_schema_validation", "false")...); err != nil {
		t.Fatalf("schema-aware-etl err=%v", err)
	}
}

func TestSchemaAwareETLQualityEnforced(t *testing.T) {
	h := newHarness(t)
	h.table(t, eventsTable("id:string", "value:double", "category:string"))
	h.put(t, "s3://lake/events/part-0.csv", "id,value,category\n1,1,a\n2,2,z\n")
	h.put(t, "s3://cfg/etl.yaml", "quality:\n  enforce: true\n  checks:\n    - id: known_categories\n      type: allowed_values\n      column: category\n      allowed: [a, b]\n")

	err := run(t, h, "schema-aware-etl", schemaAwareArgs("--config_path", "s3://cfg/etl.yaml")...)
	if !errors.Is(err, ErrQualityFailed) {
		t.Fatalf("schema-aware-etl err=%v, want ErrQualityFailed", err)
	}
	keys := h.keys(t, "lake", "events_processed/")
	if !reflect.DeepEqual(keys, []string{"events_processed/_quality/run-1.json"}) {
		t.Fatalf("objects=%v", keys)
	}
}

func TestProcessData(t *testing.T) {
	h := newHarness(t)
	h.put(t, "s3://raw/incoming/a.csv", "id,name\n1,x\n2,y\n")
	h.put(t, "s3://raw/incoming/empty.csv", "id,name\n")
	h.put(t, "s3://raw/incoming/", "")

	err := run(t, h, "process-data", "--JOB_NAME", "pyshell", "--input_path", "s3://raw/incoming/", "--output_path", "s3://curated/processed/")
	if err != nil {
		t.Fatalf("process-data err=%v", err)
	}
	if keys := h.keys(t, "curated", ""); !reflect.DeepEqual(keys, []string{"processed/processed_a.csv"}) {
		t.Fatalf("output objects=%v", keys)
	}
	out, err := codec.CSV{}.Decode(h.get(t, "s3://curated/processed/processed_a.csv"), nil)
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	if !reflect.DeepEqual(out.Columns(), []string{"id", "name", "processed", "timestamp"}) || out.Len() != 2 {
		t.Fatalf("output columns=%v len=%d", out.Columns(), out.Len())
	}
	if got := out.Row(0)[3]; got != "2024-05-01T12:00:00.000000" {
		t.Fatalf("timestamp=%#v", got)
	}
	if !strings.Contains(h.out.String(), "Saved processed file to s3://curated/processed/processed_a.csv") {
		t.Fatalf("status output:\n%s", h.out.String())
	}
}

func TestProcessDataBadInputPath(t *testing.T) {
	h := newHarness(t)
	err := run(t, h, "process-data", "--JOB_NAME", "pyshell", "--input_path", "/local/dir", "--output_path", "s3://curated/")
	if err == nil {
		t.Fatalf("process-data expected error")
	}
}

func TestJobNamesSorted(t *testing.T) {
	names := make([]string, 0)
	for _, def := range All() {
		names = append(names, def.Name)
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("All() not sorted: %v", names)
	}
}
