package lineageevent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/animus-labs/gluejobs/internal/platform/database"
)

func readEvent() Event {
	return Event{
		OccurredAt:  time.Unix(1700000000, 0).UTC(),
		JobName:     "sample-etl",
		RunID:       "run-123",
		Direction:   DirectionRead,
		DatasetType: DatasetCatalogTable,
		Dataset:     "sales.orders",
		Rows:        3,
	}
}

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	a, err := ComputeIntegritySHA256(readEvent(), []byte(`{}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(readEvent(), []byte(`{}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
}

func TestComputeIntegritySHA256_ChangesOnDirection(t *testing.T) {
	event := readEvent()
	a, err := ComputeIntegritySHA256(event, []byte(`{}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	event.Direction = DirectionWrite
	b, err := ComputeIntegritySHA256(event, []byte(`{}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}

func TestEventValidate(t *testing.T) {
	if err := readEvent().Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	write := readEvent()
	write.Direction = DirectionWrite
	write.DatasetType = DatasetStoragePath
	write.Dataset = "s3://lake/processed/"
	write.Objects = 2
	if err := write.Validate(); err != nil {
		t.Fatalf("Validate(write) err=%v", err)
	}

	cases := map[string]func(*Event){
		"no run":           func(e *Event) { e.RunID = "" },
		"no job":           func(e *Event) { e.JobName = " " },
		"bad direction":    func(e *Event) { e.Direction = "read_by" },
		"bad dataset type": func(e *Event) { e.DatasetType = "job_run" },
		"table w/o db":     func(e *Event) { e.Dataset = "orders" },
		"bad path":         func(e *Event) { e.DatasetType = DatasetStoragePath; e.Dataset = "/tmp/orders" },
		"read objects":     func(e *Event) { e.Objects = 1 },
		"negative rows":    func(e *Event) { e.Rows = -1 },
	}
	for name, mutate := range cases {
		event := readEvent()
		mutate(&event)
		if err := event.Validate(); err == nil {
			t.Fatalf("Validate(%s) expected error", name)
		}
	}
}

func TestEdge(t *testing.T) {
	event := readEvent()
	if got := event.Edge(); got != "catalog_table:sales.orders -> run:run-123" {
		t.Fatalf("Edge()=%q", got)
	}
	event.Direction = DirectionWrite
	if got := event.Edge(); got != "run:run-123 -> catalog_table:sales.orders" {
		t.Fatalf("Edge()=%q", got)
	}
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, URL: ":memory:", PingTimeout: time.Second, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(ctx, db, db.Dialect); err != nil {
		t.Fatalf("EnsureSchema() err=%v", err)
	}
	return db
}

func TestInsertAndListRun(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	write := readEvent()
	write.Direction = DirectionWrite
	write.DatasetType = DatasetStoragePath
	write.Dataset = "s3://lake/processed/"
	write.Objects = 2
	write.Metadata = map[string]any{"format": "parquet"}
	other := readEvent()
	other.RunID = "run-999"

	for _, e := range []Event{readEvent(), write, other} {
		if id, err := Insert(ctx, db, db.Dialect, e); err != nil || id <= 0 {
			t.Fatalf("Insert() id=%d err=%v", id, err)
		}
	}

	events, err := ListRun(ctx, db, db.Dialect, "run-123")
	if err != nil {
		t.Fatalf("ListRun() err=%v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListRun() len=%d, want 2", len(events))
	}
	if events[0].Direction != DirectionRead || events[1].Edge() != "run:run-123 -> storage_path:s3://lake/processed/" {
		t.Fatalf("ListRun()=%+v", events)
	}
	if events[1].Objects != 2 || events[1].Metadata["format"] != "parquet" {
		t.Fatalf("ListRun()[1]=%+v", events[1])
	}
	if !events[0].OccurredAt.Equal(readEvent().OccurredAt) {
		t.Fatalf("OccurredAt=%v", events[0].OccurredAt)
	}
}

func TestListRunDetectsTampering(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	if _, err := Insert(ctx, db, db.Dialect, readEvent()); err != nil {
		t.Fatalf("Insert() err=%v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE lineage_events SET rows_count = 300`); err != nil {
		t.Fatalf("update err=%v", err)
	}
	if _, err := ListRun(ctx, db, db.Dialect, "run-123"); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("ListRun() err=%v, want ErrIntegrity", err)
	}
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	db := openDB(t)
	event := readEvent()
	event.Direction = "sideways"
	if _, err := Insert(context.Background(), db, db.Dialect, event); err == nil {
		t.Fatalf("Insert() expected error")
	}
}
