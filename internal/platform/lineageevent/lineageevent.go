// Package lineageevent records which datasets a job run read and wrote.
// Each row is one edge between a dataset and a run, append-only, with a
// SHA-256 over its canonical JSON so that edited rows can be detected.
package lineageevent

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/gluejobs/internal/platform/database"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
)

const (
	DirectionRead  = "read"
	DirectionWrite = "write"

	DatasetCatalogTable = "catalog_table"
	DatasetStoragePath  = "storage_path"
)

var ErrIntegrity = errors.New("lineage event integrity mismatch")

// Event is one dataset edge of a job run.
type Event struct {
	ID          int64
	OccurredAt  time.Time
	JobName     string
	RunID       string
	Direction   string
	DatasetType string
	// Dataset is "database.table" for catalog tables and an s3:// URI for
	// storage paths.
	Dataset  string
	Rows     int64
	Objects  int64
	Metadata map[string]any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	if strings.TrimSpace(e.JobName) == "" {
		return errors.New("job name is required")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("run id is required")
	}
	switch e.Direction {
	case DirectionRead:
		if e.Objects != 0 {
			return errors.New("read events do not carry an object count")
		}
	case DirectionWrite:
	default:
		return fmt.Errorf("direction must be %q or %q, got %q", DirectionRead, DirectionWrite, e.Direction)
	}
	if e.Rows < 0 || e.Objects < 0 {
		return errors.New("rows and objects must be >= 0")
	}
	return validateDataset(e.DatasetType, e.Dataset)
}

func validateDataset(kind, name string) error {
	switch kind {
	case DatasetCatalogTable:
		db, table, ok := strings.Cut(name, ".")
		if !ok || strings.TrimSpace(db) == "" || strings.TrimSpace(table) == "" {
			return fmt.Errorf("catalog table dataset must be database.table, got %q", name)
		}
	case DatasetStoragePath:
		if _, err := objectstore.ParseURI(name); err != nil {
			return fmt.Errorf("storage path dataset: %w", err)
		}
	default:
		return fmt.Errorf("dataset type must be %q or %q, got %q", DatasetCatalogTable, DatasetStoragePath, kind)
	}
	return nil
}

func EnsureSchema(ctx context.Context, db Execer, dialect database.Dialect) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS lineage_events (
		event_id `+dialect.SerialPrimaryKey()+`,
		occurred_at BIGINT NOT NULL,
		job_name TEXT NOT NULL,
		run_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		dataset_type TEXT NOT NULL,
		dataset TEXT NOT NULL,
		rows_count BIGINT NOT NULL,
		objects_count BIGINT NOT NULL,
		metadata TEXT NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create lineage_events: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS lineage_events_run_idx ON lineage_events (run_id)`); err != nil {
		return fmt.Errorf("create lineage_events index: %w", err)
	}
	return nil
}

func Insert(ctx context.Context, q QueryRower, dialect database.Dialect, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event = normalize(event)
	if err := event.Validate(); err != nil {
		return 0, err
	}

	metadataJSON, err := marshalMetadata(event.Metadata)
	if err != nil {
		return 0, err
	}
	integrity, err := ComputeIntegritySHA256(event, metadataJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(ctx, dialect.Rebind(insertEventQuery),
		event.OccurredAt.UTC().UnixMilli(),
		event.JobName,
		event.RunID,
		event.Direction,
		event.DatasetType,
		event.Dataset,
		event.Rows,
		event.Objects,
		string(metadataJSON),
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lineage event: %w", err)
	}
	return id, nil
}

const insertEventQuery = `INSERT INTO lineage_events (
	occurred_at, job_name, run_id, direction, dataset_type, dataset,
	rows_count, objects_count, metadata, integrity_sha256
) VALUES (?,?,?,?,?,?,?,?,?,?)
RETURNING event_id`

const listRunQuery = `SELECT event_id, occurred_at, job_name, run_id, direction, dataset_type, dataset,
	rows_count, objects_count, metadata, integrity_sha256
FROM lineage_events
WHERE run_id = ?
ORDER BY event_id`

// ListRun returns the edges of one run in insertion order. A row whose
// stored hash no longer matches its content fails with ErrIntegrity.
func ListRun(ctx context.Context, q Querier, dialect database.Dialect, runID string) ([]Event, error) {
	rows, err := q.QueryContext(ctx, dialect.Rebind(listRunQuery), strings.TrimSpace(runID))
	if err != nil {
		return nil, fmt.Errorf("list lineage events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e            Event
			occurredAt   int64
			metadataJSON string
			stored       string
		)
		if err := rows.Scan(&e.ID, &occurredAt, &e.JobName, &e.RunID, &e.Direction, &e.DatasetType, &e.Dataset,
			&e.Rows, &e.Objects, &metadataJSON, &stored); err != nil {
			return nil, fmt.Errorf("scan lineage event: %w", err)
		}
		e.OccurredAt = time.UnixMilli(occurredAt).UTC()
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode lineage metadata %d: %w", e.ID, err)
		}
		want, err := ComputeIntegritySHA256(e, []byte(metadataJSON))
		if err != nil {
			return nil, err
		}
		if want != stored {
			return nil, fmt.Errorf("%w: event %d", ErrIntegrity, e.ID)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lineage events: %w", err)
	}
	return out, nil
}

func normalize(e Event) Event {
	e.JobName = strings.TrimSpace(e.JobName)
	e.RunID = strings.TrimSpace(e.RunID)
	e.Direction = strings.ToLower(strings.TrimSpace(e.Direction))
	e.DatasetType = strings.ToLower(strings.TrimSpace(e.DatasetType))
	e.Dataset = strings.TrimSpace(e.Dataset)
	return e
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return blob, nil
}

// ComputeIntegritySHA256 hashes the canonical form of an event. Time is
// truncated to the stored millisecond precision.
func ComputeIntegritySHA256(event Event, metadataJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt  time.Time       `json:"occurred_at"`
		JobName     string          `json:"job_name"`
		RunID       string          `json:"run_id"`
		Edge        string          `json:"edge"`
		DatasetType string          `json:"dataset_type"`
		Dataset     string          `json:"dataset"`
		Rows        int64           `json:"rows"`
		Objects     int64           `json:"objects"`
		Metadata    json.RawMessage `json:"metadata"`
	}
	event = normalize(event)
	in := integrityInput{
		OccurredAt:  event.OccurredAt.UTC().Truncate(time.Millisecond),
		JobName:     event.JobName,
		RunID:       event.RunID,
		Edge:        event.Edge(),
		DatasetType: event.DatasetType,
		Dataset:     event.Dataset,
		Rows:        event.Rows,
		Objects:     event.Objects,
		Metadata:    metadataJSON,
	}
	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Edge renders the event as "dataset -> run" for reads and "run -> dataset"
// for writes.
func (e Event) Edge() string {
	run := "run:" + e.RunID
	dataset := e.DatasetType + ":" + e.Dataset
	if e.Direction == DirectionWrite {
		return run + " -> " + dataset
	}
	return dataset + " -> " + run
}

type Recorder struct {
	db *database.DB
}

func NewRecorder(db *database.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Record(ctx context.Context, event Event) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := Insert(ctx, r.db, r.db.Dialect, event)
	return err
}
