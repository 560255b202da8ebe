// Package runlog appends job run lifecycle events (started, succeeded,
// failed) to the job_run_events table. Rows are append-only and carry a
// SHA-256 over their canonical JSON form.
package runlog

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
)

const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Event struct {
	OccurredAt time.Time
	JobName    string
	RunID      string
	Status     string
	Message    string
	Payload    any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.JobName) == "" {
		return errors.New("JobName is required")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("RunID is required")
	}
	switch strings.TrimSpace(e.Status) {
	case StatusStarted, StatusSucceeded, StatusFailed:
	default:
		return fmt.Errorf("Status unsupported: %q", e.Status)
	}
	return nil
}

func EnsureSchema(ctx context.Context, db Execer, dialect database.Dialect) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS job_run_events (
		event_id `+dialect.SerialPrimaryKey()+`,
		occurred_at BIGINT NOT NULL,
		job_name TEXT NOT NULL,
		run_id TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		payload TEXT NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create job_run_events: %w", err)
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
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var message sql.NullString
	if strings.TrimSpace(event.Message) != "" {
		message = sql.NullString{String: strings.TrimSpace(event.Message), Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		dialect.Rebind(`INSERT INTO job_run_events (
			occurred_at,
			job_name,
			run_id,
			status,
			message,
			payload,
			integrity_sha256
		) VALUES (?,?,?,?,?,?,?)
		RETURNING event_id`),
		event.OccurredAt.UTC().UnixMilli(),
		strings.TrimSpace(event.JobName),
		strings.TrimSpace(event.RunID),
		strings.TrimSpace(event.Status),
		message,
		string(payloadJSON),
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job run event: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time       `json:"occurred_at"`
		JobName    string          `json:"job_name"`
		RunID      string          `json:"run_id"`
		Status     string          `json:"status"`
		Message    string          `json:"message,omitempty"`
		Payload    json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt: event.OccurredAt.UTC().Truncate(time.Millisecond),
		JobName:    strings.TrimSpace(event.JobName),
		RunID:      strings.TrimSpace(event.RunID),
		Status:     strings.TrimSpace(event.Status),
		Message:    strings.TrimSpace(event.Message),
		Payload:    payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Recorder binds Insert to one database.
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
