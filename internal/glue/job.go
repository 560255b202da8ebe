package glue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/platform/metrics"
	"github.com/animus-labs/gluejobs/internal/platform/runlog"
)

var (
	ErrJobFailed    = errors.New("job already failed")
	ErrJobCommitted = errors.New("job already committed")
)

type jobState int

const (
	jobRunning jobState = iota
	jobCommitted
	jobFailed
)

// Job is one run of a job script.
type Job struct {
	Name    string
	RunID   string
	Params  jobparams.Params
	Metrics *metrics.JobMetrics

	gc      *Context
	started time.Time
	state   jobState
}

// InitJob starts a run and makes it the context's current job, so reads and
// writes are attributed to it.
func (c *Context) InitJob(ctx context.Context, name string, params jobparams.Params) (*Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("job name is required")
	}
	j := &Job{
		Name:    name,
		RunID:   c.newID(),
		Params:  params,
		Metrics: metrics.NewJobMetrics(),
		gc:      c,
		started: c.now(),
	}
	err := c.runs.Record(ctx, runlog.Event{
		OccurredAt: j.started,
		JobName:    j.Name,
		RunID:      j.RunID,
		Status:     runlog.StatusStarted,
		Payload:    map[string]any{"params": params.Names()},
	})
	if err != nil {
		return nil, fmt.Errorf("record job start: %w", err)
	}
	c.job = j
	c.logger.Info("job started", "job", j.Name, "run_id", j.RunID)
	return j, nil
}

// Commit marks the run successful. Committing twice is a no-op; committing a
// failed run is an error.
func (j *Job) Commit(ctx context.Context) error {
	switch j.state {
	case jobCommitted:
		return nil
	case jobFailed:
		return fmt.Errorf("commit %s: %w", j.RunID, ErrJobFailed)
	}
	if err := j.finish(ctx, runlog.StatusSucceeded, ""); err != nil {
		return err
	}
	j.state = jobCommitted
	return nil
}

// Fail marks the run failed with cause. Failing twice is a no-op.
func (j *Job) Fail(ctx context.Context, cause error) error {
	switch j.state {
	case jobFailed:
		return nil
	case jobCommitted:
		return fmt.Errorf("fail %s: %w", j.RunID, ErrJobCommitted)
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := j.finish(ctx, runlog.StatusFailed, message); err != nil {
		return err
	}
	j.state = jobFailed
	return nil
}

func (j *Job) finish(ctx context.Context, status, message string) error {
	gc := j.gc
	now := gc.now()
	success := status == runlog.StatusSucceeded
	j.Metrics.Finish(j.started, now, success)

	err := gc.runs.Record(ctx, runlog.Event{
		OccurredAt: now,
		JobName:    j.Name,
		RunID:      j.RunID,
		Status:     status,
		Message:    message,
		Payload:    map[string]any{"duration_ms": now.Sub(j.started).Milliseconds()},
	})
	if err != nil {
		return fmt.Errorf("record job %s: %w", status, err)
	}
	if err := gc.pusher.Push(ctx, j.Metrics, j.Name, j.RunID); err != nil {
		gc.logger.Warn("metrics push failed", "job", j.Name, "run_id", j.RunID, "error", err)
	}

	attrs := []any{"job", j.Name, "run_id", j.RunID, "duration", now.Sub(j.started).String()}
	if success {
		gc.logger.Info("job committed", attrs...)
	} else {
		gc.logger.Error("job failed", append(attrs, "error", message)...)
	}
	if gc.job == j {
		gc.job = nil
	}
	return nil
}
