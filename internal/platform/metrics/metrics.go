// Package metrics collects per-run job counters and pushes them to a
// Prometheus Pushgateway when the run ends. Batch jobs do not live long
// enough to be scraped.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type JobMetrics struct {
	registry *prometheus.Registry

	RowsRead       prometheus.Counter
	RowsWritten    prometheus.Counter
	ObjectsWritten prometheus.Counter
	Duration       prometheus.Gauge
	LastSuccess    prometheus.Gauge
	Failed         prometheus.Gauge
}

func NewJobMetrics() *JobMetrics {
	m := &JobMetrics{
		registry: prometheus.NewRegistry(),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gluejobs",
			Name:      "rows_read_total",
			Help:      "Rows read from catalog tables and storage paths.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gluejobs",
			Name:      "rows_written_total",
			Help:      "Rows written to sinks.",
		}),
		ObjectsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gluejobs",
			Name:      "objects_written_total",
			Help:      "Objects uploaded to object storage.",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gluejobs",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gluejobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful commit.",
		}),
		Failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gluejobs",
			Name:      "run_failed",
			Help:      "1 when the last run failed.",
		}),
	}
	m.registry.MustRegister(m.RowsRead, m.RowsWritten, m.ObjectsWritten, m.Duration, m.LastSuccess, m.Failed)
	return m
}

func (m *JobMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Finish stamps the run outcome into the gauges.
func (m *JobMetrics) Finish(started, now time.Time, success bool) {
	m.Duration.Set(now.Sub(started).Seconds())
	if success {
		m.Failed.Set(0)
		m.LastSuccess.Set(float64(now.Unix()))
		return
	}
	m.Failed.Set(1)
}

// Pusher sends a run's metrics to a Pushgateway under the job name,
// grouped by run id.
type Pusher struct {
	URL     string
	Timeout time.Duration
}

func (p Pusher) Push(ctx context.Context, m *JobMetrics, jobName, runID string) error {
	if strings.TrimSpace(p.URL) == "" || m == nil {
		return nil
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := push.New(p.URL, jobName).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		PushContext(pushCtx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
