package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFinish(t *testing.T) {
	m := NewJobMetrics()
	started := time.Unix(1700000000, 0)
	m.Finish(started, started.Add(3*time.Second), true)
	if got := testutil.ToFloat64(m.Duration); got != 3 {
		t.Fatalf("Duration=%v, want 3", got)
	}
	if got := testutil.ToFloat64(m.LastSuccess); got != 1700000003 {
		t.Fatalf("LastSuccess=%v", got)
	}

	m.Finish(started, started.Add(time.Second), false)
	if got := testutil.ToFloat64(m.Failed); got != 1 {
		t.Fatalf("Failed=%v, want 1", got)
	}
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewJobMetrics()
	m.RowsWritten.Add(5)
	if err := (Pusher{URL: srv.URL}).Push(context.Background(), m, "sample-etl", "run-1"); err != nil {
		t.Fatalf("Push() err=%v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(path, "/job/sample-etl") || !strings.Contains(path, "run_id/run-1") {
		t.Fatalf("path=%q", path)
	}
	if body == "" {
		t.Fatalf("expected pushed body")
	}
}

func TestPushDisabled(t *testing.T) {
	if err := (Pusher{}).Push(context.Background(), NewJobMetrics(), "job", "run"); err != nil {
		t.Fatalf("Push() err=%v", err)
	}
}
