// Package jobutil holds the small helpers job scripts share: status lines,
// config loading and column checks.
package jobutil

import (
	"fmt"
	"io"
	"os"
	"time"
)

const (
	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusInfo      = "INFO"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// StatusLine formats "[YYYY-MM-DD HH:MM:SS] Job <job> - Status: <status>",
// followed by " - <message>" when message is not empty.
func StatusLine(now time.Time, job, status, message string) string {
	line := fmt.Sprintf("[%s] Job %s - Status: %s", now.Format(statusTimeLayout), job, status)
	if message != "" {
		line += " - " + message
	}
	return line
}

// StatusLogger prints status lines to Out, one per call.
type StatusLogger struct {
	Out io.Writer
	Now func() time.Time
}

func NewStatusLogger() *StatusLogger {
	return &StatusLogger{Out: os.Stdout, Now: time.Now}
}

// Status prints the line and returns it.
func (l *StatusLogger) Status(job, status, message string) string {
	now := time.Now
	out := io.Writer(os.Stdout)
	if l != nil {
		if l.Now != nil {
			now = l.Now
		}
		if l.Out != nil {
			out = l.Out
		}
	}
	line := StatusLine(now(), job, status, message)
	fmt.Fprintln(out, line)
	return line
}

func (l *StatusLogger) JobStart(job string) string {
	return l.Status(job, StatusStarted, "")
}

func (l *StatusLogger) JobCompletion(job string) string {
	return l.Status(job, StatusCompleted, "")
}

func (l *StatusLogger) JobFailure(job string, err error) string {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return l.Status(job, StatusFailed, msg)
}

func (l *StatusLogger) Info(job, message string) string {
	return l.Status(job, StatusInfo, message)
}
