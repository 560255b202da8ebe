package quality

import (
	"strings"
	"time"

	"github.com/animus-labs/gluejobs/internal/frame"
	"github.com/animus-labs/gluejobs/internal/schema"
)

const ReportSchemaV1 = "gluejobs.quality.evaluation_report.v1"

const (
	StatusPass  = "pass"
	StatusFail  = "fail"
	StatusError = "error"
)

type Report struct {
	Schema      string        `json:"schema"`
	JobName     string        `json:"job_name"`
	RunID       string        `json:"run_id"`
	Dataset     string        `json:"dataset"`
	Status      string        `json:"status"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	Rows        int           `json:"rows"`
	Summary     Summary       `json:"summary"`
	Checks      []CheckResult `json:"checks"`
}

type Summary struct {
	ChecksTotal int      `json:"checks_total"`
	ChecksPass  int      `json:"checks_pass"`
	ChecksFail  int      `json:"checks_fail"`
	ChecksError int      `json:"checks_error"`
	Failing     []string `json:"failing_check_ids,omitempty"`
}

type CheckResult struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Observed   map[string]any `json:"observed,omitempty"`
	Expected   map[string]any `json:"expected,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

type Subject struct {
	JobName string
	RunID   string
	Dataset string
}

func Evaluate(now time.Time, subject Subject, spec RuleSpec, f *frame.Frame) Report {
	report := Report{
		Schema:      ReportSchemaV1,
		JobName:     subject.JobName,
		RunID:       subject.RunID,
		Dataset:     subject.Dataset,
		EvaluatedAt: now.UTC(),
		Rows:        f.Len(),
	}

	checks := make([]CheckResult, 0, len(spec.Checks))
	var (
		passCount  int
		failCount  int
		errorCount int
		failingIDs []string
	)

	for _, check := range spec.Checks {
		start := time.Now()
		result := evaluateCheck(check, f)
		result.DurationMs = time.Since(start).Milliseconds()
		checks = append(checks, result)

		switch result.Status {
		case StatusPass:
			passCount++
		case StatusFail:
			failCount++
			failingIDs = append(failingIDs, result.ID)
		default:
			errorCount++
			failingIDs = append(failingIDs, result.ID)
		}
	}

	report.Checks = checks
	report.Summary = Summary{
		ChecksTotal: len(checks),
		ChecksPass:  passCount,
		ChecksFail:  failCount,
		ChecksError: errorCount,
		Failing:     failingIDs,
	}

	switch {
	case errorCount > 0:
		report.Status = StatusError
	case failCount > 0:
		report.Status = StatusFail
	default:
		report.Status = StatusPass
	}
	return report
}

func evaluateCheck(check CheckSpec, f *frame.Frame) CheckResult {
	kind := strings.ToLower(strings.TrimSpace(check.Type))
	result := CheckResult{
		ID:   strings.TrimSpace(check.ID),
		Type: kind,
	}

	switch kind {
	case CheckRequiredColumns:
		cols := trimNonEmpty(check.Columns)
		missing := schema.MissingColumns(cols, f.Columns())
		result.Expected = map[string]any{"required_columns": cols}
		result.Observed = map[string]any{"columns": f.Columns(), "missing": missing}
		if len(missing) > 0 {
			result.Status = StatusFail
			result.Message = "missing required columns"
			return result
		}
		result.Status = StatusPass
		return result

	case CheckNonNullColumns:
		cols := trimNonEmpty(check.Columns)
		if missing := schema.MissingColumns(cols, f.Columns()); len(missing) > 0 {
			result.Status = StatusError
			result.Message = "columns not found"
			result.Observed = map[string]any{"missing": missing}
			return result
		}
		nulls := make(map[string]any)
		for _, name := range cols {
			values, _ := f.Column(name)
			n := 0
			for _, v := range values {
				if v == nil {
					n++
				}
			}
			if n > 0 {
				nulls[name] = n
			}
		}
		result.Expected = map[string]any{"non_null_columns": cols}
		result.Observed = map[string]any{"null_counts": nulls}
		if len(nulls) > 0 {
			result.Status = StatusFail
			result.Message = "null values in non-null columns"
			return result
		}
		result.Status = StatusPass
		return result

	case CheckRowCount:
		rows := int64(f.Len())
		result.Observed = map[string]any{"rows": rows}
		result.Expected = map[string]any{}
		if check.MinRows != nil {
			result.Expected["min_rows"] = *check.MinRows
		}
		if check.MaxRows != nil {
			result.Expected["max_rows"] = *check.MaxRows
		}
		if check.MinRows != nil && rows < *check.MinRows {
			result.Status = StatusFail
			result.Message = "row count below minimum"
			return result
		}
		if check.MaxRows != nil && rows > *check.MaxRows {
			result.Status = StatusFail
			result.Message = "row count above maximum"
			return result
		}
		result.Status = StatusPass
		return result

	case CheckAllowedValues:
		column := strings.TrimSpace(check.Column)
		values, err := f.Column(column)
		if err != nil {
			result.Status = StatusError
			result.Message = "column not found"
			return result
		}
		allowed := make(map[string]struct{}, len(check.Allowed))
		for _, v := range check.Allowed {
			allowed[v] = struct{}{}
		}
		unexpected := make([]string, 0)
		seen := make(map[string]struct{})
		for _, v := range values {
			if v == nil {
				continue
			}
			s := frame.FormatValue(v)
			if _, ok := allowed[s]; ok {
				continue
			}
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				unexpected = append(unexpected, s)
			}
		}
		result.Expected = map[string]any{"column": column, "allowed": check.Allowed}
		result.Observed = map[string]any{"unexpected": unexpected}
		if len(unexpected) > 0 {
			result.Status = StatusFail
			result.Message = "values outside allowed set"
			return result
		}
		result.Status = StatusPass
		return result
	}

	result.Status = StatusError
	result.Message = "unsupported check type"
	return result
}
